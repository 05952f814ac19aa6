package telemetry

import "drone-rpc/protocol"

// Position is a global position. Field numbers follow mavsdk.rpc.telemetry.
type Position struct {
	LatitudeDeg       float64 `json:"latitude_deg"`
	LongitudeDeg      float64 `json:"longitude_deg"`
	AbsoluteAltitudeM float32 `json:"absolute_altitude_m"`
	RelativeAltitudeM float32 `json:"relative_altitude_m"`
}

func (m *Position) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Double(1, m.LatitudeDeg)
	e.Double(2, m.LongitudeDeg)
	e.Float(3, m.AbsoluteAltitudeM)
	e.Float(4, m.RelativeAltitudeM)
	return e.Bytes()
}

func (m *Position) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.LatitudeDeg = f.Double()
		case f.Matches(2):
			m.LongitudeDeg = f.Double()
		case f.Matches(3):
			m.AbsoluteAltitudeM = f.Float()
		case f.Matches(4):
			m.RelativeAltitudeM = f.Float()
		}
		return nil
	})
}

type Battery struct {
	VoltageV         float32 `json:"voltage_v"`
	RemainingPercent float32 `json:"remaining_percent"`
	ID               uint32  `json:"id"`
}

func (m *Battery) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Float(1, m.VoltageV)
	e.Float(2, m.RemainingPercent)
	e.Uint32(3, m.ID)
	return e.Bytes()
}

func (m *Battery) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.VoltageV = f.Float()
		case f.Matches(2):
			m.RemainingPercent = f.Float()
		case f.Matches(3):
			m.ID = f.Uint32()
		}
		return nil
	})
}

type Health struct {
	IsGyrometerCalibrationOK     bool `json:"is_gyrometer_calibration_ok"`
	IsAccelerometerCalibrationOK bool `json:"is_accelerometer_calibration_ok"`
	IsMagnetometerCalibrationOK  bool `json:"is_magnetometer_calibration_ok"`
	IsLocalPositionOK            bool `json:"is_local_position_ok"`
	IsGlobalPositionOK           bool `json:"is_global_position_ok"`
	IsHomePositionOK             bool `json:"is_home_position_ok"`
	IsArmable                    bool `json:"is_armable"`
}

func (m *Health) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Bool(1, m.IsGyrometerCalibrationOK)
	e.Bool(2, m.IsAccelerometerCalibrationOK)
	e.Bool(3, m.IsMagnetometerCalibrationOK)
	e.Bool(5, m.IsLocalPositionOK)
	e.Bool(6, m.IsGlobalPositionOK)
	e.Bool(7, m.IsHomePositionOK)
	e.Bool(8, m.IsArmable)
	return e.Bytes()
}

func (m *Health) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.IsGyrometerCalibrationOK = f.Bool()
		case f.Matches(2):
			m.IsAccelerometerCalibrationOK = f.Bool()
		case f.Matches(3):
			m.IsMagnetometerCalibrationOK = f.Bool()
		case f.Matches(5):
			m.IsLocalPositionOK = f.Bool()
		case f.Matches(6):
			m.IsGlobalPositionOK = f.Bool()
		case f.Matches(7):
			m.IsHomePositionOK = f.Bool()
		case f.Matches(8):
			m.IsArmable = f.Bool()
		}
		return nil
	})
}

// FlightMode is the vehicle's current flight mode.
type FlightMode int32

const (
	FlightModeUnknown FlightMode = iota
	FlightModeReady
	FlightModeTakeoff
	FlightModeHold
	FlightModeMission
	FlightModeReturnToLaunch
	FlightModeLand
	FlightModeOffboard
	FlightModeFollowMe
	FlightModeManual
	FlightModeAltctl
	FlightModePosctl
	FlightModeAcro
	FlightModeStabilized
	FlightModeRattitude
)

var flightModeNames = [...]string{
	"UNKNOWN", "READY", "TAKEOFF", "HOLD", "MISSION", "RETURN_TO_LAUNCH", "LAND",
	"OFFBOARD", "FOLLOW_ME", "MANUAL", "ALTCTL", "POSCTL", "ACRO", "STABILIZED", "RATTITUDE",
}

func (m FlightMode) String() string {
	if m >= 0 && int(m) < len(flightModeNames) {
		return flightModeNames[m]
	}
	return "UNKNOWN"
}

// PositionResponse is one element of SubscribePosition: {1: Position}.
type PositionResponse struct {
	Position *Position `json:"position,omitempty"`
}

func (m *PositionResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Position != nil {
		e.Message(1, m.Position)
	}
	return e.Bytes()
}

func (m *PositionResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Position = new(Position)
			return m.Position.UnmarshalBinary(f.Message())
		}
		return nil
	})
}

type BatteryResponse struct {
	Battery *Battery `json:"battery,omitempty"`
}

func (m *BatteryResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Battery != nil {
		e.Message(1, m.Battery)
	}
	return e.Bytes()
}

func (m *BatteryResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Battery = new(Battery)
			return m.Battery.UnmarshalBinary(f.Message())
		}
		return nil
	})
}

type HealthResponse struct {
	Health *Health `json:"health,omitempty"`
}

func (m *HealthResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Health != nil {
		e.Message(1, m.Health)
	}
	return e.Bytes()
}

func (m *HealthResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Health = new(Health)
			return m.Health.UnmarshalBinary(f.Message())
		}
		return nil
	})
}

// BoolResponse is {1: bool}: the Armed and InAir streams.
type BoolResponse struct {
	Value bool `json:"value"`
}

func (m *BoolResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Bool(1, m.Value)
	return e.Bytes()
}

func (m *BoolResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Value = f.Bool()
		}
		return nil
	})
}

type FlightModeResponse struct {
	FlightMode FlightMode `json:"flight_mode"`
}

func (m *FlightModeResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Int32(1, int32(m.FlightMode))
	return e.Bytes()
}

func (m *FlightModeResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.FlightMode = FlightMode(f.Int32())
		}
		return nil
	})
}

// SetRateRequest sets a stream rate in Hz.
type SetRateRequest struct {
	RateHz float64 `json:"rate_hz"`
}

func (m *SetRateRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Double(1, m.RateHz)
	return e.Bytes()
}

func (m *SetRateRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.RateHz = f.Double()
		}
		return nil
	})
}

