package action

import "drone-rpc/protocol"

// GotoLocationRequest flies to a global position. Field numbers follow
// mavsdk.rpc.action.
type GotoLocationRequest struct {
	LatitudeDeg       float64 `json:"latitude_deg"`
	LongitudeDeg      float64 `json:"longitude_deg"`
	AbsoluteAltitudeM float32 `json:"absolute_altitude_m"`
	YawDeg            float32 `json:"yaw_deg"`
}

func (m *GotoLocationRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Double(1, m.LatitudeDeg)
	e.Double(2, m.LongitudeDeg)
	e.Float(3, m.AbsoluteAltitudeM)
	e.Float(4, m.YawDeg)
	return e.Bytes()
}

func (m *GotoLocationRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.LatitudeDeg = f.Double()
		case f.Matches(2):
			m.LongitudeDeg = f.Double()
		case f.Matches(3):
			m.AbsoluteAltitudeM = f.Float()
		case f.Matches(4):
			m.YawDeg = f.Float()
		}
		return nil
	})
}

// FloatRequest carries a single float in field 1: SetTakeoffAltitude and
// SetMaximumSpeed.
type FloatRequest struct {
	Value float32 `json:"value"`
}

func (m *FloatRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Float(1, m.Value)
	return e.Bytes()
}

func (m *FloatRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Value = f.Float()
		}
		return nil
	})
}

// FloatResponse is {1: result, 2: value}: GetTakeoffAltitude and GetMaximumSpeed.
type FloatResponse struct {
	Result *Result `json:"result,omitempty"`
	Value  float32 `json:"value"`
}

func (m *FloatResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Result != nil {
		e.Message(1, m.Result)
	}
	e.Float(2, m.Value)
	return e.Bytes()
}

func (m *FloatResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.Result = new(Result)
			return m.Result.UnmarshalBinary(f.Message())
		case f.Matches(2):
			m.Value = f.Float()
		}
		return nil
	})
}
