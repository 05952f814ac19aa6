package sim

import (
	"drone-rpc/message"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
	"drone-rpc/server"
)

type telemetryService struct{ v *Vehicle }

func (s *telemetryService) SubscribePosition(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "position", func() any {
		s.v.mu.Lock()
		defer s.v.mu.Unlock()
		p := s.v.pos
		return &telemetry.PositionResponse{Position: &p}
	})
}

func (s *telemetryService) SubscribeBattery(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "battery", func() any {
		s.v.mu.Lock()
		defer s.v.mu.Unlock()
		if s.v.armed && s.v.battery.RemainingPercent > 0 {
			s.v.battery.RemainingPercent -= 0.01
		}
		b := s.v.battery
		return &telemetry.BatteryResponse{Battery: &b}
	})
}

func (s *telemetryService) SubscribeHealth(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "health", func() any {
		return &telemetry.HealthResponse{Health: &telemetry.Health{
			IsGyrometerCalibrationOK:     true,
			IsAccelerometerCalibrationOK: true,
			IsMagnetometerCalibrationOK:  true,
			IsLocalPositionOK:            true,
			IsGlobalPositionOK:           true,
			IsHomePositionOK:             true,
			IsArmable:                    !s.v.denyArm(),
		}}
	})
}

func (v *Vehicle) denyArm() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg.DenyArm
}

func (s *telemetryService) SubscribeArmed(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "armed", func() any {
		s.v.mu.Lock()
		defer s.v.mu.Unlock()
		return &telemetry.BoolResponse{Value: s.v.armed}
	})
}

func (s *telemetryService) SubscribeInAir(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "in_air", func() any {
		s.v.mu.Lock()
		defer s.v.mu.Unlock()
		return &telemetry.BoolResponse{Value: s.v.inAir}
	})
}

func (s *telemetryService) SubscribeFlightMode(_ *message.Empty, st *server.Stream) error {
	return s.v.periodic(st, "flight_mode", func() any {
		s.v.mu.Lock()
		defer s.v.mu.Unlock()
		return &telemetry.FlightModeResponse{FlightMode: s.v.mode}
	})
}

func (s *telemetryService) SetRatePosition(req *telemetry.SetRateRequest, reply *result.Response) error {
	return s.setRate("position", req, reply)
}

func (s *telemetryService) SetRateBattery(req *telemetry.SetRateRequest, reply *result.Response) error {
	return s.setRate("battery", req, reply)
}

// setRate applies to streams opened afterwards.
func (s *telemetryService) setRate(stream string, req *telemetry.SetRateRequest, reply *result.Response) error {
	if req.RateHz <= 0 {
		reply.Set(telemetry.ResultCommandDenied, "rate must be positive")
		return nil
	}
	s.v.mu.Lock()
	s.v.rates[stream] = req.RateHz
	s.v.mu.Unlock()
	reply.Set(telemetry.ResultSuccess, "")
	return nil
}
