package sim

import (
	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/plugins/action"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
)

type actionService struct{ v *Vehicle }

func (s *actionService) Arm(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.cfg.DenyArm:
		reply.Set(action.ResultCommandDenied, "motors disabled")
	case v.inAir:
		reply.Set(action.ResultCommandDenied, "already flying")
	default:
		v.armed = true
		v.notify()
		reply.Set(action.ResultSuccess, "")
	}
	v.log.Debug("arm", zap.Int32("result", reply.Result.Code))
	return nil
}

func (s *actionService) Disarm(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inAir {
		reply.Set(action.ResultCommandDeniedNotLanded, "vehicle in air")
		return nil
	}
	v.armed = false
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) Takeoff(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.armed {
		reply.Set(action.ResultCommandDenied, "not armed")
		return nil
	}
	v.inAir = true
	v.mode = telemetry.FlightModeTakeoff
	v.pos.RelativeAltitudeM = v.takeoffAlt
	v.pos.AbsoluteAltitudeM = v.cfg.Home.AbsoluteAltitudeM + v.takeoffAlt
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) Land(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.inAir {
		reply.Set(action.ResultCommandDenied, "not in air")
		return nil
	}
	v.land()
	reply.Set(action.ResultSuccess, "")
	return nil
}

// land puts the vehicle on the ground where it is. Caller holds mu.
func (v *Vehicle) land() {
	v.inAir = false
	v.running = false
	v.mode = telemetry.FlightModeLand
	v.pos.RelativeAltitudeM = 0
	v.pos.AbsoluteAltitudeM = v.cfg.Home.AbsoluteAltitudeM
	v.notify()
}

func (s *actionService) Reboot(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.armed {
		reply.Set(action.ResultCommandDenied, "vehicle armed")
		return nil
	}
	v.reset()
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) Kill(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	v.land()
	v.armed = false
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) ReturnToLaunch(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.inAir {
		reply.Set(action.ResultCommandDenied, "not in air")
		return nil
	}
	v.running = false
	v.mode = telemetry.FlightModeReturnToLaunch
	v.pos.LatitudeDeg, v.pos.LongitudeDeg = v.cfg.Home.LatitudeDeg, v.cfg.Home.LongitudeDeg
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) Hold(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	v.running = false
	v.mode = telemetry.FlightModeHold
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) GotoLocation(req *action.GotoLocationRequest, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.inAir {
		reply.Set(action.ResultCommandDenied, "not in air")
		return nil
	}
	if req.LatitudeDeg < -90 || req.LatitudeDeg > 90 || req.LongitudeDeg < -180 || req.LongitudeDeg > 180 {
		reply.Set(action.ResultInvalidArgument, "coordinates out of range")
		return nil
	}
	v.mode = telemetry.FlightModeHold
	v.pos.LatitudeDeg, v.pos.LongitudeDeg = req.LatitudeDeg, req.LongitudeDeg
	v.pos.AbsoluteAltitudeM = req.AbsoluteAltitudeM
	v.pos.RelativeAltitudeM = req.AbsoluteAltitudeM - v.cfg.Home.AbsoluteAltitudeM
	v.notify()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) SetTakeoffAltitude(req *action.FloatRequest, reply *result.Response) error {
	if req.Value <= 0 {
		reply.Set(action.ResultInvalidArgument, "altitude must be positive")
		return nil
	}
	s.v.mu.Lock()
	s.v.takeoffAlt = req.Value
	s.v.mu.Unlock()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) GetTakeoffAltitude(_ *message.Empty, reply *action.FloatResponse) error {
	s.v.mu.Lock()
	reply.Value = s.v.takeoffAlt
	s.v.mu.Unlock()
	reply.Result = &result.Result{Code: action.ResultSuccess}
	return nil
}

func (s *actionService) SetMaximumSpeed(req *action.FloatRequest, reply *result.Response) error {
	if req.Value <= 0 {
		reply.Set(action.ResultInvalidArgument, "speed must be positive")
		return nil
	}
	s.v.mu.Lock()
	s.v.maxSpeed = req.Value
	s.v.mu.Unlock()
	reply.Set(action.ResultSuccess, "")
	return nil
}

func (s *actionService) GetMaximumSpeed(_ *message.Empty, reply *action.FloatResponse) error {
	s.v.mu.Lock()
	reply.Value = s.v.maxSpeed
	s.v.mu.Unlock()
	reply.Result = &result.Result{Code: action.ResultSuccess}
	return nil
}
