package sim

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"drone-rpc/message"
	"drone-rpc/plugins/mission"
	"drone-rpc/plugins/telemetry"
	"drone-rpc/result"
	"drone-rpc/server"
)

type missionService struct{ v *Vehicle }

func validatePlan(plan *mission.Plan) (int32, string) {
	if plan == nil {
		return mission.ResultInvalidArgument, "no mission plan"
	}
	if len(plan.Items) > MaxMissionItems {
		return mission.ResultTooManyMissionItems, fmt.Sprintf("%d items, at most %d", len(plan.Items), MaxMissionItems)
	}
	return mission.ResultSuccess, ""
}

func (s *missionService) store(plan *mission.Plan) {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	v.plan = mission.Plan{Items: append([]mission.Item(nil), plan.Items...)}
	v.current = 0
	v.running = false
	v.notify()
}

func (s *missionService) UploadMission(req *mission.UploadRequest, reply *result.Response) error {
	code, msg := validatePlan(req.Plan)
	if code == mission.ResultSuccess {
		s.store(req.Plan)
	}
	reply.Set(code, msg)
	return nil
}

// UploadMissionWithProgress reports one NEXT element per item, then the final
// result. CancelMissionUpload ends it with TRANSFER_CANCELLED.
func (s *missionService) UploadMissionWithProgress(req *mission.UploadRequest, st *server.Stream) error {
	send := func(code int32, msg string, progress *mission.ProgressData) error {
		s.v.sent.Add(1)
		return st.Send(&mission.UploadProgressResponse{
			Result:   &result.Result{Code: code, Message: msg},
			Progress: progress,
		})
	}
	if code, msg := validatePlan(req.Plan); code != mission.ResultSuccess {
		return send(code, msg, nil)
	}

	gen := s.v.uploadGen.Load()
	n := len(req.Plan.Items)
	for i := range n {
		select {
		case <-st.Context().Done():
			return st.Context().Err()
		case <-time.After(s.v.interval("upload")):
		}
		if s.v.uploadGen.Load() != gen {
			return send(mission.ResultTransferCancelled, "upload cancelled", nil)
		}
		if err := send(mission.ResultNext, "", &mission.ProgressData{Progress: float32(i+1) / float32(n)}); err != nil {
			return err
		}
	}
	s.store(req.Plan)
	return send(mission.ResultSuccess, "", &mission.ProgressData{Progress: 1})
}

func (s *missionService) CancelMissionUpload(_ *message.Empty, reply *result.Response) error {
	s.v.uploadGen.Add(1)
	reply.Set(mission.ResultSuccess, "")
	return nil
}

func (s *missionService) StartMission(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case len(v.plan.Items) == 0:
		reply.Set(mission.ResultNoMissionAvailable, "")
		return nil
	case !v.armed:
		reply.Set(mission.ResultDenied, "not armed")
		return nil
	case v.running:
		reply.Set(mission.ResultSuccess, "")
		return nil
	}
	v.running = true
	v.inAir = true
	v.mode = telemetry.FlightModeMission
	v.flight++
	v.notify()

	v.wg.Add(1)
	go v.fly(v.flight)
	reply.Set(mission.ResultSuccess, "")
	return nil
}

// fly advances one mission item per telemetry period until the mission ends, is
// paused or another flight replaces it.
func (v *Vehicle) fly(flight uint64) {
	defer v.wg.Done()
	t := time.NewTicker(v.interval("mission"))
	defer t.Stop()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-t.C:
		}

		v.mu.Lock()
		if !v.running || v.flight != flight {
			v.mu.Unlock()
			return
		}
		if int(v.current) < len(v.plan.Items) {
			it := v.plan.Items[v.current]
			v.pos.LatitudeDeg, v.pos.LongitudeDeg = it.LatitudeDeg, it.LongitudeDeg
			v.pos.RelativeAltitudeM = it.RelativeAltitudeM
			v.pos.AbsoluteAltitudeM = v.cfg.Home.AbsoluteAltitudeM + it.RelativeAltitudeM
			v.current++
		}
		if int(v.current) >= len(v.plan.Items) {
			v.running = false
			v.mode = telemetry.FlightModeHold
			v.log.Debug("mission finished", zap.Int("items", len(v.plan.Items)))
		}
		v.notify()
		v.mu.Unlock()
	}
}

func (s *missionService) PauseMission(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		v.running = false
		v.mode = telemetry.FlightModeHold
		v.notify()
	}
	reply.Set(mission.ResultSuccess, "")
	return nil
}

func (s *missionService) ClearMission(_ *message.Empty, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	v.plan = mission.Plan{}
	v.current = 0
	v.running = false
	v.notify()
	reply.Set(mission.ResultSuccess, "")
	return nil
}

func (s *missionService) SetCurrentMissionItem(req *mission.SetCurrentItemRequest, reply *result.Response) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	if req.Index < 0 || int(req.Index) >= len(v.plan.Items) {
		reply.Set(mission.ResultInvalidArgument, fmt.Sprintf("index %d out of range", req.Index))
		return nil
	}
	v.current = req.Index
	v.notify()
	reply.Set(mission.ResultSuccess, "")
	return nil
}

func (s *missionService) IsMissionFinished(_ *message.Empty, reply *mission.IsFinishedResponse) error {
	v := s.v
	v.mu.Lock()
	defer v.mu.Unlock()
	reply.Result = &result.Result{Code: mission.ResultSuccess}
	reply.IsFinished = len(v.plan.Items) > 0 && int(v.current) >= len(v.plan.Items)
	return nil
}

func (s *missionService) SubscribeMissionProgress(_ *message.Empty, st *server.Stream) error {
	var last *mission.Progress
	return s.v.onChange(st, func() (any, bool) {
		s.v.mu.Lock()
		p := mission.Progress{Current: s.v.current, Total: int32(len(s.v.plan.Items))}
		s.v.mu.Unlock()
		if last != nil && *last == p {
			return nil, false
		}
		last = &p
		return &mission.ProgressResponse{Progress: &p}, true
	})
}
