package sim

import (
	"fmt"
	"time"

	"drone-rpc/message"
	"drone-rpc/plugins/calibration"
	"drone-rpc/result"
	"drone-rpc/server"
)

const calibrationSteps = 4

type calibrationService struct{ v *Vehicle }

func (s *calibrationService) SubscribeCalibrateGyro(_ *message.Empty, st *server.Stream) error {
	return s.calibrate(st, "gyro")
}

func (s *calibrationService) SubscribeCalibrateAccelerometer(_ *message.Empty, st *server.Stream) error {
	return s.calibrate(st, "accelerometer")
}

func (s *calibrationService) SubscribeCalibrateMagnetometer(_ *message.Empty, st *server.Stream) error {
	return s.calibrate(st, "magnetometer")
}

func (s *calibrationService) Cancel(_ *message.Empty, reply *result.Response) error {
	s.v.calibGen.Add(1)
	reply.Set(calibration.ResultSuccess, "")
	return nil
}

// calibrate reports calibrationSteps NEXT elements and then SUCCESS. An armed
// vehicle refuses with FAILED_ARMED.
func (s *calibrationService) calibrate(st *server.Stream, sensor string) error {
	send := func(code int32, msg string, p *calibration.ProgressData) error {
		s.v.sent.Add(1)
		return st.Send(&calibration.ProgressResponse{
			Result:   &result.Result{Code: code, Message: msg},
			Progress: p,
		})
	}
	if s.v.Armed() {
		return send(calibration.ResultFailedArmed, "vehicle is armed", nil)
	}

	gen := s.v.calibGen.Load()
	for i := 1; i <= calibrationSteps; i++ {
		select {
		case <-st.Context().Done():
			return st.Context().Err()
		case <-time.After(s.v.interval("calibration")):
		}
		if s.v.calibGen.Load() != gen {
			return send(calibration.ResultCancelled, "calibration cancelled", nil)
		}
		err := send(calibration.ResultNext, "", &calibration.ProgressData{
			HasProgress:   true,
			Progress:      float32(i) / calibrationSteps,
			HasStatusText: true,
			StatusText:    fmt.Sprintf("%s step %d/%d", sensor, i, calibrationSteps),
		})
		if err != nil {
			return err
		}
	}
	return send(calibration.ResultSuccess, "", nil)
}
