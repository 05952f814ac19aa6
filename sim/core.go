package sim

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"drone-rpc/message"
	"drone-rpc/plugins/core"
	"drone-rpc/server"
)

type coreService struct{ v *Vehicle }

// SubscribeConnectionState reports a connected vehicle once and then holds the
// stream open.
func (s *coreService) SubscribeConnectionState(_ *message.Empty, st *server.Stream) error {
	sent := false
	return s.v.onChange(st, func() (any, bool) {
		if sent {
			return nil, false
		}
		sent = true
		return &core.ConnectionStateResponse{IsConnected: true}, true
	})
}

func (s *coreService) SetMavlinkTimeout(req *core.SetMavlinkTimeoutRequest, _ *message.Empty) error {
	if req.TimeoutS <= 0 {
		return status.Error(codes.InvalidArgument, "timeout must be positive")
	}
	s.v.mu.Lock()
	s.v.mavlinkTimeout = req.TimeoutS
	s.v.mu.Unlock()
	return nil
}
