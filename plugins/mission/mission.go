// Package mission is the facade of mavsdk.rpc.mission.MissionService.
package mission

import (
	"context"

	"drone-rpc/client"
	"drone-rpc/plugins/plugin"
	"drone-rpc/result"
	"drone-rpc/transport"
)

// Service is the gRPC service name of the mission domain.
const Service = "mavsdk.rpc.mission.MissionService"

// Result is the {code, message} pair carried in mission responses.
type Result = result.Result

const (
	ResultUnknown                 int32 = 0
	ResultSuccess                 int32 = 1
	ResultError                   int32 = 2
	ResultTooManyMissionItems     int32 = 3
	ResultBusy                    int32 = 4
	ResultTimeout                 int32 = 5
	ResultInvalidArgument         int32 = 6
	ResultUnsupported             int32 = 7
	ResultNoMissionAvailable      int32 = 8
	ResultUnsupportedMissionCmd   int32 = 11
	ResultTransferCancelled       int32 = 12
	ResultNoSystem                int32 = 13
	ResultNext                    int32 = 14
	ResultDenied                  int32 = 15
	ResultProtocolError           int32 = 16
	ResultIntMessagesNotSupported int32 = 17
)

// Table classifies mission results. NEXT only appears inside upload progress
// streams, where it marks a progress element rather than an outcome.
var Table = result.NewTable("mission", ResultSuccess, map[int32]string{
	ResultUnknown:                 "UNKNOWN",
	ResultSuccess:                 "SUCCESS",
	ResultError:                   "ERROR",
	ResultTooManyMissionItems:     "TOO_MANY_MISSION_ITEMS",
	ResultBusy:                    "BUSY",
	ResultTimeout:                 "TIMEOUT",
	ResultInvalidArgument:         "INVALID_ARGUMENT",
	ResultUnsupported:             "UNSUPPORTED",
	ResultNoMissionAvailable:      "NO_MISSION_AVAILABLE",
	ResultUnsupportedMissionCmd:   "UNSUPPORTED_MISSION_CMD",
	ResultTransferCancelled:       "TRANSFER_CANCELLED",
	ResultNoSystem:                "NO_SYSTEM",
	ResultNext:                    "NEXT",
	ResultDenied:                  "DENIED",
	ResultProtocolError:           "PROTOCOL_ERROR",
	ResultIntMessagesNotSupported: "INT_MESSAGES_NOT_SUPPORTED",
}, ResultNoSystem, ResultTimeout)

// Mission uploads and runs waypoint plans.
type Mission struct {
	plugin.Base
}

// New binds the mission facade to conn.
func New(conn client.Conn, opts ...client.Option) *Mission {
	return &Mission{Base: plugin.NewBase(conn, Service, Table, opts...)}
}

// Dial opens a channel of its own to ep. Close closes it.
func Dial(ctx context.Context, ep transport.Endpoint, opts ...transport.Option) (*Mission, error) {
	ch, err := plugin.Dial(ctx, ep, opts...)
	if err != nil {
		return nil, err
	}
	m := New(ch)
	m.Own(ch)
	return m, nil
}

func (m *Mission) Upload(ctx context.Context, plan Plan) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "UploadMission", &UploadRequest{Plan: &plan})
}

// UploadWithProgress uploads plan and reports progress in [0, 1]. The stream
// completes on SUCCESS and fails with the domain error otherwise. Each call opens
// its own upload.
func (m *Mission) UploadWithProgress(plan Plan) *client.Multicast[float32] {
	return plugin.NewStream(&m.Base, "UploadMissionWithProgress", &UploadRequest{Plan: &plan},
		client.StreamSpec[UploadProgressResponse, float32]{
			Result: func(r *UploadProgressResponse) *result.Result {
				if r.Result == nil || r.Result.Code == ResultNext {
					return nil
				}
				return r.Result
			},
			Value: func(r *UploadProgressResponse) (float32, bool) {
				if r.Progress == nil {
					return 0, false
				}
				return r.Progress.Progress, true
			},
		})
}

// CancelUpload aborts an upload in progress. The upload ends with TRANSFER_CANCELLED.
func (m *Mission) CancelUpload(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "CancelMissionUpload", nil)
}

// Start flies the uploaded plan from the current item. The vehicle must be armed.
func (m *Mission) Start(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "StartMission", nil)
}

// Pause holds position and keeps the current item.
func (m *Mission) Pause(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "PauseMission", nil)
}

// Clear removes the uploaded plan.
func (m *Mission) Clear(ctx context.Context) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "ClearMission", nil)
}

// SetCurrentItem moves the mission to the item at index.
func (m *Mission) SetCurrentItem(ctx context.Context, index int32) *client.Future[struct{}] {
	return plugin.Do(ctx, &m.Base, "SetCurrentMissionItem", &SetCurrentItemRequest{Index: index})
}

// IsFinished reports whether the last item of the plan has been reached.
func (m *Mission) IsFinished(ctx context.Context) *client.Future[bool] {
	return plugin.Unary(ctx, &m.Base, "IsMissionFinished", nil, client.UnarySpec[IsFinishedResponse, bool]{
		Result: func(r *IsFinishedResponse) *result.Result { return r.Result },
		Value:  func(r *IsFinishedResponse) bool { return r.IsFinished },
	})
}

func (m *Mission) Progress() *client.Multicast[Progress] {
	return plugin.Stream(&m.Base, "SubscribeMissionProgress", nil, client.StreamSpec[ProgressResponse, Progress]{
		Value: func(r *ProgressResponse) (Progress, bool) {
			if r.Progress == nil {
				return Progress{}, false
			}
			return *r.Progress, true
		},
	})
}
