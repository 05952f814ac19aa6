package mission

import "drone-rpc/protocol"

// Item is one waypoint of a mission plan.
type Item struct {
	LatitudeDeg       float64 `json:"latitude_deg"`
	LongitudeDeg      float64 `json:"longitude_deg"`
	RelativeAltitudeM float32 `json:"relative_altitude_m"`
	SpeedMS           float32 `json:"speed_m_s"`
	IsFlyThrough      bool    `json:"is_fly_through"`
	LoiterTimeS       float32 `json:"loiter_time_s"`
	AcceptanceRadiusM float32 `json:"acceptance_radius_m"`
	YawDeg            float32 `json:"yaw_deg"`
}

func (m *Item) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Double(1, m.LatitudeDeg)
	e.Double(2, m.LongitudeDeg)
	e.Float(3, m.RelativeAltitudeM)
	e.Float(4, m.SpeedMS)
	e.Bool(5, m.IsFlyThrough)
	e.Float(9, m.LoiterTimeS)
	e.Float(11, m.AcceptanceRadiusM)
	e.Float(12, m.YawDeg)
	return e.Bytes()
}

func (m *Item) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.LatitudeDeg = f.Double()
		case f.Matches(2):
			m.LongitudeDeg = f.Double()
		case f.Matches(3):
			m.RelativeAltitudeM = f.Float()
		case f.Matches(4):
			m.SpeedMS = f.Float()
		case f.Matches(5):
			m.IsFlyThrough = f.Bool()
		case f.Matches(9):
			m.LoiterTimeS = f.Float()
		case f.Matches(11):
			m.AcceptanceRadiusM = f.Float()
		case f.Matches(12):
			m.YawDeg = f.Float()
		}
		return nil
	})
}

// Plan is an ordered list of items.
type Plan struct {
	Items []Item `json:"mission_items"`
}

func (m *Plan) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	for i := range m.Items {
		e.Message(1, &m.Items[i])
	}
	return e.Bytes()
}

func (m *Plan) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			var it Item
			if err := it.UnmarshalBinary(f.Message()); err != nil {
				return err
			}
			m.Items = append(m.Items, it)
		}
		return nil
	})
}

// UploadRequest wraps a plan in field 1: UploadMission and UploadMissionWithProgress.
type UploadRequest struct {
	Plan *Plan `json:"mission_plan,omitempty"`
}

func (m *UploadRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Plan != nil {
		e.Message(1, m.Plan)
	}
	return e.Bytes()
}

func (m *UploadRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Plan = new(Plan)
			return m.Plan.UnmarshalBinary(f.Message())
		}
		return nil
	})
}

// ProgressData is the upload progress in [0, 1].
type ProgressData struct {
	Progress float32 `json:"progress"`
}

func (m *ProgressData) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Float(1, m.Progress)
	return e.Bytes()
}

func (m *ProgressData) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Progress = f.Float()
		}
		return nil
	})
}

// UploadProgressResponse is one element of UploadMissionWithProgress.
type UploadProgressResponse struct {
	Result   *Result       `json:"result,omitempty"`
	Progress *ProgressData `json:"progress_data,omitempty"`
}

func (m *UploadProgressResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Result != nil {
		e.Message(1, m.Result)
	}
	if m.Progress != nil {
		e.Message(2, m.Progress)
	}
	return e.Bytes()
}

func (m *UploadProgressResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.Result = new(Result)
			return m.Result.UnmarshalBinary(f.Message())
		case f.Matches(2):
			m.Progress = new(ProgressData)
			return m.Progress.UnmarshalBinary(f.Message())
		}
		return nil
	})
}

type SetCurrentItemRequest struct {
	Index int32 `json:"index"`
}

func (m *SetCurrentItemRequest) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Int32(1, m.Index)
	return e.Bytes()
}

func (m *SetCurrentItemRequest) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Index = f.Int32()
		}
		return nil
	})
}

type IsFinishedResponse struct {
	Result     *Result `json:"result,omitempty"`
	IsFinished bool    `json:"is_finished"`
}

func (m *IsFinishedResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Result != nil {
		e.Message(1, m.Result)
	}
	e.Bool(2, m.IsFinished)
	return e.Bytes()
}

func (m *IsFinishedResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.Result = new(Result)
			return m.Result.UnmarshalBinary(f.Message())
		case f.Matches(2):
			m.IsFinished = f.Bool()
		}
		return nil
	})
}

// Progress reports the item being flown. Current is -1 before the mission starts.
type Progress struct {
	Current int32 `json:"current"`
	Total   int32 `json:"total"`
}

func (m *Progress) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Int32(1, m.Current)
	e.Int32(2, m.Total)
	return e.Bytes()
}

func (m *Progress) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.Current = f.Int32()
		case f.Matches(2):
			m.Total = f.Int32()
		}
		return nil
	})
}

type ProgressResponse struct {
	Progress *Progress `json:"mission_progress,omitempty"`
}

func (m *ProgressResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Progress != nil {
		e.Message(1, m.Progress)
	}
	return e.Bytes()
}

func (m *ProgressResponse) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			m.Progress = new(Progress)
			return m.Progress.UnmarshalBinary(f.Message())
		}
		return nil
	})
}
