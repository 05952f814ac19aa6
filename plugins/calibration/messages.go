package calibration

import "drone-rpc/protocol"

// ProgressData is one progress report of a running calibration. A report carries
// a progress fraction, a status text or both.
type ProgressData struct {
	HasProgress   bool    `json:"has_progress"`
	Progress      float32 `json:"progress"`
	HasStatusText bool    `json:"has_status_text"`
	StatusText    string  `json:"status_text"`
}

func (m *ProgressData) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Bool(1, m.HasProgress)
	e.Float(2, m.Progress)
	e.Bool(3, m.HasStatusText)
	e.String(4, m.StatusText)
	return e.Bytes()
}

func (m *ProgressData) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			m.HasProgress = f.Bool()
		case f.Matches(2):
			m.Progress = f.Float()
		case f.Matches(3):
			m.HasStatusText = f.Bool()
		case f.Matches(4):
			m.StatusText = f.String()
		}
		return nil
	})
}

type ProgressResponse struct {
	Result   *Result       `json:"calibration_result,omitempty"`
	Progress *ProgressData `json:"progress_data,omitempty"`
}

func (m *ProgressResponse) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if m.Result != nil {
		e.Message(1, m.Result)
	}
	if m.Progress != nil {
		e.Message(2, m.Progress)
	}
	return e.Bytes()
}

func (m *ProgressResponse) UnmarshalBinary(data []byte) error {
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
