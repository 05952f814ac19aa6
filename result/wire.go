package result

import "drone-rpc/protocol"

// MarshalBinary encodes the result as {1: code, 2: message}, the layout shared by
// every domain's result message.
func (r *Result) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Int32(1, r.Code)
	e.String(2, r.Message)
	return e.Bytes()
}

func (r *Result) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			r.Code = f.Int32()
		case f.Matches(2):
			r.Message = f.String()
		}
		return nil
	})
}

// Response is a response whose only field is the result (field 1).
type Response struct {
	Result *Result `json:"result,omitempty"`
}

func NewResponse(code int32, msg string) *Response {
	return &Response{Result: &Result{Code: code, Message: msg}}
}

func (r *Response) GetResult() *Result { return r.Result }

// Set replaces the result carried by the response.
func (r *Response) Set(code int32, msg string) {
	r.Result = &Result{Code: code, Message: msg}
}

func (r *Response) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	if r.Result != nil {
		e.Message(1, r.Result)
	}
	return e.Bytes()
}

func (r *Response) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		if f.Matches(1) {
			r.Result = new(Result)
			return r.Result.UnmarshalBinary(f.Message())
		}
		return nil
	})
}
