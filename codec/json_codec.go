package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json for message bodies.
// Pros: human-readable, easy to inspect with grpcurl -format json.
// Cons: slower and larger than the binary codec; both sides must agree on it.
type JSONCodec struct{}

func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string {
	return "json"
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
