package codec

import (
	"encoding"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// BinaryCodec encodes messages in protobuf wire format. It accepts hand-written
// messages implementing encoding.BinaryMarshaler/BinaryUnmarshaler as well as
// generated proto.Message values.
type BinaryCodec struct{}

func (c *BinaryCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case encoding.BinaryMarshaler:
		return m.MarshalBinary()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("BinaryCodec: cannot marshal %T", v)
	}
}

func (c *BinaryCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case encoding.BinaryUnmarshaler:
		return m.UnmarshalBinary(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("BinaryCodec: cannot unmarshal into %T", v)
	}
}

// Name is the gRPC content-subtype. It matches the default protobuf codec so a
// stock server accepts the frames.
func (c *BinaryCodec) Name() string {
	return "proto"
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
