// Package codec provides the gRPC message codecs a Channel can be configured with.
//
// Both codecs satisfy google.golang.org/grpc/encoding.Codec and are forced per
// connection (never registered globally), so they do not interfere with other gRPC
// users in the same process.
package codec

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/encoding"
)

type CodecType byte

const (
	CodecTypeBinary CodecType = 0 // protobuf wire format, content-subtype "proto"
	CodecTypeJSON   CodecType = 1 // JSON, content-subtype "json"
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeBinary:
		return "proto"
	case CodecTypeJSON:
		return "json"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}

// ParseCodecType maps a configuration string to a CodecType.
func ParseCodecType(s string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "proto", "binary", "protobuf":
		return CodecTypeBinary, nil
	case "json":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", s)
	}
}

// Codec is the gRPC codec contract plus the type tag used in configuration.
type Codec interface {
	encoding.Codec
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}
