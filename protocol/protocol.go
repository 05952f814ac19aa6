// Package protocol implements the field-level wire format carried inside every gRPC
// message frame exchanged with the vehicle server.
//
// The framing itself (5-byte length prefix, HTTP/2 DATA frames) is handled by gRPC.
// What lands in a frame body is a sequence of protobuf-encoded fields:
//
//	┌──────────────┬──────────────────────────┐┌──────────────┬─────────...
//	│ tag (varint) │ value (varint|fixed|len) ││ tag (varint) │ value
//	│ num<<3 | typ │                          ││              │
//	└──────────────┴──────────────────────────┘└──────────────┴─────────...
//
// Domain messages are hand-written on top of Encoder and Decode, which keeps their
// field numbers compatible with the server's .proto definitions without needing
// generated code.
package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshaler is implemented by messages that can be embedded as a sub-message.
type Marshaler interface {
	MarshalBinary() ([]byte, error)
}

// Encoder appends fields to an internal buffer. Zero values are skipped, matching
// proto3 semantics for scalar fields.
type Encoder struct {
	buf []byte
	err error
}

func (e *Encoder) Bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
}

// Int32 encodes v as a plain (not zig-zag) varint; negative values take 10 bytes
// exactly like protobuf int32.
func (e *Encoder) Int32(num protowire.Number, v int32) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(int64(v)))
}

func (e *Encoder) Uint32(num protowire.Number, v uint32) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, uint64(v))
}

func (e *Encoder) Uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *Encoder) Float(num protowire.Number, v float32) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed32Type)
	e.buf = protowire.AppendFixed32(e.buf, math.Float32bits(v))
}

func (e *Encoder) Double(num protowire.Number, v float64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(v))
}

func (e *Encoder) String(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
}

// Message encodes m as a length-delimited sub-message. A nil m is skipped.
// The first marshal error is kept and reported by Bytes.
func (e *Encoder) Message(num protowire.Number, m Marshaler) {
	if m == nil || e.err != nil {
		return
	}
	b, err := m.MarshalBinary()
	if err != nil {
		e.err = fmt.Errorf("field %d: %w", num, err)
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, b)
}

// Bytes returns the encoded message.
func (e *Encoder) Bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.buf == nil {
		return []byte{}, nil
	}
	return e.buf, nil
}

// Field is one decoded field. Only the member matching Type is meaningful.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Raw     []byte
}

func (f Field) Bool() bool { return f.Varint != 0 }
func (f Field) Int32() int32 { return int32(f.Varint) }
func (f Field) Uint32() uint32 { return uint32(f.Varint) }
func (f Field) Uint64() uint64 { return f.Varint }
func (f Field) Float() float32 { return math.Float32frombits(f.Fixed32) }
func (f Field) Double() float64 { return math.Float64frombits(f.Fixed64) }
func (f Field) String() string { return string(f.Raw) }
func (f Field) Message() []byte { return f.Raw }
func (f Field) IsBytes() bool { return f.Type == protowire.BytesType }
func (f Field) IsVarint() bool { return f.Type == protowire.VarintType }
func (f Field) IsFixed32() bool { return f.Type == protowire.Fixed32Type }
func (f Field) IsFixed64() bool { return f.Type == protowire.Fixed64Type }
func (f Field) Matches(n int) bool { return int(f.Num) == n }

// Decode walks data field by field and calls fn for each one. Unknown wire types
// (groups) are skipped. Raw slices alias data.
func Decode(data []byte, fn func(Field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(data)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(data)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(data)
		case protowire.BytesType:
			f.Raw, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
