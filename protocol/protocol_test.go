package protocol

import (
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

type inner struct {
	code int32
	msg  string
}

func (m *inner) MarshalBinary() ([]byte, error) {
	var e Encoder
	e.Int32(1, m.code)
	e.String(2, m.msg)
	return e.Bytes()
}

type failing struct{}

func (failing) MarshalBinary() ([]byte, error) { return nil, errors.New("boom") }

func TestEncodeDecodeFields(t *testing.T) {
	var e Encoder
	e.Bool(1, true)
	e.Int32(2, -7)
	e.Uint32(3, 42)
	e.Uint64(4, math.MaxUint64)
	e.Float(5, 1.5)
	e.Double(6, 47.397742)
	e.String(7, "motors disabled")
	e.Message(8, &inner{code: 5, msg: "denied"})

	data, err := e.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	seen := map[protowire.Number]bool{}
	err = Decode(data, func(f Field) error {
		seen[f.Num] = true
		switch {
		case f.Matches(1):
			if !f.IsVarint() || !f.Bool() {
				t.Errorf("field 1: expect true varint, got %+v", f)
			}
		case f.Matches(2):
			if f.Int32() != -7 {
				t.Errorf("field 2: expect -7, got %d", f.Int32())
			}
		case f.Matches(3):
			if f.Uint32() != 42 {
				t.Errorf("field 3: expect 42, got %d", f.Uint32())
			}
		case f.Matches(4):
			if f.Uint64() != math.MaxUint64 {
				t.Errorf("field 4: expect max uint64, got %d", f.Uint64())
			}
		case f.Matches(5):
			if !f.IsFixed32() || f.Float() != 1.5 {
				t.Errorf("field 5: expect 1.5, got %v", f.Float())
			}
		case f.Matches(6):
			if !f.IsFixed64() || f.Double() != 47.397742 {
				t.Errorf("field 6: expect 47.397742, got %v", f.Double())
			}
		case f.Matches(7):
			if !f.IsBytes() || f.String() != "motors disabled" {
				t.Errorf("field 7: expect text, got %q", f.String())
			}
		case f.Matches(8):
			var code int32
			var msg string
			if err := Decode(f.Message(), func(sub Field) error {
				switch {
				case sub.Matches(1):
					code = sub.Int32()
				case sub.Matches(2):
					msg = sub.String()
				}
				return nil
			}); err != nil {
				return err
			}
			if code != 5 || msg != "denied" {
				t.Errorf("field 8: expect (5, denied), got (%d, %s)", code, msg)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 8 {
		t.Fatalf("expect 8 fields, got %d", len(seen))
	}
}

func TestEncoderSkipsZeroValues(t *testing.T) {
	var e Encoder
	e.Bool(1, false)
	e.Int32(2, 0)
	e.Float(3, 0)
	e.String(4, "")
	e.Message(5, nil)

	data, err := e.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if data == nil || len(data) != 0 {
		t.Fatalf("expect empty non-nil payload, got %v", data)
	}
}

func TestEncoderKeepsFirstError(t *testing.T) {
	var e Encoder
	e.Message(1, failing{})
	e.String(2, "ignored afterwards is fine")

	if _, err := e.Bytes(); err == nil {
		t.Fatal("expect marshal error from sub-message")
	}
}

func TestDecodeSkipsUnknownAndRejectsTruncated(t *testing.T) {
	// a group field (start/end) must be skipped
	var data []byte
	data = protowire.AppendTag(data, 9, protowire.StartGroupType)
	data = protowire.AppendTag(data, 9, protowire.EndGroupType)
	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, 3)

	var got []protowire.Number
	if err := Decode(data, func(f Field) error {
		got = append(got, f.Num)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expect only field 1, got %v", got)
	}

	truncated := protowire.AppendTag(nil, 2, protowire.BytesType)
	truncated = append(truncated, 10, 'a')
	if err := Decode(truncated, func(Field) error { return nil }); err == nil {
		t.Fatal("expect error on truncated length-delimited field")
	}
}

func TestDecodeStopsOnCallbackError(t *testing.T) {
	var e Encoder
	e.Int32(1, 1)
	e.Int32(2, 2)
	data, _ := e.Bytes()

	stop := errors.New("stop")
	calls := 0
	err := Decode(data, func(Field) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expect stop after first field, got err=%v calls=%d", err, calls)
	}
}
