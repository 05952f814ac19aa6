package codec

import (
	"testing"

	"drone-rpc/protocol"
)

type sample struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (s *sample) MarshalBinary() ([]byte, error) {
	var e protocol.Encoder
	e.Int32(1, s.Code)
	e.String(2, s.Message)
	return e.Bytes()
}

func (s *sample) UnmarshalBinary(data []byte) error {
	return protocol.Decode(data, func(f protocol.Field) error {
		switch {
		case f.Matches(1):
			s.Code = f.Int32()
		case f.Matches(2):
			s.Message = f.String()
		}
		return nil
	})
}

func TestCodecs(t *testing.T) {
	for _, ct := range []CodecType{CodecTypeBinary, CodecTypeJSON} {
		t.Run(ct.String(), func(t *testing.T) {
			c := GetCodec(ct)
			if c.Type() != ct {
				t.Fatalf("expect %v, got %v", ct, c.Type())
			}
			if c.Name() != ct.String() {
				t.Fatalf("expect name %s, got %s", ct, c.Name())
			}

			data, err := c.Marshal(&sample{Code: 5, Message: "motors disabled"})
			if err != nil {
				t.Fatal(err)
			}
			var got sample
			if err := c.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if got.Code != 5 || got.Message != "motors disabled" {
				t.Fatalf("unexpected decode: %+v", got)
			}
		})
	}
}

func TestBinaryCodecRejectsPlainStruct(t *testing.T) {
	c := &BinaryCodec{}
	if _, err := c.Marshal(struct{ A int }{1}); err == nil {
		t.Fatal("expect error for value without binary marshaler")
	}
	var v struct{ A int }
	if err := c.Unmarshal(nil, &v); err == nil {
		t.Fatal("expect error for value without binary unmarshaler")
	}
}

func TestJSONCodecEmptyBody(t *testing.T) {
	var got sample
	if err := (&JSONCodec{}).Unmarshal(nil, &got); err != nil {
		t.Fatal(err)
	}
}

func TestParseCodecType(t *testing.T) {
	cases := map[string]CodecType{
		"":         CodecTypeBinary,
		"proto":    CodecTypeBinary,
		"Binary":   CodecTypeBinary,
		"protobuf": CodecTypeBinary,
		" json ":   CodecTypeJSON,
	}
	for in, want := range cases {
		got, err := ParseCodecType(in)
		if err != nil || got != want {
			t.Errorf("ParseCodecType(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCodecType("xml"); err == nil {
		t.Error("expect error for unknown codec")
	}
}
