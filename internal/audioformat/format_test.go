package audioformat

import (
	"encoding/json"
	"testing"
)

func TestBlockAlign(t *testing.T) {
	f := Format{Encoding: EncodingS16LE, Channels: 2, SampleRate: 48000}
	if got := f.BlockAlign(); got != 4 {
		t.Errorf("BlockAlign() = %d, want 4", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Format
		ok   bool
	}{
		{"valid", Format{EncodingS16LE, 2, 48000}, true},
		{"bad channels", Format{EncodingS16LE, 0, 48000}, false},
		{"too many channels", Format{EncodingS16LE, 9, 48000}, false},
		{"rate too low", Format{EncodingS16LE, 2, 4000}, false},
		{"rate too high", Format{EncodingS16LE, 2, 200000}, false},
		{"bad encoding", Format{EncodingUnknown, 2, 48000}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.f.Validate()
			if c.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !c.ok && err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestProtoRoundTrip(t *testing.T) {
	f := Format{Encoding: EncodingS16LE, Channels: 2, SampleRate: 48000}
	encoded := EncodeProto(f)

	decoded, err := DecodeProto(encoded)
	if err != nil {
		t.Fatalf("DecodeProto: %v", err)
	}
	if decoded != f {
		t.Errorf("DecodeProto() = %+v, want %+v", decoded, f)
	}
}

func TestProtoMatchesWorkedExample(t *testing.T) {
	// §8 scenario 1: encoding=s16 -> wire enum 3, channels=2, sample_rate=48000.
	f := Format{Encoding: EncodingS16LE, Channels: 2, SampleRate: 48000}
	encoded := EncodeProto(f)

	decoded, err := DecodeProto(encoded)
	if err != nil {
		t.Fatalf("DecodeProto: %v", err)
	}
	if decoded.Encoding != 3 {
		t.Errorf("encoding = %d, want 3", decoded.Encoding)
	}
}

func TestToJSON(t *testing.T) {
	f := Format{Encoding: EncodingS24PackedLE, Channels: 2, SampleRate: 44100}
	j := f.ToJSON()
	if j.Type != "format" || j.Encoding != "s24" || j.BitsPerSample != 24 {
		t.Errorf("ToJSON() = %+v", j)
	}
}

func TestMarshalFormatJSON(t *testing.T) {
	f := Format{Encoding: EncodingS16LE, Channels: 2, SampleRate: 48000}
	raw, err := MarshalFormatJSON(f)
	if err != nil {
		t.Fatalf("MarshalFormatJSON: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != "format" || decoded["encoding"] != "s16" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseEncodingRoundTrip(t *testing.T) {
	for _, s := range []string{"f32", "s8", "s16", "s24", "s32"} {
		enc, err := ParseEncoding(s)
		if err != nil {
			t.Fatalf("ParseEncoding(%q): %v", s, err)
		}
		if enc.String() != s {
			t.Errorf("round trip %q -> %d -> %q", s, enc, enc.String())
		}
	}
	if _, err := ParseEncoding("bogus"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}
