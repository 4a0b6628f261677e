// ABOUTME: AudioFormat type and wire encodings (proto3 binary + WS JSON)
// ABOUTME: Encoding enum mirrors the Android listener's existing parser
package audioformat

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encoding identifies the PCM sample layout captured from the OS mixer.
type Encoding int32

const (
	// EncodingUnknown is never produced by a valid capture; reserved.
	EncodingUnknown Encoding = 0
	EncodingF32LE   Encoding = 1
	EncodingS8      Encoding = 2
	EncodingS16LE   Encoding = 3
	EncodingS24PackedLE Encoding = 4
	EncodingS32LE   Encoding = 5
)

// String returns the CLI/JSON spelling for the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingF32LE:
		return "f32"
	case EncodingS8:
		return "s8"
	case EncodingS16LE:
		return "s16"
	case EncodingS24PackedLE:
		return "s24"
	case EncodingS32LE:
		return "s32"
	default:
		return "unknown"
	}
}

// ParseEncoding maps a CLI/JSON spelling back to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "f32":
		return EncodingF32LE, nil
	case "s8":
		return EncodingS8, nil
	case "s16":
		return EncodingS16LE, nil
	case "s24":
		return EncodingS24PackedLE, nil
	case "s32":
		return EncodingS32LE, nil
	default:
		return EncodingUnknown, fmt.Errorf("unknown encoding %q", s)
	}
}

// BitsPerSample returns the bit width implied by the encoding.
func (e Encoding) BitsPerSample() int {
	switch e {
	case EncodingF32LE, EncodingS32LE:
		return 32
	case EncodingS24PackedLE:
		return 24
	case EncodingS16LE:
		return 16
	case EncodingS8:
		return 8
	default:
		return 0
	}
}

// Format is the immutable audio format negotiated at capture start.
type Format struct {
	Encoding   Encoding
	Channels   int
	SampleRate int
}

// BitsPerSample is derived from Encoding.
func (f Format) BitsPerSample() int {
	return f.Encoding.BitsPerSample()
}

// BlockAlign is the number of bytes per sample frame: channels * bits/8.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample() / 8
}

// Validate enforces §3's declared ranges.
func (f Format) Validate() error {
	if f.Encoding < EncodingF32LE || f.Encoding > EncodingS32LE {
		return fmt.Errorf("invalid encoding %d", f.Encoding)
	}
	if f.Channels < 1 || f.Channels > 8 {
		return fmt.Errorf("channels %d out of range [1,8]", f.Channels)
	}
	if f.SampleRate < 8000 || f.SampleRate > 192000 {
		return fmt.Errorf("sample rate %d out of range [8000,192000]", f.SampleRate)
	}
	return nil
}

// EncodeProto serializes the format as a proto3 message with fields
// 1 (encoding, enum varint), 2 (channels, int32 varint), 3 (sample_rate,
// int32 varint) — the layout the Android listener's parser expects.
func EncodeProto(f Format) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Encoding))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(f.Channels)))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(f.SampleRate)))
	return b
}

// DecodeProto parses the wire layout produced by EncodeProto.
func DecodeProto(data []byte) (Format, error) {
	var f Format
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Format{}, fmt.Errorf("audioformat: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.VarintType {
			return Format{}, fmt.Errorf("audioformat: unexpected wire type %d for field %d", typ, num)
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return Format{}, fmt.Errorf("audioformat: bad varint: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			f.Encoding = Encoding(int32(v))
		case 2:
			f.Channels = int(int32(v))
		case 3:
			f.SampleRate = int(int32(v))
		}
	}
	return f, nil
}

// FormatJSON is the WS gateway's first-message payload (§6): a flat
// JSON object describing the stream, sent once right after handshake.
type FormatJSON struct {
	Type          string `json:"type"`
	Encoding      string `json:"encoding"`
	Channels      int    `json:"channels"`
	SampleRate    int    `json:"sampleRate"`
	BitsPerSample int    `json:"bitsPerSample"`
}

// ToJSON builds the WS gateway's format announcement.
func (f Format) ToJSON() FormatJSON {
	return FormatJSON{
		Type:          "format",
		Encoding:      f.Encoding.String(),
		Channels:      f.Channels,
		SampleRate:    f.SampleRate,
		BitsPerSample: f.BitsPerSample(),
	}
}

// MarshalFormatJSON builds the wire bytes for the WS gateway's first
// message, sent once right after a session's handshake completes.
func MarshalFormatJSON(f Format) ([]byte, error) {
	return json.Marshal(f.ToJSON())
}
