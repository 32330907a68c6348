// ABOUTME: Tests for PCM decoder
// ABOUTME: Tests widths, byte orders, signedness and sign extension
package decode

import (
	"errors"
	"math"
	"testing"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// pack writes the low bytes of v in the given order
func pack(v int64, bytes int, bigEndian bool) []byte {
	out := make([]byte, bytes)
	for i := 0; i < bytes; i++ {
		b := byte(v >> (8 * i))
		if bigEndian {
			out[bytes-1-i] = b
		} else {
			out[i] = b
		}
	}
	return out
}

func TestNewPCM(t *testing.T) {
	format := audio.SampleFormat{
		BitsPerSample: 16,
		Channels:      2,
		Signed:        true,
		SampleRate:    48000,
	}

	decoder, err := NewPCM(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}

	if decoder.Format().FrameSize != 4 {
		t.Errorf("expected normalized frame size 4, got %d", decoder.Format().FrameSize)
	}
}

func TestNewPCM_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		format audio.SampleFormat
	}{
		{"zero bits", audio.SampleFormat{BitsPerSample: 0, Channels: 1}},
		{"wider than lane", audio.SampleFormat{BitsPerSample: 48, Channels: 1, Signed: true}},
		{"no channels", audio.SampleFormat{BitsPerSample: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder, err := NewPCM(tt.format)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if decoder != nil {
				t.Fatal("expected decoder to be nil")
			}
			if !errors.Is(err, audio.ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestPCMDecode16BitStereo(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true}

	// Two frames of 16-bit LE stereo
	input := []byte{0x00, 0x80, 0x00, 0x00, 0xFF, 0x7F, 0x01, 0x00}
	output, err := Decode(input, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	expected := []int32{-32768, 0, 32767, 1}
	if len(output) != len(expected) {
		t.Fatalf("expected %d samples, got %d", len(expected), len(output))
	}
	for i := range expected {
		if output[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], output[i])
		}
	}
}

func TestPCMDecode8BitUnsigned(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 8, Channels: 1, Signed: false}

	output, err := Decode([]byte{0xFF, 0x80, 0x00}, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	expected := []int32{255, 128, 0}
	for i := range expected {
		if output[i] != expected[i] {
			t.Errorf("sample %d: expected %d, got %d", i, expected[i], output[i])
		}
	}
}

func TestPCMDecode24BitBigEndian(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true, BigEndian: true}

	input := []byte{0x12, 0x34, 0x56, 0xFF, 0xFF, 0x00}
	output, err := Decode(input, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if output[0] != 0x123456 {
		t.Errorf("expected %d, got %d", 0x123456, output[0])
	}
	if output[1] != -256 {
		t.Errorf("expected -256, got %d", output[1])
	}
}

func TestPCMDecode20BitPacked(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 20, Channels: 1, Signed: true}

	// 20-bit extremes stored sign-extended in a 3-byte little-endian container
	input := append(pack(-524288, 3, false), pack(524287, 3, false)...)
	output, err := Decode(input, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if output[0] != -524288 || output[1] != 524287 {
		t.Errorf("expected [-524288 524287], got %v", output)
	}
}

func TestPCMDecodeRoundTrip(t *testing.T) {
	widths := []int{8, 16, 20, 24, 32}

	for _, bits := range widths {
		for _, bigEndian := range []bool{false, true} {
			for _, signed := range []bool{false, true} {
				format := audio.SampleFormat{
					BitsPerSample: bits,
					Channels:      1,
					BigEndian:     bigEndian,
					Signed:        signed,
				}
				bps := format.BytesPerSample()

				var values []int64
				if signed {
					lo := -(int64(1) << (bits - 1))
					hi := int64(1)<<(bits-1) - 1
					values = []int64{0, 1, -1, 42, -42, lo, hi, lo + 1, hi - 1}
				} else {
					hi := int64(1)<<bits - 1
					if hi > math.MaxInt32 {
						// values above MaxInt32 do not fit the int32 output
						hi = math.MaxInt32
					}
					values = []int64{0, 1, 42, hi, hi - 1, hi / 2}
				}

				decoder, err := NewPCM(format)
				if err != nil {
					t.Fatalf("%d-bit: failed to create decoder: %v", bits, err)
				}

				for _, v := range values {
					out, err := decoder.Decode(pack(v, bps, bigEndian))
					if err != nil {
						t.Fatalf("decode failed: %v", err)
					}
					if int64(out[0]) != v {
						t.Errorf("%d-bit bigEndian=%v signed=%v: expected %d, got %d",
							bits, bigEndian, signed, v, out[0])
					}
				}
			}
		}
	}
}

func TestPCMDecodeAllZero(t *testing.T) {
	for _, bits := range []int{1, 8, 12, 16, 20, 24, 32} {
		for _, bigEndian := range []bool{false, true} {
			for _, signed := range []bool{false, true} {
				format := audio.SampleFormat{BitsPerSample: bits, Channels: 2, BigEndian: bigEndian, Signed: signed}
				data := make([]byte, format.FrameBytes()*3)

				out, err := Decode(data, format)
				if err != nil {
					t.Fatalf("decode failed: %v", err)
				}
				for i, v := range out {
					if v != 0 {
						t.Errorf("%v: sample %d expected 0, got %d", format, i, v)
					}
				}
			}
		}
	}
}

func TestPCMDecodeMostNegativeSignExtends(t *testing.T) {
	tests := []struct {
		name     string
		bits     int
		input    []byte // little-endian
		expected int32
	}{
		{"8-bit", 8, []byte{0x80}, -128},
		{"16-bit", 16, []byte{0x00, 0x80}, -32768},
		{"24-bit", 24, []byte{0x00, 0x00, 0x80}, -8388608},
		{"32-bit", 32, []byte{0x00, 0x00, 0x00, 0x80}, math.MinInt32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := audio.SampleFormat{BitsPerSample: tt.bits, Channels: 1, Signed: true}
			out, err := Decode(tt.input, le)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if out[0] != tt.expected {
				t.Errorf("little-endian: expected %d, got %d", tt.expected, out[0])
			}

			reversed := make([]byte, len(tt.input))
			for i := range tt.input {
				reversed[len(tt.input)-1-i] = tt.input[i]
			}
			be := le
			be.BigEndian = true
			out, err = Decode(reversed, be)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if out[0] != tt.expected {
				t.Errorf("big-endian: expected %d, got %d", tt.expected, out[0])
			}
		})
	}
}

func TestPCMDecodeUnsignedNoSignExtension(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 16, Channels: 1, BigEndian: true}

	out, err := Decode([]byte{0x80, 0x00}, format)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out[0] != 32768 {
		t.Errorf("expected 32768, got %d", out[0])
	}
}

func TestPCMDecode_PartialSample(t *testing.T) {
	decoder, err := NewPCM(audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	_, err = decoder.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected error for 4 bytes of 24-bit data, got nil")
	}
	if !errors.Is(err, audio.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestPCMDecodeInto(t *testing.T) {
	decoder, err := NewPCM(audio.SampleFormat{BitsPerSample: 16, Channels: 1, Signed: true})
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}

	dst := make([]int32, 4)
	n, err := decoder.DecodeInto(dst, []byte{0x01, 0x00, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if dst[0] != 1 || dst[1] != -1 {
		t.Errorf("expected [1 -1], got %v", dst[:n])
	}

	if _, err := decoder.DecodeInto(make([]int32, 1), []byte{0, 0, 0, 0}); err == nil {
		t.Error("expected error for short destination")
	}
}

func TestPCMDecode_EmptyInput(t *testing.T) {
	output, err := Decode([]byte{}, audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true})
	if err != nil {
		t.Fatalf("decode failed with empty input: %v", err)
	}

	if len(output) != 0 {
		t.Errorf("expected 0 samples from empty input, got %d", len(output))
	}
}

func BenchmarkPCMDecode24Bit(b *testing.B) {
	decoder, err := NewPCM(audio.SampleFormat{BitsPerSample: 24, Channels: 2, Signed: true})
	if err != nil {
		b.Fatal(err)
	}
	data := make([]byte, 1024*6)
	dst := make([]int32, 2048)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := decoder.DecodeInto(dst, data); err != nil {
			b.Fatal(err)
		}
	}
}
