// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests byte layout and the decode round trip for every width
package encode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/decode"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.SampleFormat
		wantErr bool
	}{
		{"16-bit stereo", audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true}, false},
		{"24-bit big-endian", audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true, BigEndian: true}, false},
		{"8-bit unsigned", audio.SampleFormat{BitsPerSample: 8, Channels: 1}, false},
		{"too wide", audio.SampleFormat{BitsPerSample: 64, Channels: 1}, true},
		{"no channels", audio.SampleFormat{BitsPerSample: 16}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, audio.ErrFormat) {
					t.Errorf("expected ErrFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if encoder == nil {
				t.Fatal("expected encoder to be created")
			}
		})
	}
}

func TestPCMEncodeLayout(t *testing.T) {
	tests := []struct {
		name     string
		format   audio.SampleFormat
		samples  []int32
		expected []byte
	}{
		{
			name:     "16-bit little-endian",
			format:   audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true},
			samples:  []int32{-32768, 0, 32767, 1},
			expected: []byte{0x00, 0x80, 0x00, 0x00, 0xFF, 0x7F, 0x01, 0x00},
		},
		{
			name:     "24-bit big-endian",
			format:   audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true, BigEndian: true},
			samples:  []int32{0x123456, -256},
			expected: []byte{0x12, 0x34, 0x56, 0xFF, 0xFF, 0x00},
		},
		{
			name:     "8-bit unsigned",
			format:   audio.SampleFormat{BitsPerSample: 8, Channels: 1},
			samples:  []int32{255, 128, 0},
			expected: []byte{0xFF, 0x80, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.format)
			if err != nil {
				t.Fatalf("failed to create encoder: %v", err)
			}
			out, err := encoder.Encode(tt.samples)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if !bytes.Equal(out, tt.expected) {
				t.Errorf("expected % X, got % X", tt.expected, out)
			}
		})
	}
}

func TestPCMEncodeDecodeRoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16, 20, 24, 32} {
		for _, bigEndian := range []bool{false, true} {
			for _, signed := range []bool{false, true} {
				format := audio.SampleFormat{BitsPerSample: bits, Channels: 1, BigEndian: bigEndian, Signed: signed}

				encoder, err := NewPCM(format)
				if err != nil {
					t.Fatalf("failed to create encoder: %v", err)
				}

				samples := []int32{
					encoder.Scale(-1),
					encoder.Scale(-0.5),
					encoder.Scale(0),
					encoder.Scale(0.25),
					encoder.Scale(1),
				}
				data, err := encoder.Encode(samples)
				if err != nil {
					t.Fatalf("encode failed: %v", err)
				}

				got, err := decode.Decode(data, format)
				if err != nil {
					t.Fatalf("decode failed: %v", err)
				}
				for i := range samples {
					if got[i] != samples[i] {
						t.Errorf("%v: sample %d expected %d, got %d", format, i, samples[i], got[i])
					}
				}
			}
		}
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name     string
		format   audio.SampleFormat
		input    float64
		expected int32
	}{
		{"s16 full", audio.SampleFormat{BitsPerSample: 16, Channels: 1, Signed: true}, 1, 32767},
		{"s16 negative full", audio.SampleFormat{BitsPerSample: 16, Channels: 1, Signed: true}, -1, -32767},
		{"s16 clipped", audio.SampleFormat{BitsPerSample: 16, Channels: 1, Signed: true}, 3, 32767},
		{"u8 midpoint", audio.SampleFormat{BitsPerSample: 8, Channels: 1}, 0, 128},
		{"u8 full", audio.SampleFormat{BitsPerSample: 8, Channels: 1}, 1, 255},
		{"u16 bottom", audio.SampleFormat{BitsPerSample: 16, Channels: 1}, -1, 1},
		{"s20 full", audio.SampleFormat{BitsPerSample: 20, Channels: 1, Signed: true}, 1, 524287},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoder, err := NewPCM(tt.format)
			if err != nil {
				t.Fatalf("failed to create encoder: %v", err)
			}
			if got := encoder.Scale(tt.input); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestEncodeInto_ShortDestination(t *testing.T) {
	encoder, err := NewPCM(audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true})
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}

	if _, err := encoder.EncodeInto(make([]byte, 5), []int32{1, 2}); err == nil {
		t.Error("expected error for short destination")
	}
}
