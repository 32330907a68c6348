// ABOUTME: Audio type definitions
// ABOUTME: Defines the raw PCM sample format and sample conversion helpers
package audio

import (
	"fmt"
	"strings"
)

const (
	// MaxBytesPerSample is the widest sample that fits the int32 output lane
	MaxBytesPerSample = 4

	// RateUnspecified marks a format whose sample rate must be chosen by the caller
	RateUnspecified = 0
)

// SampleFormat describes an interleaved linear PCM byte stream
type SampleFormat struct {
	BitsPerSample int
	Channels      int
	BigEndian     bool
	Signed        bool
	SampleRate    float64 // Hz, RateUnspecified if the device accepts any rate
	FrameSize     int     // bytes per interleaved frame; 0 means BytesPerSample*Channels
}

// BytesPerSample returns ceil(BitsPerSample/8)
func (f SampleFormat) BytesPerSample() int {
	if f.BitsPerSample < 1 {
		return 0
	}
	return (f.BitsPerSample + 7) / 8
}

// FrameBytes returns the size of one frame across all channels
func (f SampleFormat) FrameBytes() int {
	if f.FrameSize > 0 {
		return f.FrameSize
	}
	return f.BytesPerSample() * f.Channels
}

// Normalize fills in the derived frame size
func (f SampleFormat) Normalize() SampleFormat {
	f.FrameSize = f.FrameBytes()
	return f
}

// Validate checks the format against what the int32 lane can represent
func (f SampleFormat) Validate() error {
	if f.BitsPerSample < 1 {
		return fmt.Errorf("%w: bits per sample must be at least 1, got %d", ErrFormat, f.BitsPerSample)
	}
	if f.BytesPerSample() > MaxBytesPerSample {
		return fmt.Errorf("%w: %d-bit samples need %d bytes (max %d)",
			ErrFormat, f.BitsPerSample, f.BytesPerSample(), MaxBytesPerSample)
	}
	if f.Channels < 1 {
		return fmt.Errorf("%w: channels must be at least 1, got %d", ErrFormat, f.Channels)
	}
	if f.FrameSize != 0 && f.FrameSize != f.BytesPerSample()*f.Channels {
		return fmt.Errorf("%w: frame size %d does not match %d bytes x %d channels",
			ErrFormat, f.FrameSize, f.BytesPerSample(), f.Channels)
	}
	if f.SampleRate < 0 {
		return fmt.Errorf("%w: negative sample rate %v", ErrFormat, f.SampleRate)
	}
	return nil
}

// HasRate reports whether a concrete sample rate is set
func (f SampleFormat) HasRate() bool {
	return f.SampleRate > 0
}

// WithSampleRate returns a copy of the format using rate
func (f SampleFormat) WithSampleRate(rate float64) SampleFormat {
	f.SampleRate = rate
	return f
}

// FullScale returns the largest magnitude the format can encode
func (f SampleFormat) FullScale() float64 {
	bits := f.BitsPerSample
	if bits < 1 || bits > MaxBytesPerSample*8 {
		return 0
	}
	if f.Signed {
		return float64(uint64(1) << (bits - 1))
	}
	return float64(uint64(1)<<bits) - 1
}

// Encoding returns the PCM encoding name
func (f SampleFormat) Encoding() string {
	if f.Signed {
		return "PCM_SIGNED"
	}
	return "PCM_UNSIGNED"
}

// String renders the format the way the device listing prints it
func (f SampleFormat) String() string {
	var b strings.Builder
	b.WriteString(f.Encoding())
	if f.HasRate() {
		fmt.Fprintf(&b, " %.1f Hz,", f.SampleRate)
	} else {
		b.WriteString(" unknown sample rate,")
	}
	fmt.Fprintf(&b, " %d bit, %s, %d bytes/frame", f.BitsPerSample, channelName(f.Channels), f.FrameBytes())
	if f.BytesPerSample() > 1 {
		if f.BigEndian {
			b.WriteString(", big-endian")
		} else {
			b.WriteString(", little-endian")
		}
	}
	return b.String()
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

// SampleToInt16 narrows a sample of the given bit depth to 16 bits
func SampleToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth < 16:
		return int16(sample << (16 - bitDepth))
	default:
		return int16(sample)
	}
}
