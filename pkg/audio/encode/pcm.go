// ABOUTME: PCM audio encoder
// ABOUTME: Packs int32 samples into raw PCM bytes of any width, order and signedness
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// PCMEncoder packs int32 samples into the byte layout of a SampleFormat.
// It is the inverse of decode.PCMDecoder: each value is truncated to
// BytesPerSample bytes in the format's byte order.
type PCMEncoder struct {
	format         audio.SampleFormat
	bytesPerSample int
	offset         int
	order          binary.ByteOrder
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.SampleFormat) (*PCMEncoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	bps := format.BytesPerSample()
	e := &PCMEncoder{
		format:         format.Normalize(),
		bytesPerSample: bps,
		order:          binary.LittleEndian,
	}
	if format.BigEndian {
		e.order = binary.BigEndian
		e.offset = 4 - bps
	}
	return e, nil
}

// Format returns the format this encoder packs into
func (e *PCMEncoder) Format() audio.SampleFormat {
	return e.format
}

// Encode converts samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	out := make([]byte, len(samples)*e.bytesPerSample)
	if _, err := e.EncodeInto(out, samples); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeInto packs samples into dst and returns the number of bytes written
func (e *PCMEncoder) EncodeInto(dst []byte, samples []int32) (int, error) {
	n := len(samples) * e.bytesPerSample
	if len(dst) < n {
		return 0, fmt.Errorf("destination holds %d bytes, need %d", len(dst), n)
	}

	var lane [4]byte
	for i, s := range samples {
		e.order.PutUint32(lane[:], uint32(s))
		copy(dst[i*e.bytesPerSample:], lane[e.offset:e.offset+e.bytesPerSample])
	}
	return n, nil
}

// Scale maps a value in [-1, 1] onto the integer range of the format.
// Unsigned formats are centred on their midpoint.
func (e *PCMEncoder) Scale(v float64) int32 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}

	bits := e.format.BitsPerSample
	half := float64(int64(1) << (bits - 1))
	if e.format.Signed {
		return int32(math.Round(v * (half - 1)))
	}
	// unsigned 32-bit values above MaxInt32 do not fit the int32 domain
	if bits == 32 {
		return int32(math.Round(v * (half/2 - 1)) + half/2)
	}
	return int32(math.Round(v*(half-1)) + half)
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
