// ABOUTME: PCM audio decoder
// ABOUTME: Decodes raw PCM of any width up to 32 bits, either byte order and signedness to int32
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// laneBytes is the width of the int32 output lane
const laneBytes = 4

// PCMDecoder decodes PCM audio.
//
// The lane layout is computed once per format: source bytes are copied into a
// 4-byte lane at offset (4-bytesPerSample for big-endian, 0 for little-endian),
// the remaining lane bytes are pre-filled with the sign, and the lane is read
// back in the source byte order.
type PCMDecoder struct {
	format audio.SampleFormat

	bytesPerSample int
	offset         int
	signIndex      int
	signMask       byte // 1 for signed formats, 0 for unsigned
	order          binary.ByteOrder
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.SampleFormat) (*PCMDecoder, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	bps := format.BytesPerSample()
	d := &PCMDecoder{
		format:         format.Normalize(),
		bytesPerSample: bps,
		order:          binary.LittleEndian,
		signIndex:      bps - 1,
	}
	if format.BigEndian {
		d.order = binary.BigEndian
		d.offset = laneBytes - bps
		d.signIndex = 0
	}
	if format.Signed {
		d.signMask = 1
	}

	return d, nil
}

// Format returns the format this decoder was built for
func (d *PCMDecoder) Format() audio.SampleFormat {
	return d.format
}

// Samples returns how many samples data holds
func (d *PCMDecoder) Samples(data []byte) int {
	return len(data) / d.bytesPerSample
}

// Decode converts PCM bytes to int32 samples
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	samples := make([]int32, d.Samples(data))
	n, err := d.DecodeInto(samples, data)
	if err != nil {
		return nil, err
	}
	return samples[:n], nil
}

// DecodeInto converts PCM bytes into dst and returns the number of samples written.
// dst must hold at least len(data)/BytesPerSample values.
func (d *PCMDecoder) DecodeInto(dst []int32, data []byte) (int, error) {
	if len(data)%d.bytesPerSample != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of %d bytes per sample",
			audio.ErrFormat, len(data), d.bytesPerSample)
	}

	n := len(data) / d.bytesPerSample
	if len(dst) < n {
		return 0, fmt.Errorf("destination holds %d samples, need %d", len(dst), n)
	}

	var lane [laneBytes]byte
	for i := 0; i < n; i++ {
		src := data[i*d.bytesPerSample : (i+1)*d.bytesPerSample]

		// 0xFF for a negative signed sample, 0x00 otherwise
		fill := -(src[d.signIndex] >> 7 & d.signMask)
		lane[0], lane[1], lane[2], lane[3] = fill, fill, fill, fill

		copy(lane[d.offset:], src)
		dst[i] = int32(d.order.Uint32(lane[:]))
	}

	return n, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// Decode is a one-shot helper that builds a decoder for format and decodes data
func Decode(data []byte, format audio.SampleFormat) ([]int32, error) {
	d, err := NewPCM(format)
	if err != nil {
		return nil, err
	}
	return d.Decode(data)
}
