// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for raw sample decoders
package decode

// Decoder decodes raw audio bytes to int32 samples
type Decoder interface {
	// Decode converts raw audio data to samples
	Decode(data []byte) ([]int32, error)

	// DecodeInto converts raw audio data into a caller-owned buffer
	DecodeInto(dst []int32, data []byte) (int, error)

	// Close releases decoder resources
	Close() error
}

var _ Decoder = (*PCMDecoder)(nil)
