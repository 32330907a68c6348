// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for raw sample packers
package encode

// Encoder packs int32 samples into raw bytes
type Encoder interface {
	// Encode converts samples to raw audio data
	Encode(samples []int32) ([]byte, error)

	// EncodeInto packs samples into a caller-owned buffer
	EncodeInto(dst []byte, samples []int32) (int, error)

	// Close releases encoder resources
	Close() error
}

var _ Encoder = (*PCMEncoder)(nil)
