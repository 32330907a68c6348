// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for monitor playback backends
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device
	Open(sampleRate, channels int) error

	// Write outputs 16-bit samples (blocks until written)
	Write(samples []int16) error

	// Close releases output resources
	Close() error
}

// Volume is implemented by outputs with software gain
type Volume interface {
	SetVolume(volume int)
	SetMuted(muted bool)
	Volume() int
	IsMuted() bool
}

var (
	_ Output = (*Oto)(nil)
	_ Volume = (*Oto)(nil)
)
