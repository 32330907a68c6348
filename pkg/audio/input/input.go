// ABOUTME: Capture device abstraction
// ABOUTME: Defines the blocking byte-stream Device, its Backend and input errors
package input

import (
	"errors"
	"fmt"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

var (
	// ErrBusy is returned when a device is already opened elsewhere
	ErrBusy = errors.New("device busy")

	// ErrClosed is returned by Read once the device has been closed
	ErrClosed = errors.New("device closed")

	// ErrNotOpen is returned by operations that need an open device
	ErrNotOpen = fmt.Errorf("%w: device not open", audio.ErrDeviceUnavailable)

	// ErrUnsupportedFormat is returned when a device cannot capture in the requested format
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported by device", audio.ErrFormat)
)

// DeviceInfo identifies a capture device
type DeviceInfo struct {
	Name        string
	Backend     string
	Description string
}

func (i DeviceInfo) String() string {
	if i.Description == "" {
		return fmt.Sprintf("%s (%s)", i.Name, i.Backend)
	}
	return fmt.Sprintf("%s (%s: %s)", i.Name, i.Backend, i.Description)
}

// Device is a blocking byte-stream capture device.
//
// Read blocks until data is available. It keeps blocking while the device is
// stopped and returns ErrClosed once Close is called.
type Device interface {
	Info() DeviceInfo
	// Formats lists the formats the device can capture in
	Formats() ([]audio.SampleFormat, error)
	// Open prepares the device with a buffer of bufferBytes (0 for the device default)
	Open(format audio.SampleFormat, bufferBytes int) error
	Start() error
	Stop() error
	// Flush discards buffered data
	Flush() error
	Close() error
	Read(p []byte) (int, error)
	// BufferSize returns the buffer size actually granted, in bytes
	BufferSize() int
}

// Backend enumerates the devices of one capture system
type Backend interface {
	Name() string
	Devices() ([]Device, error)
}

// matchFormat finds want in offered, ignoring the rate when the offer leaves it open
func matchFormat(offered []audio.SampleFormat, want audio.SampleFormat) bool {
	want = want.Normalize()
	for _, f := range offered {
		f = f.Normalize()
		if f.BitsPerSample != want.BitsPerSample || f.Channels != want.Channels ||
			f.Signed != want.Signed || f.FrameSize != want.FrameSize {
			continue
		}
		if want.BytesPerSample() > 1 && f.BigEndian != want.BigEndian {
			continue
		}
		if f.HasRate() && f.SampleRate != want.SampleRate {
			continue
		}
		return true
	}
	return false
}
