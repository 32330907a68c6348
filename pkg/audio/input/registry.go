// ABOUTME: Device registry across capture backends
// ABOUTME: Enumerates devices and their formats, recording failures per backend and per device
package input

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

// Entry is one enumerated device
type Entry struct {
	Device  Device
	Formats []audio.SampleFormat
	Err     error
}

// Usable reports whether the device can be offered for capture
func (e Entry) Usable() bool {
	return e.Device != nil && e.Err == nil && len(e.Formats) > 0
}

// BackendError records a backend that could not enumerate
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return e.Backend + ": " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Registry holds the capture backends
type Registry struct {
	mu       sync.Mutex
	backends []Backend
	failures []error
}

// NewRegistry creates a registry with the given backends
func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: backends}
}

// Register adds a backend
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// Enumerate lists every device of every backend with its formats.
// A failing backend or device is recorded and enumeration continues.
// Devices refused for security reasons are skipped.
func (r *Registry) Enumerate() []Entry {
	r.mu.Lock()
	backends := append([]Backend(nil), r.backends...)
	r.mu.Unlock()

	var entries []Entry
	var failures []error
	for _, b := range backends {
		devices, err := b.Devices()
		if err != nil {
			failures = append(failures, &BackendError{Backend: b.Name(), Err: err})
			if errors.Is(err, audio.ErrSecurityRestriction) {
				slog.Warn("backend skipped", "backend", b.Name(), "err", err)
			} else {
				slog.Error("backend enumeration failed", "backend", b.Name(), "err", err)
			}
			continue
		}

		for _, dev := range devices {
			formats, err := dev.Formats()
			if err != nil && errors.Is(err, audio.ErrSecurityRestriction) {
				slog.Warn("device skipped", "device", dev.Info().String(), "err", err)
				failures = append(failures, err)
				continue
			}
			if err != nil {
				slog.Error("device formats unavailable", "device", dev.Info().String(), "err", err)
			}
			entries = append(entries, Entry{Device: dev, Formats: formats, Err: err})
		}
	}

	r.mu.Lock()
	r.failures = failures
	r.mu.Unlock()
	return entries
}

// Failures returns the errors recorded by the last Enumerate
func (r *Registry) Failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failures...)
}

// Available returns the usable devices
func (r *Registry) Available() []Device {
	var devices []Device
	for _, e := range r.Enumerate() {
		if e.Usable() {
			devices = append(devices, e.Device)
		}
	}
	return devices
}

// Usable filters entries down to the ones that can be captured from
func Usable(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Usable() {
			out = append(out, e)
		}
	}
	return out
}
