// ABOUTME: Malgo-based capture backend
// ABOUTME: Captures from hardware through miniaudio and feeds the ring buffer from the data callback
package input

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
)

const (
	// malgoPeriods is the number of periods the capture buffer is split into
	malgoPeriods = 4

	// malgoDefaultFrames sizes the buffer when the caller leaves it to the device
	malgoDefaultFrames = 4096
)

// MalgoFormats are the formats miniaudio converts capture data into.
// Every device offers all of them; the rate is left to the caller.
func MalgoFormats() []audio.SampleFormat {
	base := []audio.SampleFormat{
		{BitsPerSample: 8},
		{BitsPerSample: 16, Signed: true},
		{BitsPerSample: 24, Signed: true},
		{BitsPerSample: 32, Signed: true},
	}

	formats := make([]audio.SampleFormat, 0, len(base)*2)
	for _, channels := range []int{1, 2} {
		for _, f := range base {
			f.Channels = channels
			formats = append(formats, f.Normalize())
		}
	}
	return formats
}

// malgoFormat maps a sample format to the miniaudio format type
func malgoFormat(f audio.SampleFormat) (malgo.FormatType, error) {
	if f.BigEndian && f.BytesPerSample() > 1 {
		return malgo.FormatUnknown, fmt.Errorf("%w: miniaudio captures little-endian only", ErrUnsupportedFormat)
	}
	switch {
	case f.BitsPerSample == 8 && !f.Signed:
		return malgo.FormatU8, nil
	case f.BitsPerSample == 16 && f.Signed:
		return malgo.FormatS16, nil
	case f.BitsPerSample == 24 && f.Signed:
		return malgo.FormatS24, nil
	case f.BitsPerSample == 32 && f.Signed:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// MalgoBackend enumerates capture hardware
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend creates a backend; the miniaudio context is initialized on first use
func NewMalgoBackend() *MalgoBackend {
	return &MalgoBackend{}
}

// Name returns the backend name
func (b *MalgoBackend) Name() string { return "malgo" }

func (b *MalgoBackend) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		b.ctx = ctx
	}
	return b.ctx, nil
}

// Devices lists capture devices
func (b *MalgoBackend) Devices() ([]Device, error) {
	ctx, err := b.context()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, &MalgoDevice{
			stream:    newStream("malgo:" + info.ID.String()),
			backend:   b,
			info:      info,
			isDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Close releases the miniaudio context
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		slog.Warn("malgo context uninit error", "err", err)
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

// MalgoDevice is one capture endpoint
type MalgoDevice struct {
	stream

	backend   *MalgoBackend
	info      malgo.DeviceInfo
	isDefault bool

	devMu  sync.Mutex
	device *malgo.Device
}

// Info describes the device
func (d *MalgoDevice) Info() DeviceInfo {
	desc := "capture"
	if d.isDefault {
		desc = "default capture"
	}
	return DeviceInfo{Name: d.info.Name(), Backend: "malgo", Description: desc}
}

// Formats lists the formats miniaudio can deliver
func (d *MalgoDevice) Formats() ([]audio.SampleFormat, error) {
	return MalgoFormats(), nil
}

// Open initializes the capture device with the requested buffer
func (d *MalgoDevice) Open(format audio.SampleFormat, bufferBytes int) error {
	ft, err := malgoFormat(format)
	if err != nil {
		return err
	}
	if !matchFormat(MalgoFormats(), format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	ctx, err := d.backend.context()
	if err != nil {
		return err
	}

	rate := format.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	frameBytes := format.FrameBytes()
	frames := malgoDefaultFrames
	if bufferBytes > 0 {
		frames = max(bufferBytes/frameBytes, malgoPeriods)
	}
	periodFrames := (frames + malgoPeriods - 1) / malgoPeriods
	granted := periodFrames * malgoPeriods * frameBytes

	if err := d.openStream(format.WithSampleRate(rate), granted); err != nil {
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = ft
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Capture.DeviceID = d.info.ID.Pointer()
	cfg.SampleRate = uint32(rate)
	cfg.PeriodSizeInFrames = uint32(periodFrames)
	cfg.Periods = malgoPeriods
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, frameCount uint32) {
			d.produce(pInputSamples[:int(frameCount)*frameBytes])
		},
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		d.stream.Close()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	d.devMu.Lock()
	d.device = device
	d.devMu.Unlock()
	return nil
}

// Start starts the hardware and resumes delivery
func (d *MalgoDevice) Start() error {
	if err := d.stream.Start(); err != nil {
		return err
	}

	d.devMu.Lock()
	defer d.devMu.Unlock()
	if d.device != nil && !d.device.IsStarted() {
		if err := d.device.Start(); err != nil {
			return fmt.Errorf("failed to start capture device: %w", err)
		}
	}
	return nil
}

// Stop stops the hardware; readers block until Start or Close
func (d *MalgoDevice) Stop() error {
	if err := d.stream.Stop(); err != nil {
		return err
	}

	d.devMu.Lock()
	defer d.devMu.Unlock()
	if d.device != nil && d.device.IsStarted() {
		if err := d.device.Stop(); err != nil {
			return fmt.Errorf("failed to stop capture device: %w", err)
		}
	}
	return nil
}

// Close uninitializes the hardware and wakes readers
func (d *MalgoDevice) Close() error {
	d.devMu.Lock()
	device := d.device
	d.device = nil
	d.devMu.Unlock()

	if device != nil {
		if err := device.Stop(); err != nil {
			d.logger.Warn("capture device stop error", "err", err)
		}
		device.Uninit()
	}
	return d.stream.Close()
}
