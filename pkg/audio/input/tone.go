// ABOUTME: Synthetic sine wave capture device
// ABOUTME: Offers every width the decoder handles so each can be exercised without hardware
package input

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/encode"
)

const (
	// DefaultToneFrequency is the A4 test tone
	DefaultToneFrequency = 440.0

	// DefaultPeriod is how often paced devices produce data
	DefaultPeriod = 20 * time.Millisecond

	toneAmplitude = 0.5 // 50% volume
)

// ToneFormats are the formats a tone device offers, each in mono and stereo
func ToneFormats() []audio.SampleFormat {
	base := []audio.SampleFormat{
		{BitsPerSample: 8},
		{BitsPerSample: 16, Signed: true},
		{BitsPerSample: 16, Signed: true, BigEndian: true},
		{BitsPerSample: 20, Signed: true},
		{BitsPerSample: 24, Signed: true},
		{BitsPerSample: 24, Signed: true, BigEndian: true},
		{BitsPerSample: 32, Signed: true},
		{BitsPerSample: 16, BigEndian: true},
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

// ToneBackend provides synthetic devices
type ToneBackend struct {
	Frequency float64
	Period    time.Duration
}

// NewToneBackend creates a tone backend; zero values select the defaults
func NewToneBackend(frequency float64, period time.Duration) *ToneBackend {
	if frequency <= 0 {
		frequency = DefaultToneFrequency
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &ToneBackend{Frequency: frequency, Period: period}
}

// Name returns the backend name
func (b *ToneBackend) Name() string { return "tone" }

// Devices returns a sine device and a silent device
func (b *ToneBackend) Devices() ([]Device, error) {
	return []Device{
		NewToneDevice(fmt.Sprintf("Sine %.0f Hz", b.Frequency), b.Frequency, toneAmplitude, b.Period),
		NewToneDevice("Silence", 0, 0, b.Period),
	}, nil
}

// ToneDevice generates a sine wave at real-time pace
type ToneDevice struct {
	stream

	name      string
	frequency float64
	amplitude float64
	period    time.Duration

	genMu       sync.Mutex
	encoder     *encode.PCMEncoder
	rate        float64
	sampleIndex uint64
	samples     []int32
}

// NewToneDevice creates a tone device
func NewToneDevice(name string, frequency, amplitude float64, period time.Duration) *ToneDevice {
	return &ToneDevice{
		stream:    newStream("tone:" + name),
		name:      name,
		frequency: frequency,
		amplitude: amplitude,
		period:    period,
	}
}

// Info describes the device
func (d *ToneDevice) Info() DeviceInfo {
	desc := "silence"
	if d.amplitude > 0 {
		desc = fmt.Sprintf("%.1f Hz sine", d.frequency)
	}
	return DeviceInfo{Name: d.name, Backend: "tone", Description: desc}
}

// Formats lists every decoder width with an open sample rate
func (d *ToneDevice) Formats() ([]audio.SampleFormat, error) {
	return ToneFormats(), nil
}

// Open prepares the generator for format
func (d *ToneDevice) Open(format audio.SampleFormat, bufferBytes int) error {
	if !matchFormat(ToneFormats(), format) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	encoder, err := encode.NewPCM(format)
	if err != nil {
		return err
	}

	rate := format.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	frames := periodFrames(rate, d.period)
	periodBytes := frames * format.FrameBytes()

	if err := d.openStream(format, pacedBuffer(bufferBytes, periodBytes)); err != nil {
		return err
	}

	d.genMu.Lock()
	d.encoder = encoder
	d.rate = rate
	d.sampleIndex = 0
	d.samples = make([]int32, frames*format.Channels)
	d.genMu.Unlock()

	d.runPaced(d.period, periodBytes, d.fill)
	return nil
}

// fill generates one period of the tone into buf
func (d *ToneDevice) fill(buf []byte) error {
	d.genMu.Lock()
	defer d.genMu.Unlock()

	channels := d.encoder.Format().Channels
	frames := len(d.samples) / channels
	for i := 0; i < frames; i++ {
		t := float64(d.sampleIndex+uint64(i)) / d.rate
		v := d.encoder.Scale(d.amplitude * math.Sin(2*math.Pi*d.frequency*t))
		for ch := 0; ch < channels; ch++ {
			d.samples[i*channels+ch] = v
		}
	}
	d.sampleIndex += uint64(frames)

	_, err := d.encoder.EncodeInto(buf, d.samples)
	return err
}
