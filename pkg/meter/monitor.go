// ABOUTME: Monitor consumer that plays captured audio
// ABOUTME: Copies packets into a bounded queue and feeds them to an output on its own goroutine
package meter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/decode"
	"github.com/pcmprobe/pcmprobe/pkg/audio/output"
)

// MonitorQueue is how many packets may wait for playback
const MonitorQueue = 8

// Monitor is a buffering consumer. OnPacket never blocks: when playback falls
// behind, packets are dropped and counted.
type Monitor struct {
	out     output.Output
	format  audio.SampleFormat
	decoder *decode.PCMDecoder
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}

	dropped atomic.Uint64
	played  atomic.Uint64
}

// NewMonitor opens out at the capture rate and starts playback
func NewMonitor(out output.Output, format audio.SampleFormat) (*Monitor, error) {
	decoder, err := decode.NewPCM(format)
	if err != nil {
		return nil, err
	}
	if !format.HasRate() {
		return nil, fmt.Errorf("%w: monitor needs a sample rate", audio.ErrFormat)
	}
	if err := out.Open(int(format.SampleRate), format.Channels); err != nil {
		return nil, fmt.Errorf("failed to open monitor output: %w", err)
	}

	m := &Monitor{
		out:     out,
		format:  decoder.Format(),
		decoder: decoder,
		logger:  slog.Default().With("component", "monitor"),
		queue:   make(chan []byte, MonitorQueue),
		done:    make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// OnPacket implements capture.Consumer
func (m *Monitor) OnPacket(packet []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	cp := make([]byte, len(packet))
	copy(cp, packet)
	select {
	case m.queue <- cp:
	default:
		m.dropped.Add(1)
	}
}

func (m *Monitor) run() {
	defer close(m.done)

	var samples []int32
	var pcm []int16
	for packet := range m.queue {
		n := m.decoder.Samples(packet)
		if cap(samples) < n {
			samples = make([]int32, n)
			pcm = make([]int16, n)
		}
		samples, pcm = samples[:n], pcm[:n]

		if _, err := m.decoder.DecodeInto(samples, packet); err != nil {
			m.logger.Warn("dropping undecodable packet", "err", err)
			continue
		}
		for i, s := range samples {
			pcm[i] = ToInt16(s, m.format)
		}
		if err := m.out.Write(pcm); err != nil {
			m.logger.Warn("monitor write failed", "err", err)
			continue
		}
		m.played.Add(1)
	}
}

// Close stops playback and closes the output
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	<-m.done
	return m.out.Close()
}

// SetVolume sets the playback gain (0-100). It reports false when the output
// has no software gain.
func (m *Monitor) SetVolume(volume int) bool {
	v, ok := m.out.(output.Volume)
	if ok {
		v.SetVolume(volume)
	}
	return ok
}

// ToggleMute flips playback mute. It reports false when the output has no
// software gain.
func (m *Monitor) ToggleMute() bool {
	v, ok := m.out.(output.Volume)
	if ok {
		v.SetMuted(!v.IsMuted())
	}
	return ok
}

// Volume returns the playback gain and mute state
func (m *Monitor) Volume() (volume int, muted bool, ok bool) {
	v, ok := m.out.(output.Volume)
	if !ok {
		return 0, false, false
	}
	return v.Volume(), v.IsMuted(), true
}

// Dropped returns how many packets were discarded because the queue was full
func (m *Monitor) Dropped() uint64 {
	return m.dropped.Load()
}

// Played returns how many packets reached the output
func (m *Monitor) Played() uint64 {
	return m.played.Load()
}

// ToInt16 converts a decoded sample to signed 16 bits, centring unsigned formats
func ToInt16(sample int32, format audio.SampleFormat) int16 {
	bits := format.BitsPerSample
	if format.Signed {
		return audio.SampleToInt16(sample, bits)
	}

	v := int64(uint32(sample))
	if bits < 32 {
		v = int64(sample)
	}
	v -= int64(1) << (bits - 1)
	return audio.SampleToInt16(int32(v), bits)
}
