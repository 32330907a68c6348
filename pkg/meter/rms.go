// ABOUTME: RMS level meter consumer
// ABOUTME: Decodes each captured packet and reports its root-mean-square level
package meter

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/decode"
)

// MinDBFS is the floor reported for silence
const MinDBFS = -120.0

// Reading is the level of one packet
type Reading struct {
	Seq     uint64
	RMS     float64
	Peak    float64
	DBFS    float64
	Samples int
	At      time.Time
}

// Compute returns the RMS and the absolute peak of samples.
// Both are 0 for an empty slice.
func Compute(samples []int32) (rms, peak float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return math.Sqrt(sum / float64(len(samples))), peak
}

// DBFS converts an RMS value to decibels relative to fullScale
func DBFS(rms, fullScale float64) float64 {
	if rms <= 0 || fullScale <= 0 {
		return MinDBFS
	}
	return max(20*math.Log10(rms/fullScale), MinDBFS)
}

// RMS is a capture consumer that reports one Reading per non-empty packet.
// OnPacket runs on the capture goroutine; report must not block for long.
type RMS struct {
	decoder   *decode.PCMDecoder
	format    audio.SampleFormat
	fullScale float64
	samples   []int32
	report    func(Reading)
	logger    *slog.Logger

	seq   uint64
	muted atomic.Bool
	last  atomic.Pointer[Reading]
}

// NewRMS creates a meter sized for packets of packetFrames frames
func NewRMS(format audio.SampleFormat, packetFrames int, report func(Reading)) (*RMS, error) {
	decoder, err := decode.NewPCM(format)
	if err != nil {
		return nil, err
	}
	if packetFrames < 1 {
		return nil, fmt.Errorf("packet frames must be at least 1, got %d", packetFrames)
	}
	if report == nil {
		report = func(Reading) {}
	}

	return &RMS{
		decoder:   decoder,
		format:    decoder.Format(),
		fullScale: format.FullScale(),
		samples:   make([]int32, packetFrames*format.Channels),
		report:    report,
		logger:    slog.Default().With("component", "meter"),
	}, nil
}

// OnPacket implements capture.Consumer
func (m *RMS) OnPacket(packet []byte) {
	if m.muted.Load() {
		return
	}

	if need := m.decoder.Samples(packet); need > len(m.samples) {
		m.samples = make([]int32, need)
	}
	n, err := m.decoder.DecodeInto(m.samples, packet)
	if err != nil {
		m.logger.Warn("dropping undecodable packet", "bytes", len(packet), "err", err)
		return
	}
	if n == 0 {
		return
	}

	rms, peak := Compute(m.samples[:n])
	m.seq++
	r := Reading{
		Seq:     m.seq,
		RMS:     rms,
		Peak:    peak,
		DBFS:    DBFS(rms, m.fullScale),
		Samples: n,
		At:      time.Now(),
	}
	m.last.Store(&r)
	m.report(r)
}

// SetMuted pauses or resumes reporting; capture is unaffected
func (m *RMS) SetMuted(muted bool) {
	m.muted.Store(muted)
}

// Muted reports whether the meter is paused
func (m *RMS) Muted() bool {
	return m.muted.Load()
}

// Last returns the most recent reading
func (m *RMS) Last() (Reading, bool) {
	r := m.last.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}

// Format returns the format packets are decoded with
func (m *RMS) Format() audio.SampleFormat {
	return m.format
}
