// ABOUTME: Tests for the RMS meter
// ABOUTME: Covers level math, empty packets, muting and buffer growth
package meter

import (
	"errors"
	"math"
	"testing"

	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/encode"
)

var s16Stereo = audio.SampleFormat{BitsPerSample: 16, Channels: 2, Signed: true, SampleRate: 44100}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		samples []int32
		rms     float64
		peak    float64
	}{
		{"empty", nil, 0, 0},
		{"silence", []int32{0, 0, 0, 0}, 0, 0},
		{"constant", []int32{100, 100}, 100, 100},
		{"mixed sign", []int32{3, -4}, math.Sqrt(12.5), 4},
		{"most negative", []int32{math.MinInt32}, 2147483648, 2147483648},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rms, peak := Compute(tt.samples)
			if math.Abs(rms-tt.rms) > 1e-9 {
				t.Errorf("expected rms %v, got %v", tt.rms, rms)
			}
			if peak != tt.peak {
				t.Errorf("expected peak %v, got %v", tt.peak, peak)
			}
		})
	}
}

func TestDBFS(t *testing.T) {
	tests := []struct {
		name      string
		rms       float64
		fullScale float64
		expected  float64
	}{
		{"full scale", 32768, 32768, 0},
		{"half scale", 16384, 32768, 20 * math.Log10(0.5)},
		{"silence", 0, 32768, MinDBFS},
		{"below floor", 1e-9, 32768, MinDBFS},
		{"no full scale", 1, 0, MinDBFS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DBFS(tt.rms, tt.fullScale); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNewRMSValidation(t *testing.T) {
	if _, err := NewRMS(audio.SampleFormat{BitsPerSample: 40, Channels: 1}, 1024, nil); !errors.Is(err, audio.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
	if _, err := NewRMS(s16Stereo, 0, nil); err == nil {
		t.Error("expected error for zero packet frames")
	}
}

func packS16(t *testing.T, samples ...int32) []byte {
	t.Helper()
	enc, err := encode.NewPCM(s16Stereo)
	if err != nil {
		t.Fatalf("NewPCM failed: %v", err)
	}
	data, err := enc.Encode(samples)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestRMSReports(t *testing.T) {
	var got []Reading
	m, err := NewRMS(s16Stereo, 2, func(r Reading) { got = append(got, r) })
	if err != nil {
		t.Fatalf("NewRMS failed: %v", err)
	}

	m.OnPacket(packS16(t, 3, -4, 3, -4))
	m.OnPacket(packS16(t, 0, 0, 0, 0))

	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("expected sequence 1,2 got %d,%d", got[0].Seq, got[1].Seq)
	}
	if math.Abs(got[0].RMS-math.Sqrt(12.5)) > 1e-9 || got[0].Peak != 4 || got[0].Samples != 4 {
		t.Errorf("unexpected first reading %+v", got[0])
	}
	if got[1].RMS != 0 || got[1].DBFS != MinDBFS {
		t.Errorf("expected silent reading, got %+v", got[1])
	}

	last, ok := m.Last()
	if !ok || last.Seq != 2 {
		t.Errorf("expected last reading 2, got %+v ok=%v", last, ok)
	}
}

func TestRMSSkipsEmptyPacket(t *testing.T) {
	calls := 0
	m, err := NewRMS(s16Stereo, 4, func(Reading) { calls++ })
	if err != nil {
		t.Fatalf("NewRMS failed: %v", err)
	}

	m.OnPacket(nil)
	m.OnPacket([]byte{})

	if calls != 0 {
		t.Errorf("expected empty packets to be skipped, got %d readings", calls)
	}
	if _, ok := m.Last(); ok {
		t.Error("expected no last reading")
	}
}

func TestRMSSkipsPartialSample(t *testing.T) {
	calls := 0
	m, _ := NewRMS(s16Stereo, 4, func(Reading) { calls++ })

	m.OnPacket([]byte{1, 2, 3})

	if calls != 0 {
		t.Errorf("expected undecodable packet to be skipped, got %d readings", calls)
	}
}

func TestRMSMuted(t *testing.T) {
	calls := 0
	m, _ := NewRMS(s16Stereo, 2, func(Reading) { calls++ })

	m.SetMuted(true)
	if !m.Muted() {
		t.Fatal("expected muted")
	}
	m.OnPacket(packS16(t, 1, 1, 1, 1))
	if calls != 0 {
		t.Errorf("expected no readings while muted, got %d", calls)
	}

	m.SetMuted(false)
	m.OnPacket(packS16(t, 1, 1, 1, 1))
	if calls != 1 {
		t.Errorf("expected 1 reading after unmute, got %d", calls)
	}
}

func TestRMSGrowsForLargerPacket(t *testing.T) {
	var last Reading
	m, _ := NewRMS(s16Stereo, 1, func(r Reading) { last = r })

	m.OnPacket(packS16(t, 10, 10, 10, 10, 10, 10))

	if last.Samples != 6 || last.RMS != 10 {
		t.Errorf("expected 6 samples at rms 10, got %+v", last)
	}
}

func TestRMSFullScaleSine(t *testing.T) {
	format := audio.SampleFormat{BitsPerSample: 24, Channels: 1, Signed: true, SampleRate: 48000}
	enc, err := encode.NewPCM(format)
	if err != nil {
		t.Fatalf("NewPCM failed: %v", err)
	}

	const frames = 4800
	samples := make([]int32, frames)
	for i := range samples {
		samples[i] = enc.Scale(math.Sin(2 * math.Pi * 1000 * float64(i) / 48000))
	}
	data, _ := enc.Encode(samples)

	var r Reading
	m, _ := NewRMS(format, frames, func(got Reading) { r = got })
	m.OnPacket(data)

	// a full-scale sine sits 3 dB below full scale
	if math.Abs(r.DBFS-(-3.01)) > 0.05 {
		t.Errorf("expected about -3.01 dBFS, got %v", r.DBFS)
	}
}

func BenchmarkRMSOnPacket(b *testing.B) {
	m, _ := NewRMS(s16Stereo, 1024, nil)
	packet := make([]byte, 1024*s16Stereo.Normalize().FrameBytes())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.OnPacket(packet)
	}
}
