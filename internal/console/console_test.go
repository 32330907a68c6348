// ABOUTME: Tests for the console front-end
// ABOUTME: Checks answer parsing, fallbacks and the line pump
package console

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pcmprobe/pcmprobe/internal/capturetest"
	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParseIndex(t *testing.T) {
	tests := []struct {
		input    string
		n        int
		expected int
	}{
		{"2", 3, 2},
		{" 1 ", 3, 1},
		{"", 3, 0},
		{"abc", 3, 0},
		{"3", 3, 0},
		{"-1", 3, 0},
		{"1.5", 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseIndex(tt.input, tt.n, quiet); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestParseSampleRate(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"48000", 48000},
		{"22050.5", 22050.5},
		{"", 44100},
		{"fast", 44100},
		{"0", 44100},
		{"-8000", 44100},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseSampleRate(tt.input, DefaultSampleRate, quiet); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParseBufferFrames(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1024", 1024},
		{"", 4096},
		{"big", 4096},
		{"0", 4096},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseBufferFrames(tt.input, DefaultBufferFrames, quiet); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestPromptSequence(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader("1\nnope\n48000\n2048\n\n"), &out)

	dev, err := c.Index("Enter the index of the input device to use...", 2)
	if err != nil || dev != 1 {
		t.Fatalf("expected device 1, got %d err=%v", dev, err)
	}
	format, err := c.Index("Enter the index of the format to use...", 4)
	if err != nil || format != 0 {
		t.Fatalf("expected malformed format to fall back to 0, got %d err=%v", format, err)
	}
	rate, err := c.SampleRate(DefaultSampleRate)
	if err != nil || rate != 48000 {
		t.Fatalf("expected 48000, got %v err=%v", rate, err)
	}
	frames, err := c.BufferFrames(DefaultBufferFrames)
	if err != nil || frames != 2048 {
		t.Fatalf("expected 2048, got %d err=%v", frames, err)
	}
	if err := c.WaitEnter(); err != nil {
		t.Fatalf("WaitEnter failed: %v", err)
	}

	if _, err := c.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
	if !strings.Contains(out.String(), "sample rate") {
		t.Errorf("expected rate prompt in output: %q", out.String())
	}
}

func TestIndexEOF(t *testing.T) {
	c := New(strings.NewReader(""), io.Discard)
	if _, err := c.Index("?", 3); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestListings(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out)

	dev := capturetest.NewFakeDevice("Fake Mic")
	c.ListDevices([]input.Entry{{Device: dev}})
	c.ListFormats([]audio.SampleFormat{{BitsPerSample: 16, Channels: 2, Signed: true}})

	s := out.String()
	for _, want := range []string{"0: ", "Fake Mic", "PCM_SIGNED", "unknown sample rate"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in %q", want, s)
		}
	}
}

func TestLines(t *testing.T) {
	c := New(strings.NewReader("\nflush\n  quit  \n"), io.Discard)

	var got []string
	for line := range c.Lines() {
		got = append(got, line)
	}

	want := []string{"", "flush", "quit"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if !errors.Is(c.LinesErr(), io.EOF) {
		t.Errorf("expected EOF to end the pump, got %v", c.LinesErr())
	}
}

func TestLinesStopsAfterClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := New(pr, io.Discard)

	lines := c.Lines()
	go pw.Write([]byte("first\n"))
	if got := <-lines; got != "first" {
		t.Fatalf("expected first, got %q", got)
	}

	c.Close()
	c.Close()
	go pw.Write([]byte("ignored\n"))

	select {
	case line, ok := <-lines:
		if ok {
			t.Fatalf("expected no lines after close, got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("line pump did not exit after close")
	}
}

func TestPrintReading(t *testing.T) {
	var out bytes.Buffer
	c := New(strings.NewReader(""), &out)

	c.PrintReading(meter.Reading{RMS: 12.5})

	if out.String() != "RMS: 12.5\n" {
		t.Errorf("unexpected line %q", out.String())
	}
}
