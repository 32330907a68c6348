// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests readings, status updates, key commands and the meter bar
package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil, "Sine 440 Hz", "PCM_SIGNED 44100.0 Hz")

	if model.paused {
		t.Error("expected paused to be false initially")
	}
	if model.state != "closed" {
		t.Errorf("expected closed state, got %q", model.state)
	}
	if model.dbfs != meter.MinDBFS {
		t.Errorf("expected silent meter, got %v", model.dbfs)
	}
}

func TestReadingMsg(t *testing.T) {
	model := NewModel(nil, "dev", "fmt")

	updated, _ := model.Update(ReadingMsg(meter.Reading{Seq: 3, RMS: 100, Peak: 200, DBFS: -12}))
	m := updated.(Model)

	if m.seq != 3 || m.rms != 100 || m.peak != 200 || m.dbfs != -12 {
		t.Errorf("reading not applied: %+v", m)
	}
}

func TestStatusMsg(t *testing.T) {
	model := NewModel(nil, "dev", "fmt")

	model.applyStatus(StatusMsg{State: "Running", Packets: 7})
	if model.state != "Running" || model.packets != 7 {
		t.Errorf("status not applied: state=%q packets=%d", model.state, model.packets)
	}

	model.applyStatus(StatusMsg{Err: errors.New("capture failure")})
	if model.state != "Running" {
		t.Error("empty state should not overwrite")
	}
	if model.lastErr != "capture failure" {
		t.Errorf("expected error recorded, got %q", model.lastErr)
	}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeyCommands(t *testing.T) {
	tests := []struct {
		key      string
		expected Command
	}{
		{"f", CommandFlush},
		{"r", CommandRestart},
		{"o", CommandReopen},
		{"+", CommandVolumeUp},
		{"-", CommandVolumeDown},
		{"m", CommandMute},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			controls := NewControls()
			model := NewModel(controls, "dev", "fmt")

			model.Update(key(tt.key))

			select {
			case got := <-controls.Commands:
				if got != tt.expected {
					t.Errorf("expected %q, got %q", tt.expected, got)
				}
			default:
				t.Error("expected a command")
			}
		})
	}
}

func TestSpaceTogglesPause(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls, "dev", "fmt")

	updated, _ := model.Update(key(" "))
	m := updated.(Model)
	if !m.paused {
		t.Fatal("expected paused")
	}
	if got := <-controls.Commands; got != CommandPause {
		t.Errorf("expected pause, got %q", got)
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("expected paused view")
	}

	updated, _ = m.Update(key(" "))
	m = updated.(Model)
	if m.paused {
		t.Fatal("expected resumed")
	}
	if got := <-controls.Commands; got != CommandResume {
		t.Errorf("expected resume, got %q", got)
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls, "dev", "fmt")

	updated, cmd := model.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !updated.(Model).quitting {
		t.Error("expected quitting state")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestControlsDoNotBlock(t *testing.T) {
	controls := NewControls()
	for i := 0; i < 50; i++ {
		controls.Send(CommandFlush)
	}
	controls.Send(CommandQuit)
	controls.Send(CommandQuit)

	if len(controls.Commands) != cap(controls.Commands) {
		t.Errorf("expected full command queue, got %d", len(controls.Commands))
	}
}

func TestMeterFill(t *testing.T) {
	tests := []struct {
		dbfs     float64
		expected int
	}{
		{meter.MinDBFS, 0},
		{-60, 0},
		{-30, 20},
		{0, 40},
		{3, 40},
	}

	for _, tt := range tests {
		if got := meterFill(tt.dbfs, 40); got != tt.expected {
			t.Errorf("meterFill(%v): expected %d, got %d", tt.dbfs, tt.expected, got)
		}
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, "Sine 440 Hz", "PCM_SIGNED 48000.0 Hz")
	model.applyStatus(StatusMsg{State: "Running", Packets: 12})
	model.applyReading(meter.Reading{RMS: 1234.5, DBFS: -20})

	view := model.View()
	for _, want := range []string{"Sine 440 Hz", "Running", "12", "1234.50", "dBFS", "q:Quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view", want)
		}
	}
}

func TestMonitorStatus(t *testing.T) {
	model := NewModel(nil, "dev", "fmt")
	if strings.Contains(model.View(), "Monitor") {
		t.Error("expected no monitor line without a monitor")
	}

	volume, muted := 70, false
	model.applyStatus(StatusMsg{Volume: &volume, Muted: &muted})
	view := model.View()
	if !strings.Contains(view, "70%") || !strings.Contains(view, "m:Mute") {
		t.Errorf("expected monitor volume in view:\n%s", view)
	}

	muted = true
	model.applyStatus(StatusMsg{Muted: &muted})
	if !strings.Contains(model.View(), "muted") {
		t.Error("expected muted monitor in view")
	}
}
