// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the command channel back to the controller
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

// Command is a user action raised by the TUI
type Command string

const (
	CommandPause   Command = "pause"
	CommandResume  Command = "resume"
	CommandFlush   Command = "flush"
	CommandRestart Command = "restart"
	CommandReopen  Command = "reopen"
	CommandQuit    Command = "quit"

	CommandVolumeUp   Command = "volume-up"
	CommandVolumeDown Command = "volume-down"
	CommandMute       Command = "mute"
)

// Controls holds channels for TUI to controller communication
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// Send queues cmd without blocking the UI; quit is also signalled on Quit
func (c *Controls) Send(cmd Command) {
	if cmd == CommandQuit {
		select {
		case c.Quit <- struct{}{}:
		default:
		}
		return
	}
	select {
	case c.Commands <- cmd:
	default:
		// Don't block if channel is full
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, device, format string) Model {
	return Model{
		device:   device,
		format:   format,
		state:    "closed",
		dbfs:     meter.MinDBFS,
		controls: controls,
	}
}

// TUI runs the bubbletea program
type TUI struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
}

// New creates the TUI program
func New(controls *Controls, device, format string, opts ...tea.ProgramOption) *TUI {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &TUI{
		program: tea.NewProgram(NewModel(controls, device, format), opts...),
		updates: make(chan tea.Msg, 32),
		done:    make(chan struct{}),
	}
}

// Run blocks until the program exits
func (t *TUI) Run() error {
	go func() {
		for {
			select {
			case msg := <-t.updates:
				t.program.Send(msg)
			case <-t.done:
				return
			}
		}
	}()

	_, err := t.program.Run()
	close(t.done)
	return err
}

// Reading forwards a meter reading to the TUI without blocking
func (t *TUI) Reading(r meter.Reading) {
	t.update(ReadingMsg(r))
}

// Status forwards a status update to the TUI without blocking
func (t *TUI) Status(s StatusMsg) {
	t.update(s)
}

func (t *TUI) update(msg tea.Msg) {
	select {
	case t.updates <- msg:
	default:
		// Don't block if channel is full
	}
}

// Stop ends the program
func (t *TUI) Stop() {
	t.program.Quit()
}
