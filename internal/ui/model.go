// ABOUTME: Bubbletea model for the capture TUI
// ABOUTME: Holds meter state, renders the level bar and turns keys into commands
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcmprobe/pcmprobe/internal/version"
	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

// meterFloor is the lowest dBFS value the bar shows
const meterFloor = -60.0

// Model represents the TUI state
type Model struct {
	// Device
	device string
	format string
	state  string

	// Levels
	seq     uint64
	rms     float64
	peak    float64
	dbfs    float64
	packets uint64
	dropped uint64

	// Monitor playback
	hasMonitor bool
	volume     int
	muted      bool

	paused   bool
	lastErr  string
	quitting bool

	controls *Controls

	// Dimensions
	width  int
	height int
}

// ReadingMsg delivers a meter reading
type ReadingMsg meter.Reading

// StatusMsg updates session details; zero fields are left unchanged
type StatusMsg struct {
	State   string
	Packets uint64
	Dropped uint64
	Err     error

	// Monitor gain; nil when there is no adjustable monitor
	Volume *int
	Muted  *bool
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case ReadingMsg:
		m.applyReading(meter.Reading(msg))
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.send(CommandQuit)
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
		if m.paused {
			m.send(CommandPause)
		} else {
			m.send(CommandResume)
		}
	case "f":
		m.send(CommandFlush)
	case "r":
		m.send(CommandRestart)
	case "o":
		m.send(CommandReopen)
	case "+", "=", "up":
		m.send(CommandVolumeUp)
	case "-", "down":
		m.send(CommandVolumeDown)
	case "m":
		m.send(CommandMute)
	}

	return m, nil
}

func (m Model) send(cmd Command) {
	if m.controls != nil {
		m.controls.Send(cmd)
	}
}

func (m *Model) applyReading(r meter.Reading) {
	m.seq = r.Seq
	m.rms = r.RMS
	m.peak = r.Peak
	m.dbfs = r.DBFS
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Packets != 0 {
		m.packets = msg.Packets
	}
	if msg.Dropped != 0 {
		m.dropped = msg.Dropped
	}
	if msg.Err != nil {
		m.lastErr = msg.Err.Error()
	}
	if msg.Volume != nil {
		m.hasMonitor = true
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	hotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping capture...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", version.Product, version.Version)))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Device", m.device)
	field("Format", m.format)
	field("State", m.state)
	field("Packets", fmt.Sprintf("%d (monitor dropped %d)", m.packets, m.dropped))
	if m.hasMonitor {
		if m.muted {
			field("Monitor", "muted")
		} else {
			field("Monitor", fmt.Sprintf("%d%%", m.volume))
		}
	}
	b.WriteString("\n")

	if m.paused {
		field("Output", "paused")
	} else {
		field("RMS", fmt.Sprintf("%.2f", m.rms))
		field("Peak", fmt.Sprintf("%.0f", m.peak))
		b.WriteString(renderMeter(m.dbfs, m.barWidth()))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" %6.1f dBFS", m.dbfs)))
		b.WriteString("\n")
	}

	if m.lastErr != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := "space:Pause  f:Flush  r:Restart  o:Reopen  q:Quit"
	if m.hasMonitor {
		help = "space:Pause  f:Flush  r:Restart  o:Reopen  +/-:Volume  m:Mute  q:Quit"
	}
	b.WriteString(lipgloss.NewStyle().Faint(true).Render(help))

	return b.String()
}

func (m Model) barWidth() int {
	if m.width <= 0 {
		return 40
	}
	return max(10, min(m.width-16, 80))
}

// renderMeter draws a dBFS bar between meterFloor and 0
func renderMeter(dbfs float64, width int) string {
	filled := meterFill(dbfs, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if dbfs > -3 {
		return hotStyle.Render(bar)
	}
	return barStyle.Render(bar)
}

func meterFill(dbfs float64, width int) int {
	if dbfs <= meterFloor {
		return 0
	}
	if dbfs >= 0 {
		return width
	}
	return int(float64(width) * (dbfs - meterFloor) / -meterFloor)
}
