// ABOUTME: Capture probe orchestration
// ABOUTME: Selects a device, runs the capture session and drives the console or TUI front-end
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pcmprobe/pcmprobe/internal/config"
	"github.com/pcmprobe/pcmprobe/internal/console"
	"github.com/pcmprobe/pcmprobe/internal/discovery"
	"github.com/pcmprobe/pcmprobe/internal/feed"
	"github.com/pcmprobe/pcmprobe/internal/ui"
	"github.com/pcmprobe/pcmprobe/internal/version"
	"github.com/pcmprobe/pcmprobe/pkg/audio"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
	"github.com/pcmprobe/pcmprobe/pkg/audio/output"
	"github.com/pcmprobe/pcmprobe/pkg/capture"
	"github.com/pcmprobe/pcmprobe/pkg/meter"
)

const (
	// Prompt marks a selection option that should be asked interactively
	Prompt = -1

	volumeStep = 10
)

var (
	// ErrQuit is returned by Command for stop and quit
	ErrQuit = errors.New("quit requested")
	// ErrUnknownCommand is returned by Command for unrecognised input
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNoDevices is returned when enumeration finds nothing usable
	ErrNoDevices = errors.New("no capture devices available")
	// ErrReopenFailed wraps a failed reopen; the probe cannot continue after it
	ErrReopenFailed = errors.New("reopen failed")
)

// Options configures a probe run
type Options struct {
	Config config.Config

	// Selection; Prompt asks on the console
	DeviceIndex  int
	FormatIndex  int
	SampleRate   float64 // <= 0 asks when the format has no rate
	BufferFrames int

	TUI bool

	In  io.Reader
	Out io.Writer

	// Output overrides the monitor playback device
	Output output.Output
}

// Probe owns the capture session and everything attached to it
type Probe struct {
	opts     Options
	cfg      config.Config
	registry *input.Registry
	console  *console.Console
	logger   *slog.Logger

	device       input.Device
	format       audio.SampleFormat
	bufferFrames int

	session  *capture.Session
	rms      *meter.RMS
	monitor  *meter.Monitor
	feed     *feed.Server
	mdns     *discovery.Manager
	tui      *ui.TUI
	controls *ui.Controls
}

// New creates a probe over the devices of registry
func New(registry *input.Registry, opts Options) *Probe {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Probe{
		opts:     opts,
		cfg:      opts.Config,
		registry: registry,
		console:  console.New(opts.In, opts.Out),
		logger:   slog.Default().With("component", "probe"),
	}
}

// Session returns the running session, nil before Run sets it up
func (p *Probe) Session() *capture.Session {
	return p.session
}

// Run selects a device, captures until quit and returns the process exit code
func (p *Probe) Run(ctx context.Context) int {
	dev, format, frames, err := p.selectDevice()
	if err != nil {
		if errors.Is(err, ErrNoDevices) {
			p.console.Println("No audio inputs found. Aborting...")
		} else {
			p.console.Printf("Device selection failed: %v\n", err)
		}
		return 1
	}

	if !p.opts.TUI {
		if err := p.console.WaitEnter(); err != nil {
			p.console.Println("Input closed before capture started.")
			return 1
		}
	}

	if err := p.setup(dev, format, frames); err != nil {
		p.console.Printf("Can't open the selected input device: %v\n", err)
		p.teardown()
		return 1
	}
	defer p.teardown()

	if p.opts.TUI {
		return p.runTUI(ctx)
	}
	return p.runConsole(ctx)
}

// selectDevice resolves device, format, rate and buffer size from options or prompts
func (p *Probe) selectDevice() (input.Device, audio.SampleFormat, int, error) {
	entries := p.registry.Enumerate()
	for _, e := range entries {
		if e.Err != nil {
			p.console.Printf("Skipping %s: %v\n", e.Device.Info(), e.Err)
		}
	}
	usable := input.Usable(entries)
	if len(usable) == 0 {
		return nil, audio.SampleFormat{}, 0, ErrNoDevices
	}

	p.console.ListDevices(usable)
	devIdx, err := p.choose(p.opts.DeviceIndex, len(usable), "Enter the index of the input device to use...")
	if err != nil {
		return nil, audio.SampleFormat{}, 0, err
	}
	entry := usable[devIdx]

	p.console.ListFormats(entry.Formats)
	fmtIdx, err := p.choose(p.opts.FormatIndex, len(entry.Formats), "Enter the index of the audio format to use...")
	if err != nil {
		return nil, audio.SampleFormat{}, 0, err
	}
	format := entry.Formats[fmtIdx]

	if !format.HasRate() {
		rate := p.opts.SampleRate
		if rate <= 0 {
			if rate, err = p.console.SampleRate(p.cfg.SampleRate); err != nil {
				return nil, audio.SampleFormat{}, 0, err
			}
		}
		format = format.WithSampleRate(rate)
	}

	frames := p.opts.BufferFrames
	if frames <= 0 {
		if frames, err = p.console.BufferFrames(p.cfg.BufferSize); err != nil {
			return nil, audio.SampleFormat{}, 0, err
		}
	}

	return entry.Device, format, frames, nil
}

// choose returns preset when it is in range, otherwise asks
func (p *Probe) choose(preset, n int, prompt string) (int, error) {
	if preset == Prompt {
		return p.console.Index(prompt, n)
	}
	if preset < 0 || preset >= n {
		p.logger.Warn("index out of range, defaulting to zero", "index", preset, "count", n)
		return console.DefaultIndex, nil
	}
	return preset, nil
}

// setup opens the session and attaches the meter, monitor and feed
func (p *Probe) setup(dev input.Device, format audio.SampleFormat, frames int) error {
	p.device, p.format, p.bufferFrames = dev, format, frames
	name := dev.Info().Name

	session, err := capture.OpenSession(dev, format, frames)
	if err != nil {
		return err
	}
	p.session = session

	if m, ok := session.LastBufferMismatch(); ok {
		p.console.Printf("Requested %d buffer bytes, device granted %d.\n", m.RequestedBytes, m.ActualBytes)
	}
	if err := session.Start(); err != nil {
		return err
	}

	p.rms, err = meter.NewRMS(session.Format(), p.cfg.PacketFrames, p.report)
	if err != nil {
		return err
	}
	fanout := meter.NewFanout(p.rms)

	if p.cfg.Monitor {
		out := p.opts.Output
		if out == nil {
			out = output.NewOto()
		}
		if p.monitor, err = meter.NewMonitor(out, session.Format()); err != nil {
			p.logger.Warn("monitor unavailable, continuing without playback", "err", err)
			p.monitor = nil
		} else {
			p.monitor.SetVolume(p.cfg.MonitorVolume)
			fanout.Add(p.monitor)
		}
	}

	if p.cfg.Feed.Enabled {
		p.startFeed(name)
	}

	if p.opts.TUI {
		p.controls = ui.NewControls()
		p.tui = ui.New(p.controls, name, session.Format().String())
	}

	return session.Capture(p.cfg.PacketFrames, fanout)
}

func (p *Probe) startFeed(device string) {
	srv := feed.New(feed.Config{Port: p.cfg.Feed.Port, Device: device})
	if err := srv.Start(); err != nil {
		p.logger.Warn("metric feed unavailable", "err", err)
		return
	}
	p.feed = srv

	if !p.cfg.Feed.MDNS {
		return
	}
	host, _ := os.Hostname()
	p.mdns = discovery.NewManager(discovery.Config{
		ServiceName: fmt.Sprintf("%s on %s", version.Product, host),
		Port:        srv.Port(),
		Info:        []string{"device=" + device, "version=" + version.Version},
	})
	if err := p.mdns.Advertise(); err != nil {
		p.logger.Warn("mDNS advertisement failed", "err", err)
	}
}

// report runs on the capture goroutine for every reading
func (p *Probe) report(r meter.Reading) {
	if p.tui != nil {
		p.tui.Reading(r)
	} else {
		p.console.PrintReading(r)
	}
	if p.feed != nil {
		p.feed.Publish(r)
	}
}

// Command applies one console or TUI command
func (p *Probe) Command(cmd string) error {
	switch cmd {
	case "":
		return nil
	case "flush":
		p.say("Flushing audio input...")
		return p.session.Flush()
	case "restart":
		p.say("Restarting audio input...")
		if err := p.session.Stop(); err != nil {
			return err
		}
		return p.session.Start()
	case "reopen":
		p.say("Reopening audio input...")
		if err := p.session.Reopen(p.format, p.bufferFrames); err != nil {
			return fmt.Errorf("%w: %w", ErrReopenFailed, err)
		}
		return nil
	case "stop", "quit":
		p.say("Stopping...")
		return ErrQuit
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// say prints a progress line in console mode only
func (p *Probe) say(line string) {
	if p.tui == nil {
		p.console.Println(line)
	}
}

// runConsole pauses output on Enter and reads one command per pause
func (p *Probe) runConsole(ctx context.Context) int {
	lines := p.console.Lines()
	defer p.console.Close()
	failures := p.session.Failures()
	paused := false

	for {
		select {
		case <-ctx.Done():
			return 0

		case err := <-failures:
			p.console.Printf("Capture failed: %v\n", err)
			return 1

		case line, ok := <-lines:
			if !ok {
				return 0
			}
			if !paused {
				paused = true
				p.rms.SetMuted(true)
				p.console.Println(`Output paused. Enter "flush", "restart", "reopen", "stop", "quit" or nothing...`)
				continue
			}

			err := p.Command(line)
			switch {
			case errors.Is(err, ErrQuit):
				return 0
			case errors.Is(err, ErrReopenFailed):
				p.console.Printf("Couldn't reopen the input: %v. Stopping...\n", err)
				return 1
			case err != nil:
				p.console.Printf("%v\n", err)
			}

			paused = false
			p.rms.SetMuted(false)
			p.console.Println("Output unpaused...")
		}
	}
}

// runTUI drives the bubbletea front-end until quit or failure
func (p *Probe) runTUI(ctx context.Context) int {
	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- p.tui.Run()
	}()

	stop := func(code int) int {
		p.tui.Stop()
		if err := <-tuiDone; err != nil {
			p.logger.Warn("TUI exited with error", "err", err)
		}
		return code
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	p.pushStatus(nil)

	failures := p.session.Failures()
	for {
		select {
		case <-ctx.Done():
			return stop(0)

		case err := <-tuiDone:
			if err != nil {
				p.logger.Error("TUI failed", "err", err)
				return 1
			}
			return 0

		case <-p.controls.Quit:
			return stop(0)

		case cmd := <-p.controls.Commands:
			err := p.handleControl(cmd)
			if errors.Is(err, ErrReopenFailed) {
				code := stop(1)
				p.console.Printf("Couldn't reopen the input: %v\n", err)
				return code
			}
			p.pushStatus(err)

		case err := <-failures:
			code := stop(1)
			p.console.Printf("Capture failed: %v\n", err)
			return code

		case <-ticker.C:
			p.pushStatus(nil)
		}
	}
}

// handleControl maps a TUI key command onto the meter or the session
func (p *Probe) handleControl(cmd ui.Command) error {
	switch cmd {
	case ui.CommandPause:
		p.rms.SetMuted(true)
		return nil
	case ui.CommandResume:
		p.rms.SetMuted(false)
		return nil
	case ui.CommandVolumeUp, ui.CommandVolumeDown, ui.CommandMute:
		p.adjustMonitor(cmd)
		return nil
	default:
		return p.Command(string(cmd))
	}
}

// adjustMonitor changes monitor gain in volumeStep increments
func (p *Probe) adjustMonitor(cmd ui.Command) {
	if p.monitor == nil {
		return
	}
	volume, _, ok := p.monitor.Volume()
	if !ok {
		return
	}
	switch cmd {
	case ui.CommandVolumeUp:
		p.monitor.SetVolume(volume + volumeStep)
	case ui.CommandVolumeDown:
		p.monitor.SetVolume(volume - volumeStep)
	case ui.CommandMute:
		p.monitor.ToggleMute()
	}
	volume, muted, _ := p.monitor.Volume()
	p.logger.Debug("monitor gain changed", "volume", volume, "muted", muted)
}

func (p *Probe) pushStatus(err error) {
	if p.tui == nil {
		return
	}
	status := ui.StatusMsg{
		State:   p.session.State().String(),
		Packets: p.session.Packets(),
		Err:     err,
	}
	if p.monitor != nil {
		status.Dropped = p.monitor.Dropped()
		if volume, muted, ok := p.monitor.Volume(); ok {
			status.Volume, status.Muted = &volume, &muted
		}
	}
	p.tui.Status(status)
}

// teardown releases the session first so no packet reaches a closed consumer
func (p *Probe) teardown() {
	if p.session != nil {
		p.session.Release()
	}
	if p.monitor != nil {
		if err := p.monitor.Close(); err != nil {
			p.logger.Warn("monitor close failed", "err", err)
		}
	}
	if p.mdns != nil {
		p.mdns.Stop()
	}
	if p.feed != nil {
		if err := p.feed.Close(); err != nil {
			p.logger.Warn("feed close failed", "err", err)
		}
	}
}
