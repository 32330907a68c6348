// ABOUTME: Entry point for the pcmprobe capture diagnostic
// ABOUTME: Parses CLI flags, builds the input registry and runs the probe
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pcmprobe/pcmprobe/internal/app"
	"github.com/pcmprobe/pcmprobe/internal/config"
	"github.com/pcmprobe/pcmprobe/internal/version"
	"github.com/pcmprobe/pcmprobe/pkg/audio/input"
)

var (
	configPath  = flag.String("config", "", "Config file path (yaml, toml or json)")
	useTUI      = flag.Bool("tui", false, "Show the meter in a terminal UI instead of printing lines")
	deviceIndex = flag.Int("device", app.Prompt, "Input device index (default: ask)")
	formatIndex = flag.Int("format", app.Prompt, "Format index for the selected device (default: ask)")
	sampleRate  = flag.Float64("rate", -1, "Sample rate for formats without one (default: ask)")
	bufferSize  = flag.Int("buffer", -1, "Capture buffer size in frames (default: ask)")
	monitor     = flag.Bool("monitor", false, "Play captured audio on the default output")
	volume      = flag.Int("volume", 100, "Monitor volume (0-100)")
	feed        = flag.Bool("feed", false, "Publish readings over WebSocket")
	filesDir    = flag.String("files", "", "Directory of audio files to expose as inputs")
	logLevel    = flag.String("loglevel", "", "Log level: debug, info, warn, error or none")
	logFile     = flag.String("logfile", "", "Log file path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs only go to a file
	if *useTUI && cfg.LogFile == "" {
		cfg.LogFile = "pcmprobe.log"
	}
	f, err := config.ConfigureDefaultLogger(cfg.LogLevel, cfg.LogFile, slog.HandlerOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg, f))
}

func run(cfg config.Config, logOut *os.File) int {
	if logOut != nil {
		defer logOut.Close()
	}

	slog.Info("starting", "product", version.Product, "version", version.Version)

	malgoBackend := input.NewMalgoBackend()
	defer func() {
		if err := malgoBackend.Close(); err != nil {
			slog.Warn("closing capture context", "err", err)
		}
	}()

	registry := input.NewRegistry(malgoBackend, input.NewToneBackend(cfg.Tone.Frequency, cfg.Tone.Period))
	if cfg.FilesDir != "" {
		registry.Register(input.NewFileBackend(cfg.FilesDir, cfg.Tone.Period))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probe := app.New(registry, app.Options{
		Config:       cfg,
		DeviceIndex:  *deviceIndex,
		FormatIndex:  *formatIndex,
		SampleRate:   *sampleRate,
		BufferFrames: *bufferSize,
		TUI:          *useTUI,
		In:           os.Stdin,
		Out:          os.Stdout,
	})

	code := probe.Run(ctx)
	slog.Info("stopped", "exit", code)
	return code
}

// applyFlags lets explicitly set flags win over file and environment values
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "monitor":
			cfg.Monitor = *monitor
		case "volume":
			cfg.MonitorVolume = *volume
		case "feed":
			cfg.Feed.Enabled = *feed
		case "files":
			cfg.FilesDir = *filesDir
		case "loglevel":
			cfg.LogLevel = *logLevel
		case "logfile":
			cfg.LogFile = *logFile
		}
	})
}
