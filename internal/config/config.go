// ABOUTME: Configuration loading for pcmprobe
// ABOUTME: Reads an optional config file and PCMPROBE_ environment overrides through viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "PCMPROBE"

// Tone configures the synthetic sine backend
type Tone struct {
	Frequency float64
	Period    time.Duration
}

// Feed configures the websocket metric feed
type Feed struct {
	Enabled bool
	Port    int
	MDNS    bool
}

// Config is the resolved probe configuration
type Config struct {
	LogLevel      string
	LogFile       string
	PacketFrames  int
	BufferSize    int
	SampleRate    float64
	FilesDir      string
	Monitor       bool
	// MonitorVolume is the playback gain in percent
	MonitorVolume int
	Tone          Tone
	Feed          Feed
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("packetframes", 1024)
	v.SetDefault("buffersize", 4096)
	v.SetDefault("samplerate", 44100.0)
	v.SetDefault("filesdir", "")
	v.SetDefault("monitor", false)
	v.SetDefault("monitorvolume", 100)
	v.SetDefault("tone.frequency", 440.0)
	v.SetDefault("tone.period", 20*time.Millisecond)
	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.port", 8929)
	v.SetDefault("feed.mdns", true)
}

// Defaults returns the configuration used when nothing is set
func Defaults() Config {
	v := viper.New()
	setViperDefaults(v)
	return fromViper(v)
}

// Load reads configPath if it exists and applies environment overrides.
// An empty or missing path is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				slog.Info("no config file found", "configFilePath", configPath)
			} else {
				return Config{}, fmt.Errorf("error during config read: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		LogLevel:      v.GetString("loglevel"),
		LogFile:       v.GetString("logfile"),
		PacketFrames:  v.GetInt("packetframes"),
		BufferSize:    v.GetInt("buffersize"),
		SampleRate:    v.GetFloat64("samplerate"),
		FilesDir:      v.GetString("filesdir"),
		Monitor:       v.GetBool("monitor"),
		MonitorVolume: v.GetInt("monitorvolume"),
		Tone: Tone{
			Frequency: v.GetFloat64("tone.frequency"),
			Period:    v.GetDuration("tone.period"),
		},
		Feed: Feed{
			Enabled: v.GetBool("feed.enabled"),
			Port:    v.GetInt("feed.port"),
			MDNS:    v.GetBool("feed.mdns"),
		},
	}
}

// Validate rejects values the probe cannot run with
func (c Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PacketFrames < 1 {
		return fmt.Errorf("packetframes must be positive, got %d", c.PacketFrames)
	}
	if c.MonitorVolume < 0 || c.MonitorVolume > 100 {
		return fmt.Errorf("monitorvolume must be 0-100, got %d", c.MonitorVolume)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("buffersize must be positive, got %d", c.BufferSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("samplerate must be positive, got %v", c.SampleRate)
	}
	if c.Tone.Period <= 0 {
		return fmt.Errorf("tone.period must be positive, got %v", c.Tone.Period)
	}
	if c.Feed.Port < 0 || c.Feed.Port > 65535 {
		return fmt.Errorf("feed.port out of range: %d", c.Feed.Port)
	}
	return nil
}
