package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StoicSim/brainwave/internal/dsp"
	"github.com/StoicSim/brainwave/internal/headset"
)

const (
	SourceReplay SourceType = "replay"
	SourceTCP    SourceType = "tcp"
)

// SourceType selects how raw headset bytes are obtained.
type SourceType string

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings"`
	Device   DeviceConfig   `yaml:"device"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() (slog.Level, error) {
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("parsing log level: %w", err)
	}
	return level, nil
}

// DeviceConfig represents a single headset configuration
type DeviceConfig struct {
	ID        string     `yaml:"id"`
	Source    SourceType `yaml:"source"`
	Path      string     `yaml:"path"`    // replay: recorded dump file
	PaceMs    int        `yaml:"paceMs"`  // replay: delay between reads
	Address   string     `yaml:"address"` // tcp: forwarder host:port
	ChunkSize int        `yaml:"chunkSize"`
}

// AnalysisConfig represents spectral analysis settings
type AnalysisConfig struct {
	SampleRate    float64 `yaml:"sampleRate"`
	WindowSize    int     `yaml:"windowSize"`
	NotchHz       float64 `yaml:"notchHz"`
	BufferSeconds int     `yaml:"bufferSeconds"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// ServerConfig represents the live telemetry server settings
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	config.applyDefaults()
	if err = config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Device.ChunkSize == 0 {
		c.Device.ChunkSize = headset.DefaultChunkSize
	}
	if c.Analysis.SampleRate == 0 {
		c.Analysis.SampleRate = dsp.DefaultSampleRate
	}
	if c.Analysis.WindowSize == 0 {
		c.Analysis.WindowSize = dsp.DefaultWindowSize
	}
	if c.Analysis.NotchHz == 0 {
		c.Analysis.NotchHz = dsp.DefaultNotchFrequency
	}
	if c.Analysis.BufferSeconds == 0 {
		c.Analysis.BufferSeconds = defaultBufferSeconds
	}
	if c.Storage.MaxBatchSize == 0 {
		c.Storage.MaxBatchSize = defaultMaxBatchSize
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8089"
	}
}

func (c *Config) validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device: id is required")
	}

	switch c.Device.Source {
	case SourceReplay:
		if c.Device.Path == "" {
			return fmt.Errorf("device: replay source requires a path")
		}
	case SourceTCP:
		if c.Device.Address == "" {
			return fmt.Errorf("device: tcp source requires an address")
		}
	default:
		return fmt.Errorf("device: unknown source '%s'", c.Device.Source)
	}

	if c.Analysis.SampleRate <= 0 {
		return fmt.Errorf("analysis: sampleRate must be positive")
	}
	if c.Analysis.BufferSeconds < 1 {
		return fmt.Errorf("analysis: bufferSeconds must be at least 1")
	}
	return nil
}

// Pace returns the replay pacing delay.
func (d DeviceConfig) Pace() time.Duration {
	return time.Duration(d.PaceMs) * time.Millisecond
}
