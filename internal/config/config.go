package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Audio settings
const (
	SampleRate    = 44100
	FFTSize       = 512 // Transform window; bin count is FFTSize/2
	RenderQuantum = 128 // Frames pulled from the active source per render tick
)

// Analyser settings (browser analyser node defaults)
const (
	Smoothing   = 0.8
	MinDecibels = -100.0
	MaxDecibels = -30.0
)

// Frequency band boundaries, as indices into the byte measurement buffer.
// They are tied to FFTSize = 512 at 44.1 kHz (~86 Hz per bin) and are not
// derived from the sample rate:
//
//	bass [0, 10)    ~0-860 Hz
//	mid  [10, 100)  ~860 Hz-8.6 kHz
//	high [100, 200) ~8.6-17.2 kHz
const (
	BassStart = 0
	BassEnd   = 10
	MidEnd    = 100
	HighEnd   = 200
)

// UI settings
const (
	MeterFPS   = 30
	MeterWidth = 40
	BandsFPS   = 30 // Default frame rate for the offline band table
)

// Band chart image settings
const (
	ChartWidth    = 1280
	ChartHeight   = 540
	ChartMargin   = 24
	ChartLaneGap  = 12
	ChartFontSize = 18.0
)

// Settings is the optional YAML configuration for the jivescope CLI.
// Zero values are filled from the constants above by Default.
type Settings struct {
	Analysis AnalysisSettings `yaml:"analysis"`
	Playback PlaybackSettings `yaml:"playback"`
	Logging  LoggingSettings  `yaml:"logging"`
	Metrics  MetricsSettings  `yaml:"metrics"`
}

// AnalysisSettings configures the analyser node
type AnalysisSettings struct {
	FFTSize     int     `yaml:"fft_size"`
	Smoothing   float64 `yaml:"smoothing"`
	MinDecibels float64 `yaml:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels"`
}

// PlaybackSettings configures the render graph
type PlaybackSettings struct {
	SampleRate int  `yaml:"sample_rate"`
	Quantum    int  `yaml:"quantum"`
	Loop       bool `yaml:"loop"`
}

// LoggingSettings configures slog output
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns settings populated with the compiled-in defaults.
func Default() *Settings {
	return &Settings{
		Analysis: AnalysisSettings{
			FFTSize:     FFTSize,
			Smoothing:   Smoothing,
			MinDecibels: MinDecibels,
			MaxDecibels: MaxDecibels,
		},
		Playback: PlaybackSettings{
			SampleRate: SampleRate,
			Quantum:    RenderQuantum,
		},
		Logging: LoggingSettings{
			Level:  "warn",
			Format: "text",
		},
		Metrics: MetricsSettings{
			Address: ":9464",
		},
	}
}

// Load reads a YAML settings file on top of Default. Keys missing from the
// file keep their default values.
func Load(path string) (*Settings, error) {
	settings := Default()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return settings, nil
}

// Validate checks every section
func (s *Settings) Validate() error {
	if err := s.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}
	if err := s.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	if err := s.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := s.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}

// Validate checks the analyser parameters
func (a AnalysisSettings) Validate() error {
	if a.FFTSize < 32 || a.FFTSize > 32768 || a.FFTSize&(a.FFTSize-1) != 0 {
		return fmt.Errorf("fft_size must be a power of two between 32 and 32768, got %d", a.FFTSize)
	}
	if a.FFTSize/2 < HighEnd {
		return fmt.Errorf("fft_size %d yields %d bins, need at least %d for the high band", a.FFTSize, a.FFTSize/2, HighEnd)
	}
	if a.Smoothing < 0 || a.Smoothing > 1 {
		return fmt.Errorf("smoothing must be within [0, 1], got %g", a.Smoothing)
	}
	if a.MinDecibels >= a.MaxDecibels {
		return fmt.Errorf("min_decibels (%g) must be below max_decibels (%g)", a.MinDecibels, a.MaxDecibels)
	}
	return nil
}

// Validate checks the render graph parameters
func (p PlaybackSettings) Validate() error {
	if p.SampleRate < 8000 || p.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be within [8000, 192000], got %d", p.SampleRate)
	}
	if p.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %d", p.Quantum)
	}
	return nil
}

// Validate checks the logging parameters
func (l LoggingSettings) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	return nil
}

// Validate checks the metrics parameters
func (m MetricsSettings) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address is required when metrics are enabled")
	}
	return nil
}

// QuantumDuration is the wall-clock length of one render quantum.
func (p PlaybackSettings) QuantumDuration() time.Duration {
	return time.Duration(float64(p.Quantum) / float64(p.SampleRate) * float64(time.Second))
}
