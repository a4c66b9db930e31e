package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/linuxmatters/jivescope/internal/audio"
	"github.com/linuxmatters/jivescope/internal/cli"
	"github.com/linuxmatters/jivescope/internal/config"
	"github.com/linuxmatters/jivescope/internal/metrics"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// Globals apply to every command. Flags override the config file.
type Globals struct {
	Config      string `help:"YAML settings file" type:"existingfile" placeholder:"PATH"`
	FFTSize     int    `help:"Analyser FFT size, a power of two from 512 up" placeholder:"N"`
	LogLevel    string `help:"Log level: debug, info, warn or error" placeholder:"LEVEL"`
	LogFormat   string `help:"Log format: text or json" placeholder:"FORMAT"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address" placeholder:"ADDR"`
}

var CLI struct {
	Globals `embed:""`

	Play    playCmd    `cmd:"" help:"Play an audio file and watch its bass, mid and high levels"`
	Mic     micCmd     `cmd:"" help:"Watch the levels of the default microphone"`
	Bands   bandsCmd   `cmd:"" help:"Print the band levels of an audio file over time"`
	Version versionCmd `cmd:"" help:"Show version information"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("jivescope"),
		kong.Description(cli.Tagline),
		kong.Vars{
			"version":   version,
			"bands_fps": fmt.Sprint(config.BandsFPS),
		},
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, CLI.Globals)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}

	shutdown, err := a.startMetrics()
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}

	err = kctx.Run(a)
	shutdown()
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// app carries the resolved settings and shared services into each command
type app struct {
	ctx      context.Context
	settings *config.Settings
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(ctx context.Context, g Globals) (*app, error) {
	settings, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}

	if g.FFTSize != 0 {
		settings.Analysis.FFTSize = g.FFTSize
	}
	if g.LogLevel != "" {
		settings.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		settings.Logging.Format = g.LogFormat
	}
	if g.MetricsAddr != "" {
		settings.Metrics.Enabled = true
		settings.Metrics.Address = g.MetricsAddr
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		ctx:      ctx,
		settings: settings,
		logger:   newLogger(settings.Logging),
		registry: registry,
		metrics:  metrics.NewMetrics(registry),
	}, nil
}

// newLogger writes to stderr so log lines stay out of piped command output
func newLogger(s config.LoggingSettings) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(s.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(s.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// startMetrics serves /metrics when enabled and returns its shutdown func
func (a *app) startMetrics() (func(), error) {
	if !a.settings.Metrics.Enabled {
		return func() {}, nil
	}

	srv := metrics.NewServer(a.settings.Metrics.Address, a.registry, a.logger)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	a.logger.Info("metrics server listening", slog.String("addr", srv.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
	}, nil
}

func (a *app) analyserOptions() audio.AnalyserOptions {
	s := a.settings.Analysis
	return audio.AnalyserOptions{
		FFTSize:     s.FFTSize,
		Smoothing:   s.Smoothing,
		MinDecibels: s.MinDecibels,
		MaxDecibels: s.MaxDecibels,
	}
}

func (a *app) engineOptions() audio.Options {
	opts := audio.DefaultOptions()
	opts.FFTSize = a.settings.Analysis.FFTSize
	opts.Smoothing = a.settings.Analysis.Smoothing
	opts.MinDecibels = a.settings.Analysis.MinDecibels
	opts.MaxDecibels = a.settings.Analysis.MaxDecibels
	opts.SampleRate = a.settings.Playback.SampleRate
	opts.Quantum = a.settings.Playback.Quantum
	opts.Loop = a.settings.Playback.Loop
	opts.Logger = a.logger
	opts.Metrics = a.metrics
	return opts
}
