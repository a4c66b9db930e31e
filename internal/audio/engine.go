package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxmatters/jivescope/internal/config"
)

// State summarises what the engine is doing
type State int

const (
	StateIdle      State = iota // No source connected, no buffer loaded
	StateCapturing              // Microphone feeds the analyser
	StateLoaded                 // A buffer is loaded but not playing
	StatePlaying                // The loaded buffer feeds the analyser and speaker
	StatePaused                 // Playback paused at a retained offset
)

func (s State) String() string {
	switch s {
	case StateCapturing:
		return "capturing"
	case StateLoaded:
		return "loaded"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// Metrics receives engine events. internal/metrics provides the Prometheus
// implementation.
type Metrics interface {
	SourceChanged(kind SourceKind)
	FileDecoded(format string, duration time.Duration)
	DecodeFailed(format string)
	CaptureFailed(kind CaptureErrorKind)
	BandsMeasured(bands FrequencyBands)
}

type noopMetrics struct{}

func (noopMetrics) SourceChanged(SourceKind) {}
func (noopMetrics) FileDecoded(string, time.Duration) {}
func (noopMetrics) DecodeFailed(string) {}
func (noopMetrics) CaptureFailed(CaptureErrorKind) {}
func (noopMetrics) BandsMeasured(FrequencyBands) {}

// Options configures an Engine. Start from DefaultOptions; zero sizes and a
// zero decibel range are replaced by the defaults.
type Options struct {
	FFTSize     int
	SampleRate  int
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
	Quantum     int

	// Loop restarts file playback from the beginning on natural end
	Loop bool
	// OnEnded runs after file playback ends naturally without looping, or the
	// microphone stream ends. Called from the render goroutine.
	OnEnded func()

	Decoder     Decoder
	Capture     CaptureDevice // nil disables UseMicrophone
	Destination Destination   // nil discards audible output
	Clock       Clock
	Logger      *slog.Logger
	Metrics     Metrics
}

// DefaultOptions returns the analysis defaults from internal/config with the
// built-in decoder and the system clock
func DefaultOptions() Options {
	return Options{
		FFTSize:     config.FFTSize,
		SampleRate:  config.SampleRate,
		Smoothing:   config.Smoothing,
		MinDecibels: config.MinDecibels,
		MaxDecibels: config.MaxDecibels,
		Quantum:     config.RenderQuantum,
		Decoder:     FormatDecoder{},
		Clock:       SystemClock,
	}
}

func (o *Options) applyDefaults() {
	if o.FFTSize == 0 {
		o.FFTSize = config.FFTSize
	}
	if o.SampleRate == 0 {
		o.SampleRate = config.SampleRate
	}
	if o.Quantum == 0 {
		o.Quantum = config.RenderQuantum
	}
	if o.MinDecibels == 0 && o.MaxDecibels == 0 {
		o.MinDecibels = config.MinDecibels
		o.MaxDecibels = config.MaxDecibels
	}
	if o.Decoder == nil {
		o.Decoder = FormatDecoder{}
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
}

func (o Options) analyserOptions() AnalyserOptions {
	return AnalyserOptions{
		FFTSize:     o.FFTSize,
		Smoothing:   o.Smoothing,
		MinDecibels: o.MinDecibels,
		MaxDecibels: o.MaxDecibels,
	}
}

// Engine owns one AnalysisContext and switches the analyser between a live
// microphone and a decoded file. Every method is safe for concurrent use.
//
// Lock order is Engine.mu before AnalysisContext.mu. The render goroutine
// reports ended sources without holding the context lock.
type Engine struct {
	mu   sync.Mutex
	opts Options

	actx   *AnalysisContext
	source sourceNode
	buffer *PCMBuffer

	playing      bool
	paused       bool
	startTime    time.Time
	pausedOffset time.Duration

	// captureGen invalidates pending microphone acquisitions. loadGen numbers
	// load requests; installedGen is the request whose buffer is loaded, so
	// only a successful newer load supersedes an older one.
	captureGen   uint64
	loadGen      uint64
	installedGen uint64

	closed bool
	logger *slog.Logger
}

// NewEngine validates opts and returns an engine with no context yet
func NewEngine(opts Options) (*Engine, error) {
	opts.applyDefaults()

	if err := opts.analyserOptions().Validate(); err != nil {
		return nil, fmt.Errorf("analyser options: %w", err)
	}
	if opts.FFTSize/2 < config.HighEnd {
		return nil, fmt.Errorf("fft size %d yields fewer than %d bins", opts.FFTSize, config.HighEnd)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate)
	}
	if opts.Quantum <= 0 {
		return nil, fmt.Errorf("quantum must be positive, got %d", opts.Quantum)
	}

	return &Engine{opts: opts, logger: opts.Logger}, nil
}

// InitContext creates and starts the analysis graph. Later calls are no-ops.
func (e *Engine) InitContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initContextLocked()
}

func (e *Engine) initContextLocked() {
	if e.actx != nil || e.closed {
		return
	}

	// Options were validated in NewEngine
	actx, err := NewAnalysisContext(ContextOptions{
		SampleRate:  e.opts.SampleRate,
		Quantum:     e.opts.Quantum,
		Analyser:    e.opts.analyserOptions(),
		Destination: e.opts.Destination,
		Logger:      e.logger,
	})
	if err != nil {
		e.logger.Error("analysis context", slog.Any("error", err))
		return
	}
	actx.onEnded = e.handleEnded
	actx.Start()
	e.actx = actx

	e.logger.Debug("analysis context started",
		slog.Int("sample_rate", e.opts.SampleRate),
		slog.Int("fft_size", e.opts.FFTSize),
		slog.Int("bins", actx.FrequencyBinCount()))
}

// OutputStream returns the stream carrying everything the analyser sees, or
// nil before InitContext
func (e *Engine) OutputStream() *StreamDestination {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.actx == nil {
		return nil
	}
	return e.actx.Stream()
}

// UseMicrophone stops the current source and switches to live capture. The
// microphone never reaches the audible destination. If Stop or another
// source switch happens while the device is being opened, the acquired
// stream is closed and ErrSuperseded is returned.
func (e *Engine) UseMicrophone(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.stopLocked()
	e.initContextLocked()
	gen := e.captureGen
	capture := e.opts.Capture
	e.mu.Unlock()

	if capture == nil {
		return e.captureFailed(ErrNoCaptureDevice)
	}

	stream, err := capture.Open(ctx)
	if err != nil {
		return e.captureFailed(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.captureGen {
		_ = stream.Close()
		e.logger.Debug("microphone acquisition superseded")
		return ErrSuperseded
	}

	if rate := stream.SampleRate(); rate != e.opts.SampleRate {
		e.logger.Warn("microphone rate differs from context rate",
			slog.Int("device_rate", rate),
			slog.Int("context_rate", e.opts.SampleRate))
	}

	src := newMicSource(stream)
	e.actx.connect(src, false)
	e.source = src
	e.playing = true
	e.paused = false

	e.logger.Info("switched source", slog.String("mode", SourceMicrophone.String()))
	e.opts.Metrics.SourceChanged(SourceMicrophone)
	return nil
}

func (e *Engine) captureFailed(err error) error {
	cerr := asCaptureError(err)
	e.logger.Error("microphone unavailable",
		slog.String("kind", cerr.Kind.String()),
		slog.Any("error", cerr.Err))
	e.opts.Metrics.CaptureFailed(cerr.Kind)
	return cerr
}

// LoadFile decodes data and replaces the loaded buffer. It does not start
// playback, and a file that is currently playing keeps playing. The playback
// offset is reset unless a file is playing. When loads overlap, the most
// recently requested successful one wins. An older decode finishing after a
// newer buffer was installed returns ErrSuperseded; a newer load that fails
// does not cancel an older one.
func (e *Engine) LoadFile(ctx context.Context, data []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	e.initContextLocked()
	e.loadGen++
	gen := e.loadGen
	decoder := e.opts.Decoder
	e.mu.Unlock()

	buf, err := decoder.Decode(ctx, data)
	if err != nil {
		derr := asDecodeError(err)
		e.logger.Error("decode failed",
			slog.String("format", derr.Format),
			slog.Any("error", derr.Err))
		e.opts.Metrics.DecodeFailed(derr.Format)
		return derr
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if gen < e.installedGen {
		return ErrSuperseded
	}

	e.buffer = buf
	e.installedGen = gen
	if !e.filePlayingLocked() {
		e.pausedOffset = 0
		e.paused = false
	}

	e.logger.Info("file loaded",
		slog.String("format", buf.Format()),
		slog.Duration("duration", buf.Duration()),
		slog.Int("sample_rate", buf.SampleRate()),
		slog.Int("channels", buf.NumChannels()))
	e.opts.Metrics.FileDecoded(buf.Format(), buf.Duration())
	return nil
}

// PlayFile starts the loaded buffer from the paused offset, routed to both
// the analyser and the audible destination. Without a buffer it does nothing.
func (e *Engine) PlayFile() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.buffer == nil {
		return
	}
	e.stopLocked()
	e.initContextLocked()
	e.playLocked()

	e.logger.Info("switched source",
		slog.String("mode", SourceFile.String()),
		slog.Duration("offset", e.pausedOffset))
	e.opts.Metrics.SourceChanged(SourceFile)
}

func (e *Engine) playLocked() {
	if e.pausedOffset >= e.buffer.Duration() {
		e.pausedOffset = 0
	}
	src := newBufferSource(e.buffer, e.actx.SampleRate(), e.pausedOffset)
	e.actx.connect(src, true)
	e.source = src
	e.startTime = e.opts.Clock.Now()
	e.playing = true
	e.paused = false
}

// PauseFile stops file playback and accumulates the elapsed time into the
// offset. It has no effect unless a file is playing.
func (e *Engine) PauseFile() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.filePlayingLocked() {
		return
	}
	e.actx.disconnect(e.source)
	e.pausedOffset += e.opts.Clock.Now().Sub(e.startTime)
	e.source = nil
	e.playing = false
	e.paused = true

	e.logger.Info("paused", slog.Duration("offset", e.pausedOffset))
}

// Stop disconnects whatever source is connected and cancels any pending
// microphone acquisition. The playback offset is kept.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	had := e.source != nil
	e.stopLocked()
	if had {
		e.logger.Info("stopped")
		e.opts.Metrics.SourceChanged(SourceNone)
	}
}

func (e *Engine) stopLocked() {
	e.captureGen++
	if e.source != nil {
		e.actx.disconnect(e.source)
		e.source = nil
	}
	e.playing = false
	e.paused = false
}

func (e *Engine) filePlayingLocked() bool {
	return e.playing && e.source != nil && e.source.Kind() == SourceFile
}

// handleEnded runs on the render goroutine when src runs out of data
func (e *Engine) handleEnded(src sourceNode) {
	e.mu.Lock()
	if e.closed || e.source != src {
		e.mu.Unlock()
		src.stop()
		return
	}

	e.actx.disconnect(src)
	e.source = nil
	e.playing = false
	e.paused = false

	kind := src.Kind()
	looped := false
	if kind == SourceFile {
		e.pausedOffset = 0
		if e.opts.Loop {
			e.playLocked()
			looped = true
		}
	}
	onEnded := e.opts.OnEnded
	e.mu.Unlock()

	e.logger.Info("source ended",
		slog.String("mode", kind.String()),
		slog.Bool("looped", looped))
	if looped {
		return
	}
	e.opts.Metrics.SourceChanged(SourceNone)
	if onEnded != nil {
		onEnded()
	}
}

// FrequencyData takes a fresh analyser snapshot and summarises it into
// bass, mid and high bands. Before InitContext all bands are zero.
func (e *Engine) FrequencyData() FrequencyBands {
	e.mu.Lock()
	actx := e.actx
	e.mu.Unlock()

	if actx == nil {
		return FrequencyBands{}
	}
	bands := actx.FrequencyBands()
	e.opts.Metrics.BandsMeasured(bands)
	return bands
}

// State reports the current mode
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.playing && e.source != nil && e.source.Kind() == SourceMicrophone:
		return StateCapturing
	case e.filePlayingLocked():
		return StatePlaying
	case e.paused && e.buffer != nil:
		return StatePaused
	case e.buffer != nil:
		return StateLoaded
	default:
		return StateIdle
	}
}

// Position returns the effective playback position within the loaded
// buffer, clamped to its duration
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos := e.pausedOffset
	if e.filePlayingLocked() {
		pos += e.opts.Clock.Now().Sub(e.startTime)
	}
	if e.buffer != nil {
		pos = min(pos, e.buffer.Duration())
	}
	return pos
}

// Buffer returns the loaded buffer, or nil
func (e *Engine) Buffer() *PCMBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer
}

// Close stops the render loop and closes the output stream. Pending
// acquisitions and decodes return ErrEngineClosed or ErrSuperseded.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.captureGen++
	e.source = nil
	e.playing = false
	e.paused = false
	actx := e.actx
	e.mu.Unlock()

	// The render goroutine may be waiting on e.mu in handleEnded
	if actx != nil {
		actx.Close()
	}
	e.logger.Debug("engine closed")
	return nil
}
