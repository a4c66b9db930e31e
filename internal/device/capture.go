package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/linuxmatters/jivescope/internal/audio"
)

// DefaultFramesPerBuffer is the PortAudio callback block size
const DefaultFramesPerBuffer = 1024

// captureQueue is how many blocks may wait for the render loop before new
// ones are dropped
const captureQueue = 32

// PortAudioCapture opens the default input device as a mono float32 stream.
// It implements audio.CaptureDevice.
type PortAudioCapture struct {
	SampleRate      int
	FramesPerBuffer int
	Logger          *slog.Logger
}

// Open initialises PortAudio and starts a callback stream. Each stream holds
// its own PortAudio reference, released on Close.
func (c *PortAudioCapture) Open(ctx context.Context) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frames := c.FramesPerBuffer
	if frames <= 0 {
		frames = DefaultFramesPerBuffer
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, classify(fmt.Errorf("initialise portaudio: %w", err))
	}

	s := &paStream{
		samples:    make(chan []float32, captureQueue),
		sampleRate: c.SampleRate,
		logger:     logger,
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.SampleRate), frames, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, classify(fmt.Errorf("open default input: %w", err))
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, classify(fmt.Errorf("start input stream: %w", err))
	}

	// The caller may have given up while the device was starting
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}

	logger.Debug("microphone opened",
		slog.Int("sample_rate", c.SampleRate),
		slog.Int("frames_per_buffer", frames))
	return s, nil
}

// classify marks errors that look like the platform refusing access so the
// engine reports audio.PermissionDenied
func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	}
	return err
}

// paStream is a running PortAudio input
type paStream struct {
	stream     *portaudio.Stream
	samples    chan []float32
	sampleRate int
	logger     *slog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
}

// process runs on the PortAudio callback thread. It must not block.
func (s *paStream) process(in []float32) {
	block := make([]float32, len(in))
	copy(block, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.samples <- block:
	default:
		s.dropped++
	}
}

func (s *paStream) Samples() <-chan []float32 { return s.samples }

func (s *paStream) SampleRate() int { return s.sampleRate }

// Close stops the device and closes the samples channel. It is safe to call
// more than once.
func (s *paStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := s.dropped
	close(s.samples)
	s.mu.Unlock()

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop input stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close input stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}

	s.logger.Debug("microphone closed", slog.Int("dropped_blocks", dropped))
	return errors.Join(errs...)
}
