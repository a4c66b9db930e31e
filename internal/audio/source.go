package audio

import (
	"context"
	"sync"
	"time"
)

// CaptureDevice acquires live audio-only input streams from the platform
type CaptureDevice interface {
	// Open blocks until the device is granted and streaming, or fails
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream delivers blocks of mono samples until it is closed. The
// samples channel is closed when the device stops producing.
type CaptureStream interface {
	Samples() <-chan []float32
	SampleRate() int
	Close() error
}

// Destination is the audible output sink
type Destination interface {
	Write(samples []float64) error
}

// SourceKind identifies which kind of source feeds the analyser
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceMicrophone
	SourceFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceMicrophone:
		return "microphone"
	case SourceFile:
		return "file"
	default:
		return "none"
	}
}

// sourceNode is a source connected to the analyser. pull and stop are called
// with the AnalysisContext lock held.
type sourceNode interface {
	Kind() SourceKind
	// pull fills dst with up to len(dst) frames at the context sample rate.
	// ended is true exactly once, on the pull that exhausts the source.
	pull(dst []float64) (n int, ended bool)
	// stop halts the source; stopping an already stopped source is a no-op
	stop()
}

// bufferSource plays a PCMBuffer once from a start offset. The buffer's
// native rate is converted to the context rate by linear interpolation.
type bufferSource struct {
	buf     *PCMBuffer
	step    float64       // Buffer frames advanced per context frame
	pos     float64       // Read position in buffer frames
	offset  time.Duration // Where playback started
	stopped bool
	ended   bool
}

func newBufferSource(buf *PCMBuffer, contextRate int, offset time.Duration) *bufferSource {
	return &bufferSource{
		buf:    buf,
		step:   float64(buf.SampleRate()) / float64(contextRate),
		pos:    offset.Seconds() * float64(buf.SampleRate()),
		offset: offset,
	}
}

func (s *bufferSource) Kind() SourceKind { return SourceFile }

func (s *bufferSource) pull(dst []float64) (int, bool) {
	if s.stopped || s.ended {
		return 0, false
	}

	data := s.buf.Samples()
	last := len(data) - 1
	n := 0
	for n < len(dst) {
		idx := int(s.pos)
		if idx > last {
			s.ended = true
			return n, true
		}
		frac := s.pos - float64(idx)
		sample := data[idx]
		if frac > 0 && idx < last {
			sample += (data[idx+1] - sample) * frac
		}
		dst[n] = sample
		n++
		s.pos += s.step
	}
	return n, false
}

func (s *bufferSource) stop() {
	s.stopped = true
}

// Position returns how far into the buffer the source has read
func (s *bufferSource) Position() time.Duration {
	return time.Duration(s.pos / float64(s.buf.SampleRate()) * float64(time.Second))
}

// maxPendingCapture bounds micSource backlog to one second of audio at
// 48 kHz; older samples are dropped when the render loop falls behind
const maxPendingCapture = 48000

// micSource wraps a CaptureStream as a source node
type micSource struct {
	stream    CaptureStream
	pending   []float64
	closeOnce sync.Once
	drained   bool
}

func newMicSource(stream CaptureStream) *micSource {
	return &micSource{stream: stream}
}

func (s *micSource) Kind() SourceKind { return SourceMicrophone }

func (s *micSource) pull(dst []float64) (int, bool) {
	if s.drained {
		return 0, false
	}

	ch := s.stream.Samples()
	closed := false
drain:
	for {
		select {
		case block, ok := <-ch:
			if !ok {
				closed = true
				break drain
			}
			for _, v := range block {
				s.pending = append(s.pending, float64(v))
			}
		default:
			break drain
		}
	}

	if over := len(s.pending) - maxPendingCapture; over > 0 {
		s.pending = s.pending[over:]
	}

	n := copy(dst, s.pending)
	s.pending = s.pending[n:]

	if closed && len(s.pending) == 0 {
		s.drained = true
		return n, true
	}
	return n, false
}

func (s *micSource) stop() {
	s.closeOnce.Do(func() {
		// Closing an already failed device is expected to error
		_ = s.stream.Close()
	})
}
