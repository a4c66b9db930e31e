package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	recordBitDepth  = 16
	recordBlockSize = 4096
)

// Recorder is a consumer of the engine's output stream: it attaches a
// StreamReader and writes everything the analyser sees to a mono 16-bit WAV.
type Recorder struct {
	reader *StreamReader
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	frames atomic.Int64
}

// NewRecorder attaches to stream at its live end. Samples written before
// this call are not recorded.
func NewRecorder(ws io.WriteSeeker, stream *StreamDestination) *Recorder {
	rate := stream.SampleRate()
	return &Recorder{
		reader: stream.NewReader(),
		enc:    wav.NewEncoder(ws, rate, recordBitDepth, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
			SourceBitDepth: recordBitDepth,
		},
	}
}

// Run copies the stream into the WAV file until ctx is cancelled or the
// stream closes, then finalises the header. Samples still buffered when ctx
// is cancelled are flushed before returning.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.reader.Close()

	for {
		samples, err := r.reader.ReadFull(ctx, recordBlockSize)
		if len(samples) > 0 {
			if werr := r.write(samples); werr != nil {
				_ = r.enc.Close()
				return werr
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrStreamClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if rest, _ := r.reader.Read(math.MaxInt32); len(rest) > 0 {
				if werr := r.write(rest); werr != nil {
					_ = r.enc.Close()
					return werr
				}
			}
			if cerr := r.enc.Close(); cerr != nil {
				return fmt.Errorf("finalise wav: %w", cerr)
			}
			return nil
		default:
			_ = r.enc.Close()
			return err
		}
	}
}

func (r *Recorder) write(samples []float64) error {
	const scale = 1<<(recordBitDepth-1) - 1

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		s = max(-1, min(1, s))
		r.buf.Data[i] = int(math.Round(s * scale))
	}

	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	r.frames.Add(int64(len(samples)))
	return nil
}

// Frames returns the number of frames written so far
func (r *Recorder) Frames() int64 {
	return r.frames.Load()
}
