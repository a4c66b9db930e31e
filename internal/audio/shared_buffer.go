package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed is returned when reading past the end of a closed stream
var ErrStreamClosed = errors.New("stream is closed")

// StreamDestination is the stream-sink node of an AnalysisContext: it
// re-exposes everything that passed through the analyser as a shareable
// stream. Any number of consumers (recorders, level meters) attach with
// NewReader and each keeps an independent read position.
//
// Design:
// - Single producer (the render loop) appends samples via Write()
// - Readers join live: a new reader starts at the current end of the stream
// - Samples consumed by every reader are compacted away
// - With no readers attached, written samples are dropped
// - EOF signalling via Close() propagates to every reader
type StreamDestination struct {
	mu   sync.Mutex
	cond *sync.Cond

	sampleRate int

	// Retained samples; samples[0] has absolute index base
	samples []float64
	base    int64

	readers map[*StreamReader]struct{}
	closed  bool
}

// StreamReader is one consumer's view of a StreamDestination
type StreamReader struct {
	dest   *StreamDestination
	pos    int64 // Absolute index of the next sample to read
	closed bool
}

// NewStreamDestination creates an empty stream at the given sample rate
func NewStreamDestination(sampleRate int) *StreamDestination {
	d := &StreamDestination{
		sampleRate: sampleRate,
		readers:    make(map[*StreamReader]struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// SampleRate returns the rate of the samples carried by the stream
func (d *StreamDestination) SampleRate() int {
	return d.sampleRate
}

// NewReader attaches a consumer positioned at the live end of the stream
func (d *StreamDestination) NewReader() *StreamReader {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := &StreamReader{
		dest:   d,
		pos:    d.base + int64(len(d.samples)),
		closed: d.closed,
	}
	if !d.closed {
		d.readers[r] = struct{}{}
	}
	return r
}

// Write appends samples to the stream. Called by the render loop.
// Signals waiting readers when new data is available.
func (d *StreamDestination) Write(samples []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrStreamClosed
	}

	if len(d.readers) == 0 {
		// Nobody is listening; keep the absolute clock moving
		d.base += int64(len(d.samples) + len(samples))
		d.samples = d.samples[:0]
		return nil
	}

	d.samples = append(d.samples, samples...)
	d.compactLocked(false)
	d.cond.Broadcast() // Wake up any waiting readers
	return nil
}

// TotalSamples returns the number of samples written since creation
func (d *StreamDestination) TotalSamples() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.base + int64(len(d.samples))
}

// Readers returns the number of attached readers
func (d *StreamDestination) Readers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.readers)
}

// Close signals that no more samples will be written.
// Wakes up any blocked readers.
func (d *StreamDestination) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.cond.Broadcast()
}

// IsClosed returns whether the stream has been closed
func (d *StreamDestination) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// compactLocked drops the consumed prefix. Unless force is set it only runs
// once at least half of the retained samples are consumed, to amortise the
// copy.
func (d *StreamDestination) compactLocked(force bool) {
	minPos := d.base + int64(len(d.samples))
	for r := range d.readers {
		if r.pos < minPos {
			minPos = r.pos
		}
	}

	consumed := int(minPos - d.base)
	if consumed <= 0 {
		return
	}
	if !force && consumed < len(d.samples)/2 {
		return
	}

	remaining := len(d.samples) - consumed
	copy(d.samples, d.samples[consumed:])
	d.samples = d.samples[:remaining]
	d.base = minPos
}

// takeLocked copies up to numSamples from the reader position
func (r *StreamReader) takeLocked(numSamples int) []float64 {
	d := r.dest
	offset := int(r.pos - d.base)
	available := len(d.samples) - offset
	toRead := min(numSamples, available)
	if toRead <= 0 {
		return nil
	}

	result := make([]float64, toRead)
	copy(result, d.samples[offset:offset+toRead])
	r.pos += int64(toRead)
	return result
}

// Read returns up to numSamples without blocking (may be empty).
// Returns ErrStreamClosed once the stream is closed and drained, or the
// reader itself was closed.
func (r *StreamReader) Read(numSamples int) ([]float64, error) {
	d := r.dest
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.closed {
		return nil, ErrStreamClosed
	}

	result := r.takeLocked(numSamples)
	if result == nil && d.closed {
		return nil, ErrStreamClosed
	}
	return result, nil
}

// ReadFull blocks until exactly numSamples are available, the stream closes
// (returning the remainder, then ErrStreamClosed) or ctx is done.
func (r *StreamReader) ReadFull(ctx context.Context, numSamples int) ([]float64, error) {
	d := r.dest

	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.cond.Broadcast()
	})
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if r.closed {
			return nil, ErrStreamClosed
		}

		available := int(d.base + int64(len(d.samples)) - r.pos)
		if available >= numSamples {
			return r.takeLocked(numSamples), nil
		}

		if d.closed {
			if available <= 0 {
				return nil, ErrStreamClosed
			}
			return r.takeLocked(available), nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d.cond.Wait()
	}
}

// Available returns the number of unread samples for this reader
func (r *StreamReader) Available() int {
	d := r.dest
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.closed {
		return 0
	}
	return int(d.base + int64(len(d.samples)) - r.pos)
}

// Close detaches the reader so its position no longer pins retained samples
func (r *StreamReader) Close() {
	d := r.dest
	d.mu.Lock()
	defer d.mu.Unlock()

	r.closed = true
	delete(d.readers, r)
	d.compactLocked(true)
	d.cond.Broadcast()
}
