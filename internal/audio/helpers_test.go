package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sineWave generates n samples of a tone
func sineWave(frequency, amplitude float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
	}
	return out
}

// mixTones sums equal-amplitude tones
func mixTones(amplitude float64, sampleRate, n int, frequencies ...float64) []float64 {
	out := make([]float64, n)
	for _, f := range frequencies {
		for i, v := range sineWave(f, amplitude, sampleRate, n) {
			out[i] += v
		}
	}
	return out
}

// encodeWAV writes mono samples as a 16-bit WAV in t.TempDir and returns
// the file contents
func encodeWAV(t *testing.T, samples []float64, sampleRate, numChans int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, numChans, 1)
	data := make([]int, 0, len(samples)*numChans)
	for _, s := range samples {
		v := int(math.Round(max(-1, min(1, s)) * 32767))
		for range numChans {
			data = append(data, v)
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalise fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}

// manualClock only moves when told to
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStream is a CaptureStream fed by the test
type fakeStream struct {
	samples    chan []float32
	sampleRate int

	mu     sync.Mutex
	closed bool
}

func newFakeStream(sampleRate int) *fakeStream {
	return &fakeStream{samples: make(chan []float32, 64), sampleRate: sampleRate}
}

func (s *fakeStream) Samples() <-chan []float32 { return s.samples }
func (s *fakeStream) SampleRate() int           { return s.sampleRate }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeCapture hands out a stream per Open. When gate is set, Open blocks
// until the gate is closed so tests can race acquisitions against Stop.
type fakeCapture struct {
	gate    chan struct{}
	entered chan struct{}
	err     error

	mu      sync.Mutex
	streams []*fakeStream
}

func (c *fakeCapture) Open(ctx context.Context) (CaptureStream, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}

	s := newFakeStream(44100)
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeCapture) lastStream() *fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

// recordingDestination counts what reaches the audible output
type recordingDestination struct {
	mu      sync.Mutex
	samples int
}

func (d *recordingDestination) Write(samples []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples += len(samples)
	return nil
}

func (d *recordingDestination) Samples() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samples
}

// stubDecoder returns a fixed buffer or error, optionally after a gate
type stubDecoder struct {
	buf  *PCMBuffer
	err  error
	gate chan struct{}
}

func (d stubDecoder) Decode(ctx context.Context, data []byte) (*PCMBuffer, error) {
	if d.gate != nil {
		<-d.gate
	}
	return d.buf, d.err
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
