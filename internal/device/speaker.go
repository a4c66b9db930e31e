package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hajimehoshi/oto/v2"
)

const (
	speakerChannels = 2
	bytesPerFrame   = speakerChannels * 4 // float32 LE per channel

	// maxSpeakerBacklogSeconds caps queued audio
	maxSpeakerBacklogSeconds = 0.5

	// silenceFrames is served when the queue is empty so the device keeps
	// running while playback is paused
	silenceFrames = 256
)

// ErrSpeakerClosed is returned by Write after Close
var ErrSpeakerClosed = errors.New("speaker is closed")

// Speaker plays mono samples on the default output device through oto. It
// implements audio.Destination. Only one oto context may exist per process,
// so create a single Speaker.
type Speaker struct {
	ctx    *oto.Context
	player oto.Player
	queue  *frameQueue
}

// NewSpeaker opens the output device at sampleRate and starts an
// always-running player that drains the queue fed by Write
func NewSpeaker(sampleRate int) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(sampleRate, speakerChannels, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	q := newFrameQueue(int(float64(sampleRate) * maxSpeakerBacklogSeconds))
	player := ctx.NewPlayer(q)
	player.Play()

	return &Speaker{ctx: ctx, player: player, queue: q}, nil
}

// Write queues samples for playback. Called from the render loop.
func (s *Speaker) Write(samples []float64) error {
	return s.queue.push(samples)
}

// Close stops the player. The oto context itself lives until process exit.
func (s *Speaker) Close() error {
	s.queue.close()
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("close player: %w", err)
	}
	return nil
}

// frameQueue converts mono float64 samples into interleaved stereo float32
// LE frames and serves them to the oto player as an io.Reader
type frameQueue struct {
	mu        sync.Mutex
	buf       []byte
	maxFrames int
	closed    bool
}

func newFrameQueue(maxFrames int) *frameQueue {
	return &frameQueue{maxFrames: max(maxFrames, silenceFrames)}
}

func (q *frameQueue) push(samples []float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrSpeakerClosed
	}

	start := len(q.buf)
	q.buf = append(q.buf, make([]byte, len(samples)*bytesPerFrame)...)
	for i, s := range samples {
		putStereoF32(q.buf[start:], i, s)
	}

	// Drop the oldest audio when the device cannot keep up
	if over := len(q.buf) - q.maxFrames*bytesPerFrame; over > 0 {
		q.buf = q.buf[over:]
	}
	return nil
}

// Read never blocks: with nothing queued it serves a short run of silence
func (q *frameQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Whole frames only
	p = p[:len(p)/bytesPerFrame*bytesPerFrame]

	if len(q.buf) == 0 {
		n := min(len(p), silenceFrames*bytesPerFrame)
		clear(p[:n])
		return n, nil
	}

	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *frameQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
}

// putStereoF32 writes a [-1,1] sample as float32 LE to both stereo channels
// at frame i
func putStereoF32(buf []byte, i int, sample float64) {
	sample = max(-1, min(1, sample))
	v := math.Float32bits(float32(sample))
	buf[i*8] = byte(v)
	buf[i*8+1] = byte(v >> 8)
	buf[i*8+2] = byte(v >> 16)
	buf[i*8+3] = byte(v >> 24)
	buf[i*8+4] = byte(v)
	buf[i*8+5] = byte(v >> 8)
	buf[i*8+6] = byte(v >> 16)
	buf[i*8+7] = byte(v >> 24)
}
