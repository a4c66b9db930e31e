package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/linuxmatters/jivescope/internal/config"
)

// ContextOptions configures an AnalysisContext
type ContextOptions struct {
	SampleRate  int
	Quantum     int // Frames rendered per block
	Analyser    AnalyserOptions
	Destination Destination // Audible sink; nil discards
	Logger      *slog.Logger
}

// maxCatchUpQuanta caps how many blocks one tick may render after the loop
// was starved, so a stalled process does not burst audio
const maxCatchUpQuanta = 64

// minTickInterval keeps the render loop from spinning on tiny quanta
const minTickInterval = 5 * time.Millisecond

// AnalysisContext is the audio graph owned by one Engine:
//
//	source ──► analyser ──► stream destination
//	                  └───► audible destination (file mode only)
//
// At most one source is connected at a time. A render loop goroutine pulls
// Quantum frames per block from the source in real time.
type AnalysisContext struct {
	mu sync.Mutex

	sampleRate int
	quantum    int

	analyser *Analyser
	freqData []uint8 // Byte measurement buffer, FrequencyBinCount entries
	stream   *StreamDestination

	destination   Destination
	toDestination bool

	source sourceNode
	block  []float64

	logger *slog.Logger

	// onEnded runs on the render goroutine, without c.mu held, when a source
	// runs out of data. Defaults to disconnecting the source.
	onEnded func(sourceNode)

	running bool
	closed  bool
	quit    chan struct{}
	done    chan struct{}
}

// NewAnalysisContext builds the fixed nodes. The render loop does not run
// until Start.
func NewAnalysisContext(opts ContextOptions) (*AnalysisContext, error) {
	analyser, err := NewAnalyser(opts.Analyser)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &AnalysisContext{
		sampleRate:  opts.SampleRate,
		quantum:     opts.Quantum,
		analyser:    analyser,
		freqData:    make([]uint8, analyser.FrequencyBinCount()),
		stream:      NewStreamDestination(opts.SampleRate),
		destination: opts.Destination,
		block:       make([]float64, opts.Quantum),
		logger:      logger,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// SampleRate returns the graph sample rate
func (c *AnalysisContext) SampleRate() int { return c.sampleRate }

// Stream returns the stream destination node
func (c *AnalysisContext) Stream() *StreamDestination { return c.stream }

// FrequencyBinCount returns the size of the byte measurement buffer
func (c *AnalysisContext) FrequencyBinCount() int {
	return len(c.freqData)
}

// ConnectedSource reports what currently feeds the analyser
func (c *AnalysisContext) ConnectedSource() SourceKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return SourceNone
	}
	return c.source.Kind()
}

// connect makes src the only source feeding the analyser. Any source still
// connected is stopped first. toDestination also routes the analyser output
// to the audible destination.
func (c *AnalysisContext) connect(src sourceNode, toDestination bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		c.source.stop()
	}
	c.source = src
	c.toDestination = toDestination
}

// disconnect stops src and, if it is the connected source, detaches it and
// the audible route
func (c *AnalysisContext) disconnect(src sourceNode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src.stop()
	if c.source == src {
		c.source = nil
		c.toDestination = false
	}
}

// ByteFrequencyData refreshes the measurement buffer from the analyser and
// copies it into dst
func (c *AnalysisContext) ByteFrequencyData(dst []uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analyser.ByteFrequencyData(c.freqData)
	copy(dst, c.freqData)
}

// FrequencyBands refreshes the measurement buffer and summarises it
func (c *AnalysisContext) FrequencyBands() FrequencyBands {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analyser.ByteFrequencyData(c.freqData)
	return ComputeBands(c.freqData)
}

// renderQuantum pulls one block from the connected source through the graph
func (c *AnalysisContext) renderQuantum() {
	c.mu.Lock()
	src := c.source
	var n int
	var ended bool
	if src != nil {
		n, ended = src.pull(c.block)
	}

	var out []float64
	if n > 0 {
		out = make([]float64, n)
		copy(out, c.block[:n])
		c.analyser.Write(out)
	}
	toDestination := c.toDestination
	c.mu.Unlock()

	if len(out) > 0 {
		if err := c.stream.Write(out); err != nil && err != ErrStreamClosed {
			c.logger.Warn("stream destination write failed", slog.Any("error", err))
		}
		if toDestination && c.destination != nil {
			if err := c.destination.Write(out); err != nil {
				c.logger.Warn("audible destination write failed", slog.Any("error", err))
			}
		}
	}

	if ended {
		c.logger.Debug("source ended", slog.String("source", src.Kind().String()))
		if c.onEnded != nil {
			c.onEnded(src)
		} else {
			c.disconnect(src)
		}
	}
}

// Start launches the render loop. Subsequent calls are no-ops.
func (c *AnalysisContext) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || c.closed {
		return
	}
	c.running = true
	go c.run()
}

func (c *AnalysisContext) run() {
	defer close(c.done)

	quantumDuration := config.PlaybackSettings{SampleRate: c.sampleRate, Quantum: c.quantum}.QuantumDuration()
	interval := max(quantumDuration, minTickInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var quanta int64

	for {
		select {
		case <-c.quit:
			return
		case now := <-ticker.C:
			due := int64(now.Sub(start) / quantumDuration)
			if due-quanta > maxCatchUpQuanta {
				// Starved: drop the backlog rather than burst it
				quanta = due - maxCatchUpQuanta
			}
			for ; quanta < due; quanta++ {
				c.renderQuantum()
			}
		}
	}
}

// Close stops the render loop, stops any connected source and closes the
// stream destination. It must not be called with a lock held that the
// source's ended callback takes.
func (c *AnalysisContext) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	running := c.running
	if c.source != nil {
		c.source.stop()
		c.source = nil
		c.toDestination = false
	}
	c.mu.Unlock()

	close(c.quit)
	if running {
		<-c.done
	}
	c.stream.Close()
}
