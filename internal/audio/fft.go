package audio

import (
	"fmt"
	"math"

	"github.com/argusdusty/gofft"
)

// blackman is the window used by browser analyser nodes
// (a0=0.42, a1=0.5, a2=0.08)
func blackman(i, n int) float64 {
	x := 2 * math.Pi * float64(i) / float64(n)
	return 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
}

// AnalyserOptions configures an Analyser
type AnalyserOptions struct {
	FFTSize     int     // Transform window, power of two in [32, 32768]
	Smoothing   float64 // Temporal smoothing constant in [0, 1]
	MinDecibels float64 // Maps to byte 0
	MaxDecibels float64 // Maps to byte 255
}

// Analyser performs a frequency-domain transform over the most recent
// FFTSize samples written to it and exposes per-bin magnitudes, following the
// browser analyser node: Blackman window, |X[k]|/N magnitudes, exponential
// smoothing across snapshots, and dB-to-byte scaling.
//
// Analyser is not safe for concurrent use; AnalysisContext serialises access.
type Analyser struct {
	opts AnalyserOptions

	window []float64 // Precomputed Blackman coefficients
	ring   []float64 // Time-domain history, oldest sample at writePos
	writePos int

	// written counts every sample ever written; analysed is its value at the
	// last spectrum update
	written  uint64
	analysed uint64

	smoothed []float64    // Smoothed magnitudes, one per bin
	scratch  []complex128 // FFT workspace
}

// Validate checks the analyser parameters
func (o AnalyserOptions) Validate() error {
	if o.FFTSize < 32 || o.FFTSize > 32768 || !gofft.IsPow2(o.FFTSize) {
		return fmt.Errorf("fft size must be a power of two between 32 and 32768, got %d", o.FFTSize)
	}
	if o.Smoothing < 0 || o.Smoothing > 1 {
		return fmt.Errorf("smoothing must be within [0, 1], got %g", o.Smoothing)
	}
	if o.MinDecibels >= o.MaxDecibels {
		return fmt.Errorf("min decibels (%g) must be below max decibels (%g)", o.MinDecibels, o.MaxDecibels)
	}
	return nil
}

// NewAnalyser creates an analyser with a zeroed history
func NewAnalyser(opts AnalyserOptions) (*Analyser, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := gofft.Prepare(opts.FFTSize); err != nil {
		return nil, fmt.Errorf("preparing FFT of size %d: %w", opts.FFTSize, err)
	}

	window := make([]float64, opts.FFTSize)
	for i := range window {
		window[i] = blackman(i, opts.FFTSize)
	}

	return &Analyser{
		opts:     opts,
		window:   window,
		ring:     make([]float64, opts.FFTSize),
		smoothed: make([]float64, opts.FFTSize/2),
		scratch:  make([]complex128, opts.FFTSize),
	}, nil
}

// FFTSize returns the transform window size
func (a *Analyser) FFTSize() int { return a.opts.FFTSize }

// FrequencyBinCount returns FFTSize/2, the length of frequency data
func (a *Analyser) FrequencyBinCount() int { return a.opts.FFTSize / 2 }

// Write appends samples to the time-domain history
func (a *Analyser) Write(samples []float64) {
	n := len(a.ring)
	if len(samples) >= n {
		copy(a.ring, samples[len(samples)-n:])
		a.writePos = 0
	} else {
		for _, s := range samples {
			a.ring[a.writePos] = s
			a.writePos = (a.writePos + 1) % n
		}
	}
	a.written += uint64(len(samples))
}

// computeSpectrum runs one windowed FFT over the history and folds the
// magnitudes into the smoothing state. Without new samples since the last
// update it leaves the state alone, so polling never moves the result.
func (a *Analyser) computeSpectrum() {
	if a.written == a.analysed {
		return
	}
	a.analysed = a.written

	n := len(a.ring)
	for i := 0; i < n; i++ {
		a.scratch[i] = complex(a.ring[(a.writePos+i)%n]*a.window[i], 0)
	}

	// Size is validated and prepared in NewAnalyser, FFT cannot fail here
	_ = gofft.FFT(a.scratch)

	tau := a.opts.Smoothing
	scale := 1.0 / float64(n)
	for k := range a.smoothed {
		c := a.scratch[k]
		magnitude := math.Sqrt(real(c)*real(c)+imag(c)*imag(c)) * scale
		smoothed := tau*a.smoothed[k] + (1-tau)*magnitude
		if math.IsNaN(smoothed) || math.IsInf(smoothed, 0) {
			smoothed = 0
		}
		a.smoothed[k] = smoothed
	}
}

// ByteFrequencyData writes per-bin levels scaled from [MinDecibels,
// MaxDecibels] onto [0, 255]. A new snapshot is taken only when samples were
// written since the previous one.
func (a *Analyser) ByteFrequencyData(dst []uint8) {
	a.computeSpectrum()

	rangeScale := 255.0 / (a.opts.MaxDecibels - a.opts.MinDecibels)
	for k := 0; k < len(dst) && k < len(a.smoothed); k++ {
		db := toDecibels(a.smoothed[k])
		scaled := math.Floor(rangeScale * (db - a.opts.MinDecibels))
		switch {
		case scaled < 0 || math.IsInf(scaled, -1):
			dst[k] = 0
		case scaled > 255:
			dst[k] = 255
		default:
			dst[k] = uint8(scaled)
		}
	}
}

func toDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(magnitude)
}
