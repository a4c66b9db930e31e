package audio

import "time"

// PCMBuffer is decoded audio, downmixed to mono float64 in [-1, 1].
// It is never mutated after decoding; loading a new file replaces it.
type PCMBuffer struct {
	samples    []float64
	sampleRate int
	channels   int // Channel count of the source before downmixing
	format     string
}

// NewPCMBuffer wraps mono samples. The slice is owned by the buffer afterwards.
func NewPCMBuffer(samples []float64, sampleRate, channels int, format string) *PCMBuffer {
	return &PCMBuffer{
		samples:    samples,
		sampleRate: sampleRate,
		channels:   channels,
		format:     format,
	}
}

// Samples returns the mono samples. Callers must not modify them.
func (b *PCMBuffer) Samples() []float64 { return b.samples }

// SampleRate returns the native sample rate in Hz
func (b *PCMBuffer) SampleRate() int { return b.sampleRate }

// NumChannels returns the channel count before downmixing
func (b *PCMBuffer) NumChannels() int { return b.channels }

// NumSamples returns the number of mono frames
func (b *PCMBuffer) NumSamples() int { return len(b.samples) }

// Format returns the container the buffer was decoded from
func (b *PCMBuffer) Format() string { return b.format }

// Duration returns the playback length at the native sample rate
func (b *PCMBuffer) Duration() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.samples)) / float64(b.sampleRate) * float64(time.Second))
}
