package audio

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// VorbisDecoder implements AudioDecoder for Ogg Vorbis payloads. The whole
// stream is decoded up front and served in chunks.
type VorbisDecoder struct {
	samples     []float64
	sampleRate  int
	numChannels int
	position    int
}

// NewVorbisDecoder creates a new Ogg Vorbis decoder
func NewVorbisDecoder(r io.Reader) (*VorbisDecoder, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis: %w", err)
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count %d", format.Channels)
	}

	numTimeSamples := len(data) / format.Channels
	samples := make([]float64, numTimeSamples)
	for i := 0; i < numTimeSamples; i++ {
		var sum float64
		for ch := 0; ch < format.Channels; ch++ {
			sum += float64(data[i*format.Channels+ch])
		}
		samples[i] = sum / float64(format.Channels)
	}

	return &VorbisDecoder{
		samples:     samples,
		sampleRate:  format.SampleRate,
		numChannels: format.Channels,
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *VorbisDecoder) ReadChunk(numSamples int) ([]float64, error) {
	if d.position >= len(d.samples) {
		return nil, io.EOF
	}

	end := min(d.position+numSamples, len(d.samples))
	chunk := make([]float64, end-d.position)
	copy(chunk, d.samples[d.position:end])
	d.position = end
	return chunk, nil
}

// SampleRate returns the sample rate
func (d *VorbisDecoder) SampleRate() int {
	return d.sampleRate
}

// NumSamples returns the total number of frames
func (d *VorbisDecoder) NumSamples() int64 {
	return int64(len(d.samples))
}

// NumChannels returns the number of audio channels
func (d *VorbisDecoder) NumChannels() int {
	return d.numChannels
}

// Close releases the decoded samples
func (d *VorbisDecoder) Close() error {
	d.samples = nil
	return nil
}
