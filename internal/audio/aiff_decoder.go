package audio

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// AIFFDecoder implements AudioDecoder for AIFF/AIFC payloads
type AIFFDecoder struct {
	decoder    *aiff.Decoder
	format     *audio.Format
	bitDepth   int
	numSamples int64
}

// NewAIFFDecoder creates a new AIFF decoder
func NewAIFFDecoder(r io.ReadSeeker) (*AIFFDecoder, error) {
	decoder := aiff.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid AIFF file")
	}

	decoder.ReadInfo()
	format := decoder.Format()
	if format == nil || format.NumChannels == 0 {
		return nil, fmt.Errorf("unsupported AIFF layout")
	}

	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported AIFF bit depth %d", decoder.BitDepth)
	}

	return &AIFFDecoder{
		decoder:    decoder,
		format:     format,
		bitDepth:   int(decoder.BitDepth),
		numSamples: int64(decoder.NumSampleFrames),
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *AIFFDecoder) ReadChunk(numSamples int) ([]float64, error) {
	intBuf := &audio.IntBuffer{
		Data:   make([]int, numSamples*d.format.NumChannels),
		Format: d.format,
	}

	n, err := d.decoder.PCMBuffer(intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}

	if n == 0 {
		return nil, io.EOF
	}

	maxVal := float64(audio.IntMaxSignedValue(d.bitDepth))
	return downmixInts(intBuf.Data[:n], d.format.NumChannels, maxVal), nil
}

// SampleRate returns the sample rate
func (d *AIFFDecoder) SampleRate() int {
	return d.format.SampleRate
}

// NumSamples returns the number of sample frames from the COMM chunk
func (d *AIFFDecoder) NumSamples() int64 {
	return d.numSamples
}

// NumChannels returns the number of audio channels
func (d *AIFFDecoder) NumChannels() int {
	return d.format.NumChannels
}

// Close is a no-op; the payload is owned by the caller
func (d *AIFFDecoder) Close() error {
	return nil
}
