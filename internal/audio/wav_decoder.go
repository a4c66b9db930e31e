package audio

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder implements AudioDecoder for WAV payloads
type WAVDecoder struct {
	decoder    *wav.Decoder
	sampleRate int
	bitDepth   int
	numChans   int
	numSamples int64
}

// NewWAVDecoder creates a new WAV decoder
func NewWAVDecoder(r io.ReadSeeker) (*WAVDecoder, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	// Get format info without reading all samples
	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	if decoder.NumChans == 0 || decoder.BitDepth == 0 {
		return nil, fmt.Errorf("invalid WAV format: %d channels, %d bits", decoder.NumChans, decoder.BitDepth)
	}

	bytesPerFrame := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	var numSamples int64
	if bytesPerFrame > 0 {
		numSamples = decoder.PCMLen() / bytesPerFrame
	}

	return &WAVDecoder{
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		numChans:   int(decoder.NumChans),
		numSamples: numSamples,
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *WAVDecoder) ReadChunk(numSamples int) ([]float64, error) {
	// Interleaved data needs numSamples × numChannels slots
	bufSize := numSamples * d.numChans
	intBuf := &audio.IntBuffer{
		Data: make([]int, bufSize),
		Format: &audio.Format{
			NumChannels: d.numChans,
			SampleRate:  d.sampleRate,
		},
	}

	n, err := d.decoder.PCMBuffer(intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}

	if n == 0 {
		return nil, io.EOF
	}

	maxVal := float64(audio.IntMaxSignedValue(d.bitDepth))
	return downmixInts(intBuf.Data[:n], d.numChans, maxVal), nil
}

// SampleRate returns the sample rate
func (d *WAVDecoder) SampleRate() int {
	return d.sampleRate
}

// NumSamples returns the number of frames declared by the data chunk
func (d *WAVDecoder) NumSamples() int64 {
	return d.numSamples
}

// NumChannels returns the number of audio channels
func (d *WAVDecoder) NumChannels() int {
	return d.numChans
}

// Close is a no-op; the payload is owned by the caller
func (d *WAVDecoder) Close() error {
	return nil
}

// downmixInts converts interleaved integer PCM to mono by averaging channels
func downmixInts(data []int, numChans int, maxVal float64) []float64 {
	if numChans <= 1 {
		samples := make([]float64, len(data))
		for i, s := range data {
			samples[i] = float64(s) / maxVal
		}
		return samples
	}

	numTimeSamples := len(data) / numChans
	samples := make([]float64, numTimeSamples)
	for i := 0; i < numTimeSamples; i++ {
		var sum float64
		for ch := 0; ch < numChans; ch++ {
			sum += float64(data[i*numChans+ch]) / maxVal
		}
		samples[i] = sum / float64(numChans)
	}
	return samples
}
