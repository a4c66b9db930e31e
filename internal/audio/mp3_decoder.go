package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder implements AudioDecoder for MP3 payloads
type MP3Decoder struct {
	decoder     *mp3.Decoder
	sampleRate  int
	numChannels int
}

// NewMP3Decoder creates a new MP3 decoder
func NewMP3Decoder(r io.Reader) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Decoder{
		decoder:     decoder,
		sampleRate:  decoder.SampleRate(),
		numChannels: 2, // go-mp3 always outputs stereo
	}, nil
}

// ReadChunk reads the next chunk of samples
func (d *MP3Decoder) ReadChunk(numSamples int) ([]float64, error) {
	// go-mp3 outputs interleaved 16-bit stereo: 4 bytes per time sample
	buf := make([]byte, numSamples*4)

	n, err := io.ReadFull(d.decoder, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	stereoSamplesRead := n / 4
	if stereoSamplesRead == 0 {
		return nil, io.EOF
	}

	samples := make([]float64, stereoSamplesRead)
	for i := 0; i < stereoSamplesRead; i++ {
		// 16-bit signed little-endian
		leftInt16 := int16(buf[i*4]) | (int16(buf[i*4+1]) << 8)
		left := float64(leftInt16) / 32768.0

		rightInt16 := int16(buf[i*4+2]) | (int16(buf[i*4+3]) << 8)
		right := float64(rightInt16) / 32768.0

		samples[i] = (left + right) / 2.0
	}

	return samples, nil
}

// SampleRate returns the sample rate
func (d *MP3Decoder) SampleRate() int {
	return d.sampleRate
}

// NumSamples returns the decoded length in frames, or 0 when unknown
func (d *MP3Decoder) NumSamples() int64 {
	length := d.decoder.Length()
	if length <= 0 {
		return 0
	}
	return length / 4
}

// NumChannels returns the number of audio channels
func (d *MP3Decoder) NumChannels() int {
	return d.numChannels
}

// Close is a no-op; the payload is owned by the caller
func (d *MP3Decoder) Close() error {
	return nil
}
