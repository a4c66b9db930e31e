package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// AudioDecoder defines the interface for all audio format decoders
type AudioDecoder interface {
	// ReadChunk reads the next chunk of samples as mono float64
	// Returns io.EOF when the stream is exhausted
	ReadChunk(numSamples int) ([]float64, error)

	// SampleRate returns the audio sample rate in Hz
	SampleRate() int

	// NumSamples returns the total number of samples in the stream
	// Returns 0 if the length is unknown
	NumSamples() int64

	// NumChannels returns the number of audio channels (1=mono, 2=stereo)
	NumChannels() int

	// Close closes the decoder and releases resources
	Close() error
}

// Decoder turns an encoded payload into a PCMBuffer. The engine only depends
// on this capability, so tests can substitute a fake.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*PCMBuffer, error)
}

// Container names reported by Sniff and DecodeError
const (
	FormatWAV    = "wav"
	FormatAIFF   = "aiff"
	FormatMP3    = "mp3"
	FormatFLAC   = "flac"
	FormatVorbis = "ogg vorbis"
)

// decodeChunkSize is the number of mono frames pulled per ReadChunk while
// decoding a whole payload
const decodeChunkSize = 8192

// Sniff identifies the container from its leading bytes. It returns "" when no
// signature matches.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 12 && string(data[0:4]) == "FORM" &&
		(string(data[8:12]) == "AIFF" || string(data[8:12]) == "AIFC"):
		return FormatAIFF
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return FormatFLAC
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return FormatVorbis
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	}
	return ""
}

// NewChunkDecoder opens a streaming decoder for an in-memory payload
func NewChunkDecoder(format string, data []byte) (AudioDecoder, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatWAV:
		return NewWAVDecoder(r)
	case FormatAIFF:
		return NewAIFFDecoder(r)
	case FormatMP3:
		return NewMP3Decoder(r)
	case FormatFLAC:
		return NewFLACDecoder(r)
	case FormatVorbis:
		return NewVorbisDecoder(r)
	}
	return nil, ErrUnsupportedFormat
}

// FormatDecoder is the default Decoder. It sniffs the container and decodes
// WAV, AIFF, MP3, FLAC and Ogg Vorbis into a mono PCMBuffer at the file's
// native sample rate.
type FormatDecoder struct{}

// Decode implements Decoder. Every failure is a *DecodeError.
func (FormatDecoder) Decode(ctx context.Context, data []byte) (*PCMBuffer, error) {
	format := Sniff(data)
	if format == "" {
		return nil, &DecodeError{Err: ErrUnsupportedFormat}
	}

	dec, err := NewChunkDecoder(format, data)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	defer dec.Close()

	buf, err := readAll(ctx, dec, format)
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return buf, nil
}

// readAll drains a chunk decoder, checking ctx between chunks
func readAll(ctx context.Context, dec AudioDecoder, format string) (*PCMBuffer, error) {
	capacity := int(dec.NumSamples())
	if capacity <= 0 {
		capacity = decodeChunkSize
	}
	samples := make([]float64, 0, capacity)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := dec.ReadChunk(decodeChunkSize)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading samples at frame %d: %w", len(samples), err)
		}
		samples = append(samples, chunk...)
	}

	if len(samples) == 0 {
		return nil, ErrNoAudioData
	}
	if dec.SampleRate() <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", dec.SampleRate())
	}

	return NewPCMBuffer(samples, dec.SampleRate(), dec.NumChannels(), format), nil
}
