package audio

import (
	"context"
	"fmt"
	"math"
	"time"
)

// BandFrame holds the band summary for a single frame
type BandFrame struct {
	Time  time.Duration // Frame start within the buffer
	Bands FrequencyBands
	RMS   float64 // RMS level of the samples the frame advanced over
}

// BandProfile holds complete offline band analysis results
type BandProfile struct {
	NumFrames int
	Frames    []BandFrame

	// Global statistics
	Peak      FrequencyBands // Per-band maximum across all frames
	Mean      FrequencyBands // Per-band average across all frames
	GlobalRMS float64        // Average RMS across all frames

	SampleRate int
	FPS        int
	Duration   time.Duration
}

// ProgressCallback is called with progress updates during analysis
type ProgressCallback func(frame, totalFrames int, bands FrequencyBands, rms float64, elapsed time.Duration)

// AnalyzeBands walks a decoded buffer at fps snapshots per second, running the
// same analyser the live engine uses, and records the bands of every
// snapshot. Smoothing carries across frames exactly as it does in real time.
func AnalyzeBands(ctx context.Context, buf *PCMBuffer, fps int, opts AnalyserOptions, progressCb ProgressCallback) (*BandProfile, error) {
	if buf == nil || buf.NumSamples() == 0 {
		return nil, ErrNoAudioData
	}
	if fps <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %d", fps)
	}

	analyser, err := NewAnalyser(opts)
	if err != nil {
		return nil, err
	}
	freqData := make([]uint8, analyser.FrequencyBinCount())

	samples := buf.Samples()
	samplesPerFrame := max(buf.SampleRate()/fps, 1)
	totalFrames := (len(samples) + samplesPerFrame - 1) / samplesPerFrame

	profile := &BandProfile{
		Frames:     make([]BandFrame, 0, totalFrames),
		SampleRate: buf.SampleRate(),
		FPS:        fps,
		Duration:   buf.Duration(),
	}

	startTime := time.Now()
	var sumRMS float64
	var sum FrequencyBands

	for frameNum := 0; frameNum < totalFrames; frameNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := frameNum * samplesPerFrame
		end := min(start+samplesPerFrame, len(samples))
		chunk := samples[start:end]

		analyser.Write(chunk)
		analyser.ByteFrequencyData(freqData)

		frame := BandFrame{
			Time:  time.Duration(float64(start) / float64(buf.SampleRate()) * float64(time.Second)),
			Bands: ComputeBands(freqData),
			RMS:   rms(chunk),
		}
		profile.Frames = append(profile.Frames, frame)

		profile.Peak.Bass = math.Max(profile.Peak.Bass, frame.Bands.Bass)
		profile.Peak.Mid = math.Max(profile.Peak.Mid, frame.Bands.Mid)
		profile.Peak.High = math.Max(profile.Peak.High, frame.Bands.High)
		sum.Bass += frame.Bands.Bass
		sum.Mid += frame.Bands.Mid
		sum.High += frame.Bands.High
		sumRMS += frame.RMS

		// Throttle to every 3 frames, always report the last one
		if progressCb != nil && ((frameNum+1)%3 == 0 || frameNum == totalFrames-1) {
			progressCb(frameNum+1, totalFrames, frame.Bands, frame.RMS, time.Since(startTime))
		}
	}

	profile.NumFrames = len(profile.Frames)
	n := float64(profile.NumFrames)
	profile.Mean = FrequencyBands{Bass: sum.Bass / n, Mid: sum.Mid / n, High: sum.High / n}
	profile.GlobalRMS = sumRMS / n

	return profile, nil
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
