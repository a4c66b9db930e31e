package audio

import "github.com/linuxmatters/jivescope/internal/config"

// FrequencyBands is one bass/mid/high snapshot, each the mean of its bins on
// the 0-255 byte scale
type FrequencyBands struct {
	Bass float64
	Mid  float64
	High float64
}

// IsZero reports whether all bands are silent
func (b FrequencyBands) IsZero() bool {
	return b.Bass == 0 && b.Mid == 0 && b.High == 0
}

// Max returns the loudest band value
func (b FrequencyBands) Max() float64 {
	return max(b.Bass, b.Mid, b.High)
}

// ComputeBands partitions a byte measurement buffer into the fixed band
// ranges from config ([0,10), [10,100), [100,200)) and averages each range.
// Ranges extending past len(data) are truncated; an empty range yields 0.
func ComputeBands(data []uint8) FrequencyBands {
	return FrequencyBands{
		Bass: average(data, config.BassStart, config.BassEnd),
		Mid:  average(data, config.BassEnd, config.MidEnd),
		High: average(data, config.MidEnd, config.HighEnd),
	}
}

func average(data []uint8, start, end int) float64 {
	end = min(end, len(data))
	if start >= end {
		return 0
	}
	var sum int
	for _, v := range data[start:end] {
		sum += int(v)
	}
	return float64(sum) / float64(end-start)
}
