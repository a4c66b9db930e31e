package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linuxmatters/jivescope/internal/audio"
)

// Metrics contains all Prometheus metrics for the scope. It implements
// audio.Metrics.
type Metrics struct {
	// Analyser output
	BandLevel *prometheus.GaugeVec

	// Source switching
	ActiveSource   *prometheus.GaugeVec
	SourceSwitches *prometheus.CounterVec

	// Decoding
	FilesDecoded   *prometheus.CounterVec
	FileDuration   prometheus.Histogram
	DecodeFailures *prometheus.CounterVec

	// Capture
	CaptureFailures *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BandLevel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jivescope_band_level",
			Help: "Latest band level on the 0-255 analyser scale",
		}, []string{"band"}),

		ActiveSource: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jivescope_active_source",
			Help: "1 for the source currently feeding the analyser",
		}, []string{"source"}),
		SourceSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jivescope_source_switches_total",
			Help: "Total number of source changes, by new source",
		}, []string{"source"}),

		FilesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jivescope_files_decoded_total",
			Help: "Total number of files decoded, by container",
		}, []string{"format"}),
		FileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jivescope_file_duration_seconds",
			Help:    "Playback length of decoded files",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34 minutes
		}),
		DecodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jivescope_decode_failures_total",
			Help: "Total number of payloads that failed to decode, by detected container",
		}, []string{"format"}),

		CaptureFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jivescope_capture_failures_total",
			Help: "Total number of failed microphone acquisitions, by kind",
		}, []string{"kind"}),
	}
}

var _ audio.Metrics = (*Metrics)(nil)

var sources = []audio.SourceKind{audio.SourceNone, audio.SourceMicrophone, audio.SourceFile}

func (m *Metrics) SourceChanged(kind audio.SourceKind) {
	for _, s := range sources {
		v := 0.0
		if s == kind {
			v = 1
		}
		m.ActiveSource.WithLabelValues(s.String()).Set(v)
	}
	m.SourceSwitches.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) FileDecoded(format string, duration time.Duration) {
	m.FilesDecoded.WithLabelValues(format).Inc()
	m.FileDuration.Observe(duration.Seconds())
}

func (m *Metrics) DecodeFailed(format string) {
	if format == "" {
		format = "unknown"
	}
	m.DecodeFailures.WithLabelValues(format).Inc()
}

func (m *Metrics) CaptureFailed(kind audio.CaptureErrorKind) {
	m.CaptureFailures.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) BandsMeasured(bands audio.FrequencyBands) {
	m.BandLevel.WithLabelValues("bass").Set(bands.Bass)
	m.BandLevel.WithLabelValues("mid").Set(bands.Mid)
	m.BandLevel.WithLabelValues("high").Set(bands.High)
}
