package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the detection metrics sink using Prometheus.
type Recorder struct {
	detections  *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	feedClients prometheus.Gauge
}

// New registers the recorder's collectors with reg. Pass a fresh registry in
// tests; production uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finshock_detections_total",
				Help: "Detections run, by entry point",
			},
			[]string{"source"},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finshock_anomalies_total",
				Help: "Anomalies reported, by classification",
			},
			[]string{"type"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finshock_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finshock_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finshock_cache_requests_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "finshock_feed_clients",
			Help: "Connected live feed clients",
		}),
	}
}

// RecordDetection counts one detection from source and its anomalies by type.
func (r *Recorder) RecordDetection(source string, types []string) {
	r.detections.WithLabelValues(source).Inc()
	for _, t := range types {
		r.anomalies.WithLabelValues(t).Inc()
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

func (r *Recorder) SetFeedClients(n int) {
	r.feedClients.Set(float64(n))
}
