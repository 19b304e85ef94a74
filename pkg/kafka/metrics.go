package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	producedTotal  *prometheus.CounterVec
	producedBytes  *prometheus.CounterVec
	publishSeconds *prometheus.HistogramVec
	consumedTotal  *prometheus.CounterVec
	dlqTotal       *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	handleSeconds  *prometheus.HistogramVec
}

var (
	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer
	sharedMetrics     *clientMetrics
)

// SetMetricsRegisterer overrides where client metrics are registered. It only
// takes effect before the first producer or consumer is created.
func SetMetricsRegisterer(reg prometheus.Registerer) { metricsRegisterer = reg }

func kafkaMetrics() *clientMetrics {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)
		sharedMetrics = &clientMetrics{
			producedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "finshock_kafka_producer_messages_total",
				Help: "Messages published to Kafka",
			}, []string{"topic", "result"}),
			producedBytes: f.NewCounterVec(prometheus.CounterOpts{
				Name: "finshock_kafka_producer_bytes_total",
				Help: "Payload bytes published to Kafka",
			}, []string{"topic", "compression"}),
			publishSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "finshock_kafka_producer_publish_seconds",
				Help:    "Publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			consumedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "finshock_kafka_consumer_messages_total",
				Help: "Messages handled by the consumer",
			}, []string{"topic", "result"}),
			dlqTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "finshock_kafka_consumer_dlq_total",
				Help: "Messages routed to the dead-letter topic",
			}, []string{"topic"}),
			queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "finshock_kafka_consumer_queue_depth",
				Help: "Messages waiting for a worker",
			}, []string{"topic"}),
			handleSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "finshock_kafka_consumer_handle_seconds",
				Help:    "Handling time per message including retries",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return sharedMetrics
}

func (m *clientMetrics) observePublish(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.producedTotal.WithLabelValues(topic, result).Add(float64(count))
	m.producedBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	m.publishSeconds.WithLabelValues(topic).Observe(dur.Seconds())
}
