package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsCreated   *prometheus.CounterVec
	fanoutTotal      *prometheus.CounterVec
	fanoutRecipients *prometheus.CounterVec
	pushDelivered    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecast_signals_created_total",
				Help: "Total number of signals accepted for broadcast",
			},
			[]string{"risk_tier"},
		),
		fanoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecast_fanout_total",
				Help: "Total number of fan-out events processed",
			},
			[]string{"risk_tier"},
		),
		fanoutRecipients: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecast_fanout_recipients_total",
				Help: "Total recipients matched across fan-out events",
			},
			[]string{"risk_tier"},
		),
		pushDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecast_push_delivered_total",
				Help: "Total realtime deliveries confirmed per tier",
			},
			[]string{"risk_tier"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradecast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignalCreated records an accepted signal.
func (r *Recorder) RecordSignalCreated(tier string) {
	r.signalsCreated.WithLabelValues(tier).Inc()
}

// RecordFanout records one fan-out event and its matched recipient count.
func (r *Recorder) RecordFanout(tier string, recipients int) {
	r.fanoutTotal.WithLabelValues(tier).Inc()
	r.fanoutRecipients.WithLabelValues(tier).Add(float64(recipients))
}

// RecordPush records confirmed realtime deliveries for a tier.
func (r *Recorder) RecordPush(tier string, delivered int) {
	r.pushDelivered.WithLabelValues(tier).Add(float64(delivered))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
