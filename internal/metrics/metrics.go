package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "yacall"

	eventLabelName   = "event"
	outcomeLabelName = "outcome"
	resultLabelName  = "result"
	opLabelName      = "op"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "number of live registered connections",
		})

	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "connection admission attempts by result",
		}, []string{resultLabelName})

	Supersessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supersessions_total",
			Help:      "connections replaced by a newer connection of the same user",
		})

	Relays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "signaling relays by event type and outcome",
		}, []string{eventLabelName, outcomeLabelName})

	OnlineSetErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "online_set_errors_total",
			Help:      "online set store operations that failed after retries",
		}, []string{opLabelName})

	// OnlineSetLatency is in milliseconds.
	OnlineSetLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "online_set_latency_ms",
			Help:      "online set store call latency",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{opLabelName})

	ExpiredCalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_calls_total",
			Help:      "call attempts expired without an answer",
		})
)

// Register registers every collector on r.
func Register(r prometheus.Registerer) {
	r.MustRegister(ActiveConnections)
	r.MustRegister(Admissions)
	r.MustRegister(Supersessions)
	r.MustRegister(Relays)
	r.MustRegister(OnlineSetErrors)
	r.MustRegister(OnlineSetLatency)
	r.MustRegister(ExpiredCalls)
}
