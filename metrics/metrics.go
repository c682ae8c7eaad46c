// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Notification outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "duplicate"
)

var (
	Registry = prometheus.NewRegistry()

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Discord notifications by scope and outcome.",
	}, []string{"scope", "outcome"})

	Reviews = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "application_reviews_total",
		Help:      "Committed application status changes by kind and target status.",
	}, []string{"kind", "status"})

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "application_submissions_total",
		Help:      "Application submissions by kind and outcome.",
	}, []string{"kind", "outcome"})

	RealtimeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscribers",
		Help:      "Open change-feed subscriptions.",
	})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		Notifications,
		Reviews,
		Submissions,
		RealtimeSubscribers,
		RequestDuration,
	)
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
