// Package metrics holds the Prometheus collectors for the guardrail pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the guardrails service.
// Pass to components that need to record metrics.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	HooksTriggered   *prometheus.CounterVec
	RiskScore        prometheus.Histogram
	AuditFailures    prometheus.Counter
	PipelineDuration prometheus.Histogram
	FailClosedTotal  *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrails",
				Name:      "decisions_total",
				Help:      "Total pipeline decisions",
			},
			[]string{"outcome"}, // outcome=blocked/allowed
		),
		HooksTriggered: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrails",
				Name:      "hooks_triggered_total",
				Help:      "Total guardrail hooks triggered, by hook name",
			},
			[]string{"hook"},
		),
		RiskScore: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guardrails",
				Name:      "risk_score",
				Help:      "Distribution of pre-hook risk scores",
				Buckets:   []float64{0, 10, 30, 50, 70, 80, 90, 95, 100},
			},
		),
		AuditFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "guardrails",
				Name:      "audit_failures_total",
				Help:      "Total audit events that could not be written",
			},
		),
		PipelineDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "guardrails",
				Name:      "pipeline_duration_seconds",
				Help:      "End-to-end pipeline duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FailClosedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrails",
				Name:      "fail_closed_total",
				Help:      "Requests decided by the fail-closed fallback",
			},
			[]string{"stage"}, // stage=pre_hook/post_hook
		),
		HTTPRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "guardrails",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests, by route pattern and status code",
			},
			[]string{"route", "status"},
		),
	}
}
