package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ReportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linestatus_report_seconds",
		Help:    "Time spent computing an availability report.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})

	ReportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linestatus_report_failures_total",
		Help: "Total number of availability reports that failed.",
	}, []string{"report", "reason"})

	LinesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linestatus_lines_evaluated_total",
		Help: "Total number of per-line evaluations performed.",
	})

	AlertsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linestatus_alerts_ingested_total",
		Help: "Total number of feed alerts converted into incidents, by incident type.",
	}, []string{"type"})

	AlertsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linestatus_alerts_skipped_total",
		Help: "Total number of feed alerts ignored because they matched no line or type.",
	})

	AlertPollFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linestatus_alert_poll_failures_total",
		Help: "Total number of failed alert feed polls.",
	})

	IncidentsCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linestatus_incidents_cleaned_total",
		Help: "Total number of ended incidents deleted by retention cleanup.",
	})
)

// ObserveReport records the duration of one report since start
func ObserveReport(report string, start time.Time) {
	ReportDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
}
