// Package metrics exposes Prometheus instrumentation for the orchestration core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retention"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Decisions submitted, by decision kind and outcome status.",
	}, []string{"decision", "outcome"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Error outcomes by kind.",
	}, []string{"kind"})

	autoResumesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_resumes_total",
		Help:      "Resumes issued automatically past SAFE actions.",
	})

	advancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "driver_advances_total",
		Help:      "Step driver advances by result.",
	}, []string{"result"})

	advanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "driver_advance_duration_seconds",
		Help:      "Wall time of one driver advance including engine calls.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	classifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_classified_total",
		Help:      "Paused actions by tool and sensitivity.",
	}, []string{"tool", "sensitivity"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approval_notifications_total",
		Help:      "Approval notifications published, by result.",
	}, []string{"result"})
)

// RecordRequest counts one submitted decision and its outcome.
func RecordRequest(decision, outcome string) {
	requestsTotal.WithLabelValues(decision, outcome).Inc()
}

// RecordError counts an error outcome.
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RecordAutoResume counts a resume past a SAFE action.
func RecordAutoResume() {
	autoResumesTotal.Inc()
}

// RecordAdvance counts a driver advance and observes its duration.
func RecordAdvance(result string, elapsed time.Duration) {
	advancesTotal.WithLabelValues(result).Inc()
	advanceDuration.Observe(elapsed.Seconds())
}

// RecordClassification counts a classified pause.
func RecordClassification(tool, sensitivity string) {
	classifiedTotal.WithLabelValues(tool, sensitivity).Inc()
}

// RecordNotification counts a publish attempt.
func RecordNotification(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	notificationsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
