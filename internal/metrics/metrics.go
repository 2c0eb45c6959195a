// Package metrics exposes Prometheus instrumentation for the scheduling
// engine: patch outcomes, aggregation timings, conversion fallbacks and
// batch progress.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	patchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealweek_patches_applied_total",
		Help: "Patch operations applied, by operation and outcome.",
	}, []string{"op", "status"})

	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mealweek_aggregation_duration_seconds",
		Help:    "Time spent building a weekly shopping list.",
		Buckets: prometheus.DefBuckets,
	})

	conversionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mealweek_conversion_fallbacks_total",
		Help: "Aggregation contributions left in their native measure because no conversion edge exists.",
	})

	batchUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mealweek_batch_users_total",
		Help: "Users processed by the weekly batch, by outcome.",
	}, []string{"status"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// PatchApplied records the outcome of one patch operation.
func PatchApplied(op string, err error) {
	patchesApplied.WithLabelValues(op, status(err)).Inc()
}

// ObserveAggregation records the duration of one aggregation pass.
func ObserveAggregation(d time.Duration) {
	aggregationDuration.Observe(d.Seconds())
}

// ConversionFallback counts a contribution that stayed in its native measure.
func ConversionFallback() {
	conversionFallbacks.Inc()
}

// BatchUser records the outcome of one user in a batch run.
func BatchUser(err error) {
	batchUsers.WithLabelValues(status(err)).Inc()
}

// Serve blocks on an HTTP listener exposing /metrics.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
