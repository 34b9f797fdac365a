// Package metrics holds the Prometheus collectors of condorview.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineRuns counts pipeline runs by entry point and outcome.
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condorview_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"entry", "status"},
	)
	// StageDuration is the latency of individual pipeline stages, labelled
	// by stage kind (get data, parse, an operator name, gentable, render).
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condorview_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	// SourceFetches counts data source fetches by source type and outcome.
	SourceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condorview_source_fetches_total",
			Help: "Total number of data source fetches",
		},
		[]string{"source", "status"},
	)
	// SourceFetchDuration is the latency of data source fetches.
	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condorview_source_fetch_duration_seconds",
			Help:    "Data source fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	// GridRows is the row count of the last grid produced per entry point.
	GridRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "condorview_grid_rows",
			Help: "Rows in the most recent pipeline result",
		},
		[]string{"entry"},
	)
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condorview_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condorview_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// ViewRefreshes counts saved view refreshes by trigger and outcome.
	ViewRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condorview_view_refreshes_total",
			Help: "Total number of saved view refreshes",
		},
		[]string{"trigger", "status"},
	)
)

// Status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveStage records one stage execution.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveFetch records one source fetch.
func ObserveFetch(source string, d time.Duration, err error) {
	if source == "" {
		source = "unknown"
	}
	SourceFetches.WithLabelValues(source, StatusOf(err)).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveRun records the outcome of one pipeline run.
func ObserveRun(entry string, rows int, err error) {
	PipelineRuns.WithLabelValues(entry, StatusOf(err)).Inc()
	if err == nil {
		GridRows.WithLabelValues(entry).Set(float64(rows))
	}
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
