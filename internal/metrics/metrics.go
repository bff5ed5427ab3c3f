// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lspadapter.metrics")

var (
	// CommandDuration tracks command latency by command and outcome.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lspadapter_command_duration_seconds",
		Help:    "Command execution time in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"command", "outcome"})

	// ProjectCache counts project cache events (hit, load, evict, invalidate).
	ProjectCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lspadapter_project_cache_total",
		Help: "Project cache events by type",
	}, []string{"event"})

	// CompletionCandidates counts candidates returned per completion request.
	CompletionCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lspadapter_completion_candidates",
		Help:    "Number of candidates per completion response",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	// IndexedFiles counts files parsed by the workspace indexer by result.
	IndexedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lspadapter_indexed_files_total",
		Help: "Files processed by the workspace indexer",
	}, []string{"result"})
)

// ObserveCommand records one command execution.
func ObserveCommand(command, outcome string, start time.Time) {
	CommandDuration.WithLabelValues(command, outcome).Observe(time.Since(start).Seconds())
}

// Serve exposes the default registry on addr until the listener fails.
// An empty addr disables the endpoint.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Infof("serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics endpoint stopped: %s", err.Error())
		}
	}()
}
