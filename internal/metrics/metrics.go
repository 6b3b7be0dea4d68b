// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics exposes Prometheus counters for scheduled (daemon mode)
// runs: how often the archiver ran, what each run moved, and how long it
// took. One-shot CLI runs don't serve the endpoint; the collectors are
// registered either way and cost nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toeirei/archiver/internal/archive"
	"github.com/toeirei/archiver/internal/logging"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_runs_total",
			Help: "Total number of archive runs, by result.",
		},
		[]string{"result"},
	)

	filesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_files_fetched_total",
		Help: "Total number of remote files fetched into the archive.",
	})

	filesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_files_removed_total",
		Help: "Total number of remote originals deleted after a confirmed fetch.",
	})

	filesPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_files_pruned_total",
		Help: "Total number of local archive files deleted by retention pruning.",
	})

	filesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_files_failed_total",
		Help: "Total number of planned actions that failed.",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archiver_run_duration_seconds",
		Help:    "Wall-clock duration of archive runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// RecordRun folds one run's summary into the collectors.
func RecordRun(sum *archive.Summary, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
	if sum != nil {
		filesFetched.Add(float64(sum.Fetched))
		filesRemoved.Add(float64(sum.Removed))
		filesPruned.Add(float64(sum.Pruned))
		filesFailed.Add(float64(sum.Failed))
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. Runs on its own
// goroutine side by side with the cron scheduler.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logging.Infof("metrics endpoint listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
