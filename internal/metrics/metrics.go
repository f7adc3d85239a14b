// Package metrics holds the process-wide Prometheus collectors and the
// optional exposition endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion metrics
var (
	LinesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_lines_read_total",
		Help: "Total number of log lines read",
	})

	LinesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_lines_skipped_total",
		Help: "Total number of log lines that classified as no event",
	})

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pfwatch_events_total",
			Help: "Total number of classified queue lifecycle events",
		},
		[]string{"kind"},
	)
)

// Table metrics
var (
	SendersTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pfwatch_senders_tracked",
		Help: "Current number of senders in the sender table",
	})

	QueueEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pfwatch_queue_entries",
		Help: "Current number of in-flight queue entries",
	})

	RinseRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_rinse_runs_total",
		Help: "Total number of rinse passes executed",
	})

	RinseEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_rinse_evictions_total",
		Help: "Total number of senders evicted by the rinse",
	})
)

// Snapshot metrics
var (
	SnapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_snapshot_saves_total",
		Help: "Total number of snapshot files written",
	})

	SnapshotLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_snapshot_loads_total",
		Help: "Total number of snapshot files loaded",
	})

	SnapshotFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pfwatch_snapshot_failures_total",
		Help: "Total number of snapshot encode or decode failures",
	})
)

// Serve exposes /metrics on addr in a background goroutine. Errors from
// the listener are returned on the channel once; a nil channel read
// never happens.
func Serve(addr string) <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	return errc
}
