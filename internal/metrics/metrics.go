// Package metrics provides the Prometheus metrics of a run.
//
// Every run gets its own registry, so two runs in one process (tests, mostly)
// never collide on the global default registry. The status server exposes the
// registry on /metrics.
//
// All methods are safe on a nil *Metrics, which is how metrics are turned off.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shmdag"

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	// NodesDispatched counts nodes handed to an executor.
	NodesDispatched prometheus.Counter
	// NodesFinished counts nodes that reached a terminal status.
	// Labels: status (completed, failed)
	NodesFinished *prometheus.CounterVec
	// NodeDuration measures worker wall time.
	NodeDuration prometheus.Histogram
	// LockWait measures time spent acquiring the MRSW lock.
	// Labels: mode (read, write)
	LockWait *prometheus.HistogramVec
	// Runs counts finished runs.
	// Labels: state (all_complete, aborted)
	Runs *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_dispatched_total",
			Help:      "Total number of nodes dispatched to a worker",
		}),
		NodesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_finished_total",
			Help:      "Total number of nodes that reached a terminal status",
		}, []string{"status"}),
		NodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Wall time of a node's worker in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		LockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the shared status lock in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"mode"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of finished runs by final state",
		}, []string{"state"}),
	}
	m.registry.MustRegister(m.NodesDispatched, m.NodesFinished, m.NodeDuration, m.LockWait, m.Runs)
	return m
}

// Registry returns the run's registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) NodeDispatched() {
	if m == nil {
		return
	}
	m.NodesDispatched.Inc()
}

func (m *Metrics) NodeFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.NodesFinished.WithLabelValues(status).Inc()
	m.NodeDuration.Observe(d.Seconds())
}

// ObserveLockWait implements rwlock.Observer.
func (m *Metrics) ObserveLockWait(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state).Inc()
}
