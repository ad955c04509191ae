// Package metrics exports sync activity as Prometheus metrics.
//
// Metrics implements sync.Observer, so it can be passed straight into the
// engine's Config. The dashboard serves the registry at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/steveyegge/fintrack/internal/model"
	"github.com/steveyegge/fintrack/internal/sync"
)

const (
	namespace = "fintrack"
	subsystem = "sync"
)

// Direction and result label values.
const (
	DirectionPush = "push"
	DirectionPull = "pull"

	ResultSynced  = "synced"
	ResultPending = "pending"
)

// Metrics holds the sync collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// RecordsTotal counts records by kind, direction and result.
	RecordsTotal *prometheus.CounterVec

	// DeletesTotal counts local deletions by kind and whether the server copy
	// was removed too.
	DeletesTotal *prometheus.CounterVec

	// FullSyncsTotal counts completed full syncs.
	FullSyncsTotal prometheus.Counter

	// FullSyncDuration measures full sync wall time.
	FullSyncDuration prometheus.Histogram

	// LastFullSync is the unix time of the last completed full sync.
	LastFullSync prometheus.Gauge
}

// New creates the collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_total",
			Help:      "Records processed by the sync engine by kind, direction and result",
		}, []string{"kind", "direction", "result"}),

		DeletesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deletes_total",
			Help:      "Local deletions by kind and whether the server copy was removed",
		}, []string{"kind", "remote"}),

		FullSyncsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "full_syncs_total",
			Help:      "Completed full syncs",
		}),

		FullSyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "full_sync_duration_seconds",
			Help:      "Full sync duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		LastFullSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_full_sync_timestamp_seconds",
			Help:      "Unix time of the last completed full sync",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSynced implements sync.Observer.
func (m *Metrics) RecordSynced(o sync.Outcome) {
	m.RecordsTotal.WithLabelValues(string(o.Entity), DirectionPush, ResultSynced).Inc()
}

// RecordPending implements sync.Observer.
func (m *Metrics) RecordPending(o sync.Outcome) {
	m.RecordsTotal.WithLabelValues(string(o.Entity), DirectionPush, ResultPending).Inc()
}

// RecordPulled implements sync.Observer.
func (m *Metrics) RecordPulled(entity model.Entity, localID, remoteID int64) {
	m.RecordsTotal.WithLabelValues(string(entity), DirectionPull, ResultSynced).Inc()
}

// RecordDeleted implements sync.Observer.
func (m *Metrics) RecordDeleted(entity model.Entity, localID int64, remoteDeleted bool) {
	remote := "false"
	if remoteDeleted {
		remote = "true"
	}
	m.DeletesTotal.WithLabelValues(string(entity), remote).Inc()
}

// SyncCompleted implements sync.Observer.
func (m *Metrics) SyncCompleted(t sync.Tally) {
	if t.NoUser {
		return
	}
	m.FullSyncsTotal.Inc()
	m.FullSyncDuration.Observe(t.Duration.Seconds())
	m.LastFullSync.SetToCurrentTime()
}
