// Package metrics wires the ambient counters and histograms named in
// SPEC_FULL.md §9.4 through github.com/prometheus/client_golang, the
// teacher's Prometheus-build-tag sibling to its StatsD tracker
// (stats/common_statsd.go). Everything here is registered on a private
// *prometheus.Registry rather than prometheus.DefaultRegisterer, so
// multiple actors/tests in one process never collide on registration --
// the same instance-scoped posture as the teacher's per-target Trunner.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set is one actor's (or one test's) private metrics namespace.
type Set struct {
	Registry *prometheus.Registry

	ChunksDispatched *prometheus.CounterVec // labels: policy ("broadcast","simple","round_robin","hash")
	RowsRouted       *prometheus.CounterVec // labels: output
	FlushLatency     *prometheus.HistogramVec
	Dirty            *prometheus.GaugeVec // labels: operator
	EpochLag         *prometheus.GaugeVec // labels: actor -- set by hk.Housekeeper
}

// NewSet builds and registers a fresh metrics namespace. namespace is used
// as the Prometheus metric name prefix (e.g. "flowcore").
func NewSet(namespace string) *Set {
	reg := prometheus.NewRegistry()

	s := &Set{
		Registry: reg,
		ChunksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dispatched_total",
			Help:      "Chunks handed to a dispatcher, by dispatch policy.",
		}, []string{"policy"}),
		RowsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_routed_total",
			Help:      "Visible rows routed to a given output.",
		}, []string{"output"}),
		FlushLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_latency_seconds",
			Help:      "Time spent ingesting an operator's state batch at a barrier.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operator"}),
		Dirty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operator_dirty",
			Help:      "1 if an operator has unflushed mutations since its last barrier, else 0.",
		}, []string{"operator"}),
		EpochLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actor_epoch_open_seconds",
			Help:      "How long an actor's current epoch has been open, sampled by the housekeeper.",
		}, []string{"actor"}),
	}

	reg.MustRegister(s.ChunksDispatched, s.RowsRouted, s.FlushLatency, s.Dirty, s.EpochLag)
	return s
}
