// Package state implements per-operator, per-key managed state backed by
// the storage collaborator (spec.md §3: "dirty", "last_flushed_epoch").
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// ManagedState is the dirty-tracking base every stateful operator's
// managed state embeds. Flags are atomic so another goroutine can read
// them without taking the operator's own lock.
type ManagedState struct {
	dirty            atomic.Bool
	lastMutatedEpoch atomic.Uint64
	lastFlushedEpoch atomic.Uint64

	dirtyGauge prometheus.Gauge
}

// BindMetrics attaches the operator's ambient dirty gauge (metrics.Set's
// Dirty, labeled by operator name, SPEC_FULL.md §9.4). A nil gauge is a
// valid no-op binding -- tests and unwired hosts never call this.
func (m *ManagedState) BindMetrics(g prometheus.Gauge) { m.dirtyGauge = g }

// MarkDirty records the first mutation at epoch e (spec.md §4.5): dirty
// only flips false->true once per flush cycle, and last_mutated_epoch is
// the epoch of that *first* mutation, not the most recent one.
func (m *ManagedState) MarkDirty(epoch uint64) {
	if m.dirty.CompareAndSwap(false, true) {
		m.lastMutatedEpoch.Store(epoch)
		if m.dirtyGauge != nil {
			m.dirtyGauge.Set(1)
		}
	}
}

func (m *ManagedState) Dirty() bool { return m.dirty.Load() }

func (m *ManagedState) LastMutatedEpoch() uint64 { return m.lastMutatedEpoch.Load() }
func (m *ManagedState) LastFlushedEpoch() uint64 { return m.lastFlushedEpoch.Load() }

// MarkFlushed clears dirty and records epoch as the last flushed epoch.
// The operators pass the barrier's Curr epoch, while their batch is
// ingested at the barrier's Prev epoch.
func (m *ManagedState) MarkFlushed(epoch uint64) {
	m.dirty.Store(false)
	m.lastFlushedEpoch.Store(epoch)
	if m.dirtyGauge != nil {
		m.dirtyGauge.Set(0)
	}
}
