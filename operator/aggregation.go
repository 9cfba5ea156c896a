// Package operator implements the two stateful operators named in
// spec.md §4.5/§4.6, both driven by an actor.Actor through the
// actor.Pipeline contract.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package operator

import (
	"time"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/plan"
	"github.com/streamhouse/flowcore/state"
	"github.com/streamhouse/flowcore/storage"
)

// Aggregation implements the Simple Aggregation operator (spec.md §4.5):
// fold every chunk into managed state, and at a dirty barrier flush,
// emit the transition from the previously emitted row to the newly
// computed one.
type Aggregation struct {
	agg          *state.Aggregator
	kv           storage.KV
	restored     bool
	currentEpoch uint64

	name    string
	metrics *metrics.Set
}

// NewAggregation builds an Aggregation operator. m may be nil (no ambient
// metrics bound, e.g. in tests); a non-nil m has node.Name's dirty gauge
// and flush-latency histogram wired in (SPEC_FULL.md §9.4).
func NewAggregation(node plan.AggregationNode, kv storage.KV, m *metrics.Set) *Aggregation {
	fields := make([]plan.AggField, len(node.Fields))
	copy(fields, node.Fields)
	agg := state.NewAggregator(fields, node.GroupCols, node.TieBreakCols, kv, node.StateTable)
	if m != nil {
		agg.BindMetrics(m.Dirty.WithLabelValues(node.Name))
	}
	return &Aggregation{agg: agg, kv: kv, name: node.Name, metrics: m}
}

// ProcessChunk folds the chunk into managed state and never itself
// produces output -- aggregation results are only ever emitted at a
// barrier flush (spec.md §4.5).
func (a *Aggregation) ProcessChunk(c *chunk.StreamChunk) ([]*chunk.StreamChunk, error) {
	if err := a.agg.Apply(c, a.currentEpoch); err != nil {
		return nil, err
	}
	return nil, nil
}

// ProcessBarrier implements the one-shot restore-on-first-barrier gate
// plus the dirty/not-dirty flush branches (spec.md §4.5).
func (a *Aggregation) ProcessBarrier(b barrier.Barrier) ([]*chunk.StreamChunk, error) {
	if !a.restored {
		if err := a.agg.Restore(b.Epoch.Curr); err != nil {
			return nil, err
		}
		a.restored = true
		a.currentEpoch = b.Epoch.Curr
	}

	if !a.agg.Dirty() {
		a.currentEpoch = b.Epoch.Curr
		return nil, nil
	}

	batch := a.kv.StartWriteBatch()
	a.agg.Flush(batch)
	start := time.Now()
	err := batch.Ingest(b.Epoch.Prev)
	if a.metrics != nil {
		a.metrics.FlushLatency.WithLabelValues(a.name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	newRow := a.agg.Snapshot()
	oldRow := a.agg.LastEmitted()
	a.agg.SetLastEmitted(newRow)
	a.agg.MarkFlushed(b.Epoch.Curr)
	a.currentEpoch = b.Epoch.Curr

	out, err := rowsToChunk(oldRow, newRow)
	if err != nil {
		return nil, err
	}
	return []*chunk.StreamChunk{out}, nil
}

// rowsToChunk builds the Insert-only or UpdateDelete/UpdateInsert-pair
// chunk expressing the transition from oldRow to newRow (spec.md §4.5).
func rowsToChunk(oldRow, newRow []float64) (*chunk.StreamChunk, error) {
	var ops []chunk.Op
	if oldRow == nil {
		ops = []chunk.Op{chunk.Insert}
	} else {
		ops = []chunk.Op{chunk.UpdateDelete, chunk.UpdateInsert}
	}

	// One wide row per tag, laid out column-major: field i occupies
	// column i, one value per tag row.
	cols := make([]chunk.Column, len(newRow))
	for i := range newRow {
		fc := make(chunk.Float64Column, len(ops))
		if oldRow == nil {
			fc[0] = newRow[i]
		} else {
			fc[0] = oldRow[i]
			fc[1] = newRow[i]
		}
		cols[i] = fc
	}
	return chunk.New(ops, nil, cols)
}
