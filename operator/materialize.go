package operator

import (
	"fmt"
	"strings"
	"time"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/plan"
	"github.com/streamhouse/flowcore/state"
	"github.com/streamhouse/flowcore/storage"
)

// Materialize implements the Materialization (tap) operator (spec.md
// §4.6): every visible row upserts into a key-ordered table by configured
// key columns, the chunk is forwarded unchanged, and pending writes flush
// atomically at the closing barrier's prev epoch.
type Materialize struct {
	state.ManagedState

	pkCols     []int
	stateTable string
	kv         storage.KV

	pending storage.Batch

	name    string
	metrics *metrics.Set
}

// NewMaterialize builds a Materialize operator. m may be nil (no ambient
// metrics bound); a non-nil m has node.Name's dirty gauge and
// flush-latency histogram wired in (SPEC_FULL.md §9.4).
func NewMaterialize(node plan.MaterializeNode, kv storage.KV, m *metrics.Set) *Materialize {
	mat := &Materialize{pkCols: node.PKCols, stateTable: node.StateTable, kv: kv, name: node.Name, metrics: m}
	if m != nil {
		mat.BindMetrics(m.Dirty.WithLabelValues(node.Name))
	}
	return mat
}

func (m *Materialize) keyFor(c *chunk.StreamChunk, row int) string {
	var b strings.Builder
	b.WriteString(m.stateTable)
	b.WriteByte(0)
	for _, ci := range m.pkCols {
		fmt.Fprintf(&b, "%v\x00", columnValueAt(c.Columns[ci], row))
	}
	return b.String()
}

func valueRow(c *chunk.StreamChunk, row int) []byte {
	var b strings.Builder
	for i, col := range c.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%v", columnValueAt(col, row))
	}
	return []byte(b.String())
}

// ProcessChunk maps ops to put/delete against the pending batch and
// forwards the chunk unchanged -- materialization is a tap, not a sink
// (spec.md §4.6).
func (m *Materialize) ProcessChunk(c *chunk.StreamChunk) ([]*chunk.StreamChunk, error) {
	if m.pending == nil {
		m.pending = m.kv.StartWriteBatch()
	}
	mutated := false
	for i, op := range c.Ops {
		if !c.IsVisible(i) {
			continue
		}
		key := m.keyFor(c, i)
		switch op {
		case chunk.Insert, chunk.UpdateInsert:
			m.pending.Put(key, valueRow(c, i))
		case chunk.Delete, chunk.UpdateDelete:
			m.pending.Delete(key)
		}
		mutated = true
	}
	if mutated {
		m.MarkDirty(0)
	}
	return []*chunk.StreamChunk{c}, nil
}

// ProcessBarrier flushes all pending puts/deletes atomically at the
// barrier's prev epoch, then forwards the barrier (spec.md §4.6).
func (m *Materialize) ProcessBarrier(b barrier.Barrier) ([]*chunk.StreamChunk, error) {
	if !m.Dirty() {
		return nil, nil
	}
	start := time.Now()
	err := m.pending.Ingest(b.Epoch.Prev)
	if m.metrics != nil {
		m.metrics.FlushLatency.WithLabelValues(m.name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	m.pending = nil
	m.MarkFlushed(b.Epoch.Curr)
	return nil, nil
}

// PointRead reads the materialized value for the given primary-key tuple
// at epoch, for callers (tests, the example host) that want to observe
// materialization results directly (spec.md §8 seed scenario 5).
func (m *Materialize) PointRead(epoch uint64, pkValues ...any) ([]byte, bool, error) {
	var b strings.Builder
	b.WriteString(m.stateTable)
	b.WriteByte(0)
	for _, v := range pkValues {
		fmt.Fprintf(&b, "%v\x00", v)
	}
	return m.kv.PointRead(b.String(), epoch)
}
