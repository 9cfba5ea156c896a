package operator_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/operator"
	"github.com/streamhouse/flowcore/plan"
	"github.com/streamhouse/flowcore/storage"
)

func newTestKV(t *testing.T) *storage.BuntKV {
	t.Helper()
	kv, err := storage.NewBuntKV(":memory:")
	if err != nil {
		t.Fatalf("NewBuntKV: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// TestAggregationFlushAndRetraction reproduces spec.md §8 seed scenario 4:
// RowCount, Sum(col0), Sum(col1), Min(col0) over three inserted rows, then
// a follow-up chunk that deletes two of them (one invisibly) and inserts a
// fourth, exercising Min retraction.
func TestAggregationFlushAndRetraction(t *testing.T) {
	kv := newTestKV(t)
	node := plan.AggregationNode{
		Name: "agg",
		Fields: []plan.AggField{
			{Name: "n", Kind: plan.RowCount},
			{Name: "sum0", Kind: plan.Sum, InputCol: 0},
			{Name: "sum1", Kind: plan.Sum, InputCol: 1},
			{Name: "min0", Kind: plan.Min, InputCol: 0},
		},
		TieBreakCols: []int{2},
		StateTable:   "agg",
	}
	ms := metrics.NewSet("test_agg_flush")
	agg := operator.NewAggregation(node, kv, ms)

	if got := testutil.ToFloat64(ms.Dirty.WithLabelValues("agg")); got != 0 {
		t.Fatalf("expected dirty gauge to start at 0, got %v", got)
	}

	c1, err := chunk.New(
		[]chunk.Op{chunk.Insert, chunk.Insert, chunk.Insert},
		nil,
		[]chunk.Column{
			chunk.Int64Column{100, 10, 4},
			chunk.Int64Column{200, 14, 300},
			chunk.Int64Column{1001, 1002, 1003},
		},
	)
	if err != nil {
		t.Fatalf("chunk.New c1: %v", err)
	}
	if _, err := agg.ProcessChunk(c1); err != nil {
		t.Fatalf("ProcessChunk c1: %v", err)
	}
	if got := testutil.ToFloat64(ms.Dirty.WithLabelValues("agg")); got != 1 {
		t.Fatalf("expected dirty gauge to read 1 after a mutating chunk, got %v", got)
	}

	b1 := barrier.Barrier{Epoch: barrier.Epoch{Prev: 0, Curr: 1}}
	out, err := agg.ProcessBarrier(b1)
	if err != nil {
		t.Fatalf("ProcessBarrier b1: %v", err)
	}
	if len(out) != 1 || out[0].Cardinality() != 1 || out[0].Ops[0] != chunk.Insert {
		t.Fatalf("expected a single Insert row after first flush, got %+v", out)
	}
	if got := testutil.ToFloat64(ms.Dirty.WithLabelValues("agg")); got != 0 {
		t.Fatalf("expected dirty gauge to reset to 0 after flush, got %v", got)
	}
	if n := testutil.CollectAndCount(ms.FlushLatency); n != 1 {
		t.Fatalf("expected FlushLatency to have one labeled series after a flush, got %d", n)
	}
	wantFirst := []float64{3, 114, 514, 4}
	for i, want := range wantFirst {
		got := out[0].Columns[i].(chunk.Float64Column)[0]
		if got != want {
			t.Fatalf("field %d = %v, want %v", i, got, want)
		}
	}

	c2, err := chunk.New(
		[]chunk.Op{chunk.Delete, chunk.Delete, chunk.Delete, chunk.Insert},
		[]bool{true, false, true, true},
		[]chunk.Column{
			chunk.Int64Column{100, 10, 4, 104},
			chunk.Int64Column{200, 14, 300, 500},
			chunk.Int64Column{1001, 1002, 1003, 1004},
		},
	)
	if err != nil {
		t.Fatalf("chunk.New c2: %v", err)
	}
	if _, err := agg.ProcessChunk(c2); err != nil {
		t.Fatalf("ProcessChunk c2: %v", err)
	}

	b2 := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}}
	out2, err := agg.ProcessBarrier(b2)
	if err != nil {
		t.Fatalf("ProcessBarrier b2: %v", err)
	}
	if len(out2) != 1 || out2[0].Cardinality() != 2 {
		t.Fatalf("expected an update pair after second flush, got %+v", out2)
	}
	if out2[0].Ops[0] != chunk.UpdateDelete || out2[0].Ops[1] != chunk.UpdateInsert {
		t.Fatalf("expected (UpdateDelete, UpdateInsert), got %v", out2[0].Ops)
	}
	wantOld := []float64{3, 114, 514, 4}
	wantNew := []float64{2, 114, 514, 10}
	for i := range wantOld {
		col := out2[0].Columns[i].(chunk.Float64Column)
		if col[0] != wantOld[i] || col[1] != wantNew[i] {
			t.Fatalf("field %d = (%v,%v), want (%v,%v)", i, col[0], col[1], wantOld[i], wantNew[i])
		}
	}
}

func TestAggregationNotDirtyForwardsNothing(t *testing.T) {
	kv := newTestKV(t)
	node := plan.AggregationNode{
		Fields:     []plan.AggField{{Name: "n", Kind: plan.RowCount}},
		StateTable: "agg2",
	}
	agg := operator.NewAggregation(node, kv, nil)

	b := barrier.Barrier{Epoch: barrier.Epoch{Prev: 0, Curr: 1}}
	out, err := agg.ProcessBarrier(b)
	if err != nil {
		t.Fatalf("ProcessBarrier: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no output chunk when never mutated, got %+v", out)
	}
}
