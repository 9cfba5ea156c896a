package operator_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/operator"
	"github.com/streamhouse/flowcore/plan"
)

// TestMaterializeInsertThenDelete reproduces spec.md §8 seed scenario 5:
// insert (3,6), flush, point-read sees it; delete (3,*), flush, point-read
// no longer sees it.
func TestMaterializeInsertThenDelete(t *testing.T) {
	kv := newTestKV(t)
	node := plan.MaterializeNode{PKCols: []int{0}, StateTable: "mat"}
	ms := metrics.NewSet("test_mat_flush")
	mat := operator.NewMaterialize(node, kv, ms)

	c1, err := chunk.New(
		[]chunk.Op{chunk.Insert},
		nil,
		[]chunk.Column{chunk.Int64Column{3}, chunk.Int64Column{6}},
	)
	if err != nil {
		t.Fatalf("chunk.New c1: %v", err)
	}
	fwd, err := mat.ProcessChunk(c1)
	if err != nil {
		t.Fatalf("ProcessChunk c1: %v", err)
	}
	if len(fwd) != 1 || fwd[0] != c1 {
		t.Fatalf("expected the chunk to be forwarded unchanged (tap semantics)")
	}

	if got := testutil.ToFloat64(ms.Dirty.WithLabelValues(node.Name)); got != 1 {
		t.Fatalf("expected dirty gauge to read 1 after a mutating chunk, got %v", got)
	}

	b1 := barrier.Barrier{Epoch: barrier.Epoch{Prev: 0, Curr: 1}}
	if _, err := mat.ProcessBarrier(b1); err != nil {
		t.Fatalf("ProcessBarrier b1: %v", err)
	}
	if got := testutil.ToFloat64(ms.Dirty.WithLabelValues(node.Name)); got != 0 {
		t.Fatalf("expected dirty gauge to reset to 0 after flush, got %v", got)
	}
	if n := testutil.CollectAndCount(ms.FlushLatency); n != 1 {
		t.Fatalf("expected FlushLatency to have one labeled series after a flush, got %d", n)
	}

	v, ok, err := mat.PointRead(1, int64(3))
	if err != nil || !ok || string(v) != "3,6" {
		t.Fatalf("PointRead after first barrier = %q, %v, %v; want \"3,6\"", v, ok, err)
	}

	c2, err := chunk.New(
		[]chunk.Op{chunk.Delete},
		nil,
		[]chunk.Column{chunk.Int64Column{3}, chunk.Int64Column{0}},
	)
	if err != nil {
		t.Fatalf("chunk.New c2: %v", err)
	}
	if _, err := mat.ProcessChunk(c2); err != nil {
		t.Fatalf("ProcessChunk c2: %v", err)
	}

	b2 := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}}
	if _, err := mat.ProcessBarrier(b2); err != nil {
		t.Fatalf("ProcessBarrier b2: %v", err)
	}

	_, ok, err = mat.PointRead(2, int64(3))
	if err != nil || ok {
		t.Fatalf("PointRead after second barrier = ok=%v err=%v; want absent", ok, err)
	}
}
