package dispatch_test

import (
	"testing"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/dispatch"
	"github.com/streamhouse/flowcore/transport"
)

// fakeOutput is an in-memory transport.Output test double: it records
// every chunk/barrier sent to it instead of shipping anywhere.
type fakeOutput struct {
	id     string
	chunks []*chunk.StreamChunk
}

func newFakeOutput(id string) *fakeOutput { return &fakeOutput{id: id} }

func (f *fakeOutput) SendChunk(c *chunk.StreamChunk) error {
	f.chunks = append(f.chunks, c)
	return nil
}
func (f *fakeOutput) SendBarrier(b barrier.Barrier) error { return nil }
func (f *fakeOutput) Up() string                          { return "up" }
func (f *fakeOutput) Down() string                         { return f.id }
func (f *fakeOutput) Close()                               {}

// buildScenarioChunk reproduces the 8-row hash-rewrite seed scenario: ops
// [I,I,I,D,UD,UI,UD,UI], visibility [1,1,1,0,1,1,1,1], key columns 0 and
// 2 (col1 is a non-key passenger column).
func buildScenarioChunk(t *testing.T) *chunk.StreamChunk {
	t.Helper()
	ops := []chunk.Op{chunk.Insert, chunk.Insert, chunk.Insert, chunk.Delete,
		chunk.UpdateDelete, chunk.UpdateInsert, chunk.UpdateDelete, chunk.UpdateInsert}
	vis := []bool{true, true, true, false, true, true, true, true}
	col0 := chunk.Int64Column{4, 5, 0, 1, 2, 2, 3, 3}
	col1 := chunk.Int64Column{6, 7, 0, 1, 0, 0, 3, 3}
	col2 := chunk.Int64Column{8, 9, 0, 1, 2, 2, 2, 4}
	c, err := chunk.New(ops, vis, []chunk.Column{col0, col1, col2})
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	return c
}

// The expected per-row virtual nodes below were computed offline from the
// real CRC-32 (IEEE) of each row's little-endian key bytes (col0, col2),
// the identical algorithm dispatch.Hash uses. They are then assigned to
// two actors such that: the plain-insert rows land on a mix of both, the
// same-virtual-node pair (rows 4,5) stays together on one actor, and the
// different-virtual-node pair (rows 6,7) splits into a Delete on row 6's
// own actor and an Insert on row 7's.
func scenarioMapping() dispatch.HashMapping {
	assign := func(vn int) string {
		switch vn {
		case 103: // row 0
			return "act-a"
		case 360: // row 1
			return "act-a"
		case 853: // row 2
			return "act-b"
		case 331: // rows 4 and 5 (identical key)
			return "act-b"
		case 218: // row 6's own virtual node (the rewrite's old target)
			return "act-a"
		case 349: // row 7's own virtual node (the rewrite's new target)
			return "act-b"
		default:
			return "act-a"
		}
	}
	return dispatch.NewHashMapping(dispatch.VirtualNodeCount, assign)
}

func TestHashDispatchRewritesUpdatePairs(t *testing.T) {
	c := buildScenarioChunk(t)
	mapping := scenarioMapping()

	h := dispatch.NewHash([]int{0, 2}, mapping)
	a, b := newFakeOutput("act-a"), newFakeOutput("act-b")
	if err := h.SetOutputs([]transport.Output{a, b}); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}

	if err := h.DispatchChunk(c); err != nil {
		t.Fatalf("DispatchChunk: %v", err)
	}

	if len(a.chunks) != 1 {
		t.Fatalf("expected act-a to receive one sub-chunk, got %d", len(a.chunks))
	}
	if len(b.chunks) != 1 {
		t.Fatalf("expected act-b to receive one sub-chunk, got %d", len(b.chunks))
	}

	subA, subB := a.chunks[0], b.chunks[0]
	if got := subA.VisibleCount(); got != 3 {
		t.Fatalf("act-a visible count = %d, want 3 (rows 0, 1, 6-as-Delete)", got)
	}
	if got := subB.VisibleCount(); got != 4 {
		t.Fatalf("act-b visible count = %d, want 4 (row 2, pair 4/5, 7-as-Insert)", got)
	}

	if !subA.IsVisible(6) || subA.Ops[6] != chunk.Delete {
		t.Fatalf("expected row 6 on act-a rewritten to Delete and visible, got op=%v vis=%v", subA.Ops[6], subA.IsVisible(6))
	}
	if !subB.IsVisible(7) || subB.Ops[7] != chunk.Insert {
		t.Fatalf("expected row 7 on act-b rewritten to Insert and visible, got op=%v vis=%v", subB.Ops[7], subB.IsVisible(7))
	}
	if !subB.IsVisible(4) || !subB.IsVisible(5) || subB.Ops[4] != chunk.UpdateDelete || subB.Ops[5] != chunk.UpdateInsert {
		t.Fatalf("expected the same-virtual-node pair (rows 4,5) preserved as UpdateDelete/UpdateInsert on act-b")
	}
}
