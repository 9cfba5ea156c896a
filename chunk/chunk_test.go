package chunk_test

import (
	"testing"

	"github.com/streamhouse/flowcore/chunk"
)

func TestValidateUpdatePairAdjacency(t *testing.T) {
	ops := []chunk.Op{chunk.Insert, chunk.UpdateDelete, chunk.UpdateInsert, chunk.Delete}
	cols := []chunk.Column{chunk.Int64Column{1, 2, 3, 4}}
	if _, err := chunk.New(ops, nil, cols); err != nil {
		t.Fatalf("expected valid chunk, got %v", err)
	}

	bad := []chunk.Op{chunk.UpdateDelete, chunk.Insert}
	if _, err := chunk.New(bad, nil, []chunk.Column{chunk.Int64Column{1, 2}}); err == nil {
		t.Fatal("expected error for split update pair")
	}
}

func TestValidateUpdatePairVisibilityMustMatch(t *testing.T) {
	ops := []chunk.Op{chunk.UpdateDelete, chunk.UpdateInsert}
	vis := []bool{true, false}
	cols := []chunk.Column{chunk.Int64Column{1, 2}}
	if _, err := chunk.New(ops, vis, cols); err == nil {
		t.Fatal("expected error for mismatched update-pair visibility")
	}
}

func TestCompactRemovesInvisibleRows(t *testing.T) {
	ops := []chunk.Op{chunk.Insert, chunk.Delete, chunk.Insert}
	vis := []bool{true, false, true}
	cols := []chunk.Column{chunk.Int64Column{10, 20, 30}}
	c, err := chunk.New(ops, vis, cols)
	if err != nil {
		t.Fatal(err)
	}
	cc := c.Compact()
	if cc.Cardinality() != 2 {
		t.Fatalf("expected cardinality 2 after compact, got %d", cc.Cardinality())
	}
	if cc.Visibility != nil {
		t.Fatalf("compacted chunk should have nil visibility, got %v", cc.Visibility)
	}
	got := cc.Columns[0].(chunk.Int64Column)
	want := chunk.Int64Column{10, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("compact column mismatch at %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestProjectSharesColumns(t *testing.T) {
	ops := []chunk.Op{chunk.Insert, chunk.Insert}
	cols := []chunk.Column{chunk.Int64Column{1, 2}}
	c, err := chunk.New(ops, nil, cols)
	if err != nil {
		t.Fatal(err)
	}
	p := c.Project([]bool{true, false})
	if p.VisibleCount() != 1 {
		t.Fatalf("expected 1 visible row, got %d", p.VisibleCount())
	}
	if &p.Columns[0] != &c.Columns[0] {
		t.Fatal("expected the projection to share its source's column slice")
	}
}

func TestEmpty(t *testing.T) {
	c := &chunk.StreamChunk{Ops: []chunk.Op{chunk.Insert}, Visibility: []bool{false}, Columns: []chunk.Column{chunk.Int64Column{1}}}
	if !c.Empty() {
		t.Fatal("expected chunk with all rows hidden to be Empty()")
	}
}
