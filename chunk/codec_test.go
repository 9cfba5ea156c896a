package chunk_test

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/streamhouse/flowcore/chunk"
)

func buildChunk(n int) *chunk.StreamChunk {
	ops := make([]chunk.Op, n)
	vis := make([]bool, n)
	ints := make(chunk.Int64Column, n)
	floats := make(chunk.Float64Column, n)
	bools := make(chunk.BoolColumn, n)
	strs := make(chunk.StringColumn, n)
	for i := 0; i < n; i++ {
		ops[i] = chunk.Insert
		vis[i] = i%3 != 0
		ints[i] = int64(i * 7)
		floats[i] = float64(i) * 1.5
		bools[i] = i%2 == 0
		strs[i] = randString(i)
	}
	return &chunk.StreamChunk{Ops: ops, Visibility: vis, Columns: []chunk.Column{ints, floats, bools, strs}}
}

func randString(seed int) string {
	r := rand.New(rand.NewSource(int64(seed)))
	n := r.Intn(12)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.Intn(26))
	}
	return string(b)
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2048} {
		c := buildChunk(n)
		enc, err := chunk.Encode(c)
		if err != nil {
			t.Fatalf("cardinality %d: encode: %v", n, err)
		}
		dec, err := chunk.Decode(enc)
		if err != nil {
			t.Fatalf("cardinality %d: decode: %v", n, err)
		}
		if !reflect.DeepEqual(c.Ops, dec.Ops) {
			t.Fatalf("cardinality %d: ops mismatch", n)
		}
		if !reflect.DeepEqual(c.Visibility, dec.Visibility) {
			t.Fatalf("cardinality %d: visibility mismatch", n)
		}
		if !reflect.DeepEqual(c.Columns, dec.Columns) {
			t.Fatalf("cardinality %d: columns mismatch", n)
		}
	}
}

func TestRoundTripNoVisibility(t *testing.T) {
	c := buildChunk(4)
	c.Visibility = nil
	enc, err := chunk.Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := chunk.Decode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Visibility != nil {
		t.Fatalf("expected nil visibility after round trip, got %v", dec.Visibility)
	}
}
