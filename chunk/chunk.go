// Package chunk implements the columnar row batch (spec.md §3): a
// StreamChunk carries up to N rows, each tagged with an operation and an
// optional visibility bit, over a fixed-per-edge set of immutable columns.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package chunk

import (
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/cmn/debug"
)

// Op is the per-row operation tag.
type Op uint8

const (
	Insert Op = iota
	Delete
	UpdateDelete
	UpdateInsert
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "I"
	case Delete:
		return "D"
	case UpdateDelete:
		return "UD"
	case UpdateInsert:
		return "UI"
	default:
		return "?"
	}
}

func (o Op) IsUpdate() bool { return o == UpdateDelete || o == UpdateInsert }

// StreamChunk is a columnar batch. Columns are immutable after
// construction and may be shared across multiple StreamChunk values that
// differ only by Visibility (cheap re-projection, spec.md §3).
type StreamChunk struct {
	Ops        []Op
	Visibility []bool // nil means "all rows visible"
	Columns    []Column
}

// New constructs a chunk and validates the update-pair adjacency invariant.
func New(ops []Op, vis []bool, cols []Column) (*StreamChunk, error) {
	c := &StreamChunk{Ops: ops, Visibility: vis, Columns: cols}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *StreamChunk) Cardinality() int { return len(c.Ops) }

func (c *StreamChunk) IsVisible(i int) bool {
	if c.Visibility == nil {
		return true
	}
	return c.Visibility[i]
}

// VisibleCount returns how many rows survive visibility filtering.
func (c *StreamChunk) VisibleCount() int {
	if c.Visibility == nil {
		return len(c.Ops)
	}
	n := 0
	for _, v := range c.Visibility {
		if v {
			n++
		}
	}
	return n
}

// Validate enforces spec.md §3's update-pair invariant: every UpdateDelete
// is immediately followed by an UpdateInsert for the same logical row, the
// pair stays adjacent, and both rows share visibility.
func (c *StreamChunk) Validate() error {
	if len(c.Visibility) != 0 && len(c.Visibility) != len(c.Ops) {
		return cos.NewErrProtocolViolation("visibility length %d != cardinality %d", len(c.Visibility), len(c.Ops))
	}
	for _, col := range c.Columns {
		if col.Len() != len(c.Ops) {
			return cos.NewErrProtocolViolation("column length %d != cardinality %d", col.Len(), len(c.Ops))
		}
	}
	for i, op := range c.Ops {
		switch op {
		case UpdateDelete:
			if i+1 >= len(c.Ops) || c.Ops[i+1] != UpdateInsert {
				return cos.NewErrProtocolViolation("UpdateDelete at row %d not immediately followed by UpdateInsert", i)
			}
			if c.IsVisible(i) != c.IsVisible(i+1) {
				return cos.NewErrProtocolViolation("update pair at rows %d,%d has mismatched visibility", i, i+1)
			}
		case UpdateInsert:
			if i == 0 || c.Ops[i-1] != UpdateDelete {
				return cos.NewErrProtocolViolation("UpdateInsert at row %d not preceded by UpdateDelete", i)
			}
		}
	}
	return nil
}

// Project returns a cheap re-projection of c with a new visibility bitmap,
// sharing Ops and Columns. This does not physically remove rows.
func (c *StreamChunk) Project(vis []bool) *StreamChunk {
	debug.Assertf(len(vis) == len(c.Ops), "vis len %d != %d", len(vis), len(c.Ops))
	return &StreamChunk{Ops: c.Ops, Visibility: vis, Columns: c.Columns}
}

// Compact physically removes invisible rows, producing a new chunk with no
// visibility bitmap (everything retained is visible). Used only by remote
// transport to shrink bytes on the wire (spec.md §4.1); local transport
// never compacts.
func (c *StreamChunk) Compact() *StreamChunk {
	if c.Visibility == nil {
		return &StreamChunk{Ops: c.Ops, Columns: c.Columns}
	}
	keep := make([]int, 0, len(c.Ops))
	for i, v := range c.Visibility {
		if v {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(c.Ops) {
		return &StreamChunk{Ops: c.Ops, Columns: c.Columns}
	}
	ops := make([]Op, len(keep))
	for i, idx := range keep {
		ops[i] = c.Ops[idx]
	}
	cols := make([]Column, len(c.Columns))
	for i, col := range c.Columns {
		cols[i] = col.Select(keep)
	}
	return &StreamChunk{Ops: ops, Columns: cols}
}

// Empty reports whether the chunk carries zero visible rows -- such
// chunks must never be sent downstream (spec.md §4.3).
func (c *StreamChunk) Empty() bool { return c.VisibleCount() == 0 }
