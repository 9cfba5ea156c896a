package chunk

// ColumnKind is the closed set of physical column encodings named in
// spec.md §6: fixed-width for integers/dates/times, length-prefixed for
// variable-width (strings). BoolColumn doubles as the physical
// representation a visibility bitmap would take on the wire.
type ColumnKind uint8

const (
	KindInt64 ColumnKind = iota
	KindFloat64
	KindBool
	KindString
)

// Column is an immutable, typed slice of row values.
type Column interface {
	Kind() ColumnKind
	Len() int
	// Select returns a new Column holding only the rows named by keep, in
	// order. Used by StreamChunk.Compact (physical row removal).
	Select(keep []int) Column
}

type Int64Column []int64

func (c Int64Column) Kind() ColumnKind { return KindInt64 }
func (c Int64Column) Len() int         { return len(c) }
func (c Int64Column) Select(keep []int) Column {
	out := make(Int64Column, len(keep))
	for i, idx := range keep {
		out[i] = c[idx]
	}
	return out
}

type Float64Column []float64

func (c Float64Column) Kind() ColumnKind { return KindFloat64 }
func (c Float64Column) Len() int         { return len(c) }
func (c Float64Column) Select(keep []int) Column {
	out := make(Float64Column, len(keep))
	for i, idx := range keep {
		out[i] = c[idx]
	}
	return out
}

type BoolColumn []bool

func (c BoolColumn) Kind() ColumnKind { return KindBool }
func (c BoolColumn) Len() int         { return len(c) }
func (c BoolColumn) Select(keep []int) Column {
	out := make(BoolColumn, len(keep))
	for i, idx := range keep {
		out[i] = c[idx]
	}
	return out
}

type StringColumn []string

func (c StringColumn) Kind() ColumnKind { return KindString }
func (c StringColumn) Len() int         { return len(c) }
func (c StringColumn) Select(keep []int) Column {
	out := make(StringColumn, len(keep))
	for i, idx := range keep {
		out[i] = c[idx]
	}
	return out
}
