package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/plan"
	"github.com/streamhouse/flowcore/storage"
)

// candidate is one live row backing a Min/Max aggregate: its value plus
// the tie-break (primary-key) encoding that both identifies it for
// retraction and breaks ties deterministically (spec.md §4.5).
type candidate struct {
	val float64
	pk  string
}

// fieldState is the running internal state for one plan.AggField.
type fieldState struct {
	field plan.AggField

	rowCount int64
	sum      float64

	candidates map[string]*candidate // Min/Max only
}

func newFieldState(f plan.AggField) *fieldState {
	fs := &fieldState{field: f}
	if f.Kind == plan.Min || f.Kind == plan.Max {
		fs.candidates = make(map[string]*candidate)
	}
	return fs
}

func (fs *fieldState) apply(pk string, val float64, sign int64) {
	switch fs.field.Kind {
	case plan.RowCount:
		fs.rowCount += sign
	case plan.Sum:
		fs.sum += float64(sign) * val
	case plan.Avg:
		fs.rowCount += sign
		fs.sum += float64(sign) * val
	case plan.Min, plan.Max:
		if sign > 0 {
			fs.candidates[pk] = &candidate{val: val, pk: pk}
		} else {
			delete(fs.candidates, pk)
		}
	}
}

func (fs *fieldState) value() float64 {
	switch fs.field.Kind {
	case plan.RowCount:
		return float64(fs.rowCount)
	case plan.Sum:
		return fs.sum
	case plan.Avg:
		if fs.rowCount == 0 {
			return 0
		}
		return fs.sum / float64(fs.rowCount)
	case plan.Min:
		best, ok := 0.0, false
		for _, c := range fs.candidates {
			if !ok || c.val < best {
				best, ok = c.val, true
			}
		}
		return best
	case plan.Max:
		best, ok := 0.0, false
		for _, c := range fs.candidates {
			if !ok || c.val > best {
				best, ok = c.val, true
			}
		}
		return best
	}
	return 0
}

// groupState is the per-group-key row of fieldStates. flowcore's
// Aggregation operator passes an empty group key for the global,
// ungrouped aggregation spec.md §4.5 describes; non-empty keys extend
// into grouped aggregation without changing the per-row fold logic.
type groupState struct {
	fields     []*fieldState
	lastEmit   []float64
	hasEmitted bool
}

func newGroupState(fields []plan.AggField) *groupState {
	g := &groupState{fields: make([]*fieldState, len(fields))}
	for i, f := range fields {
		g.fields[i] = newFieldState(f)
	}
	return g
}

func (g *groupState) snapshot() []float64 {
	row := make([]float64, len(g.fields))
	for i, fs := range g.fields {
		row[i] = fs.value()
	}
	return row
}

// Aggregator maintains the managed state for a Simple Aggregation operator
// (spec.md §4.5): RowCount/Sum/Min/Max plus the Avg extension
// (SPEC_FULL.md §4.7). There is no separate Count call; plan.AggKind has
// no Count kind, and RowCount is the only counting aggregate. Min/Max retraction is made correct by retaining
// every live row's value keyed by its tie-break (primary-key) encoding,
// so a deleted extremum can be recomputed exactly rather than guessed.
type Aggregator struct {
	ManagedState

	fields       []plan.AggField
	groupCols    []int
	tieBreakCols []int

	kv        storage.KV
	namespace string

	groups map[string]*groupState
}

func NewAggregator(fields []plan.AggField, groupCols, tieBreakCols []int, kv storage.KV, namespace string) *Aggregator {
	return &Aggregator{
		fields:       fields,
		groupCols:    groupCols,
		tieBreakCols: tieBreakCols,
		kv:           kv,
		namespace:    namespace,
		groups:       make(map[string]*groupState),
	}
}

func floatAt(col chunk.Column, row int) (float64, error) {
	switch c := col.(type) {
	case chunk.Int64Column:
		return float64(c[row]), nil
	case chunk.Float64Column:
		return c[row], nil
	default:
		return 0, cos.NewErrProtocolViolation("aggregate input column kind %d is not numeric", col.Kind())
	}
}

func encodeCols(c *chunk.StreamChunk, cols []int, row int) string {
	var b strings.Builder
	for _, ci := range cols {
		fmt.Fprintf(&b, "%v\x00", columnValueAt(c.Columns[ci], row))
	}
	return b.String()
}

func columnValueAt(col chunk.Column, row int) any {
	switch c := col.(type) {
	case chunk.Int64Column:
		return c[row]
	case chunk.Float64Column:
		return c[row]
	case chunk.BoolColumn:
		return c[row]
	case chunk.StringColumn:
		return c[row]
	default:
		return nil
	}
}

func (a *Aggregator) groupFor(key string) *groupState {
	g, ok := a.groups[key]
	if !ok {
		g = newGroupState(a.fields)
		a.groups[key] = g
	}
	return g
}

// Apply folds every visible row's op into the managed state (spec.md
// §4.5's "per-chunk update"), marking the aggregator dirty at epoch on
// its first mutation.
func (a *Aggregator) Apply(c *chunk.StreamChunk, epoch uint64) error {
	mutated := false
	for i, op := range c.Ops {
		if !c.IsVisible(i) {
			continue
		}
		var sign int64
		switch op {
		case chunk.Insert, chunk.UpdateInsert:
			sign = 1
		case chunk.Delete, chunk.UpdateDelete:
			sign = -1
		}

		gkey := encodeCols(c, a.groupCols, i)
		pk := encodeCols(c, a.tieBreakCols, i)
		g := a.groupFor(gkey)

		for _, fs := range g.fields {
			val, err := 0.0, error(nil)
			if fs.field.Kind != plan.RowCount {
				val, err = floatAt(c.Columns[fs.field.InputCol], i)
				if err != nil {
					return err
				}
			}
			fs.apply(pk, val, sign)
		}
		mutated = true
	}
	if mutated {
		a.MarkDirty(epoch)
	}
	return nil
}

// groupKeys returns the aggregator's group keys in a stable order so
// flush/emit/restore are deterministic across runs within one process.
func (a *Aggregator) groupKeys() []string {
	keys := make([]string, 0, len(a.groups))
	for k := range a.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush writes every group's current field values into batch under this
// aggregator's namespace, one row per group (spec.md §4.5: "open a write
// batch ... flush each managed aggregator's delta into the batch").
func (a *Aggregator) Flush(batch storage.Batch) {
	for _, key := range a.groupKeys() {
		g := a.groups[key]
		row := g.snapshot()
		batch.Put(a.namespace+"\x00"+key, encodeFloats(row))
	}
}

// Restore loads prior aggregator internals for every group materialized
// so far at-or-below epoch (spec.md §4.5: "load prior aggregator
// internals from storage at the current epoch, or initialize to empty").
// Because only the flushed summary row (not the Min/Max candidate set)
// survives a restart in this reference implementation, a restored
// aggregator recomputes Min/Max afresh from subsequent Apply calls; the
// restored summary seeds RowCount/Sum/Avg and the last-emitted row used
// for update-pair emission.
func (a *Aggregator) Restore(epoch uint64) error {
	it, err := a.kv.Scan(a.namespace+"\x00", a.namespace+"\x00\xff", epoch)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		key := it.Key()
		gkey := strings.TrimPrefix(key, a.namespace+"\x00")
		row, err := decodeFloats(it.Value())
		if err != nil {
			return err
		}
		g := a.groupFor(gkey)
		for i, fs := range g.fields {
			switch fs.field.Kind {
			case plan.RowCount:
				fs.rowCount = int64(row[i])
			case plan.Sum:
				fs.sum = row[i]
			case plan.Avg:
				// sum/rowCount are not separately recoverable from a
				// single averaged value; reseed rowCount=1 so
				// subsequent deltas compose sensibly.
				fs.sum, fs.rowCount = row[i], 1
			}
		}
		g.lastEmit = row
		g.hasEmitted = true
	}
	return it.Err()
}

// Snapshot returns the current row for the global (no group-by) case --
// the shape spec.md §4.5 describes.
func (a *Aggregator) Snapshot() []float64 {
	return a.groupFor("").snapshot()
}

// LastEmitted returns the previously emitted row for the global group, or
// nil if none has ever been emitted.
func (a *Aggregator) LastEmitted() []float64 {
	g := a.groupFor("")
	if !g.hasEmitted {
		return nil
	}
	return g.lastEmit
}

// SetLastEmitted records the row just emitted for the global group.
func (a *Aggregator) SetLastEmitted(row []float64) {
	g := a.groupFor("")
	g.lastEmit = row
	g.hasEmitted = true
}

func encodeFloats(row []float64) []byte {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	return []byte(b.String())
}

func decodeFloats(raw []byte) ([]float64, error) {
	s := string(raw)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	row := make([]float64, len(parts))
	for i, p := range parts {
		if _, err := fmt.Sscanf(p, "%g", &row[i]); err != nil {
			return nil, cos.NewErrStorage("decode_aggregate_row", err)
		}
	}
	return row, nil
}
