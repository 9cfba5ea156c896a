package dispatch

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"sync"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/transport"
)

// HashMapping is a fixed-length vector of size V (a power of two,
// typically 1024) from virtual node to downstream actor id (spec.md §3).
// It is read-only after barrier-driven installation; concurrent readers
// need no synchronization.
type HashMapping []string

// VirtualNodeCount is the conventional default V from spec.md §3.
const VirtualNodeCount = 1024

func NewHashMapping(v int, assign func(vnode int) string) HashMapping {
	m := make(HashMapping, v)
	for i := range m {
		m[i] = assign(i)
	}
	return m
}

// Hash shards rows by a 32-bit CRC over the concatenation of each row's
// key-column byte encodings, reduced modulo len(mapping) to a virtual
// node, then routed to the output whose actor id equals mapping[vnode]
// (spec.md §4.3). Update pairs that land on different virtual nodes are
// rewritten to (Delete, Insert); same-virtual-node pairs pass through
// unchanged.
type Hash struct {
	keyCols []int
	mapping HashMapping

	mu      sync.Mutex
	outs    map[string]transport.Output // keyed by actor id (Down())
	outList []transport.Output          // stable order for output-chunk construction

	metrics *metrics.Set
}

func NewHash(keyCols []int, mapping HashMapping) *Hash {
	return &Hash{
		keyCols: append([]int(nil), keyCols...),
		mapping: mapping,
		outs:    make(map[string]transport.Output),
	}
}

// WithMetrics binds m's ChunksDispatched/RowsRouted counters (SPEC_FULL.md
// §9.4) to this dispatcher's sends; m may be nil to leave it unbound.
func (d *Hash) WithMetrics(m *metrics.Set) *Hash {
	d.metrics = m
	return d
}

func (d *Hash) virtualNode(c *chunk.StreamChunk, row int) int {
	crc := crc32.NewIEEE()
	var scratch [8]byte
	for _, col := range d.keyCols {
		writeKeyBytes(crc, &scratch, c.Columns[col], row)
	}
	return int(crc.Sum32() % uint32(len(d.mapping)))
}

func writeKeyBytes(w interface{ Write([]byte) (int, error) }, scratch *[8]byte, col chunk.Column, row int) {
	switch c := col.(type) {
	case chunk.Int64Column:
		binary.LittleEndian.PutUint64(scratch[:], uint64(c[row]))
		w.Write(scratch[:])
	case chunk.Float64Column:
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(c[row]))
		w.Write(scratch[:])
	case chunk.BoolColumn:
		if c[row] {
			w.Write([]byte{1})
		} else {
			w.Write([]byte{0})
		}
	case chunk.StringColumn:
		w.Write([]byte(c[row]))
	}
}

// actorForVN resolves mapping[vn] to its live output, if currently
// configured; a vnode naming an actor id with no matching output
// (mid-reconfiguration) is treated as "no output" and the row is simply
// not routed there.
func (d *Hash) actorForVN(vn int) (transport.Output, bool) {
	id := d.mapping[vn]
	out, ok := d.outs[id]
	return out, ok
}

func (d *Hash) DispatchChunk(c *chunk.StreamChunk) error {
	if c == nil || c.Cardinality() == 0 {
		return nil
	}
	d.mu.Lock()
	outList := append([]transport.Output(nil), d.outList...)
	d.mu.Unlock()
	if len(outList) == 0 {
		return cos.NewErrProtocolViolation("hash dispatcher: no outputs configured")
	}

	n := c.Cardinality()
	vis := make(map[string][]bool, len(outList))
	ops := make(map[string][]chunk.Op, len(outList))
	for _, o := range outList {
		vis[idOf(o)] = make([]bool, n)
		ops[idOf(o)] = append([]chunk.Op(nil), c.Ops...)
	}

	i := 0
	for i < n {
		op := c.Ops[i]
		if op.IsUpdate() && i+1 < n && c.Ops[i+1] == chunk.UpdateInsert {
			d.routeUpdatePair(c, i, vis, ops)
			i += 2
			continue
		}
		d.routeSingleRow(c, i, vis, ops)
		i++
	}

	dispatched := false
	for _, o := range outList {
		id := idOf(o)
		sub := chunk.StreamChunk{Ops: ops[id], Visibility: vis[id], Columns: c.Columns}
		if sub.VisibleCount() == 0 {
			continue
		}
		if err := o.SendChunk(&sub); err != nil {
			return err
		}
		dispatched = true
		if d.metrics != nil {
			d.metrics.RowsRouted.WithLabelValues(o.Down()).Add(float64(sub.VisibleCount()))
		}
	}
	if dispatched && d.metrics != nil {
		d.metrics.ChunksDispatched.WithLabelValues("hash").Inc()
	}
	return nil
}

// routeSingleRow handles a non-paired row (Insert/Delete, or an
// invisible/unpaired update row passed through with tag/visibility
// unchanged on its own virtual node's output).
func (d *Hash) routeSingleRow(c *chunk.StreamChunk, i int, vis map[string][]bool, ops map[string][]chunk.Op) {
	if !c.IsVisible(i) {
		return
	}
	vn := d.virtualNode(c, i)
	out, ok := d.actorForVN(vn)
	if !ok {
		return
	}
	id := idOf(out)
	vis[id][i] = true
}

// routeUpdatePair implements the update-pair rewrite rule (spec.md
// §4.3): same virtual node keeps UpdateDelete/UpdateInsert unchanged on
// that output; different virtual nodes rewrite to (Delete, Insert)
// split across the two outputs. Invisible pairs pass through with tags
// preserved and visibility unchanged (still governed by their own
// virtual node, computed once).
func (d *Hash) routeUpdatePair(c *chunk.StreamChunk, i int, vis map[string][]bool, ops map[string][]chunk.Op) {
	visible := c.IsVisible(i) && c.IsVisible(i+1)
	vnOld := d.virtualNode(c, i)
	vnNew := d.virtualNode(c, i+1)

	outOld, okOld := d.actorForVN(vnOld)
	outNew, okNew := d.actorForVN(vnNew)

	if vnOld == vnNew {
		if !okOld || !visible {
			if okOld && !visible {
				id := outOld.Down()
				vis[id][i] = false
				vis[id][i+1] = false
			}
			return
		}
		id := outOld.Down()
		vis[id][i] = true
		vis[id][i+1] = true
		return
	}

	if !visible {
		if okOld {
			id := outOld.Down()
			ops[id][i] = chunk.UpdateDelete
			vis[id][i] = false
		}
		if okNew {
			id := outNew.Down()
			ops[id][i+1] = chunk.UpdateInsert
			vis[id][i+1] = false
		}
		return
	}

	if okOld {
		id := outOld.Down()
		ops[id][i] = chunk.Delete
		vis[id][i] = true
	}
	if okNew {
		id := outNew.Down()
		ops[id][i+1] = chunk.Insert
		vis[id][i+1] = true
	}
}

func (d *Hash) DispatchBarrier(b barrier.Barrier) error {
	d.mu.Lock()
	outs := append([]transport.Output(nil), d.outList...)
	d.mu.Unlock()
	for _, o := range outs {
		if err := o.SendBarrier(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *Hash) SetOutputs(outs []transport.Output) error {
	if err := rejectDuplicates(outs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outs = make(map[string]transport.Output, len(outs))
	d.outList = append([]transport.Output(nil), outs...)
	for _, o := range outs {
		d.outs[idOf(o)] = o
	}
	return nil
}

func (d *Hash) AddOutputs(outs []transport.Output) error {
	d.mu.Lock()
	merged := append(append([]transport.Output(nil), d.outList...), outs...)
	d.mu.Unlock()

	if err := rejectDuplicates(merged); err != nil {
		return err
	}

	d.mu.Lock()
	d.outs = make(map[string]transport.Output, len(merged))
	d.outList = merged
	for _, o := range merged {
		d.outs[idOf(o)] = o
	}
	d.mu.Unlock()
	return nil
}

func (d *Hash) RemoveOutputs(ids map[string]struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.outList[:0]
	for _, o := range d.outList {
		if _, drop := ids[idOf(o)]; !drop {
			kept = append(kept, o)
		} else {
			delete(d.outs, idOf(o))
		}
	}
	d.outList = kept
	return nil
}

var _ Dispatcher = (*Hash)(nil)
