package dispatch

import (
	"sync"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/transport"
)

// RoundRobin rotates a cursor over the output list on every dispatched
// chunk; barriers still broadcast to all outputs (spec.md §4.3). The
// cursor is clamped to stay in-range after SetOutputs/RemoveOutputs
// shrink the list.
type RoundRobin struct {
	mu     sync.Mutex
	outs   []transport.Output
	cursor int

	metrics *metrics.Set
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

// WithMetrics binds m's ChunksDispatched/RowsRouted counters (SPEC_FULL.md
// §9.4) to this dispatcher's sends; m may be nil to leave it unbound.
func (d *RoundRobin) WithMetrics(m *metrics.Set) *RoundRobin {
	d.metrics = m
	return d
}

func (d *RoundRobin) DispatchChunk(c *chunk.StreamChunk) error {
	d.mu.Lock()
	if len(d.outs) == 0 {
		d.mu.Unlock()
		return cos.NewErrProtocolViolation("round-robin dispatcher: no outputs configured")
	}
	out := d.outs[d.cursor]
	d.cursor = (d.cursor + 1) % len(d.outs)
	d.mu.Unlock()
	if c == nil || c.VisibleCount() == 0 {
		return nil
	}
	if err := out.SendChunk(c); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.ChunksDispatched.WithLabelValues("round_robin").Inc()
		d.metrics.RowsRouted.WithLabelValues(out.Down()).Add(float64(c.VisibleCount()))
	}
	return nil
}

func (d *RoundRobin) DispatchBarrier(b barrier.Barrier) error {
	d.mu.Lock()
	outs := append([]transport.Output(nil), d.outs...)
	d.mu.Unlock()
	for _, o := range outs {
		if err := o.SendBarrier(b); err != nil {
			return err
		}
	}
	return nil
}

func (d *RoundRobin) SetOutputs(outs []transport.Output) error {
	if len(outs) == 0 {
		return cos.ErrEmptyOutputSet
	}
	if err := rejectDuplicates(outs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outs = append([]transport.Output(nil), outs...)
	if d.cursor >= len(d.outs) {
		d.cursor = len(d.outs) - 1
	}
	return nil
}

func (d *RoundRobin) AddOutputs(outs []transport.Output) error {
	d.mu.Lock()
	merged := append(append([]transport.Output(nil), d.outs...), outs...)
	d.mu.Unlock()

	if err := rejectDuplicates(merged); err != nil {
		return err
	}

	d.mu.Lock()
	d.outs = merged
	d.mu.Unlock()
	return nil
}

func (d *RoundRobin) RemoveOutputs(ids map[string]struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.outs[:0]
	for _, o := range d.outs {
		if _, drop := ids[idOf(o)]; !drop {
			kept = append(kept, o)
		}
	}
	d.outs = kept
	if len(d.outs) == 0 {
		d.cursor = 0
	} else if d.cursor >= len(d.outs) {
		d.cursor = len(d.outs) - 1
	}
	return nil
}

var _ Dispatcher = (*RoundRobin)(nil)
