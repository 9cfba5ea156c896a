package dispatch

import (
	"sync"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/transport"
)

// Simple holds exactly one output. RemoveOutputs that would empty it is
// fatal (the actor must be stopped instead, spec.md §4.3); AddOutputs on
// an already-populated dispatcher is rejected rather than silently
// overwriting the sole output (spec.md §9 Open Question (b)).
type Simple struct {
	mu  sync.Mutex
	out transport.Output

	metrics *metrics.Set
}

func NewSimple() *Simple { return &Simple{} }

// WithMetrics binds m's ChunksDispatched/RowsRouted counters (SPEC_FULL.md
// §9.4) to this dispatcher's sends; m may be nil to leave it unbound.
func (d *Simple) WithMetrics(m *metrics.Set) *Simple {
	d.metrics = m
	return d
}

func (d *Simple) DispatchChunk(c *chunk.StreamChunk) error {
	d.mu.Lock()
	out := d.out
	d.mu.Unlock()
	if out == nil {
		return cos.NewErrProtocolViolation("simple dispatcher: no output configured")
	}
	if c == nil || c.VisibleCount() == 0 {
		return nil
	}
	if err := out.SendChunk(c); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.ChunksDispatched.WithLabelValues("simple").Inc()
		d.metrics.RowsRouted.WithLabelValues(out.Down()).Add(float64(c.VisibleCount()))
	}
	return nil
}

func (d *Simple) DispatchBarrier(b barrier.Barrier) error {
	d.mu.Lock()
	out := d.out
	d.mu.Unlock()
	if out == nil {
		return cos.NewErrProtocolViolation("simple dispatcher: no output configured")
	}
	return out.SendBarrier(b)
}

func (d *Simple) SetOutputs(outs []transport.Output) error {
	if len(outs) != 1 {
		return cos.NewErrProtocolViolation("simple dispatcher: expected exactly one output, got %d", len(outs))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = outs[0]
	return nil
}

// AddOutputs on a Simple dispatcher that already has an output is
// rejected: the teacher's analogous SingleStreamer.add_outputs silently
// overwrites, which the source-of-truth marks as unspecified/likely-bug
// behavior -- this implementation treats it as a protocol violation
// instead.
func (d *Simple) AddOutputs(outs []transport.Output) error {
	if len(outs) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out != nil {
		return cos.ErrSimpleDispatcherFull
	}
	if len(outs) != 1 {
		return cos.NewErrProtocolViolation("simple dispatcher: expected exactly one output, got %d", len(outs))
	}
	d.out = outs[0]
	return nil
}

// RemoveOutputs emptying the sole output is fatal: callers must stop the
// actor instead of leaving a Simple dispatcher with nowhere to send
// (spec.md §4.3).
func (d *Simple) RemoveOutputs(ids map[string]struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return nil
	}
	if _, drop := ids[idOf(d.out)]; drop {
		return cos.NewErrProtocolViolation("simple dispatcher: remove_outputs would empty the sole output; stop the actor instead")
	}
	return nil
}

var _ Dispatcher = (*Simple)(nil)
