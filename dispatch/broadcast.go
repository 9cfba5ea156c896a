package dispatch

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/transport"
)

// Broadcast clones every chunk to every output; the output set is keyed
// by actor id and duplicates are rejected (spec.md §4.3). Fan-out is
// concurrent via errgroup, mirroring the teacher's concurrent
// per-destination send loop in its stream bundle; per-output send
// failures are collected into a cos.Errs rather than short-circuited on
// the first one, so a caller sees every output that failed (spec.md §7).
type Broadcast struct {
	mu   sync.Mutex
	outs []transport.Output

	metrics *metrics.Set
}

func NewBroadcast() *Broadcast { return &Broadcast{} }

// WithMetrics binds m's ChunksDispatched/RowsRouted counters (SPEC_FULL.md
// §9.4) to this dispatcher's sends; m may be nil to leave it unbound.
func (d *Broadcast) WithMetrics(m *metrics.Set) *Broadcast {
	d.metrics = m
	return d
}

func (d *Broadcast) DispatchChunk(c *chunk.StreamChunk) error {
	d.mu.Lock()
	outs := append([]transport.Output(nil), d.outs...)
	d.mu.Unlock()

	if c == nil || c.VisibleCount() == 0 {
		return nil
	}
	if d.metrics != nil {
		d.metrics.ChunksDispatched.WithLabelValues("broadcast").Inc()
	}
	var g errgroup.Group
	var errs cos.Errs
	for _, o := range outs {
		o := o
		g.Go(func() error {
			if err := o.SendChunk(c); err != nil {
				errs.Add(err)
				return nil
			}
			if d.metrics != nil {
				d.metrics.RowsRouted.WithLabelValues(o.Down()).Add(float64(c.VisibleCount()))
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil; failures are fanned into errs instead
	if _, err := errs.JoinErr(); err != nil {
		return err
	}
	return nil
}

// DispatchBarrier fans the barrier out to every output concurrently; a
// send failure on one output doesn't stop the others, and every distinct
// failure (up to cos.Errs' cap) is surfaced in the returned error
// (spec.md §7).
func (d *Broadcast) DispatchBarrier(b barrier.Barrier) error {
	d.mu.Lock()
	outs := append([]transport.Output(nil), d.outs...)
	d.mu.Unlock()

	var g errgroup.Group
	var errs cos.Errs
	for _, o := range outs {
		o := o
		g.Go(func() error {
			if err := o.SendBarrier(b); err != nil {
				errs.Add(err)
			}
			return nil
		})
	}
	_ = g.Wait() // goroutines always return nil; failures are fanned into errs instead
	if _, err := errs.JoinErr(); err != nil {
		return err
	}
	return nil
}

func (d *Broadcast) SetOutputs(outs []transport.Output) error {
	if err := rejectDuplicates(outs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outs = append([]transport.Output(nil), outs...)
	return nil
}

func (d *Broadcast) AddOutputs(outs []transport.Output) error {
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

func (d *Broadcast) RemoveOutputs(ids map[string]struct{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.outs[:0]
	for _, o := range d.outs {
		if _, drop := ids[idOf(o)]; !drop {
			kept = append(kept, o)
		}
	}
	d.outs = kept
	return nil
}

var _ Dispatcher = (*Broadcast)(nil)
