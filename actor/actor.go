// Package actor implements the cooperative task that owns one operator
// pipeline and its channel endpoints (spec.md §4.2): the first message it
// ever reads must be a barrier, every input read is fully drained
// downstream before the next input is read, and barriers are never
// reordered with chunks.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package actor

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/cmn/mono"
	"github.com/streamhouse/flowcore/cmn/nlog"
	"github.com/streamhouse/flowcore/dispatch"
	"github.com/streamhouse/flowcore/hk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/routing"
	"github.com/streamhouse/flowcore/transport"
)

// Pipeline is the minimal operator contract an Actor drives: consume one
// input message, produce zero or more output chunks, and react to a
// barrier crossing (flush, forward, or no-op).
type Pipeline interface {
	// ProcessChunk returns the chunk(s) to forward for this input. An
	// operator that only relays (e.g. Materialize) returns its input
	// unchanged; an aggregator may return nil until a barrier flushes.
	ProcessChunk(c *chunk.StreamChunk) ([]*chunk.StreamChunk, error)
	// ProcessBarrier returns the chunk(s), if any, that must be
	// dispatched strictly before the barrier itself is forwarded
	// (spec.md §4.2's "emit before barrier" rule).
	ProcessBarrier(b barrier.Barrier) ([]*chunk.StreamChunk, error)
}

// Actor owns exactly one Pipeline, one input Receiver, and one Dispatcher
// for its outputs. It never runs its pipeline concurrently with itself.
// It reads a single input channel; it does not merge several inputs or
// align barriers across them.
type Actor struct {
	ID       string
	in       *routing.Receiver
	out      dispatch.Dispatcher
	pipeline Pipeline
	registry *routing.Registry
	resolver Resolver

	epoch            barrier.Epoch
	sawFirst         bool
	epochInitialized bool
	terminated       bool

	epochOpenedAt int64 // mono.NanoTime() of the last barrier crossing; read by the hk-driven EpochLag sampler
}

// Resolver turns a barrier.ActorInfo into a live transport.Output,
// classifying local vs. remote by host-address equality (spec.md §4.1/
// §4.4). It is supplied by the host process wiring the actor graph.
type Resolver interface {
	Resolve(up string, target barrier.ActorInfo) (transport.Output, error)
}

func New(id string, in *routing.Receiver, out dispatch.Dispatcher, p Pipeline, reg *routing.Registry, resolver Resolver) *Actor {
	return &Actor{ID: id, in: in, out: out, pipeline: p, registry: reg, resolver: resolver}
}

// EpochOpenSeconds reports how long the actor's current epoch has been
// open, or 0 before the first barrier is seen. It is read by the
// hk-registered callback BindMetrics installs (SPEC_FULL.md §9.3/§9.4).
func (a *Actor) EpochOpenSeconds() float64 {
	t := atomic.LoadInt64(&a.epochOpenedAt)
	if t == 0 {
		return 0
	}
	return mono.Since(t).Seconds()
}

// BindMetrics registers a housekeeper callback, paced at hk.PruneActiveIval,
// that samples this actor's open-epoch duration into m.EpochLag (spec's
// "set by hk.Housekeeper" contract). Calling it more than once for the same
// actor ID simply re-registers the callback under the same name. Pass a nil
// housekeeper to use the process-wide hk.DefaultHK.
func (a *Actor) BindMetrics(m *metrics.Set, housekeeper *hk.Housekeeper) *Actor {
	if m == nil {
		return a
	}
	reg := func(name string, f hk.F, interval time.Duration) {
		if housekeeper != nil {
			housekeeper.Reg(name, f, interval)
			return
		}
		hk.Reg(name, f, interval)
	}
	reg(a.ID+hk.NameSuffix, func() time.Duration {
		m.EpochLag.WithLabelValues(a.ID).Set(a.EpochOpenSeconds())
		return hk.PruneActiveIval
	}, hk.PruneActiveIval)
	return a
}

// Run drives the actor to exhaustion of its input or until it observes a
// Stop mutation naming itself (spec.md §4.2).
func (a *Actor) Run() error {
	for {
		msg, ok := a.in.Recv()
		if !ok {
			return nil
		}
		if !a.sawFirst {
			if !msg.IsBarrier() {
				return errors.Wrapf(cos.NewErrProtocolViolation(
					"actor %s: first message was not a barrier", a.ID), "actor %s", a.ID)
			}
			a.sawFirst = true
		}

		if msg.IsBarrier() {
			if err := a.handleBarrier(*msg.Barrier); err != nil {
				return err
			}
			if a.terminated {
				return nil
			}
			continue
		}

		if err := a.handleChunk(msg.Chunk); err != nil {
			return err
		}
	}
}

func (a *Actor) handleChunk(c *chunk.StreamChunk) error {
	outs, err := a.pipeline.ProcessChunk(c)
	if err != nil {
		return err
	}
	return a.dispatchAll(outs)
}

func (a *Actor) handleBarrier(b barrier.Barrier) error {
	if err := b.Epoch.Validate(); err != nil {
		return err
	}
	if a.epochInitialized && !b.Epoch.FollowsFrom(a.epoch) {
		nlog.Warningf("actor %s: barrier epoch %+v does not follow %+v", a.ID, b.Epoch, a.epoch)
	}

	if err := a.preDispatchMutation(b); err != nil {
		return err
	}

	outs, err := a.pipeline.ProcessBarrier(b)
	if err != nil {
		return err
	}
	if err := a.dispatchAll(outs); err != nil {
		return err
	}
	if err := a.out.DispatchBarrier(b); err != nil {
		return err
	}
	a.epoch = b.Epoch
	a.epochInitialized = true
	atomic.StoreInt64(&a.epochOpenedAt, mono.NanoTime())

	return a.postDispatchMutation(b)
}

func (a *Actor) dispatchAll(chunks []*chunk.StreamChunk) error {
	for _, c := range chunks {
		if c == nil || c.Empty() {
			continue
		}
		if err := a.out.DispatchChunk(c); err != nil {
			return err
		}
	}
	return nil
}
