// Package dispatch implements the sharding stage at an actor's output
// (spec.md §4.3): Broadcast, Simple, RoundRobin, and Hash dispatchers,
// all exposing the same five-method Dispatcher interface, which is what
// an actor holds.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package dispatch

import (
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/transport"
)

// Dispatcher is the common capability set of every sharding policy
// (spec.md §4.3).
type Dispatcher interface {
	DispatchChunk(c *chunk.StreamChunk) error
	DispatchBarrier(b barrier.Barrier) error
	SetOutputs(outs []transport.Output) error
	AddOutputs(outs []transport.Output) error
	RemoveOutputs(ids map[string]struct{}) error
}

func idOf(out transport.Output) string { return out.Down() }

func rejectDuplicates(outs []transport.Output) error {
	seen := make(map[string]struct{}, len(outs))
	for _, o := range outs {
		id := idOf(o)
		if _, ok := seen[id]; ok {
			return cos.NewErrProtocolViolation("dispatch: duplicate output actor id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
