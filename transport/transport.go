// Package transport ships chunk/barrier messages across the two channel
// kinds an actor's outputs can resolve to (spec.md §4.1): same-process
// (Local) and cross-process (Remote). Local wraps a routing.Sender;
// Remote compacts and optionally compresses each chunk and POSTs it to
// the peer's Server from the caller's goroutine, with no egress queue.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package transport

import (
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/routing"
)

// Output is what a dispatcher pushes a message into: either flavor of
// transport, keyed only by the (up, down) pair it was constructed for.
type Output interface {
	SendChunk(c *chunk.StreamChunk) error
	SendBarrier(b barrier.Barrier) error
	Up() string
	Down() string
	Close()
}

// Local pushes directly into an in-process routing.Channel and never
// compacts -- the receiving actor is in the same address space, so a
// physical compaction pass would only waste cycles (spec.md §4.1).
type Local struct {
	sender *routing.Sender
}

func NewLocal(s *routing.Sender) *Local { return &Local{sender: s} }

func (l *Local) SendChunk(c *chunk.StreamChunk) error {
	l.sender.Send(routing.ChunkMessage(c))
	return nil
}

func (l *Local) SendBarrier(b barrier.Barrier) error {
	l.sender.Send(routing.BarrierMessage(b))
	return nil
}

func (l *Local) Up() string   { return l.sender.Up() }
func (l *Local) Down() string { return l.sender.Down() }
func (l *Local) Close()       { l.sender.Close() }
