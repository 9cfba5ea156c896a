// Package routing implements the channel & routing fabric (spec.md §4.1):
// a bounded, in-order, single-producer/single-consumer queue of messages
// keyed in a process-wide registry by (upstream, downstream).
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package routing

import (
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
)

// Message is either a Chunk or a Barrier, never both (spec.md §3).
type Message struct {
	Chunk   *chunk.StreamChunk
	Barrier *barrier.Barrier
}

func ChunkMessage(c *chunk.StreamChunk) Message     { return Message{Chunk: c} }
func BarrierMessage(b barrier.Barrier) Message      { return Message{Barrier: &b} }
func (m Message) IsBarrier() bool                   { return m.Barrier != nil }

// Channel is a bounded FIFO of Message, created once per edge. Local
// channel sends never fail (bounded backpressure only, spec.md §7); the
// only way to observe termination on the send side is a closed channel,
// which a well-behaved actor graph never does mid-epoch.
type Channel struct {
	up, down string
	ch       chan Message
}

func newChannel(up, down string, capacity int) *Channel {
	return &Channel{up: up, down: down, ch: make(chan Message, capacity)}
}

func (c *Channel) Up() string   { return c.up }
func (c *Channel) Down() string { return c.down }

// Sender is the exclusively-owned write end of a Channel.
type Sender struct{ ch *Channel }

// Send blocks until there is capacity (backpressure, spec.md §5); it never
// returns an error for a live channel.
func (s *Sender) Send(m Message) { s.ch.ch <- m }

func (s *Sender) Up() string   { return s.ch.up }
func (s *Sender) Down() string { return s.ch.down }

// Close signals the receiver that no more messages will arrive. Only the
// sole writer may call this, after forwarding a Stop barrier or on abort.
func (s *Sender) Close() { close(s.ch.ch) }

// Receiver is the exclusively-owned read end of a Channel.
type Receiver struct{ ch *Channel }

// Recv blocks until a message is available; ok is false once the sender
// has closed the channel and all buffered messages are drained.
func (r *Receiver) Recv() (Message, bool) {
	m, ok := <-r.ch.ch
	return m, ok
}

func (r *Receiver) Up() string   { return r.ch.up }
func (r *Receiver) Down() string { return r.ch.down }

// NewPair constructs one Channel and returns its two exclusively-owned
// ends -- the caller is expected to register them via Registry.AddPair
// and then move each end into exactly one dispatcher/merger.
func NewPair(up, down string, capacity int) (*Sender, *Receiver) {
	ch := newChannel(up, down, capacity)
	return &Sender{ch: ch}, &Receiver{ch: ch}
}
