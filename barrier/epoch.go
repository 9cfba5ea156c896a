// Package barrier implements the sole control message of the system
// (spec.md §3/§4.4): Epoch, Barrier, its Mutation variants, and ActorInfo.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package barrier

import "github.com/streamhouse/flowcore/cmn/cos"

// Epoch is a (prev, curr) pair; curr must exceed prev. Epoch 0 is reserved
// "invalid" -- the first real epoch is the initial barrier delivered to
// every actor before any chunk (spec.md §3).
type Epoch struct {
	Prev uint64
	Curr uint64
}

func (e Epoch) Validate() error {
	if e.Curr <= e.Prev {
		return cos.NewErrProtocolViolation("epoch not strictly increasing: prev=%d curr=%d", e.Prev, e.Curr)
	}
	return nil
}

// FollowsFrom reports whether e is the next epoch after prior, i.e.
// e.Prev == prior.Curr, as required by the barrier sequence's total order.
func (e Epoch) FollowsFrom(prior Epoch) bool { return e.Prev == prior.Curr }

func (e Epoch) Invalid() bool { return e.Curr == 0 }
