// Package cos provides common low-level types and error kinds shared across
// flowcore packages: the typed error kinds named in spec.md §7 (protocol
// violation, routing error, storage error) plus small helpers.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package cos

import (
	"errors"
	"fmt"
	"io"
	"sync"
	ratomic "sync/atomic"

	"github.com/streamhouse/flowcore/cmn/debug"
)

type (
	// ErrProtocolViolation is fatal to the actor that raises it: first
	// message not a barrier, epochs not strictly increasing, or an
	// update-pair split by a non-update op (spec.md §7).
	ErrProtocolViolation struct {
		Reason string
	}

	// ErrNoRoute: take_sender for an absent (upstream, downstream) pair.
	ErrNoRoute struct {
		Up, Down string
	}

	// ErrStorage wraps a failure from the storage collaborator (flush,
	// ingest, or point/scan read) per spec.md §7.
	ErrStorage struct {
		Op  string
		Err error
	}

	// Errs accumulates up to maxErrs distinct errors, de-duplicated by
	// message, and joins them on demand. Used by dispatch.Broadcast to
	// fan errors back in from concurrent per-output sends.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

const maxErrs = 4

// ErrEmptyOutputSet is returned by RoundRobin.SetOutputs for an empty
// list: the source-of-truth leaves a round-robin cursor into an empty
// output list as unspecified underflow (spec.md §9 Open Question (a));
// this implementation forbids the empty set outright rather than
// reproduce the underflow.
var ErrEmptyOutputSet = errors.New("dispatch: empty output set rejected")

// ErrSimpleDispatcherFull is returned by Simple.AddOutputs when the
// dispatcher already has its one output (spec.md §9 Open Question (b)).
var ErrSimpleDispatcherFull = errors.New("dispatch: simple dispatcher already has an output")

func NewErrProtocolViolation(format string, a ...any) *ErrProtocolViolation {
	return &ErrProtocolViolation{Reason: fmt.Sprintf(format, a...)}
}

func (e *ErrProtocolViolation) Error() string { return "protocol violation: " + e.Reason }

func IsErrProtocolViolation(err error) bool {
	var e *ErrProtocolViolation
	return errors.As(err, &e)
}

func NewErrNoRoute(up, down string) *ErrNoRoute { return &ErrNoRoute{Up: up, Down: down} }

func (e *ErrNoRoute) Error() string {
	return fmt.Sprintf("no route: (%s -> %s) not present in registry", e.Up, e.Down)
}

func IsErrNoRoute(err error) bool {
	var e *ErrNoRoute
	return errors.As(err, &e)
}

func NewErrStorage(op string, err error) *ErrStorage { return &ErrStorage{Op: op, Err: err} }

func (e *ErrStorage) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *ErrStorage) Unwrap() error { return e.Err }

// Errs

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() (s string) {
	cnt := e.Cnt()
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	var err error
	if cnt = len(e.errs); cnt > 0 {
		err = e.errs[0]
	}
	e.mu.Unlock()
	if err == nil {
		return
	}
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// Close closes c and discards any error it returns (close from a defer).
func Close(c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		_ = err // best effort; caller already has the primary error if any
	}
}
