// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/streamhouse/flowcore/cmn/nlog"
)

// NameSuffix disambiguates a callback name from the object it cleans up,
// matching the teacher's `r.ID()+hk.NameSuffix` convention.
const NameSuffix = ".hk"

const (
	UnregInterval = -1 * time.Second
	DayInterval   = 24 * time.Hour
	// PruneActiveIval mirrors the teacher's notification-pruning cadence;
	// here it paces the actor epoch-stall sweep (SPEC_FULL.md §9.3).
	PruneActiveIval = 10 * time.Second
)

// F is a registered housekeeping callback. Its return value is the delay
// until it runs again; returning UnregInterval unregisters it.
type F func() time.Duration

type request struct {
	name     string
	f        F
	due      time.Time
	interval time.Duration
}

type requestHeap []*request

func (h requestHeap) Len() int            { return len(h) }
func (h requestHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x interface{}) { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Housekeeper runs a process-wide registry of named periodic callbacks on
// a single ticking goroutine (SPEC_FULL.md §9.3 / §5), analogous to the
// teacher's transport/xact idle-teardown and pruning callbacks but here
// watching actor epoch staleness instead of HTTP stream idleness.
type Housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*request
	pending requestHeap
	wake    chan struct{}
	started chan struct{}
	stop    chan struct{}
	onceRun sync.Once
}

var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*request),
		wake:    make(chan struct{}, 1),
		started: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// TestInit resets DefaultHK for test isolation (mirrors the teacher's
// hk.TestInit used by hk_test and bench/tools/aisloader).
func TestInit() { DefaultHK = New() }

func Reg(name string, f F, interval time.Duration) { DefaultHK.Reg(name, f, interval) }
func Unreg(name string)                            { DefaultHK.Unreg(name) }
func UnregIf(name string, cond bool) {
	if cond {
		DefaultHK.Unreg(name)
	}
}
func WaitStarted() { DefaultHK.WaitStarted() }

func (hk *Housekeeper) Reg(name string, f F, interval time.Duration) {
	hk.mu.Lock()
	defer hk.mu.Unlock()

	if old, ok := hk.byName[name]; ok {
		hk.removeLocked(old)
	}
	r := &request{name: name, f: f, interval: interval, due: time.Now().Add(interval)}
	hk.byName[name] = r
	heap.Push(&hk.pending, r)
	hk.nudge()
}

func (hk *Housekeeper) Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if r, ok := hk.byName[name]; ok {
		hk.removeLocked(r)
	}
}

func (hk *Housekeeper) removeLocked(r *request) {
	delete(hk.byName, r.name)
	for i, p := range hk.pending {
		if p == r {
			heap.Remove(&hk.pending, i)
			return
		}
	}
}

func (hk *Housekeeper) nudge() {
	select {
	case hk.wake <- struct{}{}:
	default:
	}
}

// WaitStarted blocks until Run's goroutine has entered its loop, so a
// caller that just did `go hk.DefaultHK.Run()` can safely Reg callbacks.
func (hk *Housekeeper) WaitStarted() { <-hk.started }

// Run drives every registered callback on its own schedule until Stop is
// called. It is meant to run on its own goroutine for the lifetime of the
// process (spec.md §5: "its own ticking goroutine").
func (hk *Housekeeper) Run() {
	hk.onceRun.Do(func() { close(hk.started) })

	for {
		hk.mu.Lock()
		var timer *time.Timer
		if len(hk.pending) > 0 {
			d := time.Until(hk.pending[0].due)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
		}
		hk.mu.Unlock()

		var fired <-chan time.Time
		if timer != nil {
			fired = timer.C
		}

		select {
		case <-hk.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-hk.wake:
			if timer != nil {
				timer.Stop()
			}
			continue
		case <-fired:
			hk.fireDue()
		}
	}
}

func (hk *Housekeeper) fireDue() {
	hk.mu.Lock()
	now := time.Now()
	var due []*request
	for len(hk.pending) > 0 && !hk.pending[0].due.After(now) {
		r := heap.Pop(&hk.pending).(*request)
		due = append(due, r)
	}
	hk.mu.Unlock()

	for _, r := range due {
		next := hk.call(r)
		if next == UnregInterval {
			hk.mu.Lock()
			hk.removeLocked(r)
			hk.mu.Unlock()
			continue
		}
		r.due = time.Now().Add(next)
		hk.mu.Lock()
		heap.Push(&hk.pending, r)
		hk.mu.Unlock()
	}
}

func (hk *Housekeeper) call(r *request) (next time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			nlog.Errorf("hk: callback %q panicked: %v", r.name, rec)
			next = r.interval
		}
	}()
	return r.f()
}

func (hk *Housekeeper) Stop() { close(hk.stop) }
