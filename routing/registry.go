package routing

import (
	"sync"

	"github.com/streamhouse/flowcore/cmn/cos"
)

type pairKey struct{ up, down string }

type pairEntry struct {
	sender   *Sender
	receiver *Receiver
}

// Registry is the one process-wide piece of mutable state (spec.md §9):
// the (upstream, downstream) -> (writer, reader) map. Guarded by a single
// mutex, mirroring the teacher's mutex-guarded stream bundle/handlers maps
// (transport/bundle/stream_bundle.go, transport/api.go).
type Registry struct {
	mu      sync.Mutex
	entries map[pairKey]*pairEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[pairKey]*pairEntry)}
}

// AddPair atomically inserts the (writer, reader) ends for (up, down);
// fails if the pair is already present (spec.md §4.1).
func (r *Registry) AddPair(up, down string, w *Sender, rd *Receiver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{up, down}
	if _, ok := r.entries[key]; ok {
		return cos.NewErrProtocolViolation("registry: pair (%s -> %s) already present", up, down)
	}
	r.entries[key] = &pairEntry{sender: w, receiver: rd}
	return nil
}

// TakeSender transfers the writer for (up, down) to the caller. Once
// taken, no other caller may take it again (the entry's sender slot is
// cleared) -- ownership is transferred by move, never shared.
func (r *Registry) TakeSender(up, down string) (*Sender, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{up, down}
	e, ok := r.entries[key]
	if !ok || e.sender == nil {
		return nil, cos.NewErrNoRoute(up, down)
	}
	s := e.sender
	e.sender = nil
	return s, nil
}

// TakeReceiver transfers the reader for (up, down) to the caller,
// analogous to TakeSender (spec.md §4.1).
func (r *Registry) TakeReceiver(up, down string) (*Receiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{up, down}
	e, ok := r.entries[key]
	if !ok || e.receiver == nil {
		return nil, cos.NewErrNoRoute(up, down)
	}
	rd := e.receiver
	e.receiver = nil
	return rd, nil
}

// Retain atomically drops every (up, down) pair for which keep returns
// false -- used by configuration mutations to remove stale edges
// (spec.md §4.1/§4.4).
func (r *Registry) Retain(keep func(up, down string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if !keep(key.up, key.down) {
			delete(r.entries, key)
		}
	}
}

// Has reports whether a pair is still present, for tests/diagnostics.
func (r *Registry) Has(up, down string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[pairKey{up, down}]
	return ok
}

// Pairs returns a snapshot of all (up, down) pairs currently registered.
func (r *Registry) Pairs() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]string, 0, len(r.entries))
	for key := range r.entries {
		out = append(out, [2]string{key.up, key.down})
	}
	return out
}
