package barrier

// ActorInfo identifies a downstream actor and where it runs.
type ActorInfo struct {
	ActorID     string
	HostAddress string
}

// SameHost reports whether this ActorInfo runs on the process whose
// address is selfAddr (spec.md §3).
func (a ActorInfo) SameHost(selfAddr string) bool { return a.HostAddress == selfAddr }

// MutationKind is the closed set of barrier-carried configuration changes.
type MutationKind uint8

const (
	Nothing MutationKind = iota
	Stop
	UpdateOutputs
	AddOutput
)

func (k MutationKind) String() string {
	switch k {
	case Nothing:
		return "Nothing"
	case Stop:
		return "Stop"
	case UpdateOutputs:
		return "UpdateOutputs"
	case AddOutput:
		return "AddOutput"
	default:
		return "?"
	}
}

// Mutation is the tagged union carried by a Barrier (spec.md §3/§6). Only
// the fields relevant to Kind are populated; the rest are the zero value.
// A tagged struct (rather than an interface) is used deliberately -- the
// variant set is small and closed (spec.md §9, Polymorphism).
type Mutation struct {
	Kind MutationKind

	// Stop: the set of actor ids that must exit after this barrier.
	StopSet map[string]struct{}

	// UpdateOutputs / AddOutput: actor id -> its new/additional
	// downstream infos.
	Outputs map[string][]ActorInfo
}

// Equal compares mutations by value (map contents, not identity).
func (m Mutation) Equal(o Mutation) bool {
	if m.Kind != o.Kind {
		return false
	}
	switch m.Kind {
	case Nothing:
		return true
	case Stop:
		if len(m.StopSet) != len(o.StopSet) {
			return false
		}
		for id := range m.StopSet {
			if _, ok := o.StopSet[id]; !ok {
				return false
			}
		}
		return true
	case UpdateOutputs, AddOutput:
		if len(m.Outputs) != len(o.Outputs) {
			return false
		}
		for id, infos := range m.Outputs {
			oinfos, ok := o.Outputs[id]
			if !ok || len(infos) != len(oinfos) {
				return false
			}
			for i := range infos {
				if infos[i] != oinfos[i] {
					return false
				}
			}
		}
		return true
	}
	return false
}

// Barrier is the only control message (spec.md §3). Equality is defined
// by (epoch, mutation); Trace is metadata and never part of equality.
type Barrier struct {
	Epoch    Epoch
	Mutation Mutation
	Trace    string
}

func (b Barrier) Equal(o Barrier) bool {
	return b.Epoch == o.Epoch && b.Mutation.Equal(o.Mutation)
}

// NamesActor reports whether actorID appears in a Stop mutation's stop set.
func (b Barrier) NamesActor(actorID string) bool {
	if b.Mutation.Kind != Stop {
		return false
	}
	_, ok := b.Mutation.StopSet[actorID]
	return ok
}
