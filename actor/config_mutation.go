package actor

import (
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/transport"
)

// preDispatchMutation implements spec.md §4.4's pre-dispatch handling:
// UpdateOutputs retains channels not owned by this actor (or still named
// by the update), resolves each named downstream to a fresh output, and
// installs the new set atomically; AddOutput resolves and appends.
func (a *Actor) preDispatchMutation(b barrier.Barrier) error {
	switch b.Mutation.Kind {
	case barrier.UpdateOutputs:
		targets, ok := b.Mutation.Outputs[a.ID]
		if !ok {
			return nil
		}
		a.registry.Retain(func(up, down string) bool {
			if up != a.ID {
				return true
			}
			for _, t := range targets {
				if t.ActorID == down {
					return true
				}
			}
			return false
		})
		outs, err := a.resolveAll(targets)
		if err != nil {
			return err
		}
		return a.out.SetOutputs(outs)

	case barrier.AddOutput:
		targets, ok := b.Mutation.Outputs[a.ID]
		if !ok {
			return nil
		}
		outs, err := a.resolveAll(targets)
		if err != nil {
			return err
		}
		return a.out.AddOutputs(outs)
	}
	return nil
}

// postDispatchMutation implements spec.md §4.4's post-dispatch handling:
// a Stop naming this actor ends its run loop after the barrier has
// already been forwarded; a Stop naming only other actors just drops
// those outputs.
func (a *Actor) postDispatchMutation(b barrier.Barrier) error {
	if b.Mutation.Kind != barrier.Stop {
		return nil
	}
	if b.NamesActor(a.ID) {
		a.terminated = true
		return nil
	}
	return a.out.RemoveOutputs(b.Mutation.StopSet)
}

func (a *Actor) resolveAll(targets []barrier.ActorInfo) ([]transport.Output, error) {
	outs := make([]transport.Output, 0, len(targets))
	for _, t := range targets {
		out, err := a.resolver.Resolve(a.ID, t)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}
