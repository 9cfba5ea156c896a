package actor_test

import (
	"testing"

	"github.com/streamhouse/flowcore/actor"
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/dispatch"
	"github.com/streamhouse/flowcore/routing"
	"github.com/streamhouse/flowcore/transport"
)

// passthroughPipeline forwards chunks unchanged and never produces
// output on a barrier (a minimal stand-in Pipeline for actor tests that
// only exercise routing/config-mutation behavior).
type passthroughPipeline struct{}

func (passthroughPipeline) ProcessChunk(c *chunk.StreamChunk) ([]*chunk.StreamChunk, error) {
	return []*chunk.StreamChunk{c}, nil
}
func (passthroughPipeline) ProcessBarrier(b barrier.Barrier) ([]*chunk.StreamChunk, error) {
	return nil, nil
}

// fakeResolver resolves every ActorInfo to a fresh local transport over a
// freshly registered channel pair, recording resolutions for assertions.
type fakeResolver struct {
	reg *routing.Registry
}

func (f *fakeResolver) Resolve(up string, target barrier.ActorInfo) (transport.Output, error) {
	s, r := routing.NewPair(up, target.ActorID, 4)
	if err := f.reg.AddPair(up, target.ActorID, s, r); err != nil {
		return nil, err
	}
	return transport.NewLocal(s), nil
}

func TestBarrierRoutingChange(t *testing.T) {
	reg := routing.NewRegistry()
	resolver := &fakeResolver{reg: reg}

	// Pre-seed a prior downstream edge that the update must replace.
	priorSender, priorRecv := routing.NewPair("a1", "prior", 1)
	if err := reg.AddPair("a1", "prior", priorSender, priorRecv); err != nil {
		t.Fatalf("seed prior pair: %v", err)
	}

	bc := dispatch.NewBroadcast()
	if err := bc.SetOutputs([]transport.Output{transport.NewLocal(priorSender)}); err != nil {
		t.Fatalf("seed dispatcher output: %v", err)
	}

	in, out := routing.NewPair("source", "a1", 8)
	a := actor.New("a1", out, bc, passthroughPipeline{}, reg, resolver)

	b := barrier.Barrier{
		Epoch: barrier.Epoch{Prev: 0, Curr: 1},
		Mutation: barrier.Mutation{
			Kind: barrier.UpdateOutputs,
			Outputs: map[string][]barrier.ActorInfo{
				"a1": {
					{ActorID: "234", HostAddress: "local"},
					{ActorID: "235", HostAddress: "local"},
					{ActorID: "238", HostAddress: "remote"},
				},
			},
		},
	}

	in.Send(routing.BarrierMessage(b))
	in.Close()

	if err := a.Run(); err != nil {
		t.Fatalf("actor run: %v", err)
	}

	if reg.Has("a1", "prior") {
		t.Fatalf("expected prior downstream edge to be retired")
	}
	for _, id := range []string{"234", "235", "238"} {
		if !reg.Has("a1", id) {
			t.Fatalf("expected edge a1->%s to be present", id)
		}
	}
}

func TestAddOutputAccumulation(t *testing.T) {
	reg := routing.NewRegistry()
	resolver := &fakeResolver{reg: reg}

	bc := dispatch.NewBroadcast()
	in, out := routing.NewPair("source", "a1", 8)
	a := actor.New("a1", out, bc, passthroughPipeline{}, reg, resolver)

	first := barrier.Barrier{
		Epoch: barrier.Epoch{Prev: 0, Curr: 1},
		Mutation: barrier.Mutation{
			Kind: barrier.UpdateOutputs,
			Outputs: map[string][]barrier.ActorInfo{
				"a1": {
					{ActorID: "234", HostAddress: "local"},
					{ActorID: "235", HostAddress: "local"},
					{ActorID: "238", HostAddress: "remote"},
				},
			},
		},
	}
	second := barrier.Barrier{
		Epoch: barrier.Epoch{Prev: 1, Curr: 2},
		Mutation: barrier.Mutation{
			Kind: barrier.AddOutput,
			Outputs: map[string][]barrier.ActorInfo{
				"a1": {
					{ActorID: "245", HostAddress: "local"},
					{ActorID: "246", HostAddress: "remote"},
				},
			},
		},
	}

	in.Send(routing.BarrierMessage(first))
	in.Send(routing.BarrierMessage(second))
	in.Close()

	if err := a.Run(); err != nil {
		t.Fatalf("actor run: %v", err)
	}

	for _, id := range []string{"234", "235", "238", "245", "246"} {
		if !reg.Has("a1", id) {
			t.Fatalf("expected edge a1->%s to be present", id)
		}
	}
}

func TestProtocolViolationOnNonBarrierFirstMessage(t *testing.T) {
	reg := routing.NewRegistry()
	resolver := &fakeResolver{reg: reg}
	simple := dispatch.NewSimple()

	in, out := routing.NewPair("source", "a1", 8)
	a := actor.New("a1", out, simple, passthroughPipeline{}, reg, resolver)

	c, err := chunk.New(
		[]chunk.Op{chunk.Insert},
		nil,
		[]chunk.Column{chunk.Int64Column{1}},
	)
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	in.Send(routing.ChunkMessage(c))
	in.Close()

	if err := a.Run(); err == nil {
		t.Fatalf("expected protocol violation when first message is a chunk")
	}
}

func TestStopTerminatesAfterForwardingBarrier(t *testing.T) {
	reg := routing.NewRegistry()
	resolver := &fakeResolver{reg: reg}
	simple := dispatch.NewSimple()

	downSender, downRecv := routing.NewPair("a1", "down", 4)
	if err := reg.AddPair("a1", "down", downSender, downRecv); err != nil {
		t.Fatalf("seed pair: %v", err)
	}
	if err := simple.SetOutputs([]transport.Output{transport.NewLocal(downSender)}); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	in, out := routing.NewPair("source", "a1", 8)
	a := actor.New("a1", out, simple, passthroughPipeline{}, reg, resolver)

	stop := barrier.Barrier{
		Epoch: barrier.Epoch{Prev: 0, Curr: 1},
		Mutation: barrier.Mutation{
			Kind:    barrier.Stop,
			StopSet: map[string]struct{}{"a1": {}},
		},
	}
	in.Send(routing.BarrierMessage(stop))

	if err := a.Run(); err != nil {
		t.Fatalf("actor run: %v", err)
	}

	msg, ok := downRecv.Recv()
	if !ok || !msg.IsBarrier() {
		t.Fatalf("expected the Stop barrier to be forwarded before termination")
	}
}
