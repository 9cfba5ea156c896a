// Command flowhost is a minimal example host process: it wires one
// Materialize actor behind a local channel (with a Broadcast dispatcher
// on its output), feeds it a barrier/chunk/barrier sequence directly, and
// runs it to completion, in the spirit of the teacher's small CLI
// launchers (flag-parsed, nlog-logged, no framework).
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/streamhouse/flowcore/actor"
	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn"
	"github.com/streamhouse/flowcore/cmn/nlog"
	"github.com/streamhouse/flowcore/dispatch"
	"github.com/streamhouse/flowcore/hk"
	"github.com/streamhouse/flowcore/metrics"
	"github.com/streamhouse/flowcore/operator"
	"github.com/streamhouse/flowcore/plan"
	"github.com/streamhouse/flowcore/routing"
	"github.com/streamhouse/flowcore/storage"
	"github.com/streamhouse/flowcore/transport"
)

// localResolver resolves every downstream target to a freshly registered
// local channel pair, the single-process stand-in for the real resolver a
// clustered host would use to distinguish local from remote peers
// (spec.md §4.4).
type localResolver struct {
	reg *routing.Registry
}

func (r *localResolver) Resolve(up string, target barrier.ActorInfo) (transport.Output, error) {
	s, rv := routing.NewPair(up, target.ActorID, cmn.GCO.Get().ChannelCapacity)
	if err := r.reg.AddPair(up, target.ActorID, s, rv); err != nil {
		return nil, err
	}
	return transport.NewLocal(s), nil
}

// passthroughSource relays every chunk unchanged and produces nothing at
// a barrier.
type passthroughSource struct{}

func (passthroughSource) ProcessChunk(c *chunk.StreamChunk) ([]*chunk.StreamChunk, error) {
	return []*chunk.StreamChunk{c}, nil
}
func (passthroughSource) ProcessBarrier(b barrier.Barrier) ([]*chunk.StreamChunk, error) {
	return nil, nil
}

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (optional)")
	dbPath := flag.String("db", ":memory:", "path to the materialize table's storage file")
	nlog.InitFlags(flag.CommandLine)
	flag.Parse()

	if *configPath != "" {
		if err := cmn.LoadFile(*configPath); err != nil {
			nlog.Errorf("load config: %v", err)
			os.Exit(1)
		}
	}

	if err := run(*dbPath); err != nil {
		nlog.Errorf("flowhost: %v", err)
		os.Exit(1)
	}
}

func run(dbPath string) error {
	reg := routing.NewRegistry()
	resolver := &localResolver{reg: reg}

	kv, err := storage.NewBuntKV(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	ms := metrics.NewSet("flowcore")
	go hk.DefaultHK.Run()
	hk.WaitStarted()
	defer hk.DefaultHK.Stop()

	matNode := plan.MaterializeNode{Name: "tbl", PKCols: []int{0}, StateTable: "tbl"}
	mat := operator.NewMaterialize(matNode, kv, ms)

	sinkIn, sinkOut := routing.NewPair("source", "sink", cmn.GCO.Get().ChannelCapacity)
	if err := reg.AddPair("source", "sink", sinkIn, sinkOut); err != nil {
		return err
	}
	out := dispatch.NewBroadcast().WithMetrics(ms)
	sinkActor := actor.New("sink", sinkOut, out, mat, reg, resolver)
	sinkActor.BindMetrics(ms, nil)

	first := barrier.Barrier{Epoch: barrier.Epoch{Prev: 0, Curr: 1}}
	sinkIn.Send(routing.BarrierMessage(first))

	c, err := chunk.New(
		[]chunk.Op{chunk.Insert},
		nil,
		[]chunk.Column{chunk.Int64Column{1}, chunk.Int64Column{100}},
	)
	if err != nil {
		return err
	}
	sinkIn.Send(routing.ChunkMessage(c))

	second := barrier.Barrier{Epoch: barrier.Epoch{Prev: 1, Curr: 2}}
	sinkIn.Send(routing.BarrierMessage(second))
	sinkIn.Close()

	if err := sinkActor.Run(); err != nil {
		return fmt.Errorf("sink actor: %w", err)
	}

	v, ok, err := mat.PointRead(2, int64(1))
	if err != nil {
		return err
	}
	nlog.Infof("flowhost: point-read key=1 at epoch=2 -> value=%q ok=%v", v, ok)
	return nil
}
