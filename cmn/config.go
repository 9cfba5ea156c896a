// Package cmn holds process-wide configuration, mirroring the teacher's
// global-config-object pattern (`cmn.GCO.Get()`/`cmn.GCO.Put()`) used
// throughout its `transport`/`transport/bundle` packages.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package cmn

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/atomic"

	"github.com/streamhouse/flowcore/transport"
)

// Config holds the process-wide tunables named across SPEC_FULL.md: edge
// channel capacity, the hash dispatcher's virtual-node count, the
// housekeeper's stall threshold, and remote-send compression policy.
type Config struct {
	ChannelCapacity  int                   `json:"channel_capacity"`
	HashVirtualNodes int                   `json:"hash_virtual_nodes"`
	MaxEpochOpen     time.Duration         `json:"max_epoch_open"`
	RemoteCompress   transport.Compression `json:"remote_compress"`
}

// DefaultConfig matches the values named elsewhere in this repository
// (dispatch.VirtualNodeCount, hk.PruneActiveIval's neighborhood).
func DefaultConfig() Config {
	return Config{
		ChannelCapacity:  1024,
		HashVirtualNodes: 1024,
		MaxEpochOpen:     30 * time.Second,
		RemoteCompress:   transport.CompressNever,
	}
}

// globalConfigOwner is the atomic holder for the process-wide Config,
// named GCO after the teacher's cmn.GCO.
type globalConfigOwner struct {
	ptr atomic.Value
}

func (g *globalConfigOwner) Get() Config {
	v := g.ptr.Load()
	if v == nil {
		return DefaultConfig()
	}
	return v.(Config)
}

func (g *globalConfigOwner) Put(c Config) { g.ptr.Store(c) }

// GCO is the process-wide configuration holder.
var GCO = &globalConfigOwner{}

func init() { GCO.Put(DefaultConfig()) }

// LoadFile decodes a JSON config file into GCO, matching the teacher's
// jsoniter-based config load path.
func LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	c := DefaultConfig()
	if err := jsoniter.Unmarshal(raw, &c); err != nil {
		return err
	}
	GCO.Put(c)
	return nil
}
