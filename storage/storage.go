// Package storage provides the reference storage collaborator named in
// spec.md §6: an epoch-versioned key/value engine that operator flush
// and point-read paths are built, tested, and run against in this
// repository. Production deployments swap this out for the real LSM
// engine the core-only spec treats as an external collaborator.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package storage

// Batch accumulates puts/deletes for atomic commit at one epoch
// (spec.md §6). A Batch is single-writer and must be ingested or
// discarded; it is not safe for concurrent use.
type Batch interface {
	Put(key string, value []byte)
	Delete(key string)
	// Ingest atomically commits the batch at epoch. Later reads at or
	// above epoch observe these writes; an ingest at a stale (already
	// passed) epoch is an error.
	Ingest(epoch uint64) error
}

// KV is the storage collaborator contract (spec.md §6).
type KV interface {
	StartWriteBatch() Batch
	PointRead(key string, epoch uint64) ([]byte, bool, error)
	Scan(loKey, hiKey string, epoch uint64) (Iterator, error)
	Close() error
}

// Iterator walks a key range at a fixed epoch snapshot, ascending by key.
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Err() error
	Close() error
}
