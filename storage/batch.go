package storage

import (
	"github.com/tidwall/buntdb"

	"github.com/streamhouse/flowcore/cmn/cos"
)

// buntBatch accumulates puts/deletes in memory until Ingest commits them
// to buntdb in a single transaction at the closing epoch.
type buntBatch struct {
	kv      *BuntKV
	puts    map[string][]byte
	deletes map[string]struct{}
}

func (b *buntBatch) Put(key string, value []byte) {
	delete(b.deletes, key)
	cp := make([]byte, len(value))
	copy(cp, value)
	b.puts[key] = cp
}

func (b *buntBatch) Delete(key string) {
	delete(b.puts, key)
	b.deletes[key] = struct{}{}
}

// Ingest commits the batch atomically at epoch: every successive ingest
// must name a strictly increasing epoch (spec.md §6's durability
// contract), and every write lands at the versioned key
// `<key>\x00<epoch>` so buntdb's own ordering doubles as MVCC ordering.
func (b *buntBatch) Ingest(epoch uint64) error {
	b.kv.mu.Lock()
	defer b.kv.mu.Unlock()

	if b.kv.hasIngestedEver && epoch <= b.kv.lastIngested {
		return cos.NewErrStorage("ingest", cos.NewErrProtocolViolation(
			"ingest at stale epoch %d, already ingested up to %d", epoch, b.kv.lastIngested))
	}

	err := b.kv.db.Update(func(tx *buntdb.Tx) error {
		for key, value := range b.puts {
			if _, _, err := tx.Set(versionedKey(key, epoch), string(value), nil); err != nil {
				return err
			}
			b.kv.filter.InsertUnique(b.kv.digestBytes(key))
		}
		for key := range b.deletes {
			if _, _, err := tx.Set(versionedKey(key, epoch), string(tombstone), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cos.NewErrStorage("ingest", err)
	}
	b.kv.lastIngested = epoch
	b.kv.hasIngestedEver = true
	return nil
}
