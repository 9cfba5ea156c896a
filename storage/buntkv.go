package storage

import (
	"fmt"
	"sync"

	"github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/tidwall/buntdb"

	"github.com/streamhouse/flowcore/cmn/cos"
)

// epoch occupies 16 hex digits so lexicographic key ordering doubles as
// epoch ordering within buntdb's own B-tree.
const epochWidth = 16

func versionedKey(key string, epoch uint64) string {
	return fmt.Sprintf("%s\x00%0*x", key, epochWidth, epoch)
}

// tombstone marks a deleted logical key at a given epoch; PointRead/Scan
// treat it as absence rather than surfacing a zero-length value.
var tombstone = []byte{0}

// BuntKV is the reference storage.KV collaborator, backed by an embedded
// buntdb database. A cuckoofilter membership sketch (fed 8-byte xxhash
// digests) short-circuits definite-miss point reads without touching
// buntdb, the same bloom/cuckoo-before-disk-read shape common to LSM
// engines (spec.md §6).
type BuntKV struct {
	mu     sync.Mutex
	db     *buntdb.DB
	filter *cuckoo.Filter

	lastIngested    uint64
	hasIngestedEver bool
}

func NewBuntKV(path string) (*BuntKV, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cos.NewErrStorage("open", err)
	}
	return &BuntKV{db: db, filter: cuckoo.NewFilter(1 << 20)}, nil
}

func (kv *BuntKV) digest(key string) uint64 {
	return xxhash.ChecksumString64(key)
}

func (kv *BuntKV) digestBytes(key string) []byte {
	d := kv.digest(key)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(d >> (8 * i))
	}
	return b
}

func (kv *BuntKV) StartWriteBatch() Batch {
	return &buntBatch{kv: kv, puts: make(map[string][]byte), deletes: make(map[string]struct{})}
}

// PointRead returns the newest version of key at or below epoch, or
// (nil, false, nil) if absent or tombstoned.
func (kv *BuntKV) PointRead(key string, epoch uint64) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if !kv.filter.Lookup(kv.digestBytes(key)) {
		return nil, false, nil
	}

	var found []byte
	var ok bool
	err := kv.db.View(func(tx *buntdb.Tx) error {
		hi := versionedKey(key, epoch)
		// Descend from the newest version at-or-below epoch: iterate the
		// key's version range in descending order and take the first hit.
		return tx.DescendLessOrEqual("", hi, func(k, v string) bool {
			if !sameLogicalKey(k, key) {
				return false
			}
			if v == string(tombstone) {
				ok = false
				found = nil
			} else {
				ok = true
				found = []byte(v)
			}
			return false
		})
	})
	if err != nil && err != buntdb.ErrNotFound {
		return nil, false, cos.NewErrStorage("point_read", err)
	}
	return found, ok, nil
}

func sameLogicalKey(versioned, key string) bool {
	if len(versioned) <= len(key)+1 {
		return false
	}
	return versioned[:len(key)] == key && versioned[len(key)] == 0
}

// Scan returns an iterator over the newest at-or-below-epoch version of
// every logical key in [loKey, hiKey), skipping tombstones.
func (kv *BuntKV) Scan(loKey, hiKey string, epoch uint64) (Iterator, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	latest := make(map[string]*kvEntry)
	order := make([]string, 0, 64)

	err := kv.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange("", loKey, hiKey, func(k, v string) bool {
			logical, ep, ok := splitVersioned(k)
			if !ok || ep > epoch {
				return true
			}
			if _, seen := latest[logical]; !seen {
				order = append(order, logical)
			}
			// AscendRange yields keys in ascending order, so later
			// (larger) epochs for the same logical key overwrite earlier
			// ones as we go -- the last write wins.
			if v == string(tombstone) {
				latest[logical] = nil
			} else {
				latest[logical] = &kvEntry{key: logical, value: []byte(v)}
			}
			return true
		})
	})
	if err != nil {
		return nil, cos.NewErrStorage("scan", err)
	}

	items := make([]kvEntry, 0, len(order))
	for _, k := range order {
		if e := latest[k]; e != nil {
			items = append(items, *e)
		}
	}
	return &sliceIterator{items: items, idx: -1}, nil
}

func splitVersioned(k string) (logical string, epoch uint64, ok bool) {
	// The epoch suffix is fixed-width, so the separator is found from the
	// end: a logical key may itself contain NUL bytes.
	idx := len(k) - epochWidth - 1
	if idx < 0 || k[idx] != 0 {
		return "", 0, false
	}
	var e uint64
	for _, c := range k[idx+1:] {
		e <<= 4
		switch {
		case c >= '0' && c <= '9':
			e |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			e |= uint64(c-'a') + 10
		default:
			return "", 0, false
		}
	}
	return k[:idx], e, true
}

func (kv *BuntKV) Close() error {
	if err := kv.db.Close(); err != nil {
		return cos.NewErrStorage("close", err)
	}
	return nil
}

type kvEntry struct {
	key   string
	value []byte
}

type sliceIterator struct {
	items []kvEntry
	idx   int
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.items)
}
func (it *sliceIterator) Key() string   { return it.items[it.idx].key }
func (it *sliceIterator) Value() []byte { return it.items[it.idx].value }
func (it *sliceIterator) Err() error    { return nil }
func (it *sliceIterator) Close() error  { return nil }
