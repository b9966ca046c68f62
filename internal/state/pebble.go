package state

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/Pierozi/polkadot/internal/trie"
)

// PebbleExternalities is a persistent Externalities backed by a Pebble
// database. The chain id is fixed at open time.
//
// The Externalities contract is infallible, so storage engine failures
// (disk errors, closed database) are programming or environment errors
// and panic with context rather than being silently dropped.
type PebbleExternalities struct {
	db      *pebble.DB
	chainID uint64
}

var _ Externalities = (*PebbleExternalities)(nil)

// OpenPebble opens (or creates) the store at path.
func OpenPebble(path string, chainID uint64) (*PebbleExternalities, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("state: open pebble at %s: %w", path, err)
	}
	return &PebbleExternalities{db: db, chainID: chainID}, nil
}

// Close releases the underlying database.
func (p *PebbleExternalities) Close() error {
	return p.db.Close()
}

func (p *PebbleExternalities) Storage(key []byte) ([]byte, bool) {
	v, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false
	}
	if err != nil {
		panic(fmt.Sprintf("state: pebble get: %v", err))
	}
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		panic(fmt.Sprintf("state: pebble get close: %v", err))
	}
	return out, true
}

func (p *PebbleExternalities) SetStorage(key, value []byte) {
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		panic(fmt.Sprintf("state: pebble set: %v", err))
	}
}

func (p *PebbleExternalities) ClearStorage(key []byte) {
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		panic(fmt.Sprintf("state: pebble delete: %v", err))
	}
}

func (p *PebbleExternalities) ExistsStorage(key []byte) bool {
	_, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return false
	}
	if err != nil {
		panic(fmt.Sprintf("state: pebble get: %v", err))
	}
	if err := closer.Close(); err != nil {
		panic(fmt.Sprintf("state: pebble get close: %v", err))
	}
	return true
}

func (p *PebbleExternalities) ClearPrefix(prefix []byte) {
	upper := prefixUpperBound(prefix)
	if upper != nil {
		if err := p.db.DeleteRange(prefix, upper, pebble.Sync); err != nil {
			panic(fmt.Sprintf("state: pebble delete range: %v", err))
		}
		return
	}
	// No representable upper bound (prefix is empty or all 0xff); delete
	// entry by entry.
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix})
	if err != nil {
		panic(fmt.Sprintf("state: pebble iterator: %v", err))
	}
	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		keys = append(keys, k)
	}
	if err := iter.Close(); err != nil {
		panic(fmt.Sprintf("state: pebble iterator close: %v", err))
	}
	for _, k := range keys {
		if err := p.db.Delete(k, pebble.Sync); err != nil {
			panic(fmt.Sprintf("state: pebble delete: %v", err))
		}
	}
}

func (p *PebbleExternalities) StorageRoot() [32]byte {
	iter, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		panic(fmt.Sprintf("state: pebble iterator: %v", err))
	}
	var pairs [][2][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		pairs = append(pairs, [2][]byte{k, v})
	}
	if err := iter.Close(); err != nil {
		panic(fmt.Sprintf("state: pebble iterator close: %v", err))
	}
	return trie.Root(pairs)
}

func (p *PebbleExternalities) ChainID() uint64 {
	return p.chainID
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil if no such key is representable.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
