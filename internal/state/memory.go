package state

import (
	"sort"
	"strings"

	"github.com/Pierozi/polkadot/internal/trie"
)

// MemoryExternalities is a map-backed Externalities used by tests and the
// CLI's dev mode.
type MemoryExternalities struct {
	kv      map[string][]byte
	chainID uint64
}

var _ Externalities = (*MemoryExternalities)(nil)

// NewMemory returns an empty in-memory store with the given chain id.
func NewMemory(chainID uint64) *MemoryExternalities {
	return &MemoryExternalities{kv: make(map[string][]byte), chainID: chainID}
}

func (m *MemoryExternalities) Storage(key []byte) ([]byte, bool) {
	v, ok := m.kv[string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (m *MemoryExternalities) SetStorage(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	m.kv[string(key)] = v
}

func (m *MemoryExternalities) ClearStorage(key []byte) {
	delete(m.kv, string(key))
}

func (m *MemoryExternalities) ExistsStorage(key []byte) bool {
	_, ok := m.kv[string(key)]
	return ok
}

func (m *MemoryExternalities) ClearPrefix(prefix []byte) {
	p := string(prefix)
	for k := range m.kv {
		if strings.HasPrefix(k, p) {
			delete(m.kv, k)
		}
	}
}

func (m *MemoryExternalities) StorageRoot() [32]byte {
	return trie.Root(m.pairs())
}

func (m *MemoryExternalities) ChainID() uint64 {
	return m.chainID
}

// Pairs returns the current entries in key order.
func (m *MemoryExternalities) Pairs() [][2][]byte {
	return m.pairs()
}

// Len returns the number of stored entries.
func (m *MemoryExternalities) Len() int {
	return len(m.kv)
}

func (m *MemoryExternalities) pairs() [][2][]byte {
	keys := make([]string, 0, len(m.kv))
	for k := range m.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2][]byte, len(keys))
	for i, k := range keys {
		pairs[i] = [2][]byte{[]byte(k), m.kv[k]}
	}
	return pairs
}
