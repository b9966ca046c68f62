package trie

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/ethereum/go-ethereum/core/rawdb"
	ethtrie "github.com/ethereum/go-ethereum/trie"
)

// OrderedRoot computes the Merkle-Patricia root of the given values, each
// keyed by the SCALE-compact encoding of its 0-based index.
func OrderedRoot(values [][]byte) ([32]byte, error) {
	pairs := make([][2][]byte, len(values))
	for i, v := range values {
		key, err := compactIndex(uint64(i))
		if err != nil {
			return [32]byte{}, fmt.Errorf("trie: encode index %d: %w", i, err)
		}
		pairs[i] = [2][]byte{key, v}
	}
	return Root(pairs), nil
}

// Root computes the Merkle-Patricia root over explicit key/value pairs.
// The root depends only on the pair set, not on insertion order.
func Root(pairs [][2][]byte) [32]byte {
	t := ethtrie.NewEmpty(ethtrie.NewDatabase(rawdb.NewMemoryDatabase()))
	for _, kv := range pairs {
		t.Update(kv[0], kv[1])
	}
	var root [32]byte
	copy(root[:], t.Hash().Bytes())
	return root
}

func compactIndex(i uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).EncodeUintCompact(*new(big.Int).SetUint64(i)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
