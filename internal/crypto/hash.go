package crypto

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Blake2b256 computes the Blake2b-256 hash of data.
func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Keccak256 computes the legacy Keccak-256 hash of data.
func Keccak256(data []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(data))
	return out
}

// Twox128 computes the TwoX-128 hash: two xxhash64 runs over data with
// seeds 0 and 1, concatenated little-endian.
func Twox128(data []byte) [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], xxhash.Checksum64S(data, 0))
	binary.LittleEndian.PutUint64(out[8:16], xxhash.Checksum64S(data, 1))
	return out
}

// Twox256 computes the TwoX-256 hash: four seeded xxhash64 runs,
// concatenated little-endian.
func Twox256(data []byte) [32]byte {
	var out [32]byte
	for seed := uint64(0); seed < 4; seed++ {
		binary.LittleEndian.PutUint64(out[seed*8:seed*8+8], xxhash.Checksum64S(data, seed))
	}
	return out
}
