// Package adder is a basic parachain that adds a number as part of its
// state. It exists to exercise the execution host with a realistic
// validate-block shape: decode parent head and block data, check the
// state commitment, apply, re-commit.
package adder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"

	"github.com/Pierozi/polkadot/internal/crypto"
)

// ErrStateMismatch reports block data whose starting state does not match
// the parent head's post-state commitment.
var ErrStateMismatch = errors.New("adder: start state mismatched with parent head")

// HeadData is this parachain's head: block number, parent head keccak256,
// and the post-execution state commitment.
type HeadData struct {
	Number     uint64
	ParentHash [32]byte
	PostState  [32]byte
}

// Encode returns the SCALE encoding: fixed-width little-endian number
// followed by the two raw digests.
func (h HeadData) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(h); err != nil {
		return nil, fmt.Errorf("adder: encode head: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeHeadData parses a SCALE-encoded head.
func DecodeHeadData(data []byte) (HeadData, error) {
	var h HeadData
	if err := scale.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return HeadData{}, fmt.Errorf("adder: decode head: %w", err)
	}
	return h, nil
}

// Hash returns the keccak256 of the encoded head.
func (h HeadData) Hash() [32]byte {
	enc, err := h.Encode()
	if err != nil {
		panic(err) // fixed-width fields cannot fail to encode
	}
	return crypto.Keccak256(enc)
}

// BlockData is this parachain's block body: the state to begin from and
// the amount to add, wrapping on overflow.
type BlockData struct {
	State uint64
	Add   uint64
}

// Encode returns the SCALE encoding of the block body.
func (b BlockData) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("adder: encode block: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeBlockData parses a SCALE-encoded block body.
func DecodeBlockData(data []byte) (BlockData, error) {
	var b BlockData
	if err := scale.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return BlockData{}, fmt.Errorf("adder: decode block: %w", err)
	}
	return b, nil
}

// HashState commits a state value: keccak256 of its SCALE encoding.
func HashState(state uint64) [32]byte {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(state); err != nil {
		panic(err)
	}
	return crypto.Keccak256(buf.Bytes())
}

// Execute runs a block body on top of the given parent head, producing
// the next head if valid. parentHash must be the hash of parentHead.
// Addition wraps modulo 2^64.
func Execute(parentHash [32]byte, parentHead HeadData, block BlockData) (HeadData, error) {
	if parentHash != parentHead.Hash() {
		return HeadData{}, fmt.Errorf("adder: parent hash does not match parent head")
	}
	if HashState(block.State) != parentHead.PostState {
		return HeadData{}, ErrStateMismatch
	}

	newState := block.State + block.Add // wrapping

	return HeadData{
		Number:     parentHead.Number + 1,
		ParentHash: parentHash,
		PostState:  HashState(newState),
	}, nil
}
