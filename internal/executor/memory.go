package executor

import (
	"encoding/binary"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v29"
)

// memoryView is the bounds-checked access path to the guest's linear
// memory. Every host-side read and write routes through it; offsets are
// guest pointers, primitives are little-endian per the Wasm spec.
//
// The raw slice is re-fetched on every operation rather than cached: it
// is only valid until the memory grows.
type memoryView struct {
	mem   *wasmtime.Memory
	store *wasmtime.Store
}

func (v *memoryView) data() []byte {
	return v.mem.UnsafeData(v.store)
}

func (v *memoryView) size() uint32 {
	return uint32(len(v.data()))
}

func (v *memoryView) check(data []byte, offset, n uint32) error {
	if uint64(offset)+uint64(n) > uint64(len(data)) {
		return fmt.Errorf("memory access %d+%d exceeds %d bytes", offset, n, len(data))
	}
	return nil
}

// Get copies n bytes at offset out of the memory.
func (v *memoryView) Get(offset, n uint32) ([]byte, error) {
	data := v.data()
	if err := v.check(data, offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, data[offset:uint64(offset)+uint64(n)])
	return out, nil
}

// Set copies b into the memory at offset.
func (v *memoryView) Set(offset uint32, b []byte) error {
	data := v.data()
	if err := v.check(data, offset, uint32(len(b))); err != nil {
		return err
	}
	copy(data[offset:], b)
	return nil
}

// ReadUint32 reads a little-endian u32 at offset.
func (v *memoryView) ReadUint32(offset uint32) (uint32, error) {
	data := v.data()
	if err := v.check(data, offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[offset:]), nil
}

// WriteUint32 writes a little-endian u32 at offset.
func (v *memoryView) WriteUint32(offset uint32, val uint32) error {
	data := v.data()
	if err := v.check(data, offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(data[offset:], val)
	return nil
}

// Copy moves n bytes from src to dst, handling overlap.
func (v *memoryView) Copy(src, dst, n uint32) error {
	data := v.data()
	if err := v.check(data, src, n); err != nil {
		return err
	}
	if err := v.check(data, dst, n); err != nil {
		return err
	}
	copy(data[dst:uint64(dst)+uint64(n)], data[src:uint64(src)+uint64(n)])
	return nil
}

// CopyNonoverlapping moves n bytes from src to dst. The regions are
// assumed disjoint but both must still be in bounds.
func (v *memoryView) CopyNonoverlapping(src, dst, n uint32) error {
	return v.Copy(src, dst, n)
}

// Clear writes b to n bytes starting at offset.
func (v *memoryView) Clear(offset uint32, b byte, n uint32) error {
	data := v.data()
	if err := v.check(data, offset, n); err != nil {
		return err
	}
	region := data[offset : uint64(offset)+uint64(n)]
	for i := range region {
		region[i] = b
	}
	return nil
}
