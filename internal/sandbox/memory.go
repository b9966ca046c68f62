package sandbox

import (
	"fmt"
	"math"

	"github.com/bytecodealliance/wasmtime-go/v29"
)

// Memory is a standalone linear memory addressable by index from the outer
// guest, independent of outer guest memory and of any nested instance.
type Memory struct {
	store *wasmtime.Store
	mem   *wasmtime.Memory
}

// NewMemory creates a linear memory of initial pages, growable up to
// maximum pages. A maximum of math.MaxUint32 means unbounded.
func NewMemory(initial, maximum uint32) (*Memory, error) {
	engine := wasmtime.NewEngine()
	store := wasmtime.NewStore(engine)
	hasMax := maximum != math.MaxUint32
	ty := wasmtime.NewMemoryType(uint64(initial), hasMax, uint64(maximum))
	mem, err := wasmtime.NewMemory(store, ty)
	if err != nil {
		return nil, fmt.Errorf("sandbox: new memory (%d..%d pages): %w", initial, maximum, err)
	}
	return &Memory{store: store, mem: mem}, nil
}

// Get copies n bytes starting at offset out of the memory.
func (m *Memory) Get(offset, n uint32) ([]byte, error) {
	data := m.mem.UnsafeData(m.store)
	if uint64(offset)+uint64(n) > uint64(len(data)) {
		return nil, fmt.Errorf("sandbox: memory read %d+%d exceeds %d bytes", offset, n, len(data))
	}
	out := make([]byte, n)
	copy(out, data[offset:uint64(offset)+uint64(n)])
	return out, nil
}

// Set copies b into the memory at offset.
func (m *Memory) Set(offset uint32, b []byte) error {
	data := m.mem.UnsafeData(m.store)
	if uint64(offset)+uint64(len(b)) > uint64(len(data)) {
		return fmt.Errorf("sandbox: memory write %d+%d exceeds %d bytes", offset, len(b), len(data))
	}
	copy(data[offset:], b)
	return nil
}
