package executor

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v29"
)

const wasmPageSize = 64 * 1024

// heap is the per-invocation bump allocator over guest linear memory.
// Construction grows the memory by the configured page count once; every
// allocation then carves from the grown region. deallocate is a no-op:
// the observable pointer sequence of a guest must stay monotonic, so
// freed regions are never reused within an invocation.
//
// The heap does not track capacity; the memory view is the authoritative
// bounds check, so an over-allocating guest fails on its next access.
type heap struct {
	end uint32
}

// newHeap grows mem by pages and positions the allocation cursor at the
// first byte after the pre-grow region. A rejected grow (for example a
// module whose declared maximum is below initial+pages) is a runtime
// failure.
func newHeap(mem *wasmtime.Memory, store *wasmtime.Store, pages uint32) (*heap, error) {
	prevPages := mem.Size(store)
	if _, err := mem.Grow(store, uint64(pages)); err != nil {
		return nil, fmt.Errorf("%w: grow heap by %d pages: %v", ErrRuntime, pages, err)
	}
	return &heap{end: uint32(prevPages) * wasmPageSize}, nil
}

func (h *heap) allocate(size uint32) uint32 {
	r := h.end
	h.end += size
	return r
}

func (h *heap) deallocate(_ uint32) {
}
