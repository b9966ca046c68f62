package executor

import (
	"errors"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v29"
	"go.uber.org/zap"

	"github.com/Pierozi/polkadot/internal/sandbox"
	"github.com/Pierozi/polkadot/internal/state"
	"github.com/Pierozi/polkadot/internal/telemetry"
)

// functionExecutor is the per-invocation execution context. It exclusively
// owns the heap, the sub-sandbox registry, and the hash-preimage map, and
// holds the caller's Externalities for the duration of the call. The
// memory and table handles are shared with the instantiated module.
type functionExecutor struct {
	store        *wasmtime.Store
	maxHeapPages uint32

	mem   *memoryView
	heap  *heap
	table *wasmtime.Table

	// caller is the context of the innermost active host call. Re-entrant
	// calls back into the guest (the dispatch thunk) must go through it.
	caller *wasmtime.Caller

	ext          state.Externalities
	sandboxStore *sandbox.Store

	// hashLookup maps twox_128 outputs back to their preimages. Purely
	// diagnostic: consulted by storage trace logging, never observable by
	// the guest.
	hashLookup map[string][]byte

	log     *zap.Logger
	metrics *telemetry.Metrics
}

func newFunctionExecutor(store *wasmtime.Store, maxHeapPages uint32, ext state.Externalities, log *zap.Logger, metrics *telemetry.Metrics) *functionExecutor {
	return &functionExecutor{
		store:        store,
		maxHeapPages: maxHeapPages,
		ext:          ext,
		sandboxStore: sandbox.NewStore(),
		hashLookup:   make(map[string][]byte),
		log:          log,
		metrics:      metrics,
	}
}

// ensure binds the module's memory and table exports on the first host
// call. Wasmtime runs a module's start function during instantiation, so
// a start function calling into the host reaches here before the driver
// ever sees the finished instance.
func (fe *functionExecutor) ensure(caller *wasmtime.Caller) *wasmtime.Trap {
	if fe.mem != nil {
		return nil
	}
	memExt := caller.GetExport("memory")
	var tableExt *wasmtime.Extern
	if t := caller.GetExport("__indirect_function_table"); t != nil {
		tableExt = t
	}
	if err := fe.bindExports(memExt, tableExt); err != nil {
		return wasmtime.NewTrap(err.Error())
	}
	return nil
}

// bind completes the binding from the finished instance, for modules whose
// start function made no host calls.
func (fe *functionExecutor) bind(inst *wasmtime.Instance) error {
	if fe.mem != nil {
		return nil
	}
	return fe.bindExports(
		inst.GetExport(fe.store, "memory"),
		inst.GetExport(fe.store, "__indirect_function_table"),
	)
}

func (fe *functionExecutor) bindExports(memExt, tableExt *wasmtime.Extern) error {
	if memExt == nil {
		return fmt.Errorf("%w: module exports no memory", ErrRuntime)
	}
	mem := memExt.Memory()
	if mem == nil {
		return fmt.Errorf("%w: export \"memory\" is not a memory", ErrRuntime)
	}
	h, err := newHeap(mem, fe.store, fe.maxHeapPages)
	if err != nil {
		return err
	}
	fe.mem = &memoryView{mem: mem, store: fe.store}
	fe.heap = h
	if tableExt != nil {
		fe.table = tableExt.Table()
	}
	return nil
}

// dispatchThunk resolves the outer guest's dispatch thunk from its
// indirect function table.
func (fe *functionExecutor) dispatchThunk(idx uint32) (*wasmtime.Func, error) {
	if fe.table == nil {
		return nil, errors.New("module exports no function table")
	}
	val, err := fe.table.Get(fe.store, idx)
	if err != nil {
		return nil, fmt.Errorf("thunk index %d out of table bounds", idx)
	}
	fn := val.Funcref()
	if fn == nil {
		return nil, fmt.Errorf("table entry %d is not a function", idx)
	}
	return fn, nil
}

// dispatchFunc adapts a resolved thunk into the sandbox dispatch shape:
// stage the serialized arguments in outer memory, call the thunk through
// the table, read back the packed (ptr,len) result.
func (fe *functionExecutor) dispatchFunc(thunk *wasmtime.Func) sandbox.DispatchFunc {
	return func(st uint32, args []byte, funcIdx uint32) ([]byte, error) {
		ptr := fe.heap.allocate(uint32(len(args)))
		if err := fe.mem.Set(ptr, args); err != nil {
			return nil, err
		}
		var target wasmtime.Storelike = fe.store
		if fe.caller != nil {
			target = fe.caller
		}
		ret, err := thunk.Call(target, int32(st), int32(ptr), int32(len(args)), int32(funcIdx))
		fe.heap.deallocate(ptr)
		if err != nil {
			return nil, err
		}
		packed, ok := ret.(int64)
		if !ok {
			return nil, errors.New("dispatch thunk must return i64")
		}
		retPtr := uint32(uint64(packed))
		retLen := uint32(uint64(packed) >> 32)
		out, err := fe.mem.Get(retPtr, retLen)
		if err != nil {
			return nil, err
		}
		fe.heap.deallocate(retPtr)
		return out, nil
	}
}
