// Package executor is a deterministic WebAssembly execution host for
// blockchain runtimes. It loads an untrusted module, links the fixed
// catalogue of host externals under module "env", instantiates against the
// module's exported linear memory, invokes a named export with a byte
// payload passed as (offset, length), and returns the guest's byte response. The host
// mediates every interaction between guest code and the outside world; the
// guest has no ambient authority.
package executor

import (
	"fmt"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v29"
	"go.uber.org/zap"

	"github.com/Pierozi/polkadot/internal/state"
	"github.com/Pierozi/polkadot/internal/telemetry"
)

// Executor runs runtime Wasm modules. It is cheap to keep around and safe
// to reuse across invocations; each invocation gets a fresh store, heap,
// and sandbox registry.
type Executor struct {
	engine       *wasmtime.Engine
	maxHeapPages uint32
	log          *zap.Logger
	metrics      *telemetry.Metrics
}

// New creates an executor that grows each guest's memory by at most
// maxHeapPages 64 KiB pages. A nil logger disables logging.
func New(maxHeapPages uint32, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		engine:       wasmtime.NewEngine(),
		maxHeapPages: maxHeapPages,
		log:          logger,
	}
}

// SetMetrics wires invocation metrics. Optional.
func (e *Executor) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

// Call compiles code and invokes method with data against ext.
func (e *Executor) Call(ext state.Externalities, code []byte, method string, data []byte) ([]byte, error) {
	module, err := wasmtime.NewModule(e.engine, code)
	if err != nil {
		return nil, fmt.Errorf("executor: load module: %w", err)
	}
	return e.CallInWasmModule(ext, module, method, data)
}

// CallInWasmModule invokes method with data on an already-compiled module.
// The module must export "memory"; it may export
// "__indirect_function_table" to enable sandbox dispatch. The export is
// called as (i32 offset, i32 length) → i64 with the payload staged on the
// heap, and the packed (ptr, len) return is read back out of guest memory.
func (e *Executor) CallInWasmModule(ext state.Externalities, module *wasmtime.Module, method string, data []byte) ([]byte, error) {
	started := time.Now()
	out, err := e.call(ext, module, method, data)
	outcome := "ok"
	if err != nil {
		outcome = "trap"
	}
	e.metrics.ObserveInvocation(outcome, time.Since(started).Seconds())
	return out, err
}

func (e *Executor) call(ext state.Externalities, module *wasmtime.Module, method string, data []byte) ([]byte, error) {
	store := wasmtime.NewStore(e.engine)
	fe := newFunctionExecutor(store, e.maxHeapPages, ext, e.log, e.metrics)

	linker := wasmtime.NewLinker(e.engine)
	if err := defineEnv(linker, store, fe); err != nil {
		return nil, err
	}

	// The start function (if any) runs here, already against the host
	// catalogue; its host calls bind the memory and heap lazily.
	instance, err := linker.Instantiate(store, module)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate: %v", ErrRuntime, err)
	}
	if err := fe.bind(instance); err != nil {
		return nil, err
	}

	size := uint32(len(data))
	offset := fe.heap.allocate(size)
	if err := fe.mem.Set(offset, data); err != nil {
		return nil, fmt.Errorf("%w: place payload: %v", ErrRuntime, err)
	}

	fn := instance.GetFunc(store, method)
	if fn == nil {
		return nil, fmt.Errorf("%w: no export %q", ErrRuntime, method)
	}

	e.log.Debug("invoking runtime export",
		zap.String("method", method),
		zap.Uint32("payload_len", size),
	)

	ret, err := fn.Call(store, int32(offset), int32(size))
	if err != nil {
		e.log.Debug("runtime invocation trapped",
			zap.String("method", method),
			zap.Uint32("heap_pages", e.maxHeapPages),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	packed, ok := ret.(int64)
	if !ok {
		return nil, ErrInvalidReturn
	}
	retOffset := uint32(uint64(packed))
	retLength := uint32(uint64(packed) >> 32)
	out, err := fe.mem.Get(retOffset, retLength)
	if err != nil {
		return nil, fmt.Errorf("%w: read return region: %v", ErrRuntime, err)
	}
	return out, nil
}
