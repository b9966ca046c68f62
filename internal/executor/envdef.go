package executor

import (
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v29"
)

// hostFunc declares one host function: its import name under module "env",
// its Wasm signature, and the handler receiving the decoded arguments with
// the function executor. The catalogue in externals.go is the data-driven
// replacement for the source system's signature-binding macros.
type hostFunc struct {
	name   string
	params []*wasmtime.ValType
	result *wasmtime.ValType // nil for unit
	call   func(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap)
}

func i32() *wasmtime.ValType { return wasmtime.NewValType(wasmtime.KindI32) }
func i64() *wasmtime.ValType { return wasmtime.NewValType(wasmtime.KindI64) }

func params(types ...*wasmtime.ValType) []*wasmtime.ValType { return types }

// defineEnv registers the full host-call catalogue on the linker. Each
// wrapper first completes the lazy memory/heap binding (the module's start
// function may be the caller), then runs the handler.
func defineEnv(linker *wasmtime.Linker, store *wasmtime.Store, fe *functionExecutor) error {
	for _, hf := range envTable() {
		hf := hf
		var results []*wasmtime.ValType
		if hf.result != nil {
			results = []*wasmtime.ValType{hf.result}
		}
		ft := wasmtime.NewFuncType(hf.params, results)
		fn := wasmtime.NewFunc(store, ft, func(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
			if trap := fe.ensure(caller); trap != nil {
				return nil, trap
			}
			prev := fe.caller
			fe.caller = caller
			v, trap := hf.call(fe, args)
			fe.caller = prev
			if trap != nil {
				return nil, trap
			}
			if hf.result == nil {
				return nil, nil
			}
			return []wasmtime.Val{v}, nil
		})
		if err := linker.Define(store, "env", hf.name, fn); err != nil {
			return fmt.Errorf("executor: define env.%s: %w", hf.name, err)
		}
	}
	return nil
}

// unit is the placeholder result of void handlers.
var unit = wasmtime.Val{}

func argU32(v wasmtime.Val) uint32 { return uint32(v.I32()) }
func argU64(v wasmtime.Val) uint64 { return uint64(v.I64()) }

// userError traps the guest with a message naming the offending host call.
func userError(format string, a ...interface{}) *wasmtime.Trap {
	return wasmtime.NewTrap(fmt.Sprintf(format, a...))
}
