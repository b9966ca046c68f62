package sandbox

import (
	"fmt"
	"math"

	"github.com/bytecodealliance/wasmtime-go/v29"
)

// DispatchFunc routes one host-call request from a nested guest to the
// outer guest's dispatch thunk: it receives the opaque state word, the
// SCALE-encoded argument list, and the env-definition function index, and
// returns the thunk's SCALE-encoded return value.
type DispatchFunc func(state uint32, args []byte, funcIdx uint32) ([]byte, error)

// Instance is a nested module instance whose every function import defers
// to the outer guest's dispatch thunk.
type Instance struct {
	engine *wasmtime.Engine
	store  *wasmtime.Store
	inst   *wasmtime.Instance

	// state is the opaque word handed to the dispatch thunk. It is set at
	// instantiation and replaced on every invoke, so re-entrant dispatches
	// always see the word of the innermost active call.
	state uint32
}

// Instantiate compiles and instantiates a nested module. Each function
// import must match an env-definition entry by module and field name; the
// import's own declared signature is authoritative for marshalling. The
// module's start function runs here, already routed through dispatch.
func Instantiate(wasm, rawEnvDef []byte, state uint32, dispatch DispatchFunc) (*Instance, error) {
	entries, err := DecodeEnvDefinition(rawEnvDef)
	if err != nil {
		return nil, err
	}

	engine := wasmtime.NewEngine()
	module, err := wasmtime.NewModule(engine, wasm)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile module: %w", err)
	}
	store := wasmtime.NewStore(engine)
	linker := wasmtime.NewLinker(engine)

	inst := &Instance{engine: engine, store: store, state: state}

	for _, imp := range module.Imports() {
		name := imp.Name()
		ft := imp.Type().FuncType()
		if ft == nil {
			return nil, fmt.Errorf("sandbox: unsupported non-function import %s.%s", imp.Module(), name)
		}
		entry, ok := findEntry(entries, imp.Module(), name)
		if !ok {
			return nil, fmt.Errorf("sandbox: unresolved import %s.%s", imp.Module(), name)
		}
		fn := wasmtime.NewFunc(store, ft, inst.trampoline(entry.FuncIdx, ft, dispatch))
		if err := linker.Define(store, imp.Module(), name, fn); err != nil {
			return nil, fmt.Errorf("sandbox: define import %s.%s: %w", imp.Module(), name, err)
		}
	}

	wtInst, err := linker.Instantiate(store, module)
	if err != nil {
		return nil, fmt.Errorf("sandbox: instantiate: %w", err)
	}
	inst.inst = wtInst
	return inst, nil
}

func findEntry(entries []EnvEntry, module, field string) (EnvEntry, bool) {
	for _, e := range entries {
		if string(e.Module) == module && string(e.Field) == field {
			return e, true
		}
	}
	return EnvEntry{}, false
}

// trampoline builds the host function standing in for one nested import:
// marshal the typed arguments, defer to the thunk, unmarshal the typed
// result into the nested frame.
func (i *Instance) trampoline(funcIdx uint32, ft *wasmtime.FuncType, dispatch DispatchFunc) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	results := ft.Results()
	return func(_ *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		typed := make([]TypedValue, len(args))
		for n, a := range args {
			tv, err := valToTyped(a)
			if err != nil {
				return nil, wasmtime.NewTrap(err.Error())
			}
			typed[n] = tv
		}
		blob, err := EncodeTypedValues(typed)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		ret, err := dispatch(i.state, blob, funcIdx)
		if err != nil {
			return nil, wasmtime.NewTrap(fmt.Sprintf("sandbox: dispatch: %v", err))
		}
		rv, err := DecodeReturnValue(ret)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		if len(results) == 0 {
			if !rv.Unit {
				return nil, wasmtime.NewTrap("sandbox: dispatch returned a value for a void import")
			}
			return nil, nil
		}
		if rv.Unit {
			return nil, wasmtime.NewTrap("sandbox: dispatch returned unit for a valued import")
		}
		v, err := typedToVal(rv.Value)
		if err != nil {
			return nil, wasmtime.NewTrap(err.Error())
		}
		if v.Kind() != results[0].Kind() {
			return nil, wasmtime.NewTrap("sandbox: dispatch return kind mismatch")
		}
		return []wasmtime.Val{v}, nil
	}
}

// Invoke calls a nested export with typed arguments. The state word is
// visible to the dispatch thunk for host calls made during this invoke.
// A missing export, a trap, or an unrepresentable result is an error the
// caller reports as ERR_EXECUTION.
func (i *Instance) Invoke(export string, args []TypedValue, state uint32) (*TypedValue, error) {
	fn := i.inst.GetFunc(i.store, export)
	if fn == nil {
		return nil, fmt.Errorf("sandbox: no export %q", export)
	}

	prev := i.state
	i.state = state
	defer func() { i.state = prev }()

	callArgs := make([]interface{}, len(args))
	for n, a := range args {
		v, err := typedToVal(a)
		if err != nil {
			return nil, err
		}
		callArgs[n] = v
	}

	ret, err := fn.Call(i.store, callArgs...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: invoke %q: %w", export, err)
	}
	switch r := ret.(type) {
	case nil:
		return nil, nil
	case int32:
		v := I32(r)
		return &v, nil
	case int64:
		v := I64(r)
		return &v, nil
	case float32:
		v := F32(math.Float32bits(r))
		return &v, nil
	case float64:
		v := F64(math.Float64bits(r))
		return &v, nil
	default:
		return nil, fmt.Errorf("sandbox: invoke %q: unsupported return %T", export, ret)
	}
}

func valToTyped(v wasmtime.Val) (TypedValue, error) {
	switch v.Kind() {
	case wasmtime.KindI32:
		return I32(v.I32()), nil
	case wasmtime.KindI64:
		return I64(v.I64()), nil
	case wasmtime.KindF32:
		return F32(math.Float32bits(v.F32())), nil
	case wasmtime.KindF64:
		return F64(math.Float64bits(v.F64())), nil
	default:
		return TypedValue{}, fmt.Errorf("sandbox: unsupported value kind %v", v.Kind())
	}
}

func typedToVal(v TypedValue) (wasmtime.Val, error) {
	switch v.Kind {
	case KindI32:
		return wasmtime.ValI32(int32(uint32(v.Bits))), nil
	case KindI64:
		return wasmtime.ValI64(int64(v.Bits)), nil
	case KindF32:
		return wasmtime.ValF32(math.Float32frombits(uint32(v.Bits))), nil
	case KindF64:
		return wasmtime.ValF64(math.Float64frombits(v.Bits)), nil
	default:
		return wasmtime.Val{}, fmt.Errorf("sandbox: unknown value kind %d", v.Kind)
	}
}
