package executor

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"unicode/utf8"

	"github.com/bytecodealliance/wasmtime-go/v29"
	"go.uber.org/zap"

	"github.com/Pierozi/polkadot/internal/crypto"
	"github.com/Pierozi/polkadot/internal/sandbox"
	"github.com/Pierozi/polkadot/internal/trie"
)

const noValueLen = ^uint32(0)

// envTable is the complete host-call catalogue exposed to guests under
// module "env".
func envTable() []hostFunc {
	return []hostFunc{
		{name: "ext_print_utf8", params: params(i32(), i32()), call: extPrintUTF8},
		{name: "ext_print_hex", params: params(i32(), i32()), call: extPrintHex},
		{name: "ext_print_num", params: params(i64()), call: extPrintNum},
		{name: "ext_memcmp", params: params(i32(), i32(), i32()), result: i32(), call: extMemcmp},
		{name: "ext_memcpy", params: params(i32(), i32(), i32()), result: i32(), call: extMemcpy},
		{name: "ext_memmove", params: params(i32(), i32(), i32()), result: i32(), call: extMemmove},
		{name: "ext_memset", params: params(i32(), i32(), i32()), result: i32(), call: extMemset},
		{name: "ext_malloc", params: params(i32()), result: i32(), call: extMalloc},
		{name: "ext_free", params: params(i32()), call: extFree},
		{name: "ext_set_storage", params: params(i32(), i32(), i32(), i32()), call: extSetStorage},
		{name: "ext_clear_storage", params: params(i32(), i32()), call: extClearStorage},
		{name: "ext_exists_storage", params: params(i32(), i32()), result: i32(), call: extExistsStorage},
		{name: "ext_clear_prefix", params: params(i32(), i32()), call: extClearPrefix},
		{name: "ext_get_allocated_storage", params: params(i32(), i32(), i32()), result: i32(), call: extGetAllocatedStorage},
		{name: "ext_get_storage_into", params: params(i32(), i32(), i32(), i32(), i32()), result: i32(), call: extGetStorageInto},
		{name: "ext_storage_root", params: params(i32()), call: extStorageRoot},
		{name: "ext_enumerated_trie_root", params: params(i32(), i32(), i32(), i32()), call: extEnumeratedTrieRoot},
		{name: "ext_chain_id", params: params(), result: i64(), call: extChainID},
		{name: "ext_twox_128", params: params(i32(), i32(), i32()), call: extTwox128},
		{name: "ext_twox_256", params: params(i32(), i32(), i32()), call: extTwox256},
		{name: "ext_blake2_256", params: params(i32(), i32(), i32()), call: extBlake2256},
		{name: "ext_ed25519_verify", params: params(i32(), i32(), i32(), i32()), result: i32(), call: extEd25519Verify},
		{name: "ext_sandbox_instantiate", params: params(i32(), i32(), i32(), i32(), i32(), i32()), result: i32(), call: extSandboxInstantiate},
		{name: "ext_sandbox_instance_teardown", params: params(i32()), call: extSandboxInstanceTeardown},
		{name: "ext_sandbox_invoke", params: params(i32(), i32(), i32(), i32()), result: i32(), call: extSandboxInvoke},
		{name: "ext_sandbox_invoke_poc2", params: params(i32(), i32(), i32(), i32(), i32(), i32(), i32(), i32()), result: i32(), call: extSandboxInvokePoc2},
		{name: "ext_sandbox_memory_new", params: params(i32(), i32()), result: i32(), call: extSandboxMemoryNew},
		{name: "ext_sandbox_memory_get", params: params(i32(), i32(), i32(), i32()), result: i32(), call: extSandboxMemoryGet},
		{name: "ext_sandbox_memory_set", params: params(i32(), i32(), i32(), i32()), result: i32(), call: extSandboxMemorySet},
		{name: "ext_sandbox_memory_teardown", params: params(i32()), call: extSandboxMemoryTeardown},
	}
}

func extPrintUTF8(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	// Unreadable or non-UTF-8 data is ignored, not trapped.
	if b, err := fe.mem.Get(argU32(args[0]), argU32(args[1])); err == nil && utf8.Valid(b) {
		fe.log.Info(string(b))
	}
	return unit, nil
}

func extPrintHex(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	if b, err := fe.mem.Get(argU32(args[0]), argU32(args[1])); err == nil {
		fe.log.Info(hex.EncodeToString(b))
	}
	return unit, nil
}

func extPrintNum(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	fe.log.Info(strconv.FormatUint(argU64(args[0]), 10))
	return unit, nil
}

func extMemcmp(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	n := argU32(args[2])
	s1, err := fe.mem.Get(argU32(args[0]), n)
	if err != nil {
		return unit, userError("invalid attempt to read first range in ext_memcmp")
	}
	s2, err := fe.mem.Get(argU32(args[1]), n)
	if err != nil {
		return unit, userError("invalid attempt to read second range in ext_memcmp")
	}
	return wasmtime.ValI32(int32(bytes.Compare(s1, s2))), nil
}

func extMemcpy(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	dst, src, n := argU32(args[0]), argU32(args[1]), argU32(args[2])
	if err := fe.mem.CopyNonoverlapping(src, dst, n); err != nil {
		return unit, userError("invalid attempt to copy in ext_memcpy")
	}
	return wasmtime.ValI32(int32(dst)), nil
}

func extMemmove(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	dst, src, n := argU32(args[0]), argU32(args[1]), argU32(args[2])
	if err := fe.mem.Copy(src, dst, n); err != nil {
		return unit, userError("invalid attempt to copy in ext_memmove")
	}
	return wasmtime.ValI32(int32(dst)), nil
}

func extMemset(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	dst, val, n := argU32(args[0]), argU32(args[1]), argU32(args[2])
	if err := fe.mem.Clear(dst, byte(val), n); err != nil {
		return unit, userError("invalid attempt to clear in ext_memset")
	}
	return wasmtime.ValI32(int32(dst)), nil
}

func extMalloc(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	return wasmtime.ValI32(int32(fe.heap.allocate(argU32(args[0])))), nil
}

func extFree(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	fe.heap.deallocate(argU32(args[0]))
	return unit, nil
}

func extSetStorage(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	key, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to determine key in ext_set_storage")
	}
	value, err := fe.mem.Get(argU32(args[2]), argU32(args[3]))
	if err != nil {
		return unit, userError("invalid attempt to determine value in ext_set_storage")
	}
	fe.traceStorage("setting storage", key, value)
	fe.ext.SetStorage(key, value)
	return unit, nil
}

func extClearStorage(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	key, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to determine key in ext_clear_storage")
	}
	fe.traceStorage("clearing storage", key, nil)
	fe.ext.ClearStorage(key)
	return unit, nil
}

func extExistsStorage(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	key, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to determine key in ext_exists_storage")
	}
	if fe.ext.ExistsStorage(key) {
		return wasmtime.ValI32(1), nil
	}
	return wasmtime.ValI32(0), nil
}

func extClearPrefix(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	prefix, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to determine prefix in ext_clear_prefix")
	}
	fe.ext.ClearPrefix(prefix)
	return unit, nil
}

func extGetAllocatedStorage(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	key, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to determine key in ext_get_allocated_storage")
	}
	writtenOut := argU32(args[2])
	value, ok := fe.ext.Storage(key)
	fe.traceStorage("getting storage", key, value)
	if !ok {
		if err := fe.mem.WriteUint32(writtenOut, noValueLen); err != nil {
			return unit, userError("invalid attempt to write failed written_out in ext_get_allocated_storage")
		}
		return wasmtime.ValI32(0), nil
	}
	offset := fe.heap.allocate(uint32(len(value)))
	if err := fe.mem.Set(offset, value); err != nil {
		return unit, userError("invalid attempt to set memory in ext_get_allocated_storage")
	}
	if err := fe.mem.WriteUint32(writtenOut, uint32(len(value))); err != nil {
		return unit, userError("invalid attempt to write written_out in ext_get_allocated_storage")
	}
	return wasmtime.ValI32(int32(offset)), nil
}

func extGetStorageInto(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	key, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to get key in ext_get_storage_into")
	}
	valueData, valueLen, valueOffset := argU32(args[2]), argU32(args[3]), argU32(args[4])
	value, ok := fe.ext.Storage(key)
	fe.traceStorage("getting storage", key, value)
	if !ok {
		return wasmtime.ValI32(int32(noValueLen)), nil
	}
	if uint64(valueOffset) > uint64(len(value)) {
		value = nil
	} else {
		value = value[valueOffset:]
	}
	written := uint32(len(value))
	if valueLen < written {
		written = valueLen
	}
	if err := fe.mem.Set(valueData, value[:written]); err != nil {
		return unit, userError("invalid attempt to set value in ext_get_storage_into")
	}
	return wasmtime.ValI32(int32(written)), nil
}

func extStorageRoot(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	root := fe.ext.StorageRoot()
	if err := fe.mem.Set(argU32(args[0]), root[:]); err != nil {
		return unit, userError("invalid attempt to set memory in ext_storage_root")
	}
	return unit, nil
}

func extEnumeratedTrieRoot(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	valuesData, lensData, lensLen, result := argU32(args[0]), argU32(args[1]), argU32(args[2]), argU32(args[3])
	values := make([][]byte, 0, lensLen)
	offset := uint32(0)
	for i := uint32(0); i < lensLen; i++ {
		n, err := fe.mem.ReadUint32(lensData + i*4)
		if err != nil {
			return unit, userError("invalid attempt to read length in ext_enumerated_trie_root")
		}
		v, err := fe.mem.Get(valuesData+offset, n)
		if err != nil {
			return unit, userError("invalid attempt to get memory in ext_enumerated_trie_root")
		}
		values = append(values, v)
		offset += n
	}
	root, err := trie.OrderedRoot(values)
	if err != nil {
		return unit, userError("failed to compute root in ext_enumerated_trie_root")
	}
	if err := fe.mem.Set(result, root[:]); err != nil {
		return unit, userError("invalid attempt to set memory in ext_enumerated_trie_root")
	}
	return unit, nil
}

func extChainID(fe *functionExecutor, _ []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	return wasmtime.ValI64(int64(fe.ext.ChainID())), nil
}

func extTwox128(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	data, n := argU32(args[0]), argU32(args[1])
	var preimage []byte
	if n > 0 {
		var err error
		preimage, err = fe.mem.Get(data, n)
		if err != nil {
			return unit, userError("invalid attempt to get data in ext_twox_128")
		}
	}
	hashed := crypto.Twox128(preimage)
	fe.hashLookup[string(hashed[:])] = preimage
	if err := fe.mem.Set(argU32(args[2]), hashed[:]); err != nil {
		return unit, userError("invalid attempt to set result in ext_twox_128")
	}
	return unit, nil
}

func extTwox256(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	data, n := argU32(args[0]), argU32(args[1])
	var in []byte
	if n > 0 {
		var err error
		in, err = fe.mem.Get(data, n)
		if err != nil {
			return unit, userError("invalid attempt to get data in ext_twox_256")
		}
	}
	hashed := crypto.Twox256(in)
	if err := fe.mem.Set(argU32(args[2]), hashed[:]); err != nil {
		return unit, userError("invalid attempt to set result in ext_twox_256")
	}
	return unit, nil
}

func extBlake2256(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	data, n := argU32(args[0]), argU32(args[1])
	var in []byte
	if n > 0 {
		var err error
		in, err = fe.mem.Get(data, n)
		if err != nil {
			return unit, userError("invalid attempt to get data in ext_blake2_256")
		}
	}
	hashed := crypto.Blake2b256(in)
	if err := fe.mem.Set(argU32(args[2]), hashed[:]); err != nil {
		return unit, userError("invalid attempt to set result in ext_blake2_256")
	}
	return unit, nil
}

func extEd25519Verify(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	msg, err := fe.mem.Get(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("invalid attempt to get message in ext_ed25519_verify")
	}
	sig, err := fe.mem.Get(argU32(args[2]), 64)
	if err != nil {
		return unit, userError("invalid attempt to get signature in ext_ed25519_verify")
	}
	pubkey, err := fe.mem.Get(argU32(args[3]), 32)
	if err != nil {
		return unit, userError("invalid attempt to get pubkey in ext_ed25519_verify")
	}
	if crypto.Ed25519Verify(msg, sig, pubkey) {
		return wasmtime.ValI32(0), nil
	}
	return wasmtime.ValI32(5), nil
}

func extSandboxInstantiate(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	thunkIdx := argU32(args[0])
	wasm, err := fe.mem.Get(argU32(args[1]), argU32(args[2]))
	if err != nil {
		return unit, userError("invalid attempt to get wasm in ext_sandbox_instantiate")
	}
	rawEnvDef, err := fe.mem.Get(argU32(args[3]), argU32(args[4]))
	if err != nil {
		return unit, userError("invalid attempt to get env definition in ext_sandbox_instantiate")
	}
	st := argU32(args[5])
	thunk, err := fe.dispatchThunk(thunkIdx)
	if err != nil {
		return unit, userError("ext_sandbox_instantiate: %v", err)
	}
	inst, err := sandbox.Instantiate(wasm, rawEnvDef, st, fe.dispatchFunc(thunk))
	if err != nil {
		return unit, userError("ext_sandbox_instantiate: %v", err)
	}
	idx := fe.sandboxStore.AddInstance(inst)
	if fe.metrics != nil {
		fe.metrics.SandboxInstances.Inc()
	}
	fe.log.Debug("sandbox instantiated", zap.Uint32("instance", idx))
	return wasmtime.ValI32(int32(idx)), nil
}

func extSandboxInstanceTeardown(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	if err := fe.sandboxStore.InstanceTeardown(argU32(args[0])); err != nil {
		return unit, userError("ext_sandbox_instance_teardown: %v", err)
	}
	return unit, nil
}

func extSandboxInvoke(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	export, err := fe.mem.Get(argU32(args[1]), argU32(args[2]))
	if err != nil || !utf8.Valid(export) {
		return unit, userError("invalid attempt to get export name in ext_sandbox_invoke")
	}
	inst, err := fe.sandboxStore.Instance(argU32(args[0]))
	if err != nil {
		return unit, userError("ext_sandbox_invoke: %v", err)
	}
	// Legacy entry point: no arguments, any returned value discarded.
	if _, err := inst.Invoke(string(export), nil, argU32(args[3])); err != nil {
		fe.log.Debug("sandbox invoke failed", zap.Error(err))
		return wasmtime.ValI32(int32(sandbox.ErrExecution)), nil
	}
	return wasmtime.ValI32(int32(sandbox.ErrOK)), nil
}

func extSandboxInvokePoc2(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	export, err := fe.mem.Get(argU32(args[1]), argU32(args[2]))
	if err != nil || !utf8.Valid(export) {
		return unit, userError("invalid attempt to get export name in ext_sandbox_invoke_poc2")
	}
	serializedArgs, err := fe.mem.Get(argU32(args[3]), argU32(args[4]))
	if err != nil {
		return unit, userError("invalid attempt to get args in ext_sandbox_invoke_poc2")
	}
	typedArgs, err := sandbox.DecodeTypedValues(serializedArgs)
	if err != nil {
		return unit, userError("malformed args in ext_sandbox_invoke_poc2")
	}
	returnValPtr, returnValLen := argU32(args[5]), argU32(args[6])
	inst, err := fe.sandboxStore.Instance(argU32(args[0]))
	if err != nil {
		return unit, userError("ext_sandbox_invoke_poc2: %v", err)
	}
	ret, err := inst.Invoke(string(export), typedArgs, argU32(args[7]))
	if err != nil {
		fe.log.Debug("sandbox invoke failed", zap.Error(err))
		return wasmtime.ValI32(int32(sandbox.ErrExecution)), nil
	}
	if ret == nil {
		return wasmtime.ValI32(int32(sandbox.ErrOK)), nil
	}
	encoded, err := sandbox.EncodeReturnValue(sandbox.ReturnValue{Value: *ret})
	if err != nil {
		return unit, userError("failed to encode return value in ext_sandbox_invoke_poc2")
	}
	if uint32(len(encoded)) > returnValLen {
		return unit, userError("return value does not fit in ext_sandbox_invoke_poc2")
	}
	if err := fe.mem.Set(returnValPtr, encoded); err != nil {
		return unit, userError("invalid attempt to set return value in ext_sandbox_invoke_poc2")
	}
	return wasmtime.ValI32(int32(sandbox.ErrOK)), nil
}

func extSandboxMemoryNew(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	mem, err := sandbox.NewMemory(argU32(args[0]), argU32(args[1]))
	if err != nil {
		return unit, userError("ext_sandbox_memory_new: %v", err)
	}
	return wasmtime.ValI32(int32(fe.sandboxStore.AddMemory(mem))), nil
}

func extSandboxMemoryGet(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	mem, err := fe.sandboxStore.Memory(argU32(args[0]))
	if err != nil {
		return unit, userError("ext_sandbox_memory_get: %v", err)
	}
	data, err := mem.Get(argU32(args[1]), argU32(args[3]))
	if err != nil {
		return wasmtime.ValI32(int32(sandbox.ErrOutOfBounds)), nil
	}
	if err := fe.mem.Set(argU32(args[2]), data); err != nil {
		return wasmtime.ValI32(int32(sandbox.ErrOutOfBounds)), nil
	}
	return wasmtime.ValI32(int32(sandbox.ErrOK)), nil
}

func extSandboxMemorySet(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	mem, err := fe.sandboxStore.Memory(argU32(args[0]))
	if err != nil {
		return unit, userError("ext_sandbox_memory_set: %v", err)
	}
	data, err := fe.mem.Get(argU32(args[2]), argU32(args[3]))
	if err != nil {
		return wasmtime.ValI32(int32(sandbox.ErrOutOfBounds)), nil
	}
	if err := mem.Set(argU32(args[1]), data); err != nil {
		return wasmtime.ValI32(int32(sandbox.ErrOutOfBounds)), nil
	}
	return wasmtime.ValI32(int32(sandbox.ErrOK)), nil
}

func extSandboxMemoryTeardown(fe *functionExecutor, args []wasmtime.Val) (wasmtime.Val, *wasmtime.Trap) {
	if err := fe.sandboxStore.MemoryTeardown(argU32(args[0])); err != nil {
		return unit, userError("ext_sandbox_memory_teardown: %v", err)
	}
	return unit, nil
}

// traceStorage logs a storage operation at debug level. Keys whose
// twox_128 preimage is known are shown as the preimage.
func (fe *functionExecutor) traceStorage(op string, key, value []byte) {
	if !fe.log.Core().Enabled(zap.DebugLevel) {
		return
	}
	shown := asciiFormat(key)
	if preimage, ok := fe.hashLookup[string(key)]; ok {
		shown = "%" + asciiFormat(preimage)
	}
	fe.log.Debug(op,
		zap.String("key", shown),
		zap.String("key_hex", hex.EncodeToString(key)),
		zap.String("value", hex.EncodeToString(value)),
	)
}

// asciiFormat renders printable bytes as text and everything else as hex.
func asciiFormat(b []byte) string {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return hex.EncodeToString(b)
		}
	}
	return string(b)
}
