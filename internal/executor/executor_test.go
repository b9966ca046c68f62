package executor_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/bytecodealliance/wasmtime-go/v29"

	"github.com/Pierozi/polkadot/internal/crypto"
	"github.com/Pierozi/polkadot/internal/executor"
	"github.com/Pierozi/polkadot/internal/sandbox"
	"github.com/Pierozi/polkadot/internal/state"
	"github.com/Pierozi/polkadot/internal/trie"
)

// runtimeWat is the test runtime. Every export follows the host calling
// convention: (i32 payload_ptr, i32 payload_len) → i64 packing the result
// as ptr | len<<32.
const runtimeWat = `
(module
  (import "env" "ext_malloc" (func $malloc (param i32) (result i32)))
  (import "env" "ext_set_storage" (func $set_storage (param i32 i32 i32 i32)))
  (import "env" "ext_get_allocated_storage" (func $get_allocated_storage (param i32 i32 i32) (result i32)))
  (import "env" "ext_clear_prefix" (func $clear_prefix (param i32 i32)))
  (import "env" "ext_storage_root" (func $storage_root (param i32)))
  (import "env" "ext_enumerated_trie_root" (func $enumerated_trie_root (param i32 i32 i32 i32)))
  (import "env" "ext_chain_id" (func $chain_id (result i64)))
  (import "env" "ext_twox_128" (func $twox_128 (param i32 i32 i32)))
  (import "env" "ext_twox_256" (func $twox_256 (param i32 i32 i32)))
  (import "env" "ext_blake2_256" (func $blake2_256 (param i32 i32 i32)))
  (import "env" "ext_ed25519_verify" (func $ed25519_verify (param i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_instantiate" (func $sandbox_instantiate (param i32 i32 i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_instance_teardown" (func $sandbox_teardown (param i32)))
  (import "env" "ext_sandbox_invoke" (func $sandbox_invoke (param i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_invoke_poc2" (func $sandbox_invoke_poc2 (param i32 i32 i32 i32 i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_memory_new" (func $sandbox_memory_new (param i32 i32) (result i32)))
  (import "env" "ext_sandbox_memory_get" (func $sandbox_memory_get (param i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_memory_set" (func $sandbox_memory_set (param i32 i32 i32 i32) (result i32)))
  (import "env" "ext_sandbox_memory_teardown" (func $sandbox_memory_teardown (param i32)))

  (memory (export "memory") 1)
  (table (export "__indirect_function_table") 1 1 funcref)
  (elem (i32.const 0) func $dispatch_thunk)

  (data (i32.const 0) "all ok!")
  (data (i32.const 16) "input")
  (data (i32.const 24) "foo")
  (data (i32.const 32) "baz")
  (data (i32.const 40) "zeroonetwo")
  (data (i32.const 56) "\04\00\00\00\03\00\00\00\03\00\00\00")
  (data (i32.const 72) "run")
  (data (i32.const 76) "noop")
  (data (i32.const 80) "thunk")
  (data (i32.const 104) "\04\01\07\00\00\00")

  (func $ret (param $ptr i32) (param $len i32) (result i64)
    (i64.or
      (i64.extend_i32_u (local.get $ptr))
      (i64.shl (i64.extend_i32_u (local.get $len)) (i64.const 32))))

  ;; Records the serialized host-call request under key "thunk", then
  ;; answers with the typed value i32(state + func_idx).
  (func $dispatch_thunk (param $state i32) (param $args i32) (param $args_len i32) (param $fidx i32) (result i64)
    (local $rp i32)
    (call $set_storage (i32.const 80) (i32.const 5) (local.get $args) (local.get $args_len))
    (local.set $rp (call $malloc (i32.const 6)))
    (i32.store8 (local.get $rp) (i32.const 1))
    (i32.store8 (i32.add (local.get $rp) (i32.const 1)) (i32.const 1))
    (i32.store (i32.add (local.get $rp) (i32.const 2)) (i32.add (local.get $state) (local.get $fidx)))
    (call $ret (local.get $rp) (i32.const 6)))

  (func (export "test_empty_return") (param i32 i32) (result i64)
    (i64.const 0))

  (func (export "test_panic") (param i32 i32) (result i64)
    unreachable)

  (func (export "test_conditional_panic") (param $ptr i32) (param $len i32) (result i64)
    (if (i32.gt_u (local.get $len) (i32.const 0)) (then unreachable))
    (call $ret (local.get $ptr) (local.get $len)))

  (func (export "test_data_in") (param $ptr i32) (param $len i32) (result i64)
    (local $valptr i32) (local $vallen i32)
    (call $set_storage (i32.const 16) (i32.const 5) (local.get $ptr) (local.get $len))
    (local.set $valptr (call $get_allocated_storage (i32.const 24) (i32.const 3) (i32.const 96)))
    (local.set $vallen (i32.load (i32.const 96)))
    (if (i32.ne (local.get $vallen) (i32.const -1))
      (then (call $set_storage (i32.const 32) (i32.const 3) (local.get $valptr) (local.get $vallen))))
    (call $ret (i32.const 0) (i32.const 7)))

  (func (export "test_clear_prefix") (param $ptr i32) (param $len i32) (result i64)
    (call $clear_prefix (local.get $ptr) (local.get $len))
    (call $ret (i32.const 0) (i32.const 7)))

  (func (export "test_twox_128") (param $ptr i32) (param $len i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 16)))
    (call $twox_128 (local.get $ptr) (local.get $len) (local.get $out))
    (call $ret (local.get $out) (i32.const 16)))

  (func (export "test_twox_256") (param $ptr i32) (param $len i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 32)))
    (call $twox_256 (local.get $ptr) (local.get $len) (local.get $out))
    (call $ret (local.get $out) (i32.const 32)))

  (func (export "test_blake2_256") (param $ptr i32) (param $len i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 32)))
    (call $blake2_256 (local.get $ptr) (local.get $len) (local.get $out))
    (call $ret (local.get $out) (i32.const 32)))

  ;; Payload is pubkey (32 bytes) followed by signature (64 bytes); the
  ;; message is the fixed "all ok!".
  (func (export "test_ed25519_verify") (param $ptr i32) (param $len i32) (result i64)
    (local $res i32) (local $out i32)
    (local.set $res (call $ed25519_verify (i32.const 0) (i32.const 7)
      (i32.add (local.get $ptr) (i32.const 32)) (local.get $ptr)))
    (local.set $out (call $malloc (i32.const 1)))
    (i32.store8 (local.get $out) (i32.eqz (local.get $res)))
    (call $ret (local.get $out) (i32.const 1)))

  (func (export "test_enumerated_trie_root") (param i32 i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 32)))
    (call $enumerated_trie_root (i32.const 40) (i32.const 56) (i32.const 3) (local.get $out))
    (call $ret (local.get $out) (i32.const 32)))

  (func (export "test_storage_root") (param i32 i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 32)))
    (call $storage_root (local.get $out))
    (call $ret (local.get $out) (i32.const 32)))

  (func (export "test_chain_id") (param i32 i32) (result i64)
    (local $out i32)
    (local.set $out (call $malloc (i32.const 8)))
    (i64.store (local.get $out) (call $chain_id))
    (call $ret (local.get $out) (i32.const 8)))

  (func (export "test_malloc_monotonic") (param i32 i32) (result i64)
    (local $a i32) (local $b i32) (local $out i32)
    (local.set $a (call $malloc (i32.const 16)))
    (local.set $b (call $malloc (i32.const 16)))
    (local.set $out (call $malloc (i32.const 8)))
    (i32.store (local.get $out) (local.get $a))
    (i32.store (i32.add (local.get $out) (i32.const 4)) (local.get $b))
    (call $ret (local.get $out) (i32.const 8)))

  (func (export "test_bad_pointer") (param i32 i32) (result i64)
    (call $set_storage (i32.const 0) (i32.const 3) (i32.const 0) (i32.const -1))
    (i64.const 0))

  ;; Sandbox payloads are laid out as env_len (u32 le), env definition,
  ;; nested module bytes.
  (func (export "test_sandbox") (param $ptr i32) (param $len i32) (result i64)
    (local $envlen i32) (local $envptr i32) (local $wasmptr i32) (local $wasmlen i32)
    (local $inst i32) (local $rc i32) (local $rbuf i32)
    (local.set $envlen (i32.load (local.get $ptr)))
    (local.set $envptr (i32.add (local.get $ptr) (i32.const 4)))
    (local.set $wasmptr (i32.add (local.get $envptr) (local.get $envlen)))
    (local.set $wasmlen (i32.sub (i32.sub (local.get $len) (i32.const 4)) (local.get $envlen)))
    (local.set $inst (call $sandbox_instantiate (i32.const 0)
      (local.get $wasmptr) (local.get $wasmlen)
      (local.get $envptr) (local.get $envlen)
      (i32.const 1)))
    (local.set $rbuf (call $malloc (i32.const 16)))
    (local.set $rc (call $sandbox_invoke_poc2 (local.get $inst)
      (i32.const 72) (i32.const 3)
      (i32.const 104) (i32.const 6)
      (local.get $rbuf) (i32.const 16)
      (i32.const 99)))
    (if (i32.ne (local.get $rc) (i32.const 0)) (then unreachable))
    (call $sandbox_teardown (local.get $inst))
    (call $ret (i32.add (local.get $rbuf) (i32.const 2)) (i32.const 4)))

  (func (export "test_sandbox_legacy") (param $ptr i32) (param $len i32) (result i64)
    (local $envlen i32) (local $envptr i32) (local $wasmptr i32) (local $wasmlen i32)
    (local $inst i32) (local $rc i32)
    (local.set $envlen (i32.load (local.get $ptr)))
    (local.set $envptr (i32.add (local.get $ptr) (i32.const 4)))
    (local.set $wasmptr (i32.add (local.get $envptr) (local.get $envlen)))
    (local.set $wasmlen (i32.sub (i32.sub (local.get $len) (i32.const 4)) (local.get $envlen)))
    (local.set $inst (call $sandbox_instantiate (i32.const 0)
      (local.get $wasmptr) (local.get $wasmlen)
      (local.get $envptr) (local.get $envlen)
      (i32.const 7)))
    (local.set $rc (call $sandbox_invoke (local.get $inst) (i32.const 76) (i32.const 4) (i32.const 7)))
    (if (i32.ne (local.get $rc) (i32.const 0)) (then unreachable))
    (call $sandbox_teardown (local.get $inst))
    (call $ret (i32.const 0) (i32.const 7)))

  (func (export "test_sandbox_teardown_twice") (param $ptr i32) (param $len i32) (result i64)
    (local $envlen i32) (local $envptr i32) (local $wasmptr i32) (local $wasmlen i32)
    (local $inst i32)
    (local.set $envlen (i32.load (local.get $ptr)))
    (local.set $envptr (i32.add (local.get $ptr) (i32.const 4)))
    (local.set $wasmptr (i32.add (local.get $envptr) (local.get $envlen)))
    (local.set $wasmlen (i32.sub (i32.sub (local.get $len) (i32.const 4)) (local.get $envlen)))
    (local.set $inst (call $sandbox_instantiate (i32.const 0)
      (local.get $wasmptr) (local.get $wasmlen)
      (local.get $envptr) (local.get $envlen)
      (i32.const 0)))
    (call $sandbox_teardown (local.get $inst))
    (call $sandbox_teardown (local.get $inst))
    (i64.const 0))

  (func (export "test_sandbox_memory") (param $ptr i32) (param $len i32) (result i64)
    (local $idx i32) (local $buf i32) (local $rc i32)
    (local.set $idx (call $sandbox_memory_new (i32.const 1) (i32.const 1)))
    (local.set $rc (call $sandbox_memory_set (local.get $idx) (i32.const 0) (local.get $ptr) (local.get $len)))
    (if (i32.ne (local.get $rc) (i32.const 0)) (then unreachable))
    (local.set $buf (call $malloc (local.get $len)))
    (local.set $rc (call $sandbox_memory_get (local.get $idx) (i32.const 0) (local.get $buf) (local.get $len)))
    (if (i32.ne (local.get $rc) (i32.const 0)) (then unreachable))
    (call $sandbox_memory_teardown (local.get $idx))
    (call $ret (local.get $buf) (local.get $len)))

  (func (export "test_sandbox_memory_oob") (param i32 i32) (result i64)
    (local $idx i32) (local $rc i32) (local $out i32)
    (local.set $idx (call $sandbox_memory_new (i32.const 1) (i32.const 1)))
    (local.set $rc (call $sandbox_memory_get (local.get $idx) (i32.const 65536) (i32.const 0) (i32.const 16)))
    (local.set $out (call $malloc (i32.const 4)))
    (i32.store (local.get $out) (local.get $rc))
    (call $ret (local.get $out) (i32.const 4)))
)
`

// nestedCallerWat is a sandboxed guest whose only import routes back
// through the outer guest's dispatch thunk.
const nestedCallerWat = `
(module
  (import "env" "inc" (func $inc (param i32) (result i32)))
  (func (export "run") (param $x i32) (result i32)
    (call $inc (local.get $x))))
`

// nestedNoopWat is a sandboxed guest with no imports and a void export.
const nestedNoopWat = `
(module
  (func (export "noop")))
`

func compileWat(t *testing.T, wat string) []byte {
	t.Helper()
	wasm, err := wasmtime.Wat2Wasm(wat)
	if err != nil {
		t.Fatalf("wat2wasm: %v", err)
	}
	return wasm
}

func runtimeWasm(t *testing.T) []byte {
	return compileWat(t, runtimeWat)
}

func call(t *testing.T, ext state.Externalities, method string, payload []byte) ([]byte, error) {
	t.Helper()
	return executor.New(8, nil).Call(ext, runtimeWasm(t), method, payload)
}

func mustCall(t *testing.T, ext state.Externalities, method string, payload []byte) []byte {
	t.Helper()
	out, err := call(t, ext, method, payload)
	if err != nil {
		t.Fatalf("call %s: %v", method, err)
	}
	return out
}

func wantPairs(t *testing.T, ext *state.MemoryExternalities, want map[string]string) {
	t.Helper()
	pairs := ext.Pairs()
	if len(pairs) != len(want) {
		t.Fatalf("state has %d entries, want %d: %v", len(pairs), len(want), pairs)
	}
	for _, kv := range pairs {
		if want[string(kv[0])] != string(kv[1]) {
			t.Fatalf("state[%q] = %q, want %q", kv[0], kv[1], want[string(kv[0])])
		}
	}
}

func TestEmptyReturn(t *testing.T) {
	ext := state.NewMemory(42)
	out := mustCall(t, ext, "test_empty_return", nil)
	if len(out) != 0 {
		t.Fatalf("output = %x", out)
	}
	if ext.Len() != 0 {
		t.Fatal("externalities mutated")
	}
}

func TestPanicPropagates(t *testing.T) {
	ext := state.NewMemory(42)

	if _, err := call(t, ext, "test_panic", nil); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("test_panic err = %v", err)
	}
	if _, err := call(t, ext, "test_conditional_panic", []byte{2}); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("test_conditional_panic err = %v", err)
	}
	if out := mustCall(t, ext, "test_conditional_panic", nil); len(out) != 0 {
		t.Fatalf("empty-payload conditional panic returned %x", out)
	}
}

func TestStorageMutation(t *testing.T) {
	ext := state.NewMemory(42)
	ext.SetStorage([]byte("foo"), []byte("bar"))

	out := mustCall(t, ext, "test_data_in", []byte("Hello world"))
	if string(out) != "all ok!" {
		t.Fatalf("output = %q", out)
	}
	wantPairs(t, ext, map[string]string{
		"input": "Hello world",
		"foo":   "bar",
		"baz":   "bar",
	})
}

func TestClearPrefix(t *testing.T) {
	ext := state.NewMemory(42)
	for k, v := range map[string]string{"aaa": "1", "aab": "2", "aba": "3", "abb": "4", "bbb": "5"} {
		ext.SetStorage([]byte(k), []byte(v))
	}

	out := mustCall(t, ext, "test_clear_prefix", []byte("ab"))
	if string(out) != "all ok!" {
		t.Fatalf("output = %q", out)
	}
	wantPairs(t, ext, map[string]string{"aaa": "1", "aab": "2", "bbb": "5"})
}

func TestTwox128(t *testing.T) {
	ext := state.NewMemory(42)

	if got := hex.EncodeToString(mustCall(t, ext, "test_twox_128", nil)); got != "99e9d85137db46ef4bbea33613baafd5" {
		t.Fatalf("twox_128(\"\") = %s", got)
	}
	if got := hex.EncodeToString(mustCall(t, ext, "test_twox_128", []byte("Hello world!"))); got != "b27dfd7f223f177f2a13647b533599af" {
		t.Fatalf("twox_128(\"Hello world!\") = %s", got)
	}
}

func TestHashAgreement(t *testing.T) {
	ext := state.NewMemory(42)
	input := []byte("Hello world!")

	want256 := crypto.Twox256(input)
	if got := mustCall(t, ext, "test_twox_256", input); !bytes.Equal(got, want256[:]) {
		t.Fatalf("twox_256 = %x, want %x", got, want256)
	}

	wantBlake := crypto.Blake2b256(input)
	if got := mustCall(t, ext, "test_blake2_256", input); !bytes.Equal(got, wantBlake[:]) {
		t.Fatalf("blake2_256 = %x, want %x", got, wantBlake)
	}

	wantEmpty := crypto.Blake2b256(nil)
	if got := mustCall(t, ext, "test_blake2_256", nil); !bytes.Equal(got, wantEmpty[:]) {
		t.Fatalf("blake2_256(\"\") = %x, want %x", got, wantEmpty)
	}
}

func TestEd25519Verify(t *testing.T) {
	ext := state.NewMemory(42)
	seed := crypto.Blake2b256([]byte("test"))
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)

	good := append(append([]byte{}, pub...), ed25519.Sign(priv, []byte("all ok!"))...)
	if out := mustCall(t, ext, "test_ed25519_verify", good); !bytes.Equal(out, []byte{1}) {
		t.Fatalf("valid signature verified as %x", out)
	}

	bad := append(append([]byte{}, pub...), ed25519.Sign(priv, []byte("all is not ok!"))...)
	if out := mustCall(t, ext, "test_ed25519_verify", bad); !bytes.Equal(out, []byte{0}) {
		t.Fatalf("invalid signature verified as %x", out)
	}
}

func TestEnumeratedTrieRoot(t *testing.T) {
	ext := state.NewMemory(42)

	want, err := trie.OrderedRoot([][]byte{[]byte("zero"), []byte("one"), []byte("two")})
	if err != nil {
		t.Fatalf("OrderedRoot: %v", err)
	}
	if got := mustCall(t, ext, "test_enumerated_trie_root", nil); !bytes.Equal(got, want[:]) {
		t.Fatalf("trie root = %x, want %x", got, want)
	}
}

func TestStorageRoot(t *testing.T) {
	ext := state.NewMemory(42)
	ext.SetStorage([]byte("foo"), []byte("bar"))
	ext.SetStorage([]byte("baz"), []byte("qux"))

	want := ext.StorageRoot()
	if got := mustCall(t, ext, "test_storage_root", nil); !bytes.Equal(got, want[:]) {
		t.Fatalf("storage root = %x, want %x", got, want)
	}
}

func TestChainID(t *testing.T) {
	ext := state.NewMemory(0x0102030405060708)
	out := mustCall(t, ext, "test_chain_id", nil)
	if len(out) != 8 || binary.LittleEndian.Uint64(out) != 0x0102030405060708 {
		t.Fatalf("chain id bytes = %x", out)
	}
}

func TestMallocMonotonic(t *testing.T) {
	ext := state.NewMemory(42)
	out := mustCall(t, ext, "test_malloc_monotonic", nil)
	if len(out) != 8 {
		t.Fatalf("output = %x", out)
	}
	a := binary.LittleEndian.Uint32(out[0:4])
	b := binary.LittleEndian.Uint32(out[4:8])
	if b < a+16 {
		t.Fatalf("allocations overlap: %d then %d", a, b)
	}
}

func TestBadPointerTrapsAndLeavesStateUntouched(t *testing.T) {
	ext := state.NewMemory(42)
	if _, err := call(t, ext, "test_bad_pointer", nil); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("err = %v", err)
	}
	if ext.Len() != 0 {
		t.Fatal("out-of-bounds host call mutated state")
	}
}

func TestDeterminism(t *testing.T) {
	run := func() ([]byte, [32]byte) {
		ext := state.NewMemory(42)
		ext.SetStorage([]byte("foo"), []byte("bar"))
		out := mustCall(t, ext, "test_data_in", []byte("Hello world"))
		return out, ext.StorageRoot()
	}

	out1, root1 := run()
	out2, root2 := run()
	if !bytes.Equal(out1, out2) {
		t.Fatalf("outputs differ: %x vs %x", out1, out2)
	}
	if root1 != root2 {
		t.Fatal("post-state roots differ")
	}
}

func TestMissingMemoryExport(t *testing.T) {
	ext := state.NewMemory(42)
	code := compileWat(t, `(module (func (export "test") (param i32 i32) (result i64) (i64.const 0)))`)
	if _, err := executor.New(8, nil).Call(ext, code, "test", nil); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("err = %v", err)
	}
}

func TestInvalidReturnShape(t *testing.T) {
	ext := state.NewMemory(42)
	code := compileWat(t, `(module (memory (export "memory") 1) (func (export "bad_ret") (param i32 i32) (result i32) (i32.const 0)))`)
	if _, err := executor.New(8, nil).Call(ext, code, "bad_ret", nil); !errors.Is(err, executor.ErrInvalidReturn) {
		t.Fatalf("err = %v", err)
	}
}

func TestHeapGrowPastDeclaredMaximum(t *testing.T) {
	ext := state.NewMemory(42)
	code := compileWat(t, `(module (memory (export "memory") 1 1) (func (export "test") (param i32 i32) (result i64) (i64.const 0)))`)
	if _, err := executor.New(8, nil).Call(ext, code, "test", nil); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("err = %v", err)
	}
}

func TestMissingExport(t *testing.T) {
	ext := state.NewMemory(42)
	if _, err := call(t, ext, "no_such_export", nil); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("err = %v", err)
	}
}

func TestMalformedModule(t *testing.T) {
	ext := state.NewMemory(42)
	if _, err := executor.New(8, nil).Call(ext, []byte("not wasm"), "test", nil); err == nil {
		t.Fatal("malformed module accepted")
	}
}

// sandboxPayload lays out env_len (u32 le) | env definition | nested wasm.
func sandboxPayload(t *testing.T, entries []sandbox.EnvEntry, nestedWat string) []byte {
	t.Helper()
	env, err := sandbox.EncodeEnvDefinition(entries)
	if err != nil {
		t.Fatalf("encode env definition: %v", err)
	}
	nested := compileWat(t, nestedWat)
	payload := make([]byte, 4, 4+len(env)+len(nested))
	binary.LittleEndian.PutUint32(payload, uint32(len(env)))
	payload = append(payload, env...)
	payload = append(payload, nested...)
	return payload
}

func TestSandboxDispatch(t *testing.T) {
	ext := state.NewMemory(42)
	payload := sandboxPayload(t, []sandbox.EnvEntry{
		{Module: []byte("env"), Field: []byte("inc"), FuncIdx: 5},
	}, nestedCallerWat)

	out := mustCall(t, ext, "test_sandbox", payload)

	// The nested guest calls env.inc(7); the thunk answers state+func_idx
	// with state 99 and func index 5.
	if len(out) != 4 || binary.LittleEndian.Uint32(out) != 104 {
		t.Fatalf("nested return = %x", out)
	}

	// The thunk observed the serialized argument list [I32(7)].
	recorded, ok := ext.Storage([]byte("thunk"))
	if !ok {
		t.Fatal("thunk never ran")
	}
	if !bytes.Equal(recorded, []byte{0x04, 0x01, 0x07, 0x00, 0x00, 0x00}) {
		t.Fatalf("thunk saw args %x", recorded)
	}
}

func TestSandboxLegacyInvoke(t *testing.T) {
	ext := state.NewMemory(42)
	payload := sandboxPayload(t, nil, nestedNoopWat)

	out := mustCall(t, ext, "test_sandbox_legacy", payload)
	if string(out) != "all ok!" {
		t.Fatalf("output = %q", out)
	}
}

func TestSandboxTeardownTwiceTraps(t *testing.T) {
	ext := state.NewMemory(42)
	payload := sandboxPayload(t, nil, nestedNoopWat)

	if _, err := call(t, ext, "test_sandbox_teardown_twice", payload); !errors.Is(err, executor.ErrRuntime) {
		t.Fatalf("err = %v", err)
	}
}

func TestSandboxMemoryRoundTrip(t *testing.T) {
	ext := state.NewMemory(42)
	payload := []byte("sandbox bytes")

	out := mustCall(t, ext, "test_sandbox_memory", payload)
	if !bytes.Equal(out, payload) {
		t.Fatalf("round trip = %q", out)
	}
}

func TestSandboxMemoryOutOfBounds(t *testing.T) {
	ext := state.NewMemory(42)
	out := mustCall(t, ext, "test_sandbox_memory_oob", nil)
	if len(out) != 4 || binary.LittleEndian.Uint32(out) != sandbox.ErrOutOfBounds {
		t.Fatalf("status = %x", out)
	}
}
