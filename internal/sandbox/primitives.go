package sandbox

import (
	"bytes"
	"fmt"
	"math"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
)

// Status codes a sandbox host call returns to the outer guest. These are
// soft errors: the guest observes them as return values and may recover.
const (
	ErrOK          uint32 = 0
	ErrExecution   uint32 = math.MaxUint32 - 1
	ErrOutOfBounds uint32 = math.MaxUint32
)

// ValueKind tags a typed value on the sandbox wire.
type ValueKind byte

const (
	KindI32 ValueKind = 1
	KindI64 ValueKind = 2
	KindF32 ValueKind = 3
	KindF64 ValueKind = 4
)

// TypedValue is a Wasm value crossing the sandbox boundary. Bits holds the
// little-endian payload image; I32 and F32 use the low 32 bits. Floats are
// carried bit-exactly, never converted.
type TypedValue struct {
	Kind ValueKind
	Bits uint64
}

// I32 wraps an i32 value.
func I32(v int32) TypedValue { return TypedValue{Kind: KindI32, Bits: uint64(uint32(v))} }

// I64 wraps an i64 value.
func I64(v int64) TypedValue { return TypedValue{Kind: KindI64, Bits: uint64(v)} }

// F32 wraps the IEEE-754 bit image of an f32 value.
func F32(bits uint32) TypedValue { return TypedValue{Kind: KindF32, Bits: uint64(bits)} }

// F64 wraps the IEEE-754 bit image of an f64 value.
func F64(bits uint64) TypedValue { return TypedValue{Kind: KindF64, Bits: bits} }

func (v TypedValue) encode(enc *scale.Encoder) error {
	if err := enc.PushByte(byte(v.Kind)); err != nil {
		return err
	}
	switch v.Kind {
	case KindI32, KindF32:
		return enc.Encode(uint32(v.Bits))
	case KindI64, KindF64:
		return enc.Encode(v.Bits)
	default:
		return fmt.Errorf("sandbox: unknown value kind %d", v.Kind)
	}
}

func decodeTypedValue(dec *scale.Decoder) (TypedValue, error) {
	tag, err := dec.ReadOneByte()
	if err != nil {
		return TypedValue{}, err
	}
	switch ValueKind(tag) {
	case KindI32, KindF32:
		var bits uint32
		if err := dec.Decode(&bits); err != nil {
			return TypedValue{}, err
		}
		return TypedValue{Kind: ValueKind(tag), Bits: uint64(bits)}, nil
	case KindI64, KindF64:
		var bits uint64
		if err := dec.Decode(&bits); err != nil {
			return TypedValue{}, err
		}
		return TypedValue{Kind: ValueKind(tag), Bits: bits}, nil
	default:
		return TypedValue{}, fmt.Errorf("sandbox: unknown value tag %d", tag)
	}
}

// EncodeTypedValues serializes an argument list for the dispatch thunk.
func EncodeTypedValues(values []TypedValue) ([]byte, error) {
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	if err := enc.EncodeUintCompact(*bigFromUint(uint64(len(values)))); err != nil {
		return nil, err
	}
	for _, v := range values {
		if err := v.encode(enc); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeTypedValues parses an argument list from its serialized form.
func DecodeTypedValues(data []byte) ([]TypedValue, error) {
	dec := scale.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeUintCompact()
	if err != nil {
		return nil, fmt.Errorf("sandbox: decode argument count: %w", err)
	}
	count := n.Uint64()
	values := make([]TypedValue, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := decodeTypedValue(dec)
		if err != nil {
			return nil, fmt.Errorf("sandbox: decode argument %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func bigFromUint(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// ReturnValue is the typed result of a sandboxed call: either unit or a
// single typed value.
type ReturnValue struct {
	Unit  bool
	Value TypedValue
}

const (
	returnUnitTag  byte = 0
	returnValueTag byte = 1
)

// EncodeReturnValue serializes a return value.
func EncodeReturnValue(rv ReturnValue) ([]byte, error) {
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	if rv.Unit {
		if err := enc.PushByte(returnUnitTag); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	if err := enc.PushByte(returnValueTag); err != nil {
		return nil, err
	}
	if err := rv.Value.encode(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeReturnValue parses a serialized return value.
func DecodeReturnValue(data []byte) (ReturnValue, error) {
	dec := scale.NewDecoder(bytes.NewReader(data))
	tag, err := dec.ReadOneByte()
	if err != nil {
		return ReturnValue{}, fmt.Errorf("sandbox: decode return tag: %w", err)
	}
	switch tag {
	case returnUnitTag:
		return ReturnValue{Unit: true}, nil
	case returnValueTag:
		v, err := decodeTypedValue(dec)
		if err != nil {
			return ReturnValue{}, fmt.Errorf("sandbox: decode return value: %w", err)
		}
		return ReturnValue{Value: v}, nil
	default:
		return ReturnValue{}, fmt.Errorf("sandbox: unknown return tag %d", tag)
	}
}

// EnvEntry binds one import of a nested module to an index the outer
// guest's dispatch thunk understands.
type EnvEntry struct {
	Module  []byte
	Field   []byte
	FuncIdx uint32
}

// DecodeEnvDefinition parses the env-definition blob: a SCALE vector of
// (module_name, field_name, func_idx) triples.
func DecodeEnvDefinition(raw []byte) ([]EnvEntry, error) {
	var entries []EnvEntry
	if err := scale.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("sandbox: decode env definition: %w", err)
	}
	return entries, nil
}

// EncodeEnvDefinition serializes an env definition, the inverse of
// DecodeEnvDefinition.
func EncodeEnvDefinition(entries []EnvEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := scale.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, fmt.Errorf("sandbox: encode env definition: %w", err)
	}
	return buf.Bytes(), nil
}
