package flexbuffers

import (
	"bytes"
	"fmt"
	"math"
	"sort"
)

// Kind is the logical kind of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUInt
	KindFloat
	KindBlob
	KindString
	KindVector
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUInt:
		return "uint"
	case KindFloat:
		return "float"
	case KindBlob:
		return "blob"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a dynamic value the Builder consumes and the Reader produces.
// The zero Value is Null.
type Value struct {
	kind  Kind
	bits  uint64 // bool, int64, uint64 or float64 bits
	str   string
	blob  []byte
	items []Value
	pairs []Pair
}

// Pair is one map entry.
type Pair struct {
	Key   string
	Value Value
}

func Null() Value           { return Value{} }
func Int(i int64) Value     { return Value{kind: KindInt, bits: uint64(i)} }
func UInt(u uint64) Value   { return Value{kind: KindUInt, bits: u} }
func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Blob(b []byte) Value   { return Value{kind: KindBlob, blob: b} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

// Vector returns a vector value holding items.
func Vector(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindVector, items: items}
}

// Map returns a map value. Keys must be unique; their order is not
// significant.
func Map(pairs ...Pair) Value {
	if pairs == nil {
		pairs = []Pair{}
	}
	return Value{kind: KindMap, pairs: pairs}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Bool() bool     { return v.bits != 0 }
func (v Value) Int() int64     { return int64(v.bits) }
func (v Value) UInt() uint64   { return v.bits }
func (v Value) Float() float64 { return math.Float64frombits(v.bits) }
func (v Value) Str() string    { return v.str }
func (v Value) Bytes() []byte  { return v.blob }
func (v Value) Items() []Value { return v.items }
func (v Value) Pairs() []Pair  { return v.pairs }

// Len is the element count of a vector or map and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindVector:
		return len(v.items)
	case KindMap:
		return len(v.pairs)
	default:
		return 0
	}
}

// Get returns the map entry for key.
func (v Value) Get(key string) (Value, bool) {
	for _, p := range v.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Equal reports whether v and o hold the same value. Maps compare by key
// identity regardless of entry order; NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindFloat:
		a, b := v.Float(), o.Float()
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	case KindBool, KindInt, KindUInt:
		return v.bits == o.bits
	case KindString:
		return v.str == o.str
	case KindBlob:
		return bytes.Equal(v.blob, o.blob)
	case KindVector:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for _, p := range v.pairs {
			ov, ok := o.Get(p.Key)
			if !ok || !p.Value.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedPairs returns the map entries in the order they are stored in a
// buffer: ascending byte order of the keys.
func (v Value) SortedPairs() []Pair {
	out := make([]Pair, len(v.pairs))
	copy(out, v.pairs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.Bool())
	case KindInt:
		return fmt.Sprint(v.Int())
	case KindUInt:
		return fmt.Sprint(v.UInt())
	case KindFloat:
		return fmt.Sprint(v.Float())
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBlob:
		return fmt.Sprintf("blob(%x)", v.blob)
	case KindVector:
		return fmt.Sprint(v.items)
	case KindMap:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(&buf, "%q:%v", p.Key, p.Value)
		}
		buf.WriteByte('}')
		return buf.String()
	default:
		return "invalid"
	}
}
