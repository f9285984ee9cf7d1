package flexbuf

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

var valueType = reflect.TypeOf(flexbuffers.Value{})

type structPlan struct {
	fields []fieldPlan
}

type fieldPlan struct {
	index     []int
	name      string
	omitEmpty bool
}

// planCache holds one struct plan per type. Plans are built once and read
// concurrently afterwards.
type planCache struct {
	mu    sync.RWMutex
	plans map[reflect.Type]*structPlan
}

func (c *planCache) get(t reflect.Type) *structPlan {
	c.mu.RLock()
	if plan, ok := c.plans[t]; ok {
		c.mu.RUnlock()
		return plan
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check
	if plan, ok := c.plans[t]; ok {
		return plan
	}
	if c.plans == nil {
		c.plans = make(map[reflect.Type]*structPlan)
	}
	plan := &structPlan{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(sf.Tag.Get("flex"), ",")
		if name == "-" && opts == "" {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		plan.fields = append(plan.fields, fieldPlan{
			index:     sf.Index,
			name:      name,
			omitEmpty: opts == "omitempty",
		})
	}
	c.plans[t] = plan
	return plan
}

// FromAny converts a Go value with the default Codec.
func FromAny(v any) (flexbuffers.Value, error) {
	return defaultCodec.FromAny(v)
}

// FromAny converts a Go value into a flexbuffers.Value. Supported are nil,
// bools, every integer and float kind, strings, byte slices and arrays
// (as blobs), other slices and arrays, maps with string keys, structs,
// pointers and interfaces holding any of these, and flexbuffers.Value
// itself. Nil pointers, slices and maps become Null.
func (c *Codec) FromAny(v any) (flexbuffers.Value, error) {
	if v == nil {
		return flexbuffers.Null(), nil
	}
	return c.fromReflect(reflect.ValueOf(v), 0)
}

func (c *Codec) fromReflect(rv reflect.Value, depth int) (flexbuffers.Value, error) {
	if rv.Type() == valueType {
		return rv.Interface().(flexbuffers.Value), nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return flexbuffers.Null(), nil
		}
		if depth >= c.maxDepth() {
			return flexbuffers.Value{}, fmt.Errorf("%w: pointer chain deeper than %d", flexbuffers.ErrDepthExceeded, c.maxDepth())
		}
		return c.fromReflect(rv.Elem(), depth+1)
	case reflect.Bool:
		return flexbuffers.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return flexbuffers.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return flexbuffers.UInt(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return flexbuffers.Float(rv.Float()), nil
	case reflect.String:
		return flexbuffers.String(rv.String()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return flexbuffers.Null(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return flexbuffers.Blob(append([]byte(nil), rv.Bytes()...)), nil
		}
		return c.fromList(rv, depth)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			p := make([]byte, rv.Len())
			for i := range p {
				p[i] = byte(rv.Index(i).Uint())
			}
			return flexbuffers.Blob(p), nil
		}
		return c.fromList(rv, depth)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return flexbuffers.Value{}, fmt.Errorf("%w: map key %s", ErrUnsupported, rv.Type().Key())
		}
		if rv.IsNil() {
			return flexbuffers.Null(), nil
		}
		if err := c.enter(depth); err != nil {
			return flexbuffers.Value{}, err
		}
		pairs := make([]flexbuffers.Pair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := c.fromReflect(iter.Value(), depth+1)
			if err != nil {
				return flexbuffers.Value{}, err
			}
			pairs = append(pairs, flexbuffers.Pair{Key: iter.Key().String(), Value: v})
		}
		return flexbuffers.Map(pairs...), nil
	case reflect.Struct:
		if err := c.enter(depth); err != nil {
			return flexbuffers.Value{}, err
		}
		plan := c.plans.get(rv.Type())
		pairs := make([]flexbuffers.Pair, 0, len(plan.fields))
		for _, f := range plan.fields {
			fv := rv.FieldByIndex(f.index)
			if f.omitEmpty && fv.IsZero() {
				continue
			}
			v, err := c.fromReflect(fv, depth+1)
			if err != nil {
				return flexbuffers.Value{}, fmt.Errorf("field %s: %w", f.name, err)
			}
			pairs = append(pairs, flexbuffers.Pair{Key: f.name, Value: v})
		}
		return flexbuffers.Map(pairs...), nil
	default:
		return flexbuffers.Value{}, fmt.Errorf("%w: %s", ErrUnsupported, rv.Type())
	}
}

func (c *Codec) fromList(rv reflect.Value, depth int) (flexbuffers.Value, error) {
	if err := c.enter(depth); err != nil {
		return flexbuffers.Value{}, err
	}
	items := make([]flexbuffers.Value, rv.Len())
	for i := range items {
		v, err := c.fromReflect(rv.Index(i), depth+1)
		if err != nil {
			return flexbuffers.Value{}, err
		}
		items[i] = v
	}
	return flexbuffers.Vector(items...), nil
}

func (c *Codec) maxDepth() int { return c.opts.limits().MaxDepth }

// enter checks that one more container level fits.
func (c *Codec) enter(depth int) error {
	if depth >= c.maxDepth() {
		return fmt.Errorf("%w: nesting deeper than %d", flexbuffers.ErrDepthExceeded, c.maxDepth())
	}
	return nil
}

// ToAny converts a decoded value into plain Go values: nil, bool, int64,
// uint64, float64, string, []byte, []any and map[string]any.
func ToAny(v flexbuffers.Value) any {
	switch v.Kind() {
	case flexbuffers.KindBool:
		return v.Bool()
	case flexbuffers.KindInt:
		return v.Int()
	case flexbuffers.KindUInt:
		return v.UInt()
	case flexbuffers.KindFloat:
		return v.Float()
	case flexbuffers.KindString:
		return v.Str()
	case flexbuffers.KindBlob:
		return v.Bytes()
	case flexbuffers.KindVector:
		out := make([]any, v.Len())
		for i, item := range v.Items() {
			out[i] = ToAny(item)
		}
		return out
	case flexbuffers.KindMap:
		out := make(map[string]any, v.Len())
		for _, p := range v.Pairs() {
			out[p.Key] = ToAny(p.Value)
		}
		return out
	default:
		return nil
	}
}
