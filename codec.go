// Package flexbuf serializes Go values to FlexBuffers and back.
//
// The encoding engine lives in pkg/flexbuffers; this package bridges it to
// ordinary Go values and structs:
//
//	data, err := flexbuf.Marshal(cfg)
//	err = flexbuf.Unmarshal(data, &cfg)
//
// Serialize, Deserialize and IsValid work on untyped values.
package flexbuf

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

var (
	ErrUnsupported = errors.New("flexbuf: unsupported type")
	ErrNotPointer  = errors.New("flexbuf: expected non-nil pointer")
	ErrEmptyBuffer = errors.New("flexbuf: buffer is empty")
)

// Codec converts between Go values and buffers. It is safe for concurrent
// use; struct plans are cached per type.
type Codec struct {
	opts  Options
	plans planCache
}

func NewCodec(opts Options) *Codec {
	return &Codec{opts: opts}
}

var defaultCodec = NewCodec(DefaultOptions())

func (c *Codec) Options() Options { return c.opts }

// Marshal encodes v with the default Codec.
func Marshal(v any) ([]byte, error) { return defaultCodec.Marshal(v) }

// Unmarshal decodes data into out with the default Codec.
func Unmarshal(data []byte, out any) error { return defaultCodec.Unmarshal(data, out) }

// Serialize is Marshal under the name the value-level API uses.
func Serialize(v any) ([]byte, error) { return defaultCodec.Serialize(v) }

// Deserialize decodes data into plain Go values with the default Codec.
func Deserialize(data []byte) (any, error) { return defaultCodec.Deserialize(data) }

// IsValid reports whether data is a well-formed buffer. Depth is not
// limited.
func IsValid(data []byte) bool { return flexbuffers.IsValid(data) }

func (c *Codec) Marshal(v any) ([]byte, error) {
	val, err := c.FromAny(v)
	if err != nil {
		return nil, err
	}
	return flexbuffers.Build(val, c.opts.builderOptions())
}

func (c *Codec) Serialize(v any) ([]byte, error) { return c.Marshal(v) }

func (c *Codec) Deserialize(data []byte) (any, error) {
	if err := c.check(data); err != nil {
		return nil, err
	}
	v, err := flexbuffers.ToValueLimits(data, c.opts.limits())
	if err != nil {
		c.reject(data, err)
		return nil, err
	}
	return ToAny(v), nil
}

// IsValid checks data against the Codec's limits.
func (c *Codec) IsValid(data []byte) bool {
	return flexbuffers.Validate(data, c.opts.limits()) == nil
}

// check rejects empty input and, when configured, walks the whole buffer.
func (c *Codec) check(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyBuffer
	}
	if !c.opts.Validate {
		return nil
	}
	if err := flexbuffers.Validate(data, c.opts.limits()); err != nil {
		c.reject(data, err)
		return err
	}
	return nil
}

func (c *Codec) reject(data []byte, err error) {
	c.opts.Logger.Debug().Int("size", len(data)).Err(err).Msg("rejected buffer")
}

// Unmarshal decodes data into the value out points to. Struct fields are
// looked up by name in the encoded map, so unknown keys are ignored and
// missing ones leave the field untouched.
func (c *Codec) Unmarshal(data []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotPointer
	}
	if err := c.check(data); err != nil {
		return err
	}
	root, err := flexbuffers.GetRoot(data)
	if err != nil {
		c.reject(data, err)
		return err
	}
	d := decoder{c: c, budget: c.opts.limits().MaxNodes}
	if d.budget <= 0 {
		d.budget = len(data)
	}
	if err := d.decode(root, rv.Elem(), 0); err != nil {
		c.reject(data, err)
		return err
	}
	return nil
}

type decoder struct {
	c      *Codec
	budget int
}

func mismatch(r flexbuffers.Reference, t reflect.Type) error {
	return fmt.Errorf("%w: cannot decode %s into %s", flexbuffers.ErrTypeMismatch, r.Type(), t)
}

func (d *decoder) decode(r flexbuffers.Reference, dst reflect.Value, depth int) error {
	if d.budget--; d.budget < 0 {
		return flexbuffers.ErrLimitExceeded
	}
	t := dst.Type()
	if t == valueType {
		v, err := d.subtree(r, depth)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if r.IsNull() {
		dst.Set(reflect.Zero(t))
		return nil
	}
	switch dst.Kind() {
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(t.Elem()))
		}
		return d.decode(r, dst.Elem(), depth)
	case reflect.Interface:
		if t.NumMethod() != 0 {
			return fmt.Errorf("%w: %s", ErrUnsupported, t)
		}
		v, err := d.subtree(r, depth)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(ToAny(v)))
		return nil
	case reflect.Bool:
		b, err := r.AsBool()
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := r.AsInt64()
		if err != nil {
			return err
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("%w: %d overflows %s", flexbuffers.ErrTypeMismatch, i, t)
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := r.AsUInt64()
		if err != nil {
			return err
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("%w: %d overflows %s", flexbuffers.ErrTypeMismatch, u, t)
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := r.AsFloat64()
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.String:
		s, err := r.AsString()
		if err != nil {
			return err
		}
		dst.SetString(s)
	case reflect.Slice, reflect.Array:
		return d.decodeList(r, dst, depth)
	case reflect.Map:
		return d.decodeMap(r, dst, depth)
	case reflect.Struct:
		return d.decodeStruct(r, dst, depth)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	return nil
}

// subtree materializes r in one go. It runs under the depth and node
// budget left at this point and charges what it used to the decoder.
func (d *decoder) subtree(r flexbuffers.Reference, depth int) (flexbuffers.Value, error) {
	l := d.c.opts.limits()
	l.MaxDepth = max(l.MaxDepth-depth, 1)
	// r itself was already charged by decode.
	l.MaxNodes = d.budget + 1
	v, err := r.ToValue(l)
	if err != nil {
		return flexbuffers.Value{}, err
	}
	d.budget -= valueNodes(v) - 1
	return v, nil
}

func valueNodes(v flexbuffers.Value) int {
	n := 1
	switch v.Kind() {
	case flexbuffers.KindVector:
		for _, item := range v.Items() {
			n += valueNodes(item)
		}
	case flexbuffers.KindMap:
		for _, p := range v.Pairs() {
			n += valueNodes(p.Value)
		}
	}
	return n
}

func (d *decoder) enter(depth int) error {
	if limit := d.c.maxDepth(); depth >= limit {
		return fmt.Errorf("%w: nesting deeper than %d", flexbuffers.ErrDepthExceeded, limit)
	}
	return nil
}

func (d *decoder) decodeList(r flexbuffers.Reference, dst reflect.Value, depth int) error {
	t := dst.Type()
	if t.Elem().Kind() == reflect.Uint8 && r.Type() == flexbuffers.TypeBlob {
		p, err := r.AsBlob()
		if err != nil {
			return err
		}
		if dst.Kind() == reflect.Array {
			if len(p) > dst.Len() {
				return fmt.Errorf("%w: %d-byte blob into %s", flexbuffers.ErrTypeMismatch, len(p), t)
			}
			for i := 0; i < dst.Len(); i++ {
				var b byte
				if i < len(p) {
					b = p[i]
				}
				dst.Index(i).SetUint(uint64(b))
			}
			return nil
		}
		s := reflect.MakeSlice(t, len(p), len(p))
		for i, b := range p {
			s.Index(i).SetUint(uint64(b))
		}
		dst.Set(s)
		return nil
	}
	if !r.Type().IsVector() {
		return mismatch(r, t)
	}
	if err := d.enter(depth); err != nil {
		return err
	}
	vec, err := r.AsVector()
	if err != nil {
		return err
	}
	n := vec.Len()
	if dst.Kind() == reflect.Array {
		if n > dst.Len() {
			return fmt.Errorf("%w: %d elements into %s", flexbuffers.ErrTypeMismatch, n, t)
		}
		dst.Set(reflect.Zero(t))
	} else {
		dst.Set(reflect.MakeSlice(t, n, n))
	}
	for i := 0; i < n; i++ {
		elem, err := vec.At(i)
		if err != nil {
			return err
		}
		if err := d.decode(elem, dst.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) decodeMap(r flexbuffers.Reference, dst reflect.Value, depth int) error {
	t := dst.Type()
	if t.Key().Kind() != reflect.String {
		return fmt.Errorf("%w: map key %s", ErrUnsupported, t.Key())
	}
	if r.Type() != flexbuffers.TypeMap {
		return mismatch(r, t)
	}
	if err := d.enter(depth); err != nil {
		return err
	}
	m, err := r.AsMap()
	if err != nil {
		return err
	}
	out := reflect.MakeMapWithSize(t, m.Len())
	for i := 0; i < m.Len(); i++ {
		k, err := m.KeyAt(i)
		if err != nil {
			return err
		}
		ref, err := m.ValueAt(i)
		if err != nil {
			return err
		}
		v := reflect.New(t.Elem()).Elem()
		if err := d.decode(ref, v, depth+1); err != nil {
			return err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), v)
	}
	dst.Set(out)
	return nil
}

func (d *decoder) decodeStruct(r flexbuffers.Reference, dst reflect.Value, depth int) error {
	if r.Type() != flexbuffers.TypeMap {
		return mismatch(r, dst.Type())
	}
	if err := d.enter(depth); err != nil {
		return err
	}
	m, err := r.AsMap()
	if err != nil {
		return err
	}
	plan := d.c.plans.get(dst.Type())
	for _, f := range plan.fields {
		ref, err := m.Get(f.name)
		if errors.Is(err, flexbuffers.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := d.decode(ref, dst.FieldByIndex(f.index), depth+1); err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
	}
	return nil
}
