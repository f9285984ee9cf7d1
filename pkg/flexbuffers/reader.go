package flexbuffers

import (
	"bytes"
	"fmt"
	"math"
	"unicode/utf8"
)

// Reference points at one value inside a buffer. It is cheap to copy and
// reads nothing until one of its accessors is called. The zero Reference is
// a Null.
type Reference struct {
	buf []byte
	// off is the slot holding the value or the offset to it.
	off int
	// parentWidth is the byte width of that slot.
	parentWidth int
	// byteWidth is the width of the value behind an offset.
	byteWidth int
	typ       Type
}

// GetRoot returns the root value of buf. Only the root marker is checked;
// every further read is checked when it happens.
func GetRoot(buf []byte) (Reference, error) {
	n := len(buf)
	if n < 3 {
		return Reference{}, fmt.Errorf("%w: %d-byte buffer", ErrMalformedBuffer, n)
	}
	width := int(buf[n-1])
	if _, ok := widthFromBytes(width); !ok {
		return Reference{}, fmt.Errorf("%w: root width %d", ErrMalformedBuffer, width)
	}
	typ, w := UnpackType(buf[n-2])
	if !typ.Known() {
		return Reference{}, fmt.Errorf("%w: root type %s", ErrMalformedBuffer, typ)
	}
	off := n - 2 - width
	if off < 0 {
		return Reference{}, fmt.Errorf("%w: %d-byte root in %d-byte buffer", ErrOutOfBounds, width, n)
	}
	return Reference{buf: buf, off: off, parentWidth: width, byteWidth: w.ByteWidth(), typ: typ}, nil
}

func (r Reference) Type() Type { return r.typ }

func (r Reference) IsNull() bool { return r.typ == TypeNull }

func (r Reference) mismatch(want string) error {
	return fmt.Errorf("%w: %s is not %s", ErrTypeMismatch, r.typ, want)
}

func (r Reference) target() (int, error) {
	return resolveOffset(r.buf, r.off, r.parentWidth)
}

// indirect returns the location of an out-of-line scalar.
func (r Reference) indirect() (int, error) {
	t, err := r.target()
	if err != nil {
		return 0, err
	}
	if r.off-t < r.byteWidth {
		return 0, fmt.Errorf("%w: %d-byte scalar at %d overruns slot %d", ErrOutOfBounds, r.byteWidth, t, r.off)
	}
	return t, nil
}

func (r Reference) AsBool() (bool, error) {
	switch r.typ {
	case TypeBool:
		u, err := readSlotUint(r.buf, r.off, r.parentWidth)
		return u != 0, err
	default:
		return false, r.mismatch("a bool")
	}
}

// AsInt64 reads Int and UInt values, inline or indirect. A UInt above
// math.MaxInt64 is a type mismatch.
func (r Reference) AsInt64() (int64, error) {
	switch r.typ {
	case TypeInt:
		return readSlotInt(r.buf, r.off, r.parentWidth)
	case TypeIndirectInt:
		t, err := r.indirect()
		if err != nil {
			return 0, err
		}
		return readSlotInt(r.buf, t, r.byteWidth)
	case TypeUInt, TypeIndirectUInt:
		u, err := r.AsUInt64()
		if err != nil {
			return 0, err
		}
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrTypeMismatch, u)
		}
		return int64(u), nil
	default:
		return 0, r.mismatch("an integer")
	}
}

// AsUInt64 reads UInt values and non-negative Int values.
func (r Reference) AsUInt64() (uint64, error) {
	switch r.typ {
	case TypeUInt:
		return readSlotUint(r.buf, r.off, r.parentWidth)
	case TypeIndirectUInt:
		t, err := r.indirect()
		if err != nil {
			return 0, err
		}
		return readSlotUint(r.buf, t, r.byteWidth)
	case TypeInt, TypeIndirectInt:
		i, err := r.AsInt64()
		if err != nil {
			return 0, err
		}
		if i < 0 {
			return 0, fmt.Errorf("%w: %d is negative", ErrTypeMismatch, i)
		}
		return uint64(i), nil
	default:
		return 0, r.mismatch("an integer")
	}
}

// AsFloat64 reads Float values and converts integers.
func (r Reference) AsFloat64() (float64, error) {
	switch r.typ {
	case TypeFloat:
		return readSlotFloat(r.buf, r.off, r.parentWidth)
	case TypeIndirectFloat:
		t, err := r.indirect()
		if err != nil {
			return 0, err
		}
		return readSlotFloat(r.buf, t, r.byteWidth)
	case TypeInt, TypeIndirectInt:
		i, err := r.AsInt64()
		return float64(i), err
	case TypeUInt, TypeIndirectUInt:
		u, err := r.AsUInt64()
		return float64(u), err
	default:
		return 0, r.mismatch("a number")
	}
}

func (r Reference) stringBytes() ([]byte, error) {
	if r.typ != TypeString {
		return nil, r.mismatch("a string")
	}
	t, err := r.target()
	if err != nil {
		return nil, err
	}
	end, err := sizedEnd(r.buf, r.off, t, r.byteWidth, 1)
	if err != nil {
		return nil, err
	}
	return r.buf[t:end], nil
}

func (r Reference) keyBytes() ([]byte, error) {
	if r.typ != TypeKey {
		return nil, r.mismatch("a key")
	}
	t, err := r.target()
	if err != nil {
		return nil, err
	}
	end, err := keyEnd(r.buf, r.off, t)
	if err != nil {
		return nil, err
	}
	return r.buf[t:end], nil
}

func checkUTF8(p []byte) (string, error) {
	if !utf8.Valid(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUTF8, p)
	}
	return string(p), nil
}

// AsString reads a String or a Key.
func (r Reference) AsString() (string, error) {
	var (
		p   []byte
		err error
	)
	if r.typ == TypeKey {
		p, err = r.keyBytes()
	} else {
		p, err = r.stringBytes()
	}
	if err != nil {
		return "", err
	}
	return checkUTF8(p)
}

func (r Reference) AsKey() (string, error) {
	p, err := r.keyBytes()
	if err != nil {
		return "", err
	}
	return checkUTF8(p)
}

// AsBlob returns the blob payload. The slice aliases the buffer.
func (r Reference) AsBlob() ([]byte, error) {
	if r.typ != TypeBlob {
		return nil, r.mismatch("a blob")
	}
	t, err := r.target()
	if err != nil {
		return nil, err
	}
	end, err := sizedEnd(r.buf, r.off, t, r.byteWidth, 0)
	if err != nil {
		return nil, err
	}
	return r.buf[t:end:end], nil
}

// AsScalar decodes any value that is not a vector or a map. Keys come back
// as strings and indirect scalars as their direct kind.
func (r Reference) AsScalar() (Value, error) {
	switch r.typ {
	case TypeNull:
		return Null(), nil
	case TypeBool:
		b, err := r.AsBool()
		return Bool(b), err
	case TypeInt, TypeIndirectInt:
		i, err := r.AsInt64()
		return Int(i), err
	case TypeUInt, TypeIndirectUInt:
		u, err := r.AsUInt64()
		return UInt(u), err
	case TypeFloat, TypeIndirectFloat:
		f, err := r.AsFloat64()
		return Float(f), err
	case TypeString, TypeKey:
		s, err := r.AsString()
		return String(s), err
	case TypeBlob:
		p, err := r.AsBlob()
		if err != nil {
			return Value{}, err
		}
		return Blob(bytes.Clone(p)), nil
	default:
		return Value{}, r.mismatch("a scalar")
	}
}

// VectorReader is a lazily read vector of any encoding.
type VectorReader struct {
	buf    []byte
	loc    int
	width  int
	length int
	shape  vectorShape
}

// AsVector reads the element table of any vector. For a map it returns the
// values.
func (r Reference) AsVector() (VectorReader, error) {
	if !r.typ.IsVector() {
		return VectorReader{}, r.mismatch("a vector")
	}
	t, err := r.target()
	if err != nil {
		return VectorReader{}, err
	}
	shape, err := vectorLayout(r.buf, r.off, t, r.byteWidth, r.typ)
	if err != nil {
		return VectorReader{}, err
	}
	return VectorReader{buf: r.buf, loc: t, width: r.byteWidth, length: shape.length, shape: shape}, nil
}

func (v VectorReader) Len() int { return v.length }

// At returns the i-th element.
func (v VectorReader) At(i int) (Reference, error) {
	if i < 0 || i >= v.length {
		return Reference{}, fmt.Errorf("%w: index %d of %d", ErrOutOfBounds, i, v.length)
	}
	slot := v.loc + i*v.width
	if v.shape.typed {
		return Reference{buf: v.buf, off: slot, parentWidth: v.width, byteWidth: v.width, typ: v.shape.elem}, nil
	}
	typ, w := UnpackType(v.buf[v.loc+v.length*v.width+i])
	if !typ.Known() {
		return Reference{}, fmt.Errorf("%w: element %d has type %s", ErrMalformedBuffer, i, typ)
	}
	return Reference{buf: v.buf, off: slot, parentWidth: v.width, byteWidth: w.ByteWidth(), typ: typ}, nil
}

// MapReader is a lazily read map. Keys are stored in ascending byte order.
type MapReader struct {
	keys   VectorReader
	values VectorReader
}

func (r Reference) AsMap() (MapReader, error) {
	if r.typ != TypeMap {
		return MapReader{}, r.mismatch("a map")
	}
	values, err := r.AsVector()
	if err != nil {
		return MapReader{}, err
	}
	slot, t, kw, err := mapKeysLayout(r.buf, values.loc, values.width)
	if err != nil {
		return MapReader{}, err
	}
	shape, err := vectorLayout(r.buf, slot, t, kw, TypeVectorKey)
	if err != nil {
		return MapReader{}, err
	}
	if shape.length != values.length {
		return MapReader{}, fmt.Errorf("%w: %d keys for %d values", ErrMalformedBuffer, shape.length, values.length)
	}
	keys := VectorReader{buf: r.buf, loc: t, width: kw, length: shape.length, shape: shape}
	return MapReader{keys: keys, values: values}, nil
}

func (m MapReader) Len() int { return m.values.length }

func (m MapReader) keyBytes(i int) ([]byte, error) {
	k, err := m.keys.At(i)
	if err != nil {
		return nil, err
	}
	return k.keyBytes()
}

func (m MapReader) KeyAt(i int) (string, error) {
	k, err := m.keys.At(i)
	if err != nil {
		return "", err
	}
	return k.AsKey()
}

func (m MapReader) ValueAt(i int) (Reference, error) {
	return m.values.At(i)
}

// Get looks key up by binary search. A missing key is reported as
// ErrKeyNotFound.
func (m MapReader) Get(key string) (Reference, error) {
	lo, hi := 0, m.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		k, err := m.keyBytes(mid)
		if err != nil {
			return Reference{}, err
		}
		switch c := bytes.Compare(k, []byte(key)); {
		case c == 0:
			return m.values.At(mid)
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return Reference{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
}

// Keys returns every key in stored order.
func (m MapReader) Keys() ([]string, error) {
	out := make([]string, m.Len())
	for i := range out {
		k, err := m.KeyAt(i)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}
