package flexbuffers

import "fmt"

// ToValue decodes the whole of buf with DefaultLimits.
func ToValue(buf []byte) (Value, error) {
	return ToValueLimits(buf, DefaultLimits())
}

// ToValueLimits decodes the whole of buf. Nesting deeper than l.MaxDepth
// (DefaultMaxDepth when unset) fails with ErrDepthExceeded and visiting more
// values than the node budget fails with ErrLimitExceeded.
func ToValueLimits(buf []byte, l Limits) (Value, error) {
	root, err := GetRoot(buf)
	if err != nil {
		return Value{}, err
	}
	return root.ToValue(l)
}

// ToValue decodes the value r points at and everything below it.
func (r Reference) ToValue(l Limits) (Value, error) {
	m := materializer{maxDepth: l.recursionDepth(), budget: l.nodeBudget(len(r.buf))}
	return m.value(r, 0)
}

type materializer struct {
	maxDepth int
	budget   int
}

func (m *materializer) value(r Reference, depth int) (Value, error) {
	if m.budget--; m.budget < 0 {
		return Value{}, ErrLimitExceeded
	}
	if !r.typ.IsVector() {
		return r.AsScalar()
	}
	if depth >= m.maxDepth {
		return Value{}, fmt.Errorf("%w: nesting deeper than %d", ErrDepthExceeded, m.maxDepth)
	}
	if r.typ == TypeMap {
		return m.mapValue(r, depth)
	}
	vec, err := r.AsVector()
	if err != nil {
		return Value{}, err
	}
	items := make([]Value, vec.Len())
	for i := range items {
		elem, err := vec.At(i)
		if err != nil {
			return Value{}, err
		}
		if items[i], err = m.value(elem, depth+1); err != nil {
			return Value{}, err
		}
	}
	return Vector(items...), nil
}

func (m *materializer) mapValue(r Reference, depth int) (Value, error) {
	mp, err := r.AsMap()
	if err != nil {
		return Value{}, err
	}
	pairs := make([]Pair, mp.Len())
	for i := range pairs {
		key, err := mp.KeyAt(i)
		if err != nil {
			return Value{}, err
		}
		if i > 0 && pairs[i-1].Key > key {
			return Value{}, fmt.Errorf("%w: key %q sorts before %q", ErrMalformedBuffer, key, pairs[i-1].Key)
		}
		elem, err := mp.ValueAt(i)
		if err != nil {
			return Value{}, err
		}
		v, err := m.value(elem, depth+1)
		if err != nil {
			return Value{}, err
		}
		pairs[i] = Pair{Key: key, Value: v}
	}
	return Map(pairs...), nil
}
