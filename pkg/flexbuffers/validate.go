package flexbuffers

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// IsValid reports whether buf is a structurally sound buffer: every value
// it reaches can be read without error. Nesting depth is not limited.
func IsValid(buf []byte) bool {
	return Validate(buf, Limits{}) == nil
}

// Validate walks every value reachable from the root of buf and returns the
// first problem found. The walk uses an explicit work list, so deep buffers
// do not grow the call stack.
func Validate(buf []byte, l Limits) error {
	root, err := GetRoot(buf)
	if err != nil {
		return err
	}
	type item struct {
		ref   Reference
		depth int
	}
	budget := l.nodeBudget(len(buf))
	work := []item{{ref: root}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]
		if budget--; budget < 0 {
			return ErrLimitExceeded
		}
		r := it.ref
		if !r.typ.IsVector() {
			if err := validateScalar(r); err != nil {
				return err
			}
			continue
		}
		if l.MaxDepth > 0 && it.depth >= l.MaxDepth {
			return fmt.Errorf("%w: nesting deeper than %d", ErrDepthExceeded, l.MaxDepth)
		}
		var vec VectorReader
		if r.typ == TypeMap {
			m, err := r.AsMap()
			if err != nil {
				return err
			}
			if err := validateKeys(m); err != nil {
				return err
			}
			if budget -= m.Len(); budget < 0 {
				return ErrLimitExceeded
			}
			vec = m.values
		} else if vec, err = r.AsVector(); err != nil {
			return err
		}
		for i := vec.Len() - 1; i >= 0; i-- {
			elem, err := vec.At(i)
			if err != nil {
				return err
			}
			work = append(work, item{ref: elem, depth: it.depth + 1})
		}
	}
	return nil
}

func validateScalar(r Reference) error {
	switch r.typ {
	case TypeString:
		p, err := r.stringBytes()
		if err != nil {
			return err
		}
		if !utf8.Valid(p) {
			return fmt.Errorf("%w: string at %d", ErrInvalidUTF8, r.off)
		}
		return nil
	case TypeKey:
		_, err := r.AsKey()
		return err
	case TypeBlob:
		_, err := r.AsBlob()
		return err
	default:
		_, err := r.AsScalar()
		return err
	}
}

// validateKeys checks every key of m and that they never decrease.
func validateKeys(m MapReader) error {
	var prev []byte
	for i := 0; i < m.Len(); i++ {
		k, err := m.keyBytes(i)
		if err != nil {
			return err
		}
		if !utf8.Valid(k) {
			return fmt.Errorf("%w: key %d", ErrInvalidUTF8, i)
		}
		if i > 0 && bytes.Compare(prev, k) > 0 {
			return fmt.Errorf("%w: key %q sorts before %q", ErrMalformedBuffer, k, prev)
		}
		prev = k
	}
	return nil
}
