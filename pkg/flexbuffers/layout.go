package flexbuffers

import (
	"bytes"
	"fmt"

	"github.com/rawbytedev/flexbuf/internal/common"
)

// The helpers in this file resolve the on-buffer layout of one value. They
// trust nothing: every position is checked against the buffer and every
// object must end at or before the slot that references it. The Reader and
// the Validator share them.

func readSlotUint(buf []byte, off, width int) (uint64, error) {
	v, ok := common.ReadUint(buf, off, width)
	if !ok {
		return 0, fmt.Errorf("%w: %d-byte read at %d of %d", ErrOutOfBounds, width, off, len(buf))
	}
	return v, nil
}

func readSlotInt(buf []byte, off, width int) (int64, error) {
	v, ok := common.ReadInt(buf, off, width)
	if !ok {
		return 0, fmt.Errorf("%w: %d-byte read at %d of %d", ErrOutOfBounds, width, off, len(buf))
	}
	return v, nil
}

func readSlotFloat(buf []byte, off, width int) (float64, error) {
	if width != 4 && width != 8 {
		return 0, fmt.Errorf("%w: %d-byte float", ErrMalformedBuffer, width)
	}
	v, ok := common.ReadFloat(buf, off, width)
	if !ok {
		return 0, fmt.Errorf("%w: %d-byte read at %d of %d", ErrOutOfBounds, width, off, len(buf))
	}
	return v, nil
}

// resolveOffset returns the absolute position the offset stored in the
// width-byte slot at slot points to. Offsets are backward; zero is only
// meaningful for empty objects, whose extent checks then leave no room for
// children.
func resolveOffset(buf []byte, slot, width int) (int, error) {
	rel, err := readSlotUint(buf, slot, width)
	if err != nil {
		return 0, err
	}
	if rel > uint64(slot) {
		return 0, fmt.Errorf("%w: offset %d from %d", ErrOutOfBounds, rel, slot)
	}
	return slot - int(rel), nil
}

// sizedEnd checks a length-prefixed payload (string or blob) starting at
// target with a width-byte length in front of it, followed by trailing
// terminator bytes, and returns where the payload ends.
func sizedEnd(buf []byte, slot, target, width, trailing int) (int, error) {
	if !common.IsByteWidth(width) {
		return 0, fmt.Errorf("%w: length width %d", ErrMalformedBuffer, width)
	}
	if target < width {
		return 0, fmt.Errorf("%w: length prefix before start of buffer", ErrOutOfBounds)
	}
	size, err := readSlotUint(buf, target-width, width)
	if err != nil {
		return 0, err
	}
	avail := uint64(slot - target)
	if size > avail || avail-size < uint64(trailing) {
		return 0, fmt.Errorf("%w: %d-byte payload at %d overruns slot %d", ErrOutOfBounds, size, target, slot)
	}
	end := target + int(size)
	if trailing > 0 && buf[end] != 0 {
		return 0, fmt.Errorf("%w: string at %d is not null-terminated", ErrMalformedBuffer, target)
	}
	return end, nil
}

// keyEnd returns the position of the terminator of the key at target.
func keyEnd(buf []byte, slot, target int) (int, error) {
	i := bytes.IndexByte(buf[target:slot], 0)
	if i < 0 {
		return 0, fmt.Errorf("%w: unterminated key at %d", ErrOutOfBounds, target)
	}
	return target + i, nil
}

// vectorShape describes a vector body.
type vectorShape struct {
	length int
	// elem is the element type of typed and fixed vectors.
	elem  Type
	typed bool
}

// vectorLayout checks the body of a vector of type typ whose elements start
// at target and are width bytes wide.
func vectorLayout(buf []byte, slot, target, width int, typ Type) (vectorShape, error) {
	if !common.IsByteWidth(width) {
		return vectorShape{}, fmt.Errorf("%w: element width %d", ErrMalformedBuffer, width)
	}
	var (
		shape   vectorShape
		count   uint64
		perElem = width
		prefix  = 1
	)
	switch {
	case typ.IsFixedTypedVector():
		elem, n := typ.FixedElementType()
		shape = vectorShape{elem: elem, typed: true}
		count = uint64(n)
		prefix = 0
	case typ.IsTypedVector():
		shape = vectorShape{elem: typ.TypedElementType(), typed: true}
	case typ == TypeVector:
		perElem++
	case typ == TypeMap:
		perElem++
		prefix = 3
	default:
		return vectorShape{}, fmt.Errorf("%w: %s is not a vector", ErrTypeMismatch, typ)
	}
	if target < prefix*width {
		return vectorShape{}, fmt.Errorf("%w: vector prefix before start of buffer", ErrOutOfBounds)
	}
	if prefix > 0 {
		n, err := readSlotUint(buf, target-width, width)
		if err != nil {
			return vectorShape{}, err
		}
		count = n
	}
	if count > uint64((slot-target)/perElem) {
		return vectorShape{}, fmt.Errorf("%w: %d elements at %d overrun slot %d", ErrOutOfBounds, count, target, slot)
	}
	if shape.typed && shape.elem == TypeFloat && width < 4 {
		return vectorShape{}, fmt.Errorf("%w: %d-byte float vector", ErrMalformedBuffer, width)
	}
	shape.length = int(count)
	return shape, nil
}

// mapKeysLayout locates the key vector of the map whose values start at
// target. It returns the slot holding the keys offset, where the keys start
// and their width.
func mapKeysLayout(buf []byte, target, width int) (slot, keys, keysWidth int, err error) {
	slot = target - 3*width
	keys, err = resolveOffset(buf, slot, width)
	if err != nil {
		return 0, 0, 0, err
	}
	kw, err := readSlotUint(buf, slot+width, width)
	if err != nil {
		return 0, 0, 0, err
	}
	if kw > 8 || !common.IsByteWidth(int(kw)) {
		return 0, 0, 0, fmt.Errorf("%w: key vector width %d", ErrMalformedBuffer, kw)
	}
	return slot, keys, int(kw), nil
}
