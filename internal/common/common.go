package common

import (
	"bytes"
	"encoding/binary"
	"math"
)

// IsByteWidth reports whether w is one of the scalar widths 1, 2, 4 or 8.
func IsByteWidth(w int) bool {
	switch w {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// PaddingBytes returns how many zero bytes must follow size so that the next
// write starts on a multiple of align. align must be a power of two.
func PaddingBytes(size, align int) int {
	return (-size) & (align - 1)
}

// InBounds reports whether [off, off+n) lies inside a buffer of length size.
// It never overflows.
func InBounds(size, off, n int) bool {
	return off >= 0 && n >= 0 && off <= size && n <= size-off
}

// ReadUint decodes a little-endian unsigned integer of width bytes at off.
// ok is false when the read would leave b or width is not a scalar width.
func ReadUint(b []byte, off, width int) (v uint64, ok bool) {
	if !InBounds(len(b), off, width) {
		return 0, false
	}
	switch width {
	case 1:
		return uint64(b[off]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[off:])), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[off:])), true
	case 8:
		return binary.LittleEndian.Uint64(b[off:]), true
	default:
		return 0, false
	}
}

// ReadInt decodes a sign-extended little-endian integer of width bytes at off.
func ReadInt(b []byte, off, width int) (int64, bool) {
	u, ok := ReadUint(b, off, width)
	if !ok {
		return 0, false
	}
	switch width {
	case 1:
		return int64(int8(u)), true
	case 2:
		return int64(int16(u)), true
	case 4:
		return int64(int32(u)), true
	default:
		return int64(u), true
	}
}

// ReadFloat decodes an IEEE-754 float of 4 or 8 bytes at off.
func ReadFloat(b []byte, off, width int) (float64, bool) {
	switch width {
	case 4:
		u, ok := ReadUint(b, off, 4)
		if !ok {
			return 0, false
		}
		return float64(math.Float32frombits(uint32(u))), true
	case 8:
		u, ok := ReadUint(b, off, 8)
		if !ok {
			return 0, false
		}
		return math.Float64frombits(u), true
	default:
		return 0, false
	}
}

// AppendUint appends the low width bytes of v in little-endian order.
func AppendUint(dst []byte, v uint64, width int) []byte {
	switch width {
	case 1:
		return append(dst, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(dst, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(dst, v)
	}
}

// AppendFloat appends f as a float32 when width is 4, otherwise as a float64.
func AppendFloat(dst []byte, f float64, width int) []byte {
	if width == 4 {
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(f)))
	}
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f))
}

// AppendZeros appends n zero bytes.
func AppendZeros(dst []byte, n int) []byte {
	for ; n > 0; n-- {
		dst = append(dst, 0)
	}
	return dst
}

// IndexNull returns the index of the first 0x00 at or after off, or -1.
func IndexNull(b []byte, off int) int {
	if off < 0 || off > len(b) {
		return -1
	}
	i := bytes.IndexByte(b[off:], 0)
	if i < 0 {
		return -1
	}
	return off + i
}
