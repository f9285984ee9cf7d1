package flexbuffers

import "fmt"

// BitWidth is the log2 of a scalar or offset byte width.
type BitWidth uint8

const (
	Width8 BitWidth = iota
	Width16
	Width32
	Width64
)

// ByteWidth returns the number of bytes a value of this width occupies.
func (w BitWidth) ByteWidth() int { return 1 << w }

func (w BitWidth) String() string {
	switch w {
	case Width8:
		return "8"
	case Width16:
		return "16"
	case Width32:
		return "32"
	case Width64:
		return "64"
	default:
		return fmt.Sprintf("BitWidth(%d)", uint8(w))
	}
}

// widthFromBytes maps a byte count back to a BitWidth.
func widthFromBytes(n int) (BitWidth, bool) {
	switch n {
	case 1:
		return Width8, true
	case 2:
		return Width16, true
	case 4:
		return Width32, true
	case 8:
		return Width64, true
	default:
		return 0, false
	}
}

// WidthU is the smallest width holding u unsigned.
func WidthU(u uint64) BitWidth {
	switch {
	case u&^0xff == 0:
		return Width8
	case u&^0xffff == 0:
		return Width16
	case u&^0xffffffff == 0:
		return Width32
	default:
		return Width64
	}
}

// WidthI is the smallest width holding i in two's complement.
func WidthI(i int64) BitWidth {
	u := uint64(i) << 1
	if i < 0 {
		u = ^u
	}
	return WidthU(u)
}

// WidthF is Width32 when f survives a round trip through float32.
func WidthF(f float64) BitWidth {
	if float64(float32(f)) == f {
		return Width32
	}
	return Width64
}

// Type identifies how the bytes at a position are interpreted.
type Type uint8

const (
	TypeNull          Type = 0
	TypeInt           Type = 1
	TypeUInt          Type = 2
	TypeFloat         Type = 3
	TypeKey           Type = 4
	TypeString        Type = 5
	TypeIndirectInt   Type = 6
	TypeIndirectUInt  Type = 7
	TypeIndirectFloat Type = 8
	TypeMap           Type = 9
	TypeVector        Type = 10
	TypeVectorInt     Type = 11
	TypeVectorUInt    Type = 12
	TypeVectorFloat   Type = 13
	TypeVectorKey     Type = 14
	// TypeVectorString is deprecated; it is read but never written.
	TypeVectorString Type = 15
	TypeVectorInt2   Type = 16
	TypeVectorUInt2  Type = 17
	TypeVectorFloat2 Type = 18
	TypeVectorInt3   Type = 19
	TypeVectorUInt3  Type = 20
	TypeVectorFloat3 Type = 21
	TypeVectorInt4   Type = 22
	TypeVectorUInt4  Type = 23
	TypeVectorFloat4 Type = 24
	TypeBlob         Type = 25
	TypeBool         Type = 26
	TypeVectorBool   Type = 36
)

var typeNames = map[Type]string{
	TypeNull:          "Null",
	TypeInt:           "Int",
	TypeUInt:          "UInt",
	TypeFloat:         "Float",
	TypeKey:           "Key",
	TypeString:        "String",
	TypeIndirectInt:   "IndirectInt",
	TypeIndirectUInt:  "IndirectUInt",
	TypeIndirectFloat: "IndirectFloat",
	TypeMap:           "Map",
	TypeVector:        "Vector",
	TypeVectorInt:     "VectorInt",
	TypeVectorUInt:    "VectorUInt",
	TypeVectorFloat:   "VectorFloat",
	TypeVectorKey:     "VectorKey",
	TypeVectorString:  "VectorString",
	TypeVectorInt2:    "VectorInt2",
	TypeVectorUInt2:   "VectorUInt2",
	TypeVectorFloat2:  "VectorFloat2",
	TypeVectorInt3:    "VectorInt3",
	TypeVectorUInt3:   "VectorUInt3",
	TypeVectorFloat3:  "VectorFloat3",
	TypeVectorInt4:    "VectorInt4",
	TypeVectorUInt4:   "VectorUInt4",
	TypeVectorFloat4:  "VectorFloat4",
	TypeBlob:          "Blob",
	TypeBool:          "Bool",
	TypeVectorBool:    "VectorBool",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Known reports whether t is a defined type code.
func (t Type) Known() bool {
	return t <= TypeBool || t == TypeVectorBool
}

// IsInline reports whether values of t are stored in their slot rather
// than behind an offset.
func (t Type) IsInline() bool {
	return t <= TypeFloat || t == TypeBool
}

// IsTypedVectorElement reports whether t may be the element type of a
// typed vector.
func (t Type) IsTypedVectorElement() bool {
	return (t >= TypeInt && t <= TypeString) || t == TypeBool
}

// IsTypedVector reports whether t is a length-prefixed typed vector.
func (t Type) IsTypedVector() bool {
	return (t >= TypeVectorInt && t <= TypeVectorString) || t == TypeVectorBool
}

// IsFixedTypedVector reports whether t is a typed vector of 2, 3 or 4
// elements with no length prefix.
func (t Type) IsFixedTypedVector() bool {
	return t >= TypeVectorInt2 && t <= TypeVectorFloat4
}

// IsVector reports whether t is any kind of vector, maps included.
func (t Type) IsVector() bool {
	return t == TypeVector || t == TypeMap || t.IsTypedVector() || t.IsFixedTypedVector()
}

// ToTypedVector returns the typed vector type for elements of t. fixedLen is
// 0 for a length-prefixed vector or 2, 3, 4 for a fixed one.
func ToTypedVector(t Type, fixedLen int) (Type, bool) {
	if !t.IsTypedVectorElement() {
		return 0, false
	}
	switch fixedLen {
	case 0:
		return t - TypeInt + TypeVectorInt, true
	case 2, 3, 4:
		if t > TypeFloat {
			return 0, false
		}
		return t - TypeInt + TypeVectorInt2 + Type(3*(fixedLen-2)), true
	default:
		return 0, false
	}
}

// TypedElementType returns the element type of a typed vector type.
func (t Type) TypedElementType() Type {
	return t - TypeVectorInt + TypeInt
}

// FixedElementType returns the element type and length of a fixed typed
// vector type.
func (t Type) FixedElementType() (Type, int) {
	fixed := t - TypeVectorInt2
	return fixed%3 + TypeInt, int(fixed/3) + 2
}

// PackType combines a type and a width into the byte stored in type tables
// and root markers.
func PackType(t Type, w BitWidth) byte {
	return byte(t)<<2 | byte(w)
}

// UnpackType splits a packed type byte.
func UnpackType(b byte) (Type, BitWidth) {
	return Type(b >> 2), BitWidth(b & 3)
}
