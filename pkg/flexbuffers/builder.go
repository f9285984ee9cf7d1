package flexbuffers

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rawbytedev/flexbuf/internal/common"
)

// BuilderOptions controls how a Builder lays out its buffer.
type BuilderOptions struct {
	// ShareStrings writes each distinct string once and points every later
	// occurrence at the first copy. Keys are always shared.
	ShareStrings bool
	// InitialCapacity preallocates the output buffer.
	InitialCapacity int
}

func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{ShareStrings: true, InitialCapacity: 256}
}

// entry is one value on the builder stack. Inline values keep their payload
// in bits; everything else keeps the absolute buffer location it was
// written at.
type entry struct {
	typ   Type
	width BitWidth
	bits  uint64
}

// fitsAt reports whether e can be stored as the index-th slot of a vector
// whose slots are w wide and which starts at the end of a buffer of bufLen
// bytes.
func (e entry) fitsAt(bufLen, index int, w BitWidth) bool {
	if e.typ.IsInline() {
		return e.width <= w
	}
	bw := w.ByteWidth()
	loc := bufLen + common.PaddingBytes(bufLen, bw) + index*bw
	return WidthU(uint64(loc)-e.bits) <= w
}

// storedWidth is the width recorded in e's packed type byte.
func (e entry) storedWidth(parent BitWidth) BitWidth {
	if e.typ.IsInline() {
		return max(e.width, parent)
	}
	return e.width
}

type scope struct {
	start int
	isMap bool
}

// Builder writes a FlexBuffer. Values are pushed onto a stack; vectors and
// maps collect the entries pushed since their Start call and replace them
// with a single entry when ended. Errors are sticky: after the first one
// every call is a no-op and Finish reports it.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	opts     BuilderOptions
	buf      []byte
	stack    []entry
	scopes   []scope
	keys     map[string]int
	strings  map[string]int
	finished bool
	err      error
}

func NewBuilder(opts BuilderOptions) *Builder {
	b := &Builder{opts: opts}
	b.Reset()
	return b
}

// Reset discards everything written so far, including the dedup tables,
// so the Builder can produce another buffer. Buffers returned by earlier
// Finish calls are not touched.
func (b *Builder) Reset() {
	b.buf = make([]byte, 0, max(b.opts.InitialCapacity, 0))
	b.stack = b.stack[:0]
	b.scopes = b.scopes[:0]
	b.keys = make(map[string]int)
	b.strings = make(map[string]int)
	b.finished = false
	b.err = nil
}

// Err returns the first error the Builder ran into.
func (b *Builder) Err() error { return b.err }

// Size is the number of bytes written so far.
func (b *Builder) Size() int { return len(b.buf) }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) writable() bool {
	if b.err != nil {
		return false
	}
	if b.finished {
		b.fail(fmt.Errorf("%w: write after Finish", ErrBuilderState))
		return false
	}
	return true
}

func (b *Builder) align(w BitWidth) int {
	bw := w.ByteWidth()
	b.buf = common.AppendZeros(b.buf, common.PaddingBytes(len(b.buf), bw))
	return bw
}

func (b *Builder) writeOffset(loc uint64, bw int) {
	b.buf = common.AppendUint(b.buf, uint64(len(b.buf))-loc, bw)
}

func (b *Builder) writeAny(e entry, bw int) {
	switch e.typ {
	case TypeNull, TypeBool, TypeInt, TypeUInt:
		b.buf = common.AppendUint(b.buf, e.bits, bw)
	case TypeFloat:
		b.buf = common.AppendFloat(b.buf, math.Float64frombits(e.bits), bw)
	default:
		b.writeOffset(e.bits, bw)
	}
}

func (b *Builder) push(e entry) {
	b.stack = append(b.stack, e)
}

func (b *Builder) PushNull() {
	if b.writable() {
		b.push(entry{typ: TypeNull, width: Width8})
	}
}

func (b *Builder) PushBool(v bool) {
	if !b.writable() {
		return
	}
	e := entry{typ: TypeBool, width: Width8}
	if v {
		e.bits = 1
	}
	b.push(e)
}

func (b *Builder) PushInt(i int64) {
	if b.writable() {
		b.push(entry{typ: TypeInt, width: WidthI(i), bits: uint64(i)})
	}
}

func (b *Builder) PushUInt(u uint64) {
	if b.writable() {
		b.push(entry{typ: TypeUInt, width: WidthU(u), bits: u})
	}
}

func (b *Builder) PushFloat(f float64) {
	if b.writable() {
		b.push(entry{typ: TypeFloat, width: WidthF(f), bits: math.Float64bits(f)})
	}
}

// writeSized writes a length prefix sized for n and returns the width used
// and the location right after it.
func (b *Builder) writeSized(n int) (BitWidth, int) {
	w := WidthU(uint64(n))
	bw := b.align(w)
	b.buf = common.AppendUint(b.buf, uint64(n), bw)
	return w, len(b.buf)
}

// PushString writes s length-prefixed and null-terminated. s must be valid
// UTF-8.
func (b *Builder) PushString(s string) {
	if !b.writable() {
		return
	}
	if !utf8.ValidString(s) {
		b.fail(fmt.Errorf("%w: string %q", ErrInvalidUTF8, s))
		return
	}
	if b.opts.ShareStrings {
		if loc, ok := b.strings[s]; ok {
			b.push(entry{typ: TypeString, width: WidthU(uint64(len(s))), bits: uint64(loc)})
			return
		}
	}
	w, loc := b.writeSized(len(s))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	if b.opts.ShareStrings {
		b.strings[s] = loc
	}
	b.push(entry{typ: TypeString, width: w, bits: uint64(loc)})
}

// PushBlob writes p length-prefixed.
func (b *Builder) PushBlob(p []byte) {
	if !b.writable() {
		return
	}
	w, loc := b.writeSized(len(p))
	b.buf = append(b.buf, p...)
	b.push(entry{typ: TypeBlob, width: w, bits: uint64(loc)})
}

// PushKey writes a map key. Keys are null-terminated, so they may not
// contain a NUL byte.
func (b *Builder) PushKey(k string) {
	if !b.writable() {
		return
	}
	if strings.IndexByte(k, 0) >= 0 {
		b.fail(fmt.Errorf("%w: key %q contains a NUL byte", ErrBuilderState, k))
		return
	}
	if !utf8.ValidString(k) {
		b.fail(fmt.Errorf("%w: key %q", ErrInvalidUTF8, k))
		return
	}
	loc, ok := b.keys[k]
	if !ok {
		loc = len(b.buf)
		b.buf = append(b.buf, k...)
		b.buf = append(b.buf, 0)
		b.keys[k] = loc
	}
	b.push(entry{typ: TypeKey, width: Width8, bits: uint64(loc)})
}

func (b *Builder) pushIndirect(t Type, w BitWidth, bits uint64) {
	bw := b.align(w)
	loc := len(b.buf)
	if t == TypeIndirectFloat {
		b.buf = common.AppendFloat(b.buf, math.Float64frombits(bits), bw)
	} else {
		b.buf = common.AppendUint(b.buf, bits, bw)
	}
	b.push(entry{typ: t, width: w, bits: uint64(loc)})
}

// PushIndirectInt stores i out of line so that a vector holding it keeps a
// narrow slot width.
func (b *Builder) PushIndirectInt(i int64) {
	if b.writable() {
		b.pushIndirect(TypeIndirectInt, WidthI(i), uint64(i))
	}
}

func (b *Builder) PushIndirectUInt(u uint64) {
	if b.writable() {
		b.pushIndirect(TypeIndirectUInt, WidthU(u), u)
	}
}

func (b *Builder) PushIndirectFloat(f float64) {
	if b.writable() {
		b.pushIndirect(TypeIndirectFloat, WidthF(f), math.Float64bits(f))
	}
}

// StartVector opens a vector scope and returns the marker EndVector needs.
func (b *Builder) StartVector() int {
	b.writable()
	b.scopes = append(b.scopes, scope{start: len(b.stack)})
	return len(b.stack)
}

// StartMap opens a map scope. Inside it, every value must be preceded by a
// PushKey.
func (b *Builder) StartMap() int {
	b.writable()
	b.scopes = append(b.scopes, scope{start: len(b.stack), isMap: true})
	return len(b.stack)
}

func (b *Builder) closeScope(start int, isMap bool) bool {
	if !b.writable() {
		return false
	}
	n := len(b.scopes)
	if n == 0 || b.scopes[n-1].start != start || b.scopes[n-1].isMap != isMap || start > len(b.stack) {
		b.fail(fmt.Errorf("%w: scope at %d is not the innermost open %s", ErrBuilderState, start, scopeName(isMap)))
		return false
	}
	b.scopes = b.scopes[:n-1]
	return true
}

func scopeName(isMap bool) string {
	if isMap {
		return "map"
	}
	return "vector"
}

// EndVector closes the vector opened at start. All-same-type scalar
// elements produce a typed vector, and 2 to 4 numbers a fixed-length one.
func (b *Builder) EndVector(start int) {
	if !b.closeScope(start, false) {
		return
	}
	n := len(b.stack) - start
	typed, fixed := b.vectorShape(start, n)
	vec := b.createVector(start, n, 1, typed, fixed, nil)
	b.stack = append(b.stack[:start], vec)
}

func (b *Builder) vectorShape(start, n int) (typed, fixed bool) {
	if n == 0 {
		return false, false
	}
	t := b.stack[start].typ
	if !t.IsTypedVectorElement() || t == TypeString {
		return false, false
	}
	for _, e := range b.stack[start+1 : start+n] {
		if e.typ != t {
			return false, false
		}
	}
	return true, n >= 2 && n <= 4 && t <= TypeFloat
}

// EndMap closes the map opened at start. Entries are sorted by key bytes;
// the order they were pushed in is not kept.
func (b *Builder) EndMap(start int) {
	if !b.closeScope(start, true) {
		return
	}
	n := len(b.stack) - start
	if n%2 != 0 {
		b.fail(fmt.Errorf("%w: map has a key without a value", ErrBuilderState))
		return
	}
	type pair struct {
		name       []byte
		key, value entry
	}
	pairs := make([]pair, n/2)
	for i := range pairs {
		k, v := b.stack[start+2*i], b.stack[start+2*i+1]
		if k.typ != TypeKey {
			b.fail(fmt.Errorf("%w: map entry %d has %s key", ErrBuilderState, i, k.typ))
			return
		}
		pairs[i] = pair{name: b.keyBytes(k), key: k, value: v}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].name, pairs[j].name) < 0 })
	for i, p := range pairs {
		if i > 0 && bytes.Equal(pairs[i-1].name, p.name) {
			b.fail(fmt.Errorf("%w: duplicate map key %q", ErrBuilderState, p.name))
			return
		}
		b.stack[start+2*i] = p.key
		b.stack[start+2*i+1] = p.value
	}
	keys := b.createVector(start, len(pairs), 2, true, false, nil)
	vec := b.createVector(start+1, len(pairs), 2, false, false, &keys)
	b.stack = append(b.stack[:start], vec)
}

func (b *Builder) keyBytes(k entry) []byte {
	end := common.IndexNull(b.buf, int(k.bits))
	return b.buf[k.bits:end]
}

// createVector writes n stack entries, step apart from start, as one vector
// and returns the entry pointing at it. A non-nil keys makes it the value
// half of a map.
func (b *Builder) createVector(start, n, step int, typed, fixed bool, keys *entry) entry {
	w := WidthU(uint64(n))
	prefix := 1
	if keys != nil {
		prefix += 2
	}
	elemType := TypeKey
	if typed && n > 0 {
		elemType = b.stack[start].typ
	}
	// Grow the slot width until every offset fits at its final position.
	for ; w < Width64; w++ {
		fits := keys == nil || keys.fitsAt(len(b.buf), 0, w)
		for i := 0; fits && i < n; i++ {
			fits = b.stack[start+i*step].fitsAt(len(b.buf), prefix+i, w)
		}
		if fits {
			break
		}
	}
	bw := b.align(w)
	if keys != nil {
		b.writeOffset(keys.bits, bw)
		b.buf = common.AppendUint(b.buf, uint64(keys.width.ByteWidth()), bw)
	}
	if !fixed {
		b.buf = common.AppendUint(b.buf, uint64(n), bw)
	}
	loc := len(b.buf)
	for i := 0; i < n; i++ {
		b.writeAny(b.stack[start+i*step], bw)
	}
	if !typed {
		for i := 0; i < n; i++ {
			e := b.stack[start+i*step]
			b.buf = append(b.buf, PackType(e.typ, e.storedWidth(w)))
		}
	}
	t := TypeVector
	switch {
	case keys != nil:
		t = TypeMap
	case typed:
		fixedLen := 0
		if fixed {
			fixedLen = n
		}
		t, _ = ToTypedVector(elemType, fixedLen)
	}
	return entry{typ: t, width: w, bits: uint64(loc)}
}

// Push writes a whole value tree. Nesting is walked with an explicit stack,
// so depth is limited by memory only.
func (b *Builder) Push(v Value) {
	type frame struct {
		v     Value
		next  int
		start int
	}
	work := []frame{{v: v, start: -1}}
	for len(work) > 0 && b.err == nil {
		top := &work[len(work)-1]
		var child Value
		switch top.v.kind {
		case KindVector:
			if top.start < 0 {
				top.start = b.StartVector()
			}
			if top.next == len(top.v.items) {
				b.EndVector(top.start)
				work = work[:len(work)-1]
				continue
			}
			child = top.v.items[top.next]
		case KindMap:
			if top.start < 0 {
				top.start = b.StartMap()
			}
			if top.next == len(top.v.pairs) {
				b.EndMap(top.start)
				work = work[:len(work)-1]
				continue
			}
			p := top.v.pairs[top.next]
			b.PushKey(p.Key)
			child = p.Value
		default:
			b.pushScalar(top.v)
			work = work[:len(work)-1]
			continue
		}
		top.next++
		if child.kind == KindVector || child.kind == KindMap {
			work = append(work, frame{v: child, start: -1})
		} else {
			b.pushScalar(child)
		}
	}
}

func (b *Builder) pushScalar(v Value) {
	switch v.kind {
	case KindNull:
		b.PushNull()
	case KindBool:
		b.PushBool(v.Bool())
	case KindInt:
		b.PushInt(v.Int())
	case KindUInt:
		b.PushUInt(v.UInt())
	case KindFloat:
		b.PushFloat(v.Float())
	case KindString:
		b.PushString(v.str)
	case KindBlob:
		b.PushBlob(v.blob)
	default:
		b.fail(fmt.Errorf("%w: cannot push %s as a scalar", ErrBuilderState, v.kind))
	}
}

// Finish writes the root marker and returns the buffer. Exactly one value
// must be on the stack and no scope may be open. The Builder accepts no
// further writes until Reset.
func (b *Builder) Finish() ([]byte, error) {
	if !b.writable() {
		return nil, b.err
	}
	if len(b.scopes) != 0 {
		b.fail(fmt.Errorf("%w: %d unclosed scope(s)", ErrBuilderState, len(b.scopes)))
		return nil, b.err
	}
	if len(b.stack) != 1 {
		b.fail(fmt.Errorf("%w: %d root values, want 1", ErrBuilderState, len(b.stack)))
		return nil, b.err
	}
	root := b.stack[0]
	w := Width8
	for w < Width64 && !root.fitsAt(len(b.buf), 0, w) {
		w++
	}
	bw := b.align(w)
	b.writeAny(root, bw)
	b.buf = append(b.buf, PackType(root.typ, root.storedWidth(w)), byte(bw))
	b.stack = b.stack[:0]
	b.keys = nil
	b.strings = nil
	b.finished = true
	return b.buf, nil
}

// Build encodes v into a new buffer.
func Build(v Value, opts BuilderOptions) ([]byte, error) {
	b := NewBuilder(opts)
	b.Push(v)
	return b.Finish()
}
