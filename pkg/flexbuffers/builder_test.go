package flexbuffers

import (
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type goldenVector struct {
	Name string `yaml:"name"`
	Hex  string `yaml:"hex"`
}

var goldenValues = map[string]Value{
	"null":           Null(),
	"true":           Bool(true),
	"int_minus_one":  Int(-1),
	"int_200":        Int(200),
	"uint_200":       UInt(200),
	"int_70000":      Int(70000),
	"float_1.5":      Float(1.5),
	"string_abc":     String("abc"),
	"blob_0102":      Blob([]byte{1, 2}),
	"empty_vector":   Vector(),
	"empty_map":      Map(),
	"fixed_int3":     Vector(Int(1), Int(2), Int(3)),
	"bools":          Vector(Bool(true), Bool(false)),
	"mixed_vector":   Vector(Int(1), String("a")),
	"shared_strings": Vector(String("x"), String("x")),
	"map_bac": Map(
		Pair{"b", Int(1)},
		Pair{"a", Int(2)},
		Pair{"c", Int(3)},
	),
}

func loadGolden(t *testing.T) []goldenVector {
	t.Helper()
	raw, err := os.ReadFile("testdata/vectors.yaml")
	require.NoError(t, err)
	var vectors []goldenVector
	require.NoError(t, yaml.Unmarshal(raw, &vectors))
	require.Len(t, vectors, len(goldenValues))
	return vectors
}

func TestGoldenVectors(t *testing.T) {
	for _, gv := range loadGolden(t) {
		t.Run(gv.Name, func(t *testing.T) {
			v, ok := goldenValues[gv.Name]
			require.True(t, ok, "no value for %s", gv.Name)
			want, err := hex.DecodeString(gv.Hex)
			require.NoError(t, err)

			got, err := Build(v, DefaultBuilderOptions())
			require.NoError(t, err)
			assert.Equal(t, gv.Hex, hex.EncodeToString(got))

			assert.True(t, IsValid(want))
			back, err := ToValue(want)
			require.NoError(t, err)
			assert.True(t, v.Equal(back), "got %v want %v", back, v)
		})
	}
}

func TestBuilderStreaming(t *testing.T) {
	b := NewBuilder(DefaultBuilderOptions())
	m := b.StartMap()
	b.PushKey("name")
	b.PushString("flex")
	b.PushKey("tags")
	v := b.StartVector()
	b.PushString("a")
	b.PushString("b")
	b.EndVector(v)
	b.PushKey("big")
	b.PushIndirectUInt(1 << 40)
	b.PushKey("ratio")
	b.PushIndirectFloat(0.1)
	b.PushKey("neg")
	b.PushIndirectInt(-70000)
	b.EndMap(m)
	buf, err := b.Finish()
	require.NoError(t, err)
	require.True(t, IsValid(buf))

	root, err := GetRoot(buf)
	require.NoError(t, err)
	mp, err := root.AsMap()
	require.NoError(t, err)
	keys, err := mp.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"big", "name", "neg", "ratio", "tags"}, keys)

	big, err := mp.Get("big")
	require.NoError(t, err)
	assert.Equal(t, TypeIndirectUInt, big.Type())
	u, err := big.AsUInt64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u)

	ratio, err := mp.Get("ratio")
	require.NoError(t, err)
	f, err := ratio.AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 0.1, f)

	neg, err := mp.Get("neg")
	require.NoError(t, err)
	i, err := neg.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-70000), i)

	// Indirect scalars keep the map's slots narrow.
	assert.Equal(t, 1, mp.values.width)
}

func TestBuilderDedup(t *testing.T) {
	const n = 50
	word := strings.Repeat("k", 16)
	items := make([]Value, n)
	for i := range items {
		items[i] = String(word)
	}
	buf, err := Build(Vector(items...), DefaultBuilderOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(buf, []byte(word)))
	assert.Less(t, len(buf), n*len(word))

	opts := DefaultBuilderOptions()
	opts.ShareStrings = false
	unshared, err := Build(Vector(items...), opts)
	require.NoError(t, err)
	assert.Equal(t, n, bytes.Count(unshared, []byte(word)))

	back, err := ToValue(unshared)
	require.NoError(t, err)
	assert.True(t, Vector(items...).Equal(back))
}

func TestBuilderKeysAlwaysShared(t *testing.T) {
	opts := DefaultBuilderOptions()
	opts.ShareStrings = false
	inner := Map(Pair{"longkeyname", Int(1)})
	buf, err := Build(Vector(inner, inner, inner), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(buf, []byte("longkeyname")))
}

func TestBuilderWidthMinimality(t *testing.T) {
	cases := []struct {
		v     Value
		typ   Type
		width BitWidth
	}{
		{UInt(200), TypeUInt, Width8},
		{Int(200), TypeInt, Width16},
		{Int(-1), TypeInt, Width8},
		{Int(70000), TypeInt, Width32},
		{Int(-1 << 40), TypeInt, Width64},
		{Float(2.5), TypeFloat, Width32},
		{Float(0.1), TypeFloat, Width64},
	}
	for _, c := range cases {
		buf, err := Build(c.v, DefaultBuilderOptions())
		require.NoError(t, err)
		typ, w := UnpackType(buf[len(buf)-2])
		assert.Equal(t, c.typ, typ, c.v.String())
		assert.Equal(t, c.width, w, c.v.String())
		assert.Equal(t, c.width.ByteWidth(), int(buf[len(buf)-1]), c.v.String())
		assert.Len(t, buf, c.width.ByteWidth()+2, c.v.String())
	}
}

func TestBuilderVectorEncodings(t *testing.T) {
	cases := []struct {
		v   Value
		typ Type
	}{
		{Vector(Int(1), Int(2)), TypeVectorInt2},
		{Vector(UInt(1), UInt(2), UInt(3), UInt(4)), TypeVectorUInt4},
		{Vector(Float(1), Float(2), Float(3)), TypeVectorFloat3},
		{Vector(Int(1), Int(2), Int(3), Int(4), Int(5)), TypeVectorInt},
		{Vector(Int(7)), TypeVectorInt},
		{Vector(Bool(true), Bool(true), Bool(false)), TypeVectorBool},
		{Vector(String("a"), String("b")), TypeVector},
		{Vector(Int(1), UInt(2)), TypeVector},
		{Vector(Null(), Null()), TypeVector},
		{Vector(Vector(), Vector()), TypeVector},
	}
	for _, c := range cases {
		buf, err := Build(c.v, DefaultBuilderOptions())
		require.NoError(t, err)
		typ, _ := UnpackType(buf[len(buf)-2])
		assert.Equal(t, c.typ, typ, c.v.String())
		back, err := ToValue(buf)
		require.NoError(t, err)
		assert.True(t, c.v.Equal(back), "%v != %v", c.v, back)
	}
}

func TestBuilderMixedWidths(t *testing.T) {
	v := Vector(Int(1), Int(-300), Int(1<<40), Float(0.5), String("s"))
	buf, err := Build(v, DefaultBuilderOptions())
	require.NoError(t, err)
	root, err := GetRoot(buf)
	require.NoError(t, err)
	vec, err := root.AsVector()
	require.NoError(t, err)
	assert.Equal(t, 8, vec.width)
	back, err := ToValue(buf)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestBuilderMapOrder(t *testing.T) {
	v := Map(Pair{"b", Int(1)}, Pair{"a", Int(2)}, Pair{"c", Int(3)})
	buf, err := Build(v, DefaultBuilderOptions())
	require.NoError(t, err)
	root, err := GetRoot(buf)
	require.NoError(t, err)
	mp, err := root.AsMap()
	require.NoError(t, err)
	keys, err := mp.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	a, err := mp.Get("a")
	require.NoError(t, err)
	i, err := a.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(2), i)

	_, err = mp.Get("z")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	back, err := ToValue(buf)
	require.NoError(t, err)
	assert.Equal(t, []Pair{{"a", Int(2)}, {"b", Int(1)}, {"c", Int(3)}}, back.Pairs())
}

func TestBuilderMisuse(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewBuilder(DefaultBuilderOptions()).Finish()
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("two roots", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		b.PushInt(1)
		b.PushInt(2)
		_, err := b.Finish()
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("unclosed scope", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		b.StartVector()
		_, err := b.Finish()
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("wrong scope", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		outer := b.StartVector()
		b.StartMap()
		b.EndVector(outer)
		assert.ErrorIs(t, b.Err(), ErrBuilderState)
	})
	t.Run("push after finish", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		b.PushNull()
		_, err := b.Finish()
		require.NoError(t, err)
		b.PushInt(3)
		assert.ErrorIs(t, b.Err(), ErrBuilderState)
		_, err = b.Finish()
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("key without value", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		m := b.StartMap()
		b.PushKey("k")
		b.EndMap(m)
		assert.ErrorIs(t, b.Err(), ErrBuilderState)
	})
	t.Run("value without key", func(t *testing.T) {
		b := NewBuilder(DefaultBuilderOptions())
		m := b.StartMap()
		b.PushInt(1)
		b.PushInt(2)
		b.EndMap(m)
		assert.ErrorIs(t, b.Err(), ErrBuilderState)
	})
	t.Run("duplicate key", func(t *testing.T) {
		_, err := Build(Map(Pair{"a", Int(1)}, Pair{"a", Int(2)}), DefaultBuilderOptions())
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("nul in key", func(t *testing.T) {
		_, err := Build(Map(Pair{"a\x00b", Int(1)}), DefaultBuilderOptions())
		assert.ErrorIs(t, err, ErrBuilderState)
	})
	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := Build(String("\xff"), DefaultBuilderOptions())
		assert.ErrorIs(t, err, ErrInvalidUTF8)
		_, err = Build(Map(Pair{"\xfe", Null()}), DefaultBuilderOptions())
		assert.ErrorIs(t, err, ErrInvalidUTF8)
	})
}

func TestBuilderReset(t *testing.T) {
	b := NewBuilder(DefaultBuilderOptions())
	assert.Equal(t, 0, b.Size())
	b.PushString("first")
	assert.Equal(t, len("first")+2, b.Size())
	first, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, len(first), b.Size())
	saved := bytes.Clone(first)

	b.Reset()
	assert.Equal(t, 0, b.Size())
	b.PushString("second")
	second, err := b.Finish()
	require.NoError(t, err)

	assert.Equal(t, saved, first)
	v, err := ToValue(second)
	require.NoError(t, err)
	assert.Equal(t, "second", v.Str())
}

func TestBuilderDeepNesting(t *testing.T) {
	const depth = 100000
	v := Int(1)
	for i := 0; i < depth; i++ {
		v = Vector(v)
	}
	buf, err := Build(v, DefaultBuilderOptions())
	require.NoError(t, err)
	assert.True(t, IsValid(buf))

	_, err = ToValue(buf)
	assert.ErrorIs(t, err, ErrDepthExceeded)

	err = Validate(buf, DefaultLimits())
	assert.ErrorIs(t, err, ErrDepthExceeded)

	// Unset limits still bound the recursion.
	_, err = ToValueLimits(buf, Limits{})
	assert.ErrorIs(t, err, ErrDepthExceeded)
	root, err := GetRoot(buf)
	require.NoError(t, err)
	_, err = root.ToValue(Limits{MaxNodes: len(buf)})
	assert.ErrorIs(t, err, ErrDepthExceeded)
	_, err = ToValueLimits(buf, Limits{MaxDepth: depth + 1})
	assert.NoError(t, err)
}
