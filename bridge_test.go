package flexbuf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

func TestFromAny(t *testing.T) {
	type point struct {
		X, Y int
	}
	var nilMap map[string]int
	cases := []struct {
		in   any
		want flexbuffers.Value
	}{
		{nil, flexbuffers.Null()},
		{true, flexbuffers.Bool(true)},
		{int8(-3), flexbuffers.Int(-3)},
		{uint16(9), flexbuffers.UInt(9)},
		{float32(0.5), flexbuffers.Float(0.5)},
		{"s", flexbuffers.String("s")},
		{[]byte{1}, flexbuffers.Blob([]byte{1})},
		{[2]byte{1, 2}, flexbuffers.Blob([]byte{1, 2})},
		{[]int{1, 2}, flexbuffers.Vector(flexbuffers.Int(1), flexbuffers.Int(2))},
		{nilMap, flexbuffers.Null()},
		{(*point)(nil), flexbuffers.Null()},
		{point{1, 2}, flexbuffers.Map(
			flexbuffers.Pair{Key: "X", Value: flexbuffers.Int(1)},
			flexbuffers.Pair{Key: "Y", Value: flexbuffers.Int(2)},
		)},
		{flexbuffers.UInt(4), flexbuffers.UInt(4)},
		{[]any{nil, "a"}, flexbuffers.Vector(flexbuffers.Null(), flexbuffers.String("a"))},
	}
	for _, c := range cases {
		got, err := FromAny(c.in)
		require.NoError(t, err, "%#v", c.in)
		assert.True(t, c.want.Equal(got), "%#v: got %v want %v", c.in, got, c.want)
	}
	_, err := FromAny(complex(1, 2))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestToAny(t *testing.T) {
	v := flexbuffers.Map(
		flexbuffers.Pair{Key: "v", Value: flexbuffers.Vector(flexbuffers.Int(-1), flexbuffers.UInt(1), flexbuffers.Null())},
		flexbuffers.Pair{Key: "f", Value: flexbuffers.Float(math.Inf(1))},
		flexbuffers.Pair{Key: "b", Value: flexbuffers.Bool(false)},
	)
	want := map[string]any{
		"v": []any{int64(-1), uint64(1), nil},
		"f": math.Inf(1),
		"b": false,
	}
	assert.Equal(t, want, ToAny(v))
}

func TestSerializeDeserialize(t *testing.T) {
	in := map[string]any{
		"name":  "flex",
		"count": int64(3),
		"tags":  []any{"a", "b", "a"},
		"none":  nil,
		"ok":    true,
	}
	data, err := Serialize(in)
	require.NoError(t, err)
	assert.True(t, IsValid(data))
	out, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Deserialize(nil)
	assert.ErrorIs(t, err, ErrEmptyBuffer)
	_, err = Deserialize(data[:len(data)-1])
	assert.Error(t, err)
	assert.False(t, IsValid(data[:1]))
}
