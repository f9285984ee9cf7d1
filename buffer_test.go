package flexbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

func TestFlexBuffer(t *testing.T) {
	fb := New()
	_, err := fb.Deserialize()
	assert.ErrorIs(t, err, ErrEmptyBuffer)
	assert.Equal(t, 0, fb.Size())

	require.NoError(t, fb.Serialize(map[string]any{"k": []any{1.5, "v"}}))
	assert.Equal(t, len(fb.Bytes()), fb.Size())

	out, err := fb.Deserialize()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": []any{1.5, "v"}}, out)

	root, err := fb.Root()
	require.NoError(t, err)
	m, err := root.AsMap()
	require.NoError(t, err)
	k, err := m.Get("k")
	require.NoError(t, err)
	vec, err := k.AsVector()
	require.NoError(t, err)
	assert.Equal(t, 2, vec.Len())

	// Bytes hands out a copy.
	b := fb.Bytes()
	b[0] ^= 0xff
	again, err := fb.Deserialize()
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestFromBuffer(t *testing.T) {
	src := New()
	type msg struct {
		ID   uint32
		Body string
	}
	require.NoError(t, src.Serialize(msg{ID: 7, Body: "hi"}))

	fb, err := FromBuffer(src.Bytes())
	require.NoError(t, err)
	var m msg
	require.NoError(t, fb.Unmarshal(&m))
	assert.Equal(t, msg{ID: 7, Body: "hi"}, m)

	_, err = FromBuffer([]byte{0xff})
	assert.ErrorIs(t, err, flexbuffers.ErrMalformedBuffer)
	_, err = FromBuffer(nil)
	assert.Error(t, err)

	assert.ErrorIs(t, New().Unmarshal(&m), ErrEmptyBuffer)
}

func TestFlexBufferWithCodec(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDepth = 2
	fb := NewWithCodec(NewCodec(opts))
	assert.ErrorIs(t, fb.Serialize([][][]int{{{1}}}), flexbuffers.ErrDepthExceeded)
	require.NoError(t, fb.Serialize([][]int{{1}}))

	out, err := fb.Deserialize()
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{int64(1)}}, out)
}
