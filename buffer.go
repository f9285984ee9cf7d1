package flexbuf

import (
	"bytes"
	"fmt"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

// FlexBuffer holds one encoded buffer. It is not safe for concurrent use.
type FlexBuffer struct {
	codec *Codec
	data  []byte
}

// New returns an empty FlexBuffer using the default options.
func New() *FlexBuffer {
	return &FlexBuffer{codec: defaultCodec}
}

// NewWithCodec returns an empty FlexBuffer that encodes and decodes with c.
func NewWithCodec(c *Codec) *FlexBuffer {
	return &FlexBuffer{codec: c}
}

// Serialize replaces the held buffer with the encoding of v.
func (f *FlexBuffer) Serialize(v any) error {
	data, err := f.codec.Marshal(v)
	if err != nil {
		return err
	}
	f.data = data
	return nil
}

// Deserialize decodes the held buffer.
func (f *FlexBuffer) Deserialize() (any, error) {
	if len(f.data) == 0 {
		return nil, ErrEmptyBuffer
	}
	return f.codec.Deserialize(f.data)
}

// Unmarshal decodes the held buffer into out.
func (f *FlexBuffer) Unmarshal(out any) error {
	if len(f.data) == 0 {
		return ErrEmptyBuffer
	}
	return f.codec.Unmarshal(f.data, out)
}

// Root gives lazy access to the held buffer.
func (f *FlexBuffer) Root() (flexbuffers.Reference, error) {
	return flexbuffers.GetRoot(f.data)
}

// Bytes returns a copy of the held buffer.
func (f *FlexBuffer) Bytes() []byte {
	return bytes.Clone(f.data)
}

func (f *FlexBuffer) Size() int { return len(f.data) }

// FromBuffer wraps a copy of data after checking that it is well formed.
func FromBuffer(data []byte) (*FlexBuffer, error) {
	return defaultCodec.FromBuffer(data)
}

func (c *Codec) FromBuffer(data []byte) (*FlexBuffer, error) {
	if err := flexbuffers.Validate(data, c.opts.limits()); err != nil {
		c.reject(data, err)
		return nil, fmt.Errorf("invalid flexbuffer: %w", err)
	}
	return &FlexBuffer{codec: c, data: bytes.Clone(data)}, nil
}
