// Package flexwire wraps a finished FlexBuffer in a small checksummed frame
// so it can cross a process boundary and be checked before it is read.
package flexwire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/zeebo/blake3"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

const (
	Magic0  byte = 0xF1
	Magic1  byte = 0xEB
	Version byte = 1

	// FlagBlake3 selects a 32-byte BLAKE3 checksum instead of CRC-32.
	FlagBlake3 byte = 1 << 0

	knownFlags = FlagBlake3

	// magic, version, flags, payload length
	headerSize = 2 + 1 + 1 + 4
	blake3Size = 32
)

var (
	ErrShortFrame  = errors.New("flexwire: frame too short")
	ErrBadMagic    = errors.New("flexwire: bad magic")
	ErrVersion     = errors.New("flexwire: unsupported version")
	ErrFlags       = errors.New("flexwire: unknown flags")
	ErrLength      = errors.New("flexwire: length mismatch")
	ErrChecksum    = errors.New("flexwire: checksum mismatch")
	ErrBadPayload  = errors.New("flexwire: payload is not a valid buffer")
	ErrPayloadSize = errors.New("flexwire: payload too large")
)

// Frame is a decoded frame. Payload aliases the input.
type Frame struct {
	Version byte
	Flags   byte
	Payload []byte
}

func checksumSize(flags byte) int {
	if flags&FlagBlake3 != 0 {
		return blake3Size
	}
	return crc32.Size
}

// checksum covers everything after the magic up to the end of the payload.
func appendChecksum(dst, body []byte, flags byte) []byte {
	if flags&FlagBlake3 != 0 {
		sum := blake3.Sum256(body)
		return append(dst, sum[:]...)
	}
	return binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(body))
}

// EncodeFrame frames payload, which must be a valid buffer.
func EncodeFrame(payload []byte, flags byte) ([]byte, error) {
	if flags&^knownFlags != 0 {
		return nil, fmt.Errorf("%w: %#x", ErrFlags, flags)
	}
	if uint64(len(payload)) > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(payload))
	}
	if err := flexbuffers.Validate(payload, flexbuffers.Limits{}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)+checksumSize(flags)))
	buf.Write([]byte{Magic0, Magic1, Version, flags})
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	out := buf.Bytes()
	return appendChecksum(out, out[2:], flags), nil
}

// DecodeFrame checks the frame around data and validates the payload with
// limits.
func DecodeFrame(data []byte, limits flexbuffers.Limits) (Frame, error) {
	if len(data) < headerSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if data[0] != Magic0 || data[1] != Magic1 {
		return Frame{}, ErrBadMagic
	}
	f := Frame{Version: data[2], Flags: data[3]}
	if f.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	if f.Flags&^knownFlags != 0 {
		return Frame{}, fmt.Errorf("%w: %#x", ErrFlags, f.Flags)
	}
	n := uint64(binary.LittleEndian.Uint32(data[4:headerSize]))
	sumLen := checksumSize(f.Flags)
	if uint64(len(data)) != headerSize+n+uint64(sumLen) {
		return Frame{}, fmt.Errorf("%w: header says %d payload bytes in a %d-byte frame", ErrLength, n, len(data))
	}
	end := headerSize + int(n)
	want := appendChecksum(nil, data[2:end], f.Flags)
	if !bytes.Equal(want, data[end:]) {
		return Frame{}, ErrChecksum
	}
	f.Payload = data[headerSize:end:end]
	if err := flexbuffers.Validate(f.Payload, limits); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return f, nil
}
