package flexbuffers

import "errors"

var (
	// ErrBuilderState reports builder misuse: an unbalanced scope, a push
	// after Finish, or a Finish without exactly one root.
	ErrBuilderState = errors.New("flexbuffers: invalid builder state")
	// ErrMalformedBuffer is returned for buffers that cannot be decoded at all.
	ErrMalformedBuffer = errors.New("flexbuffers: malformed buffer")
	// ErrOutOfBounds is returned when an offset or index resolves outside the
	// buffer or does not point backward.
	ErrOutOfBounds   = errors.New("flexbuffers: out of bounds")
	ErrDepthExceeded = errors.New("flexbuffers: maximum depth exceeded")
	ErrLimitExceeded = errors.New("flexbuffers: node limit exceeded")
	ErrKeyNotFound   = errors.New("flexbuffers: key not found")
	ErrInvalidUTF8   = errors.New("flexbuffers: invalid utf-8")
	ErrTypeMismatch  = errors.New("flexbuffers: type mismatch")
)
