package flexbuffers

// DefaultMaxDepth bounds ToValue recursion when no limit is given.
const DefaultMaxDepth = 1024

// Limits constrains how much work decoding an untrusted buffer may do.
type Limits struct {
	// MaxDepth is the deepest container nesting accepted. Validate treats
	// zero as unlimited since it walks a work list; ToValue recurses and
	// falls back to DefaultMaxDepth.
	MaxDepth int
	// MaxNodes caps the number of values visited. Zero derives the cap from
	// the buffer length; every value a builder writes occupies at least one
	// byte of its own, so only shared subtrees can exceed it.
	MaxNodes int
}

func DefaultLimits() Limits {
	return Limits{MaxDepth: DefaultMaxDepth}
}

func (l Limits) recursionDepth() int {
	if l.MaxDepth > 0 {
		return l.MaxDepth
	}
	return DefaultMaxDepth
}

func (l Limits) nodeBudget(bufLen int) int {
	if l.MaxNodes > 0 {
		return l.MaxNodes
	}
	return bufLen
}
