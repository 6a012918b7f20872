package gobounce

// Edge tells what caused an invocation.
type Edge uint8

const (
	// EdgeLeading is the synchronous invocation on the first call of a burst.
	EdgeLeading Edge = iota + 1
	// EdgeTrailing is the deferred invocation once the burst settled.
	EdgeTrailing
	// EdgeMaxWait is the synchronous invocation forced by the maxWait bound.
	EdgeMaxWait
	// EdgeFlush is the invocation forced by Flush.
	EdgeFlush
)

func (e Edge) String() string {
	switch e {
	case EdgeLeading:
		return "leading"
	case EdgeTrailing:
		return "trailing"
	case EdgeMaxWait:
		return "maxWait"
	case EdgeFlush:
		return "flush"
	default:
		return "unknown"
	}
}
