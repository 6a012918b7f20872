package gobounce

// ControlledFunc is the interface implemented by controllers.
//
// You are encouraged to use this type when storing references
// to your controllers, so that debounced and throttled functions
// (or test doubles) can be swapped freely.
type ControlledFunc[T, R any] interface {
	// Call registers a call with the given argument and either invokes
	// the wrapped function right away or defers it, depending on the edges.
	Call(arg T) (R, error)

	// Cancel drops any pending invocation.
	Cancel()

	// Flush runs the pending invocation immediately, if any.
	Flush() (R, error)

	// Pending reports whether an invocation is scheduled.
	Pending() bool
}

var _ ControlledFunc[any, any] = (*Controller[any, any])(nil)
