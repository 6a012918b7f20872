// Package optional holds a tagged optional value, used where a zero value
// would be ambiguous (a timestamp of 0 is still a timestamp).
package optional

// Value is either absent or holds a T.
// The zero value is absent.
type Value[T any] struct {
	value T
	set   bool
}

// Of returns a present value.
func Of[T any](v T) Value[T] {
	return Value[T]{value: v, set: true}
}

// None returns an absent value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// IsSet reports whether a value is present.
func (v Value[T]) IsSet() bool {
	return v.set
}

// Get returns the value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	return v.value, v.set
}

// OrElse returns the value, or fallback when absent.
func (v Value[T]) OrElse(fallback T) T {
	if !v.set {
		return fallback
	}
	return v.value
}
