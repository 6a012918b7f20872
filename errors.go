package gobounce

import (
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is a sentinel for the error that
	// occurs when a controller is built with invalid parameters,
	// for instance a negative wait or maxWait.
	ErrInvalidConfiguration = &InvalidConfiguration{}

	// ErrControllerClosed is a sentinel for the error that
	// occurs when a closed controller (or group) is invoked.
	ErrControllerClosed = &ControllerClosed{}
)

// FieldError represents a single validation error for a specific field.
type FieldError struct {
	Field string
	Err   string
}

// InvalidConfiguration is returned by the constructors
// when the given parameters can't be accepted.
type InvalidConfiguration struct {
	Fields []FieldError
	Reason string
}

func (e *InvalidConfiguration) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Err)
	}
	return fmt.Sprintf("InvalidConfiguration: %s", strings.Join(parts, "; "))
}

func (e *InvalidConfiguration) Is(tgt error) bool {
	_, ok := tgt.(*InvalidConfiguration)
	return ok
}

// ControllerClosed is returned when invoking a controller
// after Close was called on it.
type ControllerClosed struct {
	ID string
}

func (e *ControllerClosed) Error() string {
	if e.ID == "" {
		return "ControllerClosed: the controller has been closed"
	}
	return fmt.Sprintf("ControllerClosed: controller %s has been closed", e.ID)
}

func (e *ControllerClosed) Is(tgt error) bool {
	_, ok := tgt.(*ControllerClosed)
	return ok
}

// ErrInvalidKey is a sentinel for the error that occurs
// when a group is used with a blank string key.
var ErrInvalidKey = &InvalidKey{}

// InvalidKey is returned by groups for keys that can't be accepted.
type InvalidKey struct {
	Key string
}

func (e *InvalidKey) Error() string {
	return fmt.Sprintf("InvalidKey: key %q must not be blank", e.Key)
}

func (e *InvalidKey) Is(tgt error) bool {
	_, ok := tgt.(*InvalidKey)
	return ok
}
