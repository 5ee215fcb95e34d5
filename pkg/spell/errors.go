package spell

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the spell script path does not exist.
	ErrNotFound = errors.New("spell: script not found")

	// ErrNoMeta indicates a script carries no well-formed Meta record.
	ErrNoMeta = errors.New("spell: missing or malformed Meta record")
)

// LoadError wraps a failure while executing a script's top-level code.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("spell: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvocationError wraps a failure raised by the entry callable or by the
// fallback script execution. It never escapes Invoke; callers receive it
// inside a Result.
type InvocationError struct {
	Path string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("spell: invoke %s: %v", e.Path, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
