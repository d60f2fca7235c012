package pool

import "fmt"

// PanicError wraps a recovered worker panic so callers can distinguish
// crashes from ordinary processing failures.
type PanicError struct {
	Value any
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}
