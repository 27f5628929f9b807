package predictor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnboundInput = errors.New("external input not produced by init net")
	ErrNotFloat     = errors.New("parameter is not a float32 tensor")
	ErrNoOutput     = errors.New("net has no external output")
)

// GraphBindingError reports a predict-net external input that the init
// net did not create.
type GraphBindingError struct {
	Net  string // Predict net name
	Blob string // Unbound external input
	Err  error
}

// Error implements the error interface.
func (e *GraphBindingError) Error() string {
	return fmt.Sprintf("predict net %q: input %q: %v", e.Net, e.Blob, e.Err)
}

// Unwrap returns the underlying cause.
func (e *GraphBindingError) Unwrap() error {
	return e.Err
}
