package netdef

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrWireType   = errors.New("unexpected wire type")
	ErrIncomplete = errors.New("message is missing required content")
	ErrDataType   = errors.New("unsupported tensor data type")
)

// DeserializationError reports a malformed or truncated message.
type DeserializationError struct {
	Message string // Top-level message type (e.g., "NetDef")
	Path    string // Field path inside the message (e.g., "op[3].arg[0]")
	Err     error  // Underlying cause
}

// Error implements the error interface.
func (e *DeserializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("netdef: decode %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("netdef: decode %s: field %s: %v", e.Message, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// fieldError carries a field path while a nested message unwinds.
type fieldError struct {
	path string
	err  error
}

func (e *fieldError) Error() string { return e.path + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

// inField prefixes err with a field name, joining nested paths.
func inField(name string, err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		sep := "."
		if fe.path != "" && fe.path[0] == '[' {
			sep = ""
		}
		return &fieldError{path: name + sep + fe.path, err: fe.err}
	}
	return &fieldError{path: name, err: err}
}

func inIndexed(name string, idx int, err error) error {
	return inField(fmt.Sprintf("%s[%d]", name, idx), err)
}

func toDeserializationError(message string, err error) error {
	if err == nil {
		return nil
	}
	var fe *fieldError
	if errors.As(err, &fe) {
		return &DeserializationError{Message: message, Path: fe.path, Err: fe.err}
	}
	return &DeserializationError{Message: message, Err: err}
}
