package model

import (
	"errors"
	"fmt"

	"github.com/born-ml/lenet/internal/tensor"
)

// Binding errors.
var (
	ErrParamMissing = errors.New("parameter not in table")
	ErrParamShape   = errors.New("parameter shape mismatch")
)

// ParamBindingError reports a parameter that a helper declares but cannot
// bind to its ParamTable.
type ParamBindingError struct {
	Helper string       // Helper (net) name
	Param  string       // Parameter name
	Want   tensor.Shape // Shape the topology declares
	Got    tensor.Shape // Shape in the table, nil when missing
	Err    error        // ErrParamMissing or ErrParamShape
}

// Error implements the error interface.
func (e *ParamBindingError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("%s: bind %q %v: %v", e.Helper, e.Param, e.Want, e.Err)
	}
	return fmt.Sprintf("%s: bind %q: want %v, table has %v: %v", e.Helper, e.Param, e.Want, e.Got, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParamBindingError) Unwrap() error {
	return e.Err
}

// Param is a named trainable parameter.
type Param struct {
	Name  string
	Shape tensor.Shape
}

// ParamTable lists trainable parameters in declaration order.
type ParamTable struct {
	params []Param
	index  map[string]int
}

// NewParamTable creates an empty table.
func NewParamTable() *ParamTable {
	return &ParamTable{index: make(map[string]int)}
}

// Add appends a parameter. Adding an existing name replaces its shape.
func (t *ParamTable) Add(name string, shape tensor.Shape) {
	if i, ok := t.index[name]; ok {
		t.params[i].Shape = shape.Clone()
		return
	}
	t.index[name] = len(t.params)
	t.params = append(t.params, Param{Name: name, Shape: shape.Clone()})
}

// Lookup returns a parameter by name.
func (t *ParamTable) Lookup(name string) (Param, bool) {
	i, ok := t.index[name]
	if !ok {
		return Param{}, false
	}
	return t.params[i], true
}

// Len returns the number of parameters.
func (t *ParamTable) Len() int { return len(t.params) }

// Names returns parameter names in declaration order.
func (t *ParamTable) Names() []string {
	names := make([]string, len(t.params))
	for i, p := range t.params {
		names[i] = p.Name
	}
	return names
}

// Params returns a copy of the parameters in declaration order.
func (t *ParamTable) Params() []Param {
	out := make([]Param, len(t.params))
	for i, p := range t.params {
		out[i] = Param{Name: p.Name, Shape: p.Shape.Clone()}
	}
	return out
}

// NumElements returns the total number of scalar weights.
func (t *ParamTable) NumElements() int {
	n := 0
	for _, p := range t.params {
		n += p.Shape.NumElements()
	}
	return n
}
