// Package model builds LeNet nets with a small layer-helper API.
//
// A Helper owns two nets: InitNet creates parameters (and data readers) and
// runs once; Net is the per-step net. Layer builders append operators and
// return the output blob name. The first error is kept and reported by Err,
// so a topology can be written as straight-line code.
package model

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// Options configures a Helper.
type Options struct {
	Name string

	// InitParams adds parameter fillers to the init net. When false the
	// helper reuses parameters that already exist in the workspace.
	InitParams bool

	// Params is the table a helper with InitParams=false binds against.
	// Nil skips binding checks.
	Params *ParamTable

	// ArgScope is added to every Conv and MaxPool operator.
	ArgScope []netdef.Argument
}

// Helper accumulates a training, evaluation or deploy net.
type Helper struct {
	Name       string
	Net        *netdef.NetDef
	InitNet    *netdef.NetDef
	InitParams bool

	argScope []netdef.Argument
	bind     *ParamTable
	params   *ParamTable
	err      error
}

// DefaultArgScope is the layer argument scope used for all LeNet helpers.
func DefaultArgScope() []netdef.Argument {
	return []netdef.Argument{netdef.StringArg("order", "NCHW")}
}

// New creates a helper with empty nets.
func New(opts Options) *Helper {
	return &Helper{
		Name:       opts.Name,
		Net:        &netdef.NetDef{Name: opts.Name},
		InitNet:    &netdef.NetDef{Name: opts.Name + "_init"},
		InitParams: opts.InitParams,
		argScope:   opts.ArgScope,
		bind:       opts.Params,
		params:     NewParamTable(),
	}
}

// Err returns the first error recorded while building.
func (h *Helper) Err() error { return h.err }

// Params returns the parameters this helper declared.
func (h *Helper) Params() *ParamTable { return h.params }

func (h *Helper) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}

// AddOp appends an operator to the main net.
func (h *Helper) AddOp(op netdef.OperatorDef) {
	h.Net.AddOp(op)
}

// param declares a parameter and, with InitParams, adds its filler.
func (h *Helper) param(name string, shape tensor.Shape, filler string) string {
	if !h.InitParams && h.bind != nil {
		got, ok := h.bind.Lookup(name)
		switch {
		case !ok:
			h.fail(&ParamBindingError{Helper: h.Name, Param: name, Want: shape, Err: ErrParamMissing})
		case !got.Shape.Equal(shape):
			h.fail(&ParamBindingError{Helper: h.Name, Param: name, Want: shape, Got: got.Shape, Err: ErrParamShape})
		}
	}
	h.params.Add(name, shape)
	h.Net.AddExternalInput(name)
	if h.InitParams {
		args := []netdef.Argument{netdef.IntsArg("shape", shape.Int64())}
		if filler == "ConstantFill" {
			args = append(args, netdef.FloatArg("value", 0))
		}
		h.InitNet.AddOp(netdef.OperatorDef{Type: filler, Output: []string{name}, Arg: args})
	}
	return name
}

func (h *Helper) scoped(args ...netdef.Argument) []netdef.Argument {
	out := make([]netdef.Argument, 0, len(h.argScope)+len(args))
	out = append(out, h.argScope...)
	return append(out, args...)
}

// Conv adds a square-kernel convolution with weight out_w and bias out_b.
func (h *Helper) Conv(in, out string, dimIn, dimOut, kernel int) string {
	if dimIn <= 0 || dimOut <= 0 || kernel <= 0 {
		h.fail(fmt.Errorf("%s: conv %q: invalid dims %d->%d kernel %d", h.Name, out, dimIn, dimOut, kernel))
		return out
	}
	w := h.param(out+"_w", tensor.Shape{dimOut, dimIn, kernel, kernel}, "XavierFill")
	b := h.param(out+"_b", tensor.Shape{dimOut}, "ConstantFill")
	h.AddOp(netdef.OperatorDef{
		Name:   out,
		Type:   "Conv",
		Input:  []string{in, w, b},
		Output: []string{out},
		Arg:    h.scoped(netdef.IntArg("kernel", int64(kernel))),
	})
	return out
}

// MaxPool adds a square max pooling.
func (h *Helper) MaxPool(in, out string, kernel, stride int) string {
	h.AddOp(netdef.OperatorDef{
		Name:   out,
		Type:   "MaxPool",
		Input:  []string{in},
		Output: []string{out},
		Arg:    h.scoped(netdef.IntArg("kernel", int64(kernel)), netdef.IntArg("stride", int64(stride))),
	})
	return out
}

// FC adds a fully connected layer; the input is flattened after axis 0.
func (h *Helper) FC(in, out string, dimIn, dimOut int) string {
	if dimIn <= 0 || dimOut <= 0 {
		h.fail(fmt.Errorf("%s: fc %q: invalid dims %d->%d", h.Name, out, dimIn, dimOut))
		return out
	}
	w := h.param(out+"_w", tensor.Shape{dimOut, dimIn}, "XavierFill")
	b := h.param(out+"_b", tensor.Shape{dimOut}, "ConstantFill")
	h.AddOp(netdef.OperatorDef{
		Name:   out,
		Type:   "FC",
		Input:  []string{in, w, b},
		Output: []string{out},
	})
	return out
}

// Relu adds a rectifier. in and out may be the same blob.
func (h *Helper) Relu(in, out string) string {
	h.AddOp(netdef.OperatorDef{Name: out, Type: "Relu", Input: []string{in}, Output: []string{out}})
	return out
}

// Softmax adds a row-wise softmax.
func (h *Helper) Softmax(in, out string) string {
	h.AddOp(netdef.OperatorDef{Name: out, Type: "Softmax", Input: []string{in}, Output: []string{out}})
	return out
}

// Accuracy adds top-1 accuracy of prediction against label.
func (h *Helper) Accuracy(prediction, label, out string) string {
	h.AddOp(netdef.OperatorDef{Name: out, Type: "Accuracy", Input: []string{prediction, label}, Output: []string{out}})
	return out
}

// Print logs blob every everyN runs of the net.
func (h *Helper) Print(blob string, everyN int64) {
	h.AddOp(netdef.OperatorDef{
		Type:  "Print",
		Input: []string{blob},
		Arg:   []netdef.Argument{netdef.IntArg("every_n", everyN)},
	})
}
