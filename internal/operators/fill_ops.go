package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerFillOps adds tensor initializers to the registry.
func (r *Registry) registerFillOps() {
	r.Register("ConstantFill", handleConstantFill)
	r.Register("GivenTensorFill", handleGivenTensorFill)
	r.Register("GivenTensorIntFill", handleGivenTensorIntFill)
	r.Register("GivenTensorInt64Fill", handleGivenTensorInt64Fill)
	r.Register("XavierFill", handleXavierFill)
}

// fillShape returns the shape of the optional input, or the "shape" argument.
func fillShape(ctx *Context, op *netdef.OperatorDef) (tensor.Shape, error) {
	if err := checkIO(op, 0, 1, 1, 1); err != nil {
		return nil, err
	}
	if len(op.Input) == 1 {
		x, err := ctx.Input(op, 0)
		if err != nil {
			return nil, err
		}
		return x.Shape().Clone(), nil
	}
	shape := tensor.ShapeFromInt64(op.ArgInts("shape"))
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArgument, op.Type, err)
	}
	return shape, nil
}

// handleConstantFill fills a tensor with "value". The dtype argument selects
// the element type (default float32).
func handleConstantFill(ctx *Context, op *netdef.OperatorDef) error {
	shape, err := fillShape(ctx, op)
	if err != nil {
		return err
	}
	dtype := tensor.DataType(op.ArgInt("dtype", int64(tensor.Float)))
	if !dtype.Valid() {
		return fmt.Errorf("%w: ConstantFill dtype %d", ErrArgument, dtype)
	}
	y, err := ctx.Output(op, 0, shape, dtype)
	if err != nil {
		return err
	}

	var iv int64
	fv := op.ArgFloat("value", 0)
	if a := netdef.FindArg(op.Arg, "value"); a != nil && a.Kind == netdef.ArgInt {
		iv = a.I
	} else {
		iv = int64(fv)
	}
	switch dtype.Storage() {
	case tensor.Float:
		fill(y.Float32(), fv)
	case tensor.Int32:
		fill(y.Int32(), int32(iv))
	case tensor.Int64:
		fill(y.Int64(), iv)
	case tensor.Uint8:
		fill(y.Uint8(), uint8(iv))
	}
	return nil
}

func fill[T any](s []T, v T) {
	for i := range s {
		s[i] = v
	}
}

// handleGivenTensorFill creates a float32 tensor from explicit values.
func handleGivenTensorFill(ctx *Context, op *netdef.OperatorDef) error {
	values := op.ArgFloats("values")
	y, err := givenOutput(ctx, op, len(values), tensor.Float)
	if err != nil {
		return err
	}
	copy(y.Float32(), values)
	return nil
}

// handleGivenTensorIntFill creates an int32 tensor from explicit values.
func handleGivenTensorIntFill(ctx *Context, op *netdef.OperatorDef) error {
	values := op.ArgInts("values")
	y, err := givenOutput(ctx, op, len(values), tensor.Int32)
	if err != nil {
		return err
	}
	convert(y.Int32(), values)
	return nil
}

// handleGivenTensorInt64Fill creates an int64 tensor from explicit values.
func handleGivenTensorInt64Fill(ctx *Context, op *netdef.OperatorDef) error {
	values := op.ArgInts("values")
	y, err := givenOutput(ctx, op, len(values), tensor.Int64)
	if err != nil {
		return err
	}
	copy(y.Int64(), values)
	return nil
}

func givenOutput(ctx *Context, op *netdef.OperatorDef, n int, dtype tensor.DataType) (*tensor.Tensor, error) {
	shape, err := fillShape(ctx, op)
	if err != nil {
		return nil, err
	}
	if shape.NumElements() != n {
		return nil, fmt.Errorf("%w: %s %q: %d values for shape %v",
			ErrArgument, op.Type, op.Output[0], n, []int(shape))
	}
	return ctx.Output(op, 0, shape, dtype)
}

// handleXavierFill draws from U(-s, s) with s = sqrt(3 / fan_in), where
// fan_in is the element count divided by the first dimension.
func handleXavierFill(ctx *Context, op *netdef.OperatorDef) error {
	shape, err := fillShape(ctx, op)
	if err != nil {
		return err
	}
	if len(shape) == 0 || shape[0] == 0 {
		return fmt.Errorf("%w: XavierFill needs a non-empty leading dimension, got %v", ErrArgument, []int(shape))
	}
	y, err := ctx.Output(op, 0, shape, tensor.Float)
	if err != nil {
		return err
	}
	fanIn := shape.NumElements() / shape[0]
	scale := float32(math.Sqrt(3 / float64(max(fanIn, 1))))
	data := y.Float32()
	for i := range data {
		data[i] = (ctx.Rand.Float32()*2 - 1) * scale
	}
	return nil
}
