package operators

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerLossOps adds loss and metric operators to the registry.
func (r *Registry) registerLossOps() {
	r.Register("LabelCrossEntropy", handleLabelCrossEntropy)
	r.Register("AveragedLoss", handleAveragedLoss)
	r.Register("Accuracy", handleAccuracy)
}

// labeledInputs returns X [N, D] and labels [N].
func labeledInputs(ctx *Context, op *netdef.OperatorDef) (x, label *tensor.Tensor, rows, cols int, err error) {
	x, err = ctx.FloatInput(op, 0)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	label, err = ctx.Input(op, 1)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	xs := x.Shape()
	if len(xs) < 2 {
		return nil, nil, 0, 0, fmt.Errorf("%w: %s: X %v must be at least 2D", ErrShape, op.Type, []int(xs))
	}
	rows, cols = xs[0], xs.SizeFrom(1)
	if label.DType() != tensor.Int32 || label.NumElements() != rows {
		return nil, nil, 0, 0, fmt.Errorf("%w: %s: label %s, want int32[%d]", ErrShape, op.Type, label, rows)
	}
	return x, label, rows, cols, nil
}

// handleLabelCrossEntropy computes Y[i] = -log(X[i, label[i]]).
func handleLabelCrossEntropy(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, 2, 1, 1); err != nil {
		return err
	}
	x, label, rows, cols, err := labeledInputs(ctx, op)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{rows}, tensor.Float)
	if err != nil {
		return err
	}
	if err := ctx.Backend.LabelCrossEntropy(x.Float32(), label.Int32(), y.Float32(), rows, cols); err != nil {
		return fmt.Errorf("%w: %w", ErrArgument, err)
	}
	return nil
}

// handleAveragedLoss computes the scalar mean of X.
func handleAveragedLoss(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{}, tensor.Float)
	if err != nil {
		return err
	}
	var sum float32
	for _, v := range x.Float32() {
		sum += v
	}
	if n := x.NumElements(); n > 0 {
		y.Float32()[0] = sum / float32(n)
	} else {
		y.Float32()[0] = 0
	}
	return nil
}

// handleAccuracy computes the scalar fraction of rows whose top-scoring class
// equals the label.
func handleAccuracy(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, 2, 1, 1); err != nil {
		return err
	}
	x, label, rows, cols, err := labeledInputs(ctx, op)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{}, tensor.Float)
	if err != nil {
		return err
	}
	y.Float32()[0] = ctx.Backend.Accuracy(x.Float32(), label.Int32(), rows, cols)
	return nil
}
