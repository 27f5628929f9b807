package operators

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerGradientOps adds the backward operators to the registry.
func (r *Registry) registerGradientOps() {
	r.Register("ConvGradient", handleConvGradient)
	r.Register("MaxPoolGradient", handleMaxPoolGradient)
	r.Register("FCGradient", handleFCGradient)
	r.Register("ReluGradient", handleReluGradient)
	r.Register("SoftmaxGradient", handleSoftmaxGradient)
	r.Register("LabelCrossEntropyGradient", handleLabelCrossEntropyGradient)
	r.Register("AveragedLossGradient", handleAveragedLossGradient)
}

// checkGrad requires dy to have the shape of the forward output.
func checkGrad(op *netdef.OperatorDef, dy *tensor.Tensor, want tensor.Shape) error {
	if !dy.Shape().Equal(want) {
		return fmt.Errorf("%w: %s: gradient %v, want %v", ErrShape, op.Type, []int(dy.Shape()), []int(want))
	}
	return nil
}

// handleConvGradient: inputs X, W, dY; outputs dW, db and optionally dX.
func handleConvGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 2, 3); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 3)
	if err != nil {
		return err
	}
	x, w, dy := in[0], in[1], in[2]
	p, err := convParams(op, x, w)
	if err != nil {
		return err
	}
	if err := checkGrad(op, dy, tensor.Shape{p.N, p.M, p.OutH(), p.OutW()}); err != nil {
		return err
	}

	dw, err := ctx.Output(op, 0, w.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	db, err := ctx.Output(op, 1, tensor.Shape{p.M}, tensor.Float)
	if err != nil {
		return err
	}
	var dxData []float32
	if len(op.Output) == 3 {
		dx, err := ctx.Output(op, 2, x.Shape(), tensor.Float)
		if err != nil {
			return err
		}
		dxData = dx.Float32()
	}
	ctx.Backend.Conv2DBackward(x.Float32(), w.Float32(), dy.Float32(), dw.Float32(), db.Float32(), dxData, p)
	return nil
}

// handleMaxPoolGradient: inputs X, Y, dY; output dX.
func handleMaxPoolGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 3)
	if err != nil {
		return err
	}
	x, dy := in[0], in[2]
	p, err := poolParams(op, x)
	if err != nil {
		return err
	}
	if err := checkGrad(op, dy, tensor.Shape{p.N, p.C, p.OutH(), p.OutW()}); err != nil {
		return err
	}
	dx, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.MaxPool2DBackward(x.Float32(), dy.Float32(), dx.Float32(), p)
	return nil
}

// handleFCGradient: inputs X, W, dY; outputs dW, db and optionally dX.
func handleFCGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 2, 3); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 3)
	if err != nil {
		return err
	}
	x, w, dy := in[0], in[1], in[2]
	p, err := fcParams(op, x, w)
	if err != nil {
		return err
	}
	if err := checkGrad(op, dy, tensor.Shape{p.N, p.M}); err != nil {
		return err
	}

	dw, err := ctx.Output(op, 0, w.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	db, err := ctx.Output(op, 1, tensor.Shape{p.M}, tensor.Float)
	if err != nil {
		return err
	}
	var dxData []float32
	if len(op.Output) == 3 {
		dx, err := ctx.Output(op, 2, x.Shape(), tensor.Float)
		if err != nil {
			return err
		}
		dxData = dx.Float32()
	}
	ctx.Backend.FCBackward(x.Float32(), w.Float32(), dy.Float32(), dw.Float32(), db.Float32(), dxData, p)
	return nil
}

// handleReluGradient: inputs Y, dY; output dX.
func handleReluGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, 2, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 2)
	if err != nil {
		return err
	}
	y, dy := in[0], in[1]
	if err := checkGrad(op, dy, y.Shape()); err != nil {
		return err
	}
	dx, err := ctx.Output(op, 0, y.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.ReluBackward(y.Float32(), dy.Float32(), dx.Float32())
	return nil
}

// handleSoftmaxGradient: inputs Y, dY; output dX.
func handleSoftmaxGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, 2, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 2)
	if err != nil {
		return err
	}
	y, dy := in[0], in[1]
	if err := checkGrad(op, dy, y.Shape()); err != nil {
		return err
	}
	rows, cols, err := softmaxDims(op, y.Shape())
	if err != nil {
		return err
	}
	dx, err := ctx.Output(op, 0, y.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.SoftmaxBackward(y.Float32(), dy.Float32(), dx.Float32(), rows, cols)
	return nil
}

// handleLabelCrossEntropyGradient: inputs X, label, dY; output dX.
func handleLabelCrossEntropyGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 1, 1); err != nil {
		return err
	}
	x, label, rows, cols, err := labeledInputs(ctx, op)
	if err != nil {
		return err
	}
	dy, err := ctx.FloatInput(op, 2)
	if err != nil {
		return err
	}
	if err := checkGrad(op, dy, tensor.Shape{rows}); err != nil {
		return err
	}
	dx, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	if err := ctx.Backend.LabelCrossEntropyBackward(x.Float32(), label.Int32(), dy.Float32(), dx.Float32(), rows, cols); err != nil {
		return fmt.Errorf("%w: %w", ErrArgument, err)
	}
	return nil
}

// handleAveragedLossGradient: inputs X, dY (scalar); output dX = dY / N everywhere.
func handleAveragedLossGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, 2, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	g, err := scalarValue(ctx, op, 1)
	if err != nil {
		return err
	}
	dx, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	if n := x.NumElements(); n > 0 {
		fill(dx.Float32(), g/float32(n))
	}
	return nil
}
