package operators

import (
	"fmt"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerLayerOps adds the forward network layers to the registry.
func (r *Registry) registerLayerOps() {
	r.Register("Conv", handleConv)
	r.Register("MaxPool", handleMaxPool)
	r.Register("FC", handleFC)
	r.Register("Relu", handleRelu)
	r.Register("Softmax", handleSoftmax)
}

// convParams derives kernel parameters from X [N,C,H,W], W [M,C,KH,KW]
// and the op's kernel/stride/pad/order arguments.
func convParams(op *netdef.OperatorDef, x, w *tensor.Tensor) (cpu.ConvParams, error) {
	if order := op.ArgString("order", "NCHW"); order != "NCHW" {
		return cpu.ConvParams{}, fmt.Errorf("%w: %s: order %q not supported", ErrArgument, op.Type, order)
	}
	xs, ws := x.Shape(), w.Shape()
	if len(xs) != 4 || len(ws) != 4 {
		return cpu.ConvParams{}, fmt.Errorf("%w: %s: X %v and W %v must be 4D", ErrShape, op.Type, []int(xs), []int(ws))
	}
	if xs[1] != ws[1] {
		return cpu.ConvParams{}, fmt.Errorf("%w: %s: input channels %d != filter channels %d", ErrShape, op.Type, xs[1], ws[1])
	}
	if k := op.ArgInt("kernel", 0); k != 0 && (int(k) != ws[2] || int(k) != ws[3]) {
		return cpu.ConvParams{}, fmt.Errorf("%w: %s: kernel %d does not match filter %dx%d", ErrShape, op.Type, k, ws[2], ws[3])
	}
	p := cpu.ConvParams{
		N: xs[0], C: xs[1], H: xs[2], W: xs[3],
		M: ws[0], KH: ws[2], KW: ws[3],
		Stride: int(op.ArgInt("stride", 1)),
		Pad:    int(op.ArgInt("pad", 0)),
	}
	if err := p.Validate(); err != nil {
		return cpu.ConvParams{}, fmt.Errorf("%w: %w", ErrShape, err)
	}
	return p, nil
}

// checkBias requires b to be a float vector of length m.
func checkBias(op *netdef.OperatorDef, b *tensor.Tensor, m int) error {
	if len(b.Shape()) != 1 || b.Shape()[0] != m {
		return fmt.Errorf("%w: %s: bias %v, want [%d]", ErrShape, op.Type, []int(b.Shape()), m)
	}
	return nil
}

// floatInputs fetches the first n inputs as float32 tensors.
func floatInputs(ctx *Context, op *netdef.OperatorDef, n int) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, n)
	for i := range out {
		t, err := ctx.FloatInput(op, i)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// handleConv computes Y = conv(X, W) + b.
func handleConv(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 3)
	if err != nil {
		return err
	}
	x, w, b := in[0], in[1], in[2]
	p, err := convParams(op, x, w)
	if err != nil {
		return err
	}
	if err := checkBias(op, b, p.M); err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{p.N, p.M, p.OutH(), p.OutW()}, tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.Conv2D(x.Float32(), w.Float32(), b.Float32(), y.Float32(), p)
	return nil
}

func poolParams(op *netdef.OperatorDef, x *tensor.Tensor) (cpu.PoolParams, error) {
	xs := x.Shape()
	if len(xs) != 4 {
		return cpu.PoolParams{}, fmt.Errorf("%w: %s: X %v must be 4D", ErrShape, op.Type, []int(xs))
	}
	p := cpu.PoolParams{
		N: xs[0], C: xs[1], H: xs[2], W: xs[3],
		Kernel: int(op.ArgInt("kernel", 0)),
		Stride: int(op.ArgInt("stride", 1)),
	}
	if err := p.Validate(); err != nil {
		return cpu.PoolParams{}, fmt.Errorf("%w: %w", ErrShape, err)
	}
	return p, nil
}

// handleMaxPool computes windowed maxima over each channel.
func handleMaxPool(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	p, err := poolParams(op, x)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{p.N, p.C, p.OutH(), p.OutW()}, tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.MaxPool2D(x.Float32(), y.Float32(), p)
	return nil
}

// fcParams flattens X to [N, K] at axis 1 and checks W [M, K].
func fcParams(op *netdef.OperatorDef, x, w *tensor.Tensor) (cpu.FCParams, error) {
	xs, ws := x.Shape(), w.Shape()
	if len(xs) < 2 || len(ws) != 2 {
		return cpu.FCParams{}, fmt.Errorf("%w: %s: X %v must be at least 2D and W %v 2D", ErrShape, op.Type, []int(xs), []int(ws))
	}
	p := cpu.FCParams{N: xs.SizeTo(1), K: xs.SizeFrom(1), M: ws[0]}
	if ws[1] != p.K {
		return cpu.FCParams{}, fmt.Errorf("%w: %s: input width %d != weight width %d", ErrShape, op.Type, p.K, ws[1])
	}
	return p, nil
}

// handleFC computes Y = X W^T + b with X flattened after the batch axis.
func handleFC(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 3, 3, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, 3)
	if err != nil {
		return err
	}
	x, w, b := in[0], in[1], in[2]
	p, err := fcParams(op, x, w)
	if err != nil {
		return err
	}
	if err := checkBias(op, b, p.M); err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, tensor.Shape{p.N, p.M}, tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.FC(x.Float32(), w.Float32(), b.Float32(), y.Float32(), p)
	return nil
}

func handleRelu(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.Relu(x.Float32(), y.Float32())
	return nil
}

// softmaxDims splits a shape into rows and columns at the axis argument (default 1).
func softmaxDims(op *netdef.OperatorDef, s tensor.Shape) (rows, cols int, err error) {
	axis := int(op.ArgInt("axis", 1))
	if axis < 0 || axis > len(s) {
		return 0, 0, fmt.Errorf("%w: %s: axis %d for shape %v", ErrArgument, op.Type, axis, []int(s))
	}
	return s.SizeTo(axis), s.SizeFrom(axis), nil
}

func handleSoftmax(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	rows, cols, err := softmaxDims(op, x.Shape())
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	ctx.Backend.Softmax(x.Float32(), y.Float32(), rows, cols)
	return nil
}
