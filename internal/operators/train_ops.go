package operators

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/optim"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerTrainOps adds iteration, schedule and update operators to the registry.
func (r *Registry) registerTrainOps() {
	r.Register("Iter", handleIter)
	r.Register("LearningRate", handleLearningRate)
	r.Register("WeightedSum", handleWeightedSum)
	r.Register("Sum", handleSum)
	r.Register("MomentumSGDUpdate", handleMomentumSGDUpdate)
}

// handleIter increments an int64 counter in place, creating it at zero when
// the blob does not exist yet.
func handleIter(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 0, 1, 1, 1); err != nil {
		return err
	}
	if len(op.Input) == 1 && op.Input[0] != op.Output[0] {
		return fmt.Errorf("%w: Iter must update its counter in place", ErrArgument)
	}
	it, err := ctx.Output(op, 0, tensor.Shape{1}, tensor.Int64)
	if err != nil {
		return err
	}
	it.Int64()[0]++
	return nil
}

// iterValue reads a one-element int64 counter.
func iterValue(ctx *Context, op *netdef.OperatorDef, i int) (int64, error) {
	t, err := ctx.Input(op, i)
	if err != nil {
		return 0, err
	}
	if t.DType() != tensor.Int64 || t.NumElements() != 1 {
		return 0, fmt.Errorf("%w: %s: counter %q is %s, want int64[1]", ErrShape, op.Type, op.Input[i], t)
	}
	return t.Int64()[0], nil
}

// handleLearningRate writes base_lr scaled by the policy multiplier for the
// current iteration.
// Args: policy, base_lr, gamma, stepsize, power.
func handleLearningRate(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	iter, err := iterValue(ctx, op, 0)
	if err != nil {
		return err
	}
	s := optim.Schedule{
		Policy:   optim.Policy(op.ArgString("policy", string(optim.PolicyFixed))),
		Base:     op.ArgFloat("base_lr", 0),
		Gamma:    op.ArgFloat("gamma", 0),
		StepSize: op.ArgInt("stepsize", 0),
		Power:    op.ArgFloat("power", 0),
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrArgument, err)
	}
	lr, err := ctx.Output(op, 0, tensor.Shape{1}, tensor.Float)
	if err != nil {
		return err
	}
	lr.Float32()[0] = s.Rate(iter)
	return nil
}

// scalarValue reads a one-element float tensor.
func scalarValue(ctx *Context, op *netdef.OperatorDef, i int) (float32, error) {
	t, err := ctx.FloatInput(op, i)
	if err != nil {
		return 0, err
	}
	if t.NumElements() != 1 {
		return 0, fmt.Errorf("%w: %s: %q must have one element, has %v", ErrShape, op.Type, op.Input[i], []int(t.Shape()))
	}
	return t.Float32()[0], nil
}

// handleWeightedSum computes Y = sum_i w_i * X_i from inputs [X0, w0, X1, w1, ...].
// Y may be X0.
func handleWeightedSum(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 2, -1, 1, 1); err != nil {
		return err
	}
	if len(op.Input)%2 != 0 {
		return fmt.Errorf("%w: WeightedSum takes (X, weight) pairs, got %d inputs", ErrArity, len(op.Input))
	}
	pairs := len(op.Input) / 2
	xs := make([][]float32, pairs)
	ws := make([]float32, pairs)
	var shape tensor.Shape
	for i := 0; i < pairs; i++ {
		x, err := ctx.FloatInput(op, 2*i)
		if err != nil {
			return err
		}
		if i == 0 {
			shape = x.Shape().Clone()
		} else if !x.Shape().Equal(shape) {
			return fmt.Errorf("%w: WeightedSum: %q is %v, want %v", ErrShape, op.Input[2*i], []int(x.Shape()), []int(shape))
		}
		xs[i] = x.Float32()
		if ws[i], err = scalarValue(ctx, op, 2*i+1); err != nil {
			return err
		}
	}

	y, err := ctx.Output(op, 0, shape, tensor.Float)
	if err != nil {
		return err
	}
	out := y.Float32()
	for j := range out {
		var acc float32
		for i, x := range xs {
			acc += ws[i] * x[j]
		}
		out[j] = acc
	}
	return nil
}

// handleSum adds inputs of equal shape element-wise.
func handleSum(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, -1, 1, 1); err != nil {
		return err
	}
	in, err := floatInputs(ctx, op, len(op.Input))
	if err != nil {
		return err
	}
	shape := in[0].Shape().Clone()
	xs := make([][]float32, len(in))
	for i, x := range in {
		if !x.Shape().Equal(shape) {
			return fmt.Errorf("%w: Sum: %q is %v, want %v", ErrShape, op.Input[i], []int(x.Shape()), []int(shape))
		}
		xs[i] = x.Float32()
	}
	y, err := ctx.Output(op, 0, shape, tensor.Float)
	if err != nil {
		return err
	}
	out := y.Float32()
	for j := range out {
		var acc float32
		for _, x := range xs {
			acc += x[j]
		}
		out[j] = acc
	}
	return nil
}

// handleMomentumSGDUpdate applies
//
//	adjusted = lr*grad + momentum*moment
//	moment = adjusted; param -= adjusted; grad = adjusted
//
// Inputs: grad, moment, lr, param. Outputs: grad, moment, param (in place).
func handleMomentumSGDUpdate(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 4, 4, 3, 3); err != nil {
		return err
	}
	for i, j := range []int{0, 1, 3} {
		if op.Input[j] != op.Output[i] {
			return fmt.Errorf("%w: MomentumSGDUpdate must update %q in place", ErrArgument, op.Input[j])
		}
	}
	grad, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	moment, err := ctx.FloatInput(op, 1)
	if err != nil {
		return err
	}
	param, err := ctx.FloatInput(op, 3)
	if err != nil {
		return err
	}
	lr, err := scalarValue(ctx, op, 2)
	if err != nil {
		return err
	}
	if !grad.Shape().Equal(param.Shape()) || !moment.Shape().Equal(param.Shape()) {
		return fmt.Errorf("%w: MomentumSGDUpdate: grad %v, moment %v, param %v",
			ErrShape, []int(grad.Shape()), []int(moment.Shape()), []int(param.Shape()))
	}
	mu := op.ArgFloat("momentum", 0)
	g, m, p := grad.Float32(), moment.Float32(), param.Float32()
	for i := range p {
		adj := lr*g[i] + mu*m[i]
		m[i] = adj
		p[i] -= adj
		g[i] = adj
	}
	return nil
}
