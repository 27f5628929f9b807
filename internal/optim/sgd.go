package optim

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
)

// Blob names used by the update operators.
const (
	IterBlob = "optimizer_iteration"
	LRBlob   = "SgdOptimizer_lr"
	OneBlob  = "ONE"
)

// Caffe2 TensorProto data type codes used in filler arguments.
const (
	dtypeFloat = 1
	dtypeInt64 = 10
)

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	BaseLR   float32 // Learning rate magnitude at iteration 0 (default: 0.01)
	Policy   Policy  // Learning-rate policy (default: step)
	Gamma    float32 // Decay factor
	StepSize int64   // Iterations per decay step for the step policy
	Power    float32 // Exponent for the inv policy
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// Schedule returns the learning-rate schedule the config describes.
// Without momentum, the rate is negated so WeightedSum can add it to the
// parameter directly.
func (c SGDConfig) Schedule() Schedule {
	base := c.BaseLR
	if c.Momentum == 0 {
		base = -base
	}
	return Schedule{Policy: c.Policy, Base: base, Gamma: c.Gamma, StepSize: c.StepSize, Power: c.Power}
}

// Validate checks the config.
func (c SGDConfig) Validate() error {
	if c.BaseLR <= 0 {
		return fmt.Errorf("sgd: base learning rate must be positive, got %g", c.BaseLR)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("sgd: momentum must be in [0, 1), got %g", c.Momentum)
	}
	return c.Schedule().Validate()
}

// BuildSGD appends parameter updates to net and their state to initNet.
//
// Per step the net increments the iteration counter, computes the learning
// rate and then applies, for every parameter p with gradient g:
//
//	p = 1*p + lr*g               (WeightedSum, lr < 0)
//	m = momentum*m + lr*g; p -= m (MomentumSGDUpdate, when Momentum > 0)
//
// grads maps parameter names to gradient blob names; every parameter must
// have one.
func BuildSGD(net, initNet *netdef.NetDef, params []string, grads map[string]string, cfg SGDConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, p := range params {
		if _, ok := grads[p]; !ok {
			return fmt.Errorf("sgd: parameter %q has no gradient", p)
		}
	}

	initNet.AddOp(netdef.OperatorDef{
		Type:   "ConstantFill",
		Output: []string{IterBlob},
		Arg: []netdef.Argument{
			netdef.IntsArg("shape", []int64{1}),
			netdef.IntArg("value", 0),
			netdef.IntArg("dtype", dtypeInt64),
		},
	})
	net.AddOp(netdef.OperatorDef{Type: "Iter", Input: []string{IterBlob}, Output: []string{IterBlob}})

	s := cfg.Schedule()
	lrArgs := []netdef.Argument{
		netdef.StringArg("policy", string(s.Policy)),
		netdef.FloatArg("base_lr", s.Base),
		netdef.FloatArg("gamma", s.Gamma),
	}
	if s.Policy == PolicyStep {
		lrArgs = append(lrArgs, netdef.IntArg("stepsize", s.StepSize))
	}
	if s.Policy == PolicyInv {
		lrArgs = append(lrArgs, netdef.FloatArg("power", s.Power))
	}
	net.AddOp(netdef.OperatorDef{
		Type:   "LearningRate",
		Input:  []string{IterBlob},
		Output: []string{LRBlob},
		Arg:    lrArgs,
	})

	if cfg.Momentum > 0 {
		for _, p := range params {
			m := p + "_momentum"
			initNet.AddOp(netdef.OperatorDef{
				Type:   "ConstantFill",
				Input:  []string{p},
				Output: []string{m},
				Arg:    []netdef.Argument{netdef.FloatArg("value", 0)},
			})
			net.AddOp(netdef.OperatorDef{
				Type:   "MomentumSGDUpdate",
				Input:  []string{grads[p], m, LRBlob, p},
				Output: []string{grads[p], m, p},
				Arg:    []netdef.Argument{netdef.FloatArg("momentum", cfg.Momentum)},
			})
		}
		return nil
	}

	initNet.AddOp(netdef.OperatorDef{
		Type:   "ConstantFill",
		Output: []string{OneBlob},
		Arg: []netdef.Argument{
			netdef.IntsArg("shape", []int64{1}),
			netdef.FloatArg("value", 1),
			netdef.IntArg("dtype", dtypeFloat),
		},
	})
	for _, p := range params {
		net.AddOp(netdef.OperatorDef{
			Type:   "WeightedSum",
			Input:  []string{p, OneBlob, grads[p], LRBlob},
			Output: []string{p},
		})
	}
	return nil
}
