// Package optim builds the parameter-update part of a training net.
//
// Updates are expressed as operators, not Go calls: BuildSGD appends an
// iteration counter, a LearningRate operator and one update operator per
// parameter, so the whole training step lives in a single net.
//
// Example usage:
//
//	grads, _ := gradient.AddGradientOperators(net, "loss")
//	err := optim.BuildSGD(net, initNet, params, grads, optim.SGDConfig{
//	    BaseLR:   0.01,
//	    Policy:   optim.PolicyStep,
//	    StepSize: 1,
//	    Gamma:    0.999,
//	})
package optim

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownPolicy is returned for learning-rate policies this package does not implement.
var ErrUnknownPolicy = errors.New("unknown learning rate policy")

// Policy selects how the learning rate changes with the iteration count.
type Policy string

// Learning-rate policies.
const (
	PolicyFixed Policy = "fixed" // base
	PolicyStep  Policy = "step"  // base * gamma^floor(iter/stepsize)
	PolicyExp   Policy = "exp"   // base * gamma^iter
	PolicyInv   Policy = "inv"   // base * (1 + gamma*iter)^-power
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyFixed, PolicyStep, PolicyExp, PolicyInv:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Schedule computes the learning rate for an iteration.
type Schedule struct {
	Policy   Policy
	Base     float32 // Rate at iteration 0; negative for descent through WeightedSum
	Gamma    float32
	StepSize int64
	Power    float32
}

// Validate checks the fields the policy uses.
func (s Schedule) Validate() error {
	switch s.Policy {
	case PolicyFixed:
	case PolicyStep:
		if s.StepSize <= 0 {
			return fmt.Errorf("step policy needs stepsize > 0, got %d", s.StepSize)
		}
	case PolicyExp:
	case PolicyInv:
		if s.Power <= 0 {
			return fmt.Errorf("inv policy needs power > 0, got %g", s.Power)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, s.Policy)
	}
	return nil
}

// Multiplier returns the factor applied to Base at iteration iter.
func (s Schedule) Multiplier(iter int64) float64 {
	g := float64(s.Gamma)
	switch s.Policy {
	case PolicyStep:
		return math.Pow(g, float64(iter/s.StepSize))
	case PolicyExp:
		return math.Pow(g, float64(iter))
	case PolicyInv:
		return math.Pow(1+g*float64(iter), -float64(s.Power))
	default:
		return 1
	}
}

// Rate returns Base * Multiplier(iter).
func (s Schedule) Rate(iter int64) float32 {
	return float32(float64(s.Base) * s.Multiplier(iter))
}

// LearningRateAt returns the learning rate for iteration counter value iter.
// The counter is incremented before the rate is computed, so the k-th
// training step (1-based) runs with iter = k.
func LearningRateAt(policy Policy, base, gamma float32, stepSize, iter int64) float32 {
	return Schedule{Policy: policy, Base: base, Gamma: gamma, StepSize: stepSize}.Rate(iter)
}
