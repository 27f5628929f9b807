// Package gradient appends backward operators to a forward net.
//
// Gradients are tracked by blob name: the gradient of blob x is named
// x_grad, and the seed gradient of a loss l is l_autogen_grad. Operators
// are visited in reverse order; each differentiable operator contributes
// the operators its Maker returns. When a blob feeds more than one
// operator, the partial gradients are accumulated with a Sum operator.
package gradient

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/lenet/internal/netdef"
)

// ErrNoGradient is returned when gradient must flow through an operator
// type that has no Maker.
var ErrNoGradient = errors.New("operator has no gradient")

// Maker builds the gradient operators for one forward operator.
//
// gradOut holds the gradient blob of each output ("" when the output has
// none); needIn marks the inputs whose gradient is wanted. It returns the
// operators to append and the gradient blob of each input ("" for none).
type Maker func(op *netdef.OperatorDef, gradOut []string, needIn []bool) ([]netdef.OperatorDef, []string)

// stopOps block gradient flow.
var stopOps = map[string]bool{"StopGradient": true}

// makers maps forward operator types to gradient builders.
var makers = map[string]Maker{}

// Register installs a Maker for an operator type.
func Register(opType string, m Maker) {
	makers[opType] = m
}

// GradName returns the gradient blob name for a blob.
func GradName(blob string) string { return blob + "_grad" }

// SeedName returns the seed gradient blob name for a loss.
func SeedName(loss string) string { return loss + "_autogen_grad" }

// AddGradientOperators appends gradient operators for the given losses to
// net and returns the map from blob name to gradient blob name for every
// blob that received a gradient.
//
// Blobs that no operator in net produces (parameters and other external
// inputs) are the roots that require gradients. Outputs of StopGradient
// and of operators without a Maker do not.
func AddGradientOperators(net *netdef.NetDef, losses ...string) (map[string]string, error) {
	if len(losses) == 0 {
		return nil, errors.New("gradient: no loss blobs given")
	}
	forward := len(net.Op)
	requires := requiresGrad(net.Op[:forward])

	// grads tracks the live gradient of each blob while walking backwards;
	// result keeps every assignment.
	grads := make(map[string]string)
	result := make(map[string]string)
	for _, loss := range losses {
		if !producedBy(net.Op[:forward], loss) {
			return nil, fmt.Errorf("gradient: loss %q is not produced by net %q", loss, net.Name)
		}
		seed := SeedName(loss)
		net.AddOp(netdef.OperatorDef{
			Type:   "ConstantFill",
			Input:  []string{loss},
			Output: []string{seed},
			Arg:    []netdef.Argument{netdef.FloatArg("value", 1)},
		})
		grads[loss] = seed
		result[loss] = seed
	}

	split := 0
	for i := forward - 1; i >= 0; i-- {
		op := net.Op[i].Clone()

		gradOut := make([]string, len(op.Output))
		has := false
		for j, out := range op.Output {
			if g, ok := grads[out]; ok {
				gradOut[j] = g
				has = true
			}
		}
		if !has {
			continue
		}
		needIn := make([]bool, len(op.Input))
		anyNeed := false
		for j, in := range op.Input {
			needIn[j] = requires[in]
			anyNeed = anyNeed || needIn[j]
		}
		if !anyNeed || stopOps[op.Type] {
			continue
		}
		maker, ok := makers[op.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s (op %d of net %q)", ErrNoGradient, op.Type, i, net.Name)
		}

		ops, gradIn := maker(&op, gradOut, needIn)

		// Outputs are dead above this operator; in-place inputs get a fresh entry.
		for _, out := range op.Output {
			delete(grads, out)
		}
		var sums []netdef.OperatorDef
		for j, in := range op.Input {
			g := gradIn[j]
			if g == "" || !needIn[j] {
				continue
			}
			prev, ok := grads[in]
			if !ok {
				grads[in] = g
				result[in] = g
				continue
			}
			// Another consumer already produced a gradient for this blob.
			tmp := fmt.Sprintf("%s_autosplit_%d", g, split)
			if renameOutput(ops, g, tmp) {
				split++
			} else {
				tmp = g
			}
			sums = append(sums, netdef.OperatorDef{
				Type:         "Sum",
				Input:        []string{prev, tmp},
				Output:       []string{prev},
				IsGradientOp: true,
			})
		}
		for k := range ops {
			ops[k].IsGradientOp = true
			net.AddOp(ops[k])
		}
		for k := range sums {
			net.AddOp(sums[k])
		}
	}
	return result, nil
}

// requiresGrad marks blobs that depend on an externally supplied blob
// through differentiable operators.
func requiresGrad(ops []netdef.OperatorDef) map[string]bool {
	produced := make(map[string]bool)
	for _, op := range ops {
		for _, out := range op.Output {
			produced[out] = true
		}
	}
	requires := make(map[string]bool)
	for _, op := range ops {
		for _, in := range op.Input {
			if !produced[in] {
				requires[in] = true
			}
		}
	}
	for _, op := range ops {
		_, differentiable := makers[op.Type]
		flows := false
		if differentiable && !stopOps[op.Type] {
			flows = slices.ContainsFunc(op.Input, func(in string) bool { return requires[in] })
		}
		for _, out := range op.Output {
			requires[out] = flows
		}
	}
	return requires
}

func producedBy(ops []netdef.OperatorDef, blob string) bool {
	for _, op := range ops {
		if slices.Contains(op.Output, blob) {
			return true
		}
	}
	return false
}

// renameOutput renames an output blob and reports whether any operator wrote it.
func renameOutput(ops []netdef.OperatorDef, from, to string) bool {
	found := false
	for i := range ops {
		for j, out := range ops[i].Output {
			if out == from {
				ops[i].Output[j] = to
				found = true
			}
		}
	}
	return found
}
