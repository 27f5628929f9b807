// Package predictor exports trained nets as a pair of serialized artifacts
// and loads them back for inference.
//
// The init net recreates every parameter from literal values plus a
// placeholder for each input. The predict net is the forward net, pruned to
// the operators its outputs depend on.
package predictor

import (
	"fmt"
	"slices"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
	"github.com/born-ml/lenet/internal/workspace"
)

// RunIDArg is the net argument that identifies the run that exported a net.
const RunIDArg = "run_id"

// Export builds the init and predict nets for a forward-only net whose
// parameters hold trained values in ws.
//
// Inputs are blobs the net reads before writing that are not parameters;
// they come first in the predict net's external inputs, followed by the
// parameters. Outputs are the net's external outputs, or, if it declares
// none, the blobs it writes and never reads.
func Export(ws *workspace.Workspace, net *netdef.NetDef, params []string) (initNet, predictNet *netdef.NetDef, err error) {
	isParam := make(map[string]bool, len(params))
	for _, p := range params {
		isParam[p] = true
	}

	outputs := net.ExternalOutput
	if len(outputs) == 0 {
		outputs = terminalBlobs(net)
	}
	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("export %q: %w", net.Name, ErrNoOutput)
	}

	predictNet = &netdef.NetDef{
		Name:         net.Name,
		Type:         net.Type,
		DeviceOption: net.DeviceOption.Clone(),
		Op:           prune(net.Op, outputs),
	}
	inputs := firstReads(predictNet.Op, isParam)

	initNet = &netdef.NetDef{Name: net.Name + "_init"}
	for _, p := range params {
		t, err := ws.FetchBlob(p)
		if err != nil {
			return nil, nil, fmt.Errorf("export %q: %w", net.Name, err)
		}
		if t.DType() != tensor.Float {
			return nil, nil, fmt.Errorf("export %q: %q is %s: %w", net.Name, p, t, ErrNotFloat)
		}
		initNet.AddOp(netdef.OperatorDef{
			Type:   "GivenTensorFill",
			Output: []string{p},
			Arg: []netdef.Argument{
				netdef.IntsArg("shape", t.Shape().Int64()),
				netdef.FloatsArg("values", t.Float32()),
			},
		})
	}
	for _, in := range inputs {
		initNet.AddOp(netdef.OperatorDef{
			Type:   "GivenTensorFill",
			Output: []string{in},
			Arg: []netdef.Argument{
				netdef.IntsArg("shape", []int64{1, 1}),
				netdef.FloatsArg("values", []float32{0}),
			},
		})
	}

	predictNet.AddExternalInput(inputs...)
	predictNet.AddExternalInput(params...)
	predictNet.AddExternalOutput(outputs...)
	return initNet, predictNet, nil
}

// Stamp records runID as an argument of both nets.
func Stamp(runID string, nets ...*netdef.NetDef) {
	for _, n := range nets {
		n.Arg = slices.DeleteFunc(n.Arg, func(a netdef.Argument) bool { return a.Name == RunIDArg })
		n.Arg = append(n.Arg, netdef.StringArg(RunIDArg, runID))
	}
}

// prune keeps the operators that outputs depend on, in their original order.
func prune(ops []netdef.OperatorDef, outputs []string) []netdef.OperatorDef {
	live := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		live[o] = true
	}
	keep := make([]bool, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := &ops[i]
		for _, out := range op.Output {
			if live[out] {
				keep[i] = true
				break
			}
		}
		if !keep[i] {
			continue
		}
		// An in-place output stays live through its input.
		for _, out := range op.Output {
			if !slices.Contains(op.Input, out) {
				delete(live, out)
			}
		}
		for _, in := range op.Input {
			live[in] = true
		}
	}

	var kept []netdef.OperatorDef
	for i := range ops {
		if keep[i] {
			kept = append(kept, ops[i].Clone())
		}
	}
	return kept
}

// firstReads returns non-parameter blobs that are read before any operator
// writes them, in first-use order.
func firstReads(ops []netdef.OperatorDef, isParam map[string]bool) []string {
	written := make(map[string]bool)
	seen := make(map[string]bool)
	var inputs []string
	for _, op := range ops {
		for _, in := range op.Input {
			if !written[in] && !isParam[in] && !seen[in] {
				seen[in] = true
				inputs = append(inputs, in)
			}
		}
		for _, out := range op.Output {
			written[out] = true
		}
	}
	return inputs
}

// terminalBlobs returns blobs that are written and never read afterwards
// as the input of a different blob.
func terminalBlobs(net *netdef.NetDef) []string {
	read := make(map[string]bool)
	for _, op := range net.Op {
		for _, in := range op.Input {
			if !slices.Contains(op.Output, in) {
				read[in] = true
			}
		}
	}
	seen := make(map[string]bool)
	var outs []string
	for _, op := range net.Op {
		for _, out := range op.Output {
			if !read[out] && !seen[out] {
				seen[out] = true
				outs = append(outs, out)
			}
		}
	}
	return outs
}
