package gradient

import (
	"github.com/born-ml/lenet/internal/netdef"
)

func init() {
	Register("Conv", paramLayerGrad("ConvGradient"))
	Register("FC", paramLayerGrad("FCGradient"))
	Register("MaxPool", maxPoolGrad)
	Register("Relu", outputBasedGrad("ReluGradient"))
	Register("Softmax", outputBasedGrad("SoftmaxGradient"))
	Register("LabelCrossEntropy", labelCrossEntropyGrad)
	Register("AveragedLoss", averagedLossGrad)
	Register("Scale", scaleGrad)
	Register("Sum", sumGrad)
}

// paramLayerGrad handles layers with inputs X, W, b:
// <Type>Gradient(X, W, dY) -> (dW, db[, dX]).
func paramLayerGrad(gradType string) Maker {
	return func(op *netdef.OperatorDef, gradOut []string, needIn []bool) ([]netdef.OperatorDef, []string) {
		x, w, b := op.Input[0], op.Input[1], op.Input[2]
		gIn := []string{"", GradName(w), GradName(b)}
		outs := []string{gIn[1], gIn[2]}
		if needIn[0] {
			gIn[0] = GradName(x)
			outs = append(outs, gIn[0])
		}
		return []netdef.OperatorDef{{
			Type:   gradType,
			Input:  []string{x, w, gradOut[0]},
			Output: outs,
			Arg:    op.Clone().Arg,
		}}, gIn
	}
}

// maxPoolGrad: MaxPoolGradient(X, Y, dY) -> dX.
func maxPoolGrad(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
	dx := GradName(op.Input[0])
	return []netdef.OperatorDef{{
		Type:   "MaxPoolGradient",
		Input:  []string{op.Input[0], op.Output[0], gradOut[0]},
		Output: []string{dx},
		Arg:    op.Clone().Arg,
	}}, []string{dx}
}

// outputBasedGrad handles activations whose gradient needs only Y:
// <Type>Gradient(Y, dY) -> dX.
func outputBasedGrad(gradType string) Maker {
	return func(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
		dx := GradName(op.Input[0])
		return []netdef.OperatorDef{{
			Type:   gradType,
			Input:  []string{op.Output[0], gradOut[0]},
			Output: []string{dx},
			Arg:    op.Clone().Arg,
		}}, []string{dx}
	}
}

// labelCrossEntropyGrad: LabelCrossEntropyGradient(X, label, dY) -> dX.
func labelCrossEntropyGrad(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
	dx := GradName(op.Input[0])
	return []netdef.OperatorDef{{
		Type:   "LabelCrossEntropyGradient",
		Input:  []string{op.Input[0], op.Input[1], gradOut[0]},
		Output: []string{dx},
	}}, []string{dx, ""}
}

// averagedLossGrad: AveragedLossGradient(X, dY) -> dX.
func averagedLossGrad(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
	dx := GradName(op.Input[0])
	return []netdef.OperatorDef{{
		Type:   "AveragedLossGradient",
		Input:  []string{op.Input[0], gradOut[0]},
		Output: []string{dx},
	}}, []string{dx}
}

// scaleGrad: Scale(dY, scale) -> dX.
func scaleGrad(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
	dx := GradName(op.Input[0])
	return []netdef.OperatorDef{{
		Type:   "Scale",
		Input:  []string{gradOut[0]},
		Output: []string{dx},
		Arg:    op.Clone().Arg,
	}}, []string{dx}
}

// sumGrad passes the output gradient to every input unchanged.
func sumGrad(op *netdef.OperatorDef, gradOut []string, _ []bool) ([]netdef.OperatorDef, []string) {
	gIn := make([]string, len(op.Input))
	for i := range gIn {
		gIn[i] = gradOut[0]
	}
	return nil, gIn
}
