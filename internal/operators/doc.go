// Package operators implements the operator set that nets are built from.
//
// Each operator type maps to a handler that reads its input blobs from the
// execution context, validates shapes and arguments, runs a CPU kernel and
// writes its output blobs. Outputs reuse the tensor already stored under the
// output name when its dtype matches, so parameters and activations keep
// their identity across runs and in-place operators (same input and output
// name) update the stored tensor directly.
//
// Supported operator groups:
//   - Data: CreateDB, TensorProtosDBInput, Cast, Scale, StopGradient, Print
//   - Fillers: ConstantFill, GivenTensorFill, GivenTensorIntFill,
//     GivenTensorInt64Fill, XavierFill
//   - Layers: Conv, MaxPool, FC, Relu, Softmax
//   - Loss and metrics: LabelCrossEntropy, AveragedLoss, Accuracy
//   - Training: Iter, LearningRate, WeightedSum, Sum, MomentumSGDUpdate
//   - Gradients: <Type>Gradient for every differentiable layer and loss
package operators
