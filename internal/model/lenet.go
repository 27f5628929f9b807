package model

import (
	"fmt"
	"path/filepath"

	"github.com/born-ml/lenet/internal/gradient"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/optim"
	"github.com/born-ml/lenet/internal/tensor"
)

// Image geometry of the MNIST input.
const (
	ImageChannels = 1
	ImageSize     = 28
	NumClasses    = 10
)

// AddInput reads batches from a record store. The init net opens the store
// and the main net reads, casts and scales one batch per run. It returns the
// data and label blob names.
//
//	dbreader_<base> -> data_uint8, label -> data (float32 in [0,1))
func AddInput(h *Helper, batchSize int, dbPath, dbType string) (data, label string) {
	if batchSize <= 0 {
		h.fail(fmt.Errorf("%s: batch size %d must be positive", h.Name, batchSize))
	}
	reader := "dbreader_" + filepath.Base(dbPath)
	h.InitNet.AddOp(netdef.OperatorDef{
		Type:   "CreateDB",
		Output: []string{reader},
		Arg:    []netdef.Argument{netdef.StringArg("db", dbPath), netdef.StringArg("db_type", dbType)},
	})
	h.Net.AddExternalInput(reader)

	h.AddOp(netdef.OperatorDef{
		Type:   "TensorProtosDBInput",
		Input:  []string{reader},
		Output: []string{"data_uint8", "label"},
		Arg:    []netdef.Argument{netdef.IntArg("batch_size", int64(batchSize))},
	})
	h.AddOp(netdef.OperatorDef{
		Type:   "Cast",
		Input:  []string{"data_uint8"},
		Output: []string{"data"},
		Arg:    []netdef.Argument{netdef.IntArg("to", int64(tensor.Float))},
	})
	h.AddOp(netdef.OperatorDef{
		Type:   "Scale",
		Input:  []string{"data"},
		Output: []string{"data"},
		Arg:    []netdef.Argument{netdef.FloatArg("scale", 1.0/256)},
	})
	h.AddOp(netdef.OperatorDef{Type: "StopGradient", Input: []string{"data"}, Output: []string{"data"}})
	return "data", "label"
}

// AddLeNet adds the LeNet topology on top of data and returns the softmax
// blob name.
//
//	28x28 -conv5-> 24x24 -pool2-> 12x12 -conv5-> 8x8 -pool2-> 4x4
//	fc 800->500, relu, fc 500->10, softmax
func AddLeNet(h *Helper, data string) string {
	conv1 := h.Conv(data, "conv1", ImageChannels, 20, 5)
	pool1 := h.MaxPool(conv1, "pool1", 2, 2)
	conv2 := h.Conv(pool1, "conv2", 20, 50, 5)
	pool2 := h.MaxPool(conv2, "pool2", 2, 2)
	fc3 := h.FC(pool2, "fc3", 50*4*4, 500)
	fc3 = h.Relu(fc3, fc3)
	pred := h.FC(fc3, "pred", 500, NumClasses)
	return h.Softmax(pred, "softmax")
}

// AddTrainingOperators adds the loss, accuracy, gradient and SGD update
// operators. It returns the loss blob name.
func AddTrainingOperators(h *Helper, softmax, label string, sgd optim.SGDConfig) (string, error) {
	if err := h.Err(); err != nil {
		return "", err
	}
	h.AddOp(netdef.OperatorDef{Type: "LabelCrossEntropy", Input: []string{softmax, label}, Output: []string{"xent"}})
	h.AddOp(netdef.OperatorDef{Type: "AveragedLoss", Input: []string{"xent"}, Output: []string{"loss"}})
	h.Accuracy(softmax, label, "accuracy")

	grads, err := gradient.AddGradientOperators(h.Net, "loss")
	if err != nil {
		return "", fmt.Errorf("%s: %w", h.Name, err)
	}
	if err := optim.BuildSGD(h.Net, h.InitNet, h.params.Names(), grads, sgd); err != nil {
		return "", fmt.Errorf("%s: %w", h.Name, err)
	}
	return "loss", nil
}
