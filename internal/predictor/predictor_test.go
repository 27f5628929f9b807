package predictor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lenet/internal/model"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
	"github.com/born-ml/lenet/internal/workspace"
)

func testOptions() workspace.Options {
	cfg := parallel.Sequential()
	return workspace.Options{Seed: 11, Parallel: &cfg}
}

func testInput(t *testing.T, n int) *tensor.Tensor {
	t.Helper()
	data := make([]float32, n*28*28)
	for i := range data {
		data[i] = float32((i*7)%256) / 256
	}
	x, err := tensor.FromFloat32(data, tensor.Shape{n, 1, 28, 28})
	require.NoError(t, err)
	return x
}

// trainedDeploy initializes LeNet parameters in a workspace and returns the
// deploy helper built on top of them.
func trainedDeploy(t *testing.T) (*workspace.Workspace, *model.Helper) {
	t.Helper()
	ws := workspace.New(testOptions())
	t.Cleanup(func() { _ = ws.Close() })

	train := model.New(model.Options{Name: "mnist_train", InitParams: true, ArgScope: model.DefaultArgScope()})
	model.AddLeNet(train, "data")
	require.NoError(t, train.Err())
	require.NoError(t, ws.RunNetOnce(train.InitNet))

	deploy := model.New(model.Options{Name: "mnist_deploy", Params: train.Params(), ArgScope: model.DefaultArgScope()})
	model.AddLeNet(deploy, "data")
	require.NoError(t, deploy.Err())
	return ws, deploy
}

func TestExportShape(t *testing.T) {
	ws, deploy := trainedDeploy(t)
	params := deploy.Params().Names()

	initNet, predictNet, err := Export(ws, deploy.Net, params)
	require.NoError(t, err)

	require.Len(t, initNet.Op, len(params)+1)
	for i, p := range params {
		assert.Equal(t, "GivenTensorFill", initNet.Op[i].Type)
		assert.Equal(t, []string{p}, initNet.Op[i].Output)
	}
	placeholder := initNet.Op[len(params)]
	assert.Equal(t, []string{"data"}, placeholder.Output)
	assert.Equal(t, []int64{1, 1}, placeholder.ArgInts("shape"))
	assert.Equal(t, []float32{0}, placeholder.ArgFloats("values"))

	assert.Equal(t, append([]string{"data"}, params...), predictNet.ExternalInput)
	assert.Equal(t, []string{"softmax"}, predictNet.ExternalOutput)
	require.Len(t, predictNet.Op, len(deploy.Net.Op))
	for i := range predictNet.Op {
		assert.Equal(t, deploy.Net.Op[i], predictNet.Op[i])
	}
}

func TestExportReloadBitExact(t *testing.T) {
	ws, deploy := trainedDeploy(t)
	x := testInput(t, 3)

	require.NoError(t, ws.FeedBlob("data", x))
	require.NoError(t, ws.CreateNet(deploy.Net, false))
	require.NoError(t, ws.RunNet(deploy.Net.Name, 1))
	before, err := ws.FetchBlob("softmax")
	require.NoError(t, err)

	initNet, predictNet, err := Export(ws, deploy.Net, deploy.Params().Names())
	require.NoError(t, err)
	Stamp("run-1", initNet, predictNet)

	dir := t.TempDir()
	artifacts, err := SaveFiles(dir, initNet, predictNet)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	for _, a := range artifacts {
		info, err := os.Stat(a.Path)
		require.NoError(t, err)
		assert.Equal(t, int64(a.Size), info.Size())
		assert.Len(t, a.SHA256, 64)
	}

	loaded, err := LoadFiles(ws, dir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.ArgString(RunIDArg, ""))
	assert.NotNil(t, loaded.DeviceOption)
	assert.False(t, ws.HasBlob("pool1"), "reload starts from an empty workspace")

	require.NoError(t, ws.FeedBlob("data", x))
	require.NoError(t, ws.RunNet(loaded.Name, 1))
	after, err := ws.FetchBlob("softmax")
	require.NoError(t, err)
	assert.Equal(t, before.Shape(), after.Shape())
	assert.Equal(t, before.Float32(), after.Float32())
}

func TestLoadTruncated(t *testing.T) {
	ws, deploy := trainedDeploy(t)
	initNet, predictNet, err := Export(ws, deploy.Net, deploy.Params().Names())
	require.NoError(t, err)
	initBytes, predictBytes := Marshal(initNet, predictNet)

	_, err = Load(ws, initBytes[:len(initBytes)/2], predictBytes)
	var de *netdef.DeserializationError
	require.ErrorAs(t, err, &de)

	_, err = Load(ws, initBytes, predictBytes[:len(predictBytes)-3])
	require.ErrorAs(t, err, &de)
}

func TestLoadUnboundInput(t *testing.T) {
	ws := workspace.New(testOptions())
	defer ws.Close()

	initNet := &netdef.NetDef{Name: "init"}
	initNet.AddOp(netdef.OperatorDef{Type: "GivenTensorFill", Output: []string{"w"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{1}), netdef.FloatsArg("values", []float32{2})}})
	predictNet := &netdef.NetDef{Name: "predict"}
	predictNet.AddOp(netdef.OperatorDef{Type: "Relu", Input: []string{"x"}, Output: []string{"y"}})
	predictNet.AddExternalInput("x", "w")
	predictNet.AddExternalOutput("y")

	_, err := Load(ws, netdef.MarshalNet(initNet), netdef.MarshalNet(predictNet))
	var be *GraphBindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "x", be.Blob)
	require.ErrorIs(t, err, ErrUnboundInput)
}

func TestLoadPinsOperatorsToCPU(t *testing.T) {
	ws := workspace.New(testOptions())
	defer ws.Close()

	gpu := &netdef.DeviceOption{DeviceType: netdef.DeviceCUDA, DeviceID: 1}
	initNet := &netdef.NetDef{Name: "init", DeviceOption: gpu}
	initNet.AddOp(netdef.OperatorDef{Type: "GivenTensorFill", Output: []string{"x"}, DeviceOption: gpu,
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{1, 2}), netdef.FloatsArg("values", []float32{-1, 3})}})
	predictNet := &netdef.NetDef{Name: "predict", DeviceOption: gpu}
	predictNet.AddOp(netdef.OperatorDef{Type: "Relu", Input: []string{"x"}, Output: []string{"y"}, DeviceOption: gpu})
	predictNet.AddExternalInput("x")
	predictNet.AddExternalOutput("y")

	loaded, err := Load(ws, netdef.MarshalNet(initNet), netdef.MarshalNet(predictNet))
	require.NoError(t, err)
	assert.Equal(t, int32(netdef.DeviceCPU), loaded.DeviceOption.DeviceType)
	assert.Nil(t, loaded.Op[0].DeviceOption)

	require.NoError(t, ws.RunNet(loaded.Name, 1))
	y, err := ws.FetchBlob("y")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 3}, y.Float32())
}

func TestLoadRejectsOverflowingDims(t *testing.T) {
	ws := workspace.New(testOptions())
	defer ws.Close()

	initNet := &netdef.NetDef{Name: "init"}
	initNet.AddOp(netdef.OperatorDef{Type: "GivenTensorFill", Output: []string{"w"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{1 << 32, 1 << 32})}})
	predictNet := &netdef.NetDef{Name: "predict"}
	predictNet.AddOp(netdef.OperatorDef{Type: "Relu", Input: []string{"w"}, Output: []string{"y"}})
	predictNet.AddExternalInput("w")
	predictNet.AddExternalOutput("y")

	_, err := Load(ws, netdef.MarshalNet(initNet), netdef.MarshalNet(predictNet))
	require.ErrorIs(t, err, tensor.ErrShapeOverflow)
	assert.False(t, ws.HasBlob("w"))
}

func TestPrune(t *testing.T) {
	ops := []netdef.OperatorDef{
		{Type: "FC", Input: []string{"x", "w", "b"}, Output: []string{"h"}},
		{Type: "Relu", Input: []string{"h"}, Output: []string{"h"}},
		{Type: "Scale", Input: []string{"h"}, Output: []string{"debug"}},
		{Type: "Softmax", Input: []string{"h"}, Output: []string{"p"}},
	}
	kept := prune(ops, []string{"p"})
	var types []string
	for _, op := range kept {
		types = append(types, op.Type)
	}
	assert.Equal(t, []string{"FC", "Relu", "Softmax"}, types)

	net := &netdef.NetDef{Name: "n", Op: ops}
	assert.Equal(t, []string{"debug", "p"}, terminalBlobs(net))
	assert.Equal(t, []string{"x"}, firstReads(ops, map[string]bool{"w": true, "b": true}))
}

func TestExportErrors(t *testing.T) {
	ws := workspace.New(testOptions())
	defer ws.Close()

	net := &netdef.NetDef{Name: "n"}
	net.AddOp(netdef.OperatorDef{Type: "FC", Input: []string{"x", "w", "b"}, Output: []string{"y"}})
	_, _, err := Export(ws, net, []string{"w", "b"})
	require.ErrorIs(t, err, workspace.ErrBlobNotFound)

	ints, err := tensor.FromInt32([]int32{1}, tensor.Shape{1})
	require.NoError(t, err)
	ws.SetBlob("w", ints)
	ws.SetBlob("b", ints)
	_, _, err = Export(ws, net, []string{"w", "b"})
	require.ErrorIs(t, err, ErrNotFloat)

	_, _, err = Export(ws, &netdef.NetDef{Name: "empty"}, nil)
	require.ErrorIs(t, err, ErrNoOutput)
}

func TestPredictor(t *testing.T) {
	ws, deploy := trainedDeploy(t)
	initNet, predictNet, err := Export(ws, deploy.Net, deploy.Params().Names())
	require.NoError(t, err)
	Stamp("abc", initNet, predictNet)
	Stamp("def", initNet, predictNet)
	dir := filepath.Join(t.TempDir(), "out")
	_, err = SaveFiles(dir, initNet, predictNet)
	require.NoError(t, err)

	p, err := NewFromDir(dir, testOptions())
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "data", p.Input())
	assert.Equal(t, "softmax", p.Output())
	assert.Equal(t, "def", p.RunID())

	for range 2 {
		y, err := p.Run(testInput(t, 1))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 10}, y.Shape())
		var sum float32
		for _, v := range y.Float32() {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}

	_, err = NewFromDir(t.TempDir(), testOptions())
	require.Error(t, err)
}
