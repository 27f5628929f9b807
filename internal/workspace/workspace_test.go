package workspace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lenet/internal/device"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/operators"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

func newTestWorkspace() *Workspace {
	cfg := parallel.Sequential()
	return New(Options{Seed: 7, Parallel: &cfg})
}

func fillOp(out string, value float32, shape ...int64) netdef.OperatorDef {
	return netdef.OperatorDef{
		Type:   "ConstantFill",
		Output: []string{out},
		Arg:    []netdef.Argument{netdef.IntsArg("shape", shape), netdef.FloatArg("value", value)},
	}
}

func TestFeedFetch(t *testing.T) {
	ws := newTestWorkspace()
	x, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	require.NoError(t, ws.FeedBlob("x", x))

	// Feeding copies, so later edits to the caller's tensor are not visible.
	x.Float32()[0] = 100
	got, err := ws.FetchBlob("x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got.Float32())

	// Fetching copies as well.
	got.Float32()[1] = 100
	live, err := ws.Tensor("x")
	require.NoError(t, err)
	assert.Equal(t, float32(2), live.Float32()[1])

	_, err = ws.FetchBlob("nope")
	require.ErrorIs(t, err, ErrBlobNotFound)

	ws.SetBlob("reader", struct{}{})
	_, err = ws.FetchBlob("reader")
	require.ErrorIs(t, err, operators.ErrBlobType)
	assert.Equal(t, []string{"reader", "x"}, ws.Blobs())
}

func TestRunNetOnce(t *testing.T) {
	ws := newTestWorkspace()
	net := &netdef.NetDef{Name: "init"}
	net.AddOp(fillOp("a", 2, 2, 2))
	net.AddOp(netdef.OperatorDef{Type: "Scale", Input: []string{"a"}, Output: []string{"b"},
		Arg: []netdef.Argument{netdef.FloatArg("scale", 0.5)}})
	require.NoError(t, ws.RunNetOnce(net))

	b, err := ws.FetchBlob("b")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, b.Float32())
	assert.Empty(t, ws.Nets())
}

func TestCreateAndRunNet(t *testing.T) {
	ws := newTestWorkspace()
	initNet := &netdef.NetDef{Name: "init"}
	initNet.AddOp(netdef.OperatorDef{Type: "ConstantFill", Output: []string{"it"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{1}), netdef.IntArg("value", 0), netdef.IntArg("dtype", int64(tensor.Int64))}})
	require.NoError(t, ws.RunNetOnce(initNet))

	net := &netdef.NetDef{Name: "train"}
	net.AddOp(netdef.OperatorDef{Type: "Iter", Input: []string{"it"}, Output: []string{"it"}})
	net.AddExternalInput("it")
	require.NoError(t, ws.CreateNet(net, false))

	err := ws.CreateNet(net, false)
	require.ErrorIs(t, err, ErrNetExists)
	require.NoError(t, ws.CreateNet(net, true))

	require.NoError(t, ws.RunNet("train", 5))
	it, err := ws.FetchBlob("it")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, it.Int64())
	assert.Equal(t, int64(5), ws.Runs("train"))

	err = ws.RunNet("test", 1)
	require.ErrorIs(t, err, ErrNetNotFound)

	got, ok := ws.Net("train")
	require.True(t, ok)
	got.Name = "changed"
	again, _ := ws.Net("train")
	assert.Equal(t, "train", again.Name)
}

func TestCreateNetMissingInput(t *testing.T) {
	ws := newTestWorkspace()
	net := &netdef.NetDef{Name: "n"}
	net.AddOp(netdef.OperatorDef{Type: "Relu", Input: []string{"x"}, Output: []string{"y"}})
	net.AddExternalInput("x")
	require.ErrorIs(t, ws.CreateNet(net, false), ErrMissingInput)
}

func TestCreateNetValidation(t *testing.T) {
	ws := newTestWorkspace()

	net := &netdef.NetDef{Name: "n"}
	net.AddOp(netdef.OperatorDef{Type: "LSTM", Output: []string{"y"}})
	err := ws.CreateNet(net, false)
	require.ErrorIs(t, err, operators.ErrUnsupportedOp)
	var opErr *OperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "LSTM", opErr.Type)

	gpu := &netdef.NetDef{Name: "gpu", DeviceOption: &netdef.DeviceOption{DeviceType: netdef.DeviceCUDA}}
	gpu.AddOp(fillOp("a", 1, 1))
	require.ErrorIs(t, ws.CreateNet(gpu, false), device.ErrUnsupportedDevice)
	require.ErrorIs(t, ws.RunNetOnce(gpu), device.ErrUnsupportedDevice)
}

func TestOperatorError(t *testing.T) {
	ws := newTestWorkspace()
	net := &netdef.NetDef{Name: "bad"}
	net.AddOp(fillOp("a", 1, 1))
	net.AddOp(netdef.OperatorDef{Type: "Relu", Input: []string{"missing"}, Output: []string{"y"}})

	err := ws.RunNetOnce(net)
	var opErr *OperatorError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 1, opErr.Index)
	assert.Equal(t, "bad", opErr.Net)
	require.ErrorIs(t, err, operators.ErrMissingBlob)
	assert.Contains(t, err.Error(), `net "bad" op 1 (Relu)`)
}

type closer struct {
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestReset(t *testing.T) {
	ws := newTestWorkspace()
	ok := &closer{}
	bad := &closer{err: errors.New("boom")}
	ws.SetBlob("ok", ok)
	ws.SetBlob("bad", bad)
	net := &netdef.NetDef{Name: "n"}
	net.AddOp(fillOp("a", 1, 1))
	require.NoError(t, ws.CreateNet(net, false))

	err := ws.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	assert.Empty(t, ws.Blobs())
	assert.Empty(t, ws.Nets())
}

func TestResetReseeds(t *testing.T) {
	ws := newTestWorkspace()
	net := &netdef.NetDef{Name: "init"}
	net.AddOp(netdef.OperatorDef{Type: "XavierFill", Output: []string{"w"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{4, 3})}})

	require.NoError(t, ws.RunNetOnce(net))
	first, err := ws.FetchBlob("w")
	require.NoError(t, err)

	require.NoError(t, ws.Reset())
	require.NoError(t, ws.RunNetOnce(net))
	second, err := ws.FetchBlob("w")
	require.NoError(t, err)
	assert.Equal(t, first.Float32(), second.Float32())
}
