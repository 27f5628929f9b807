package operators

import (
	"bytes"
	"log/slog"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/store"
	"github.com/born-ml/lenet/internal/tensor"
)

type mapBlobs map[string]any

func (m mapBlobs) Blob(name string) (any, bool) { v, ok := m[name]; return v, ok }
func (m mapBlobs) SetBlob(name string, v any)   { m[name] = v }

func newTestContext() (*Context, mapBlobs) {
	blobs := mapBlobs{}
	return &Context{
		Blobs:   blobs,
		Backend: cpu.NewWithConfig(parallel.Sequential()),
		Rand:    rand.New(rand.NewPCG(1, 1)),
	}, blobs
}

func run(t *testing.T, r *Registry, ctx *Context, op netdef.OperatorDef) {
	t.Helper()
	require.NoError(t, r.Execute(ctx, &op))
}

func floats(t *testing.T, blobs mapBlobs, name string) []float32 {
	t.Helper()
	v, ok := blobs[name]
	require.True(t, ok, "blob %q", name)
	return v.(*tensor.Tensor).Float32()
}

func setFloat(t *testing.T, blobs mapBlobs, name string, shape tensor.Shape, data []float32) {
	t.Helper()
	x, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	blobs[name] = x
}

func writeStore(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	w, err := store.Create(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		img := make([]byte, 784)
		for j := range img {
			img[j] = byte((i*31 + j) % 256)
		}
		require.NoError(t, w.Add(store.Record{Image: img, Dims: []int{1, 28, 28}, Label: int32(i % 10)}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	ops := r.SupportedOps()
	for _, want := range []string{"Conv", "ConvGradient", "TensorProtosDBInput", "WeightedSum", "XavierFill", "Print"} {
		assert.Contains(t, ops, want)
	}
	assert.True(t, r.Supports("FC"))
	assert.False(t, r.Supports("LSTM"))

	ctx, _ := newTestContext()
	err := r.Execute(ctx, &netdef.OperatorDef{Type: "LSTM"})
	require.ErrorIs(t, err, ErrUnsupportedOp)
}

// TestInputPipeline runs the DB read, cast and scale ops and checks the batch.
func TestInputPipeline(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	path := writeStore(t, 5)

	run(t, r, ctx, netdef.OperatorDef{Type: "CreateDB", Output: []string{"dbreader"},
		Arg: []netdef.Argument{netdef.StringArg("db", path), netdef.StringArg("db_type", "leveldb")}})
	defer blobs["dbreader"].(*store.Reader).Close()

	for i := 0; i < 3; i++ {
		run(t, r, ctx, netdef.OperatorDef{Type: "TensorProtosDBInput", Input: []string{"dbreader"},
			Output: []string{"data_uint8", "label"}, Arg: []netdef.Argument{netdef.IntArg("batch_size", 4)}})
		run(t, r, ctx, netdef.OperatorDef{Type: "Cast", Input: []string{"data_uint8"}, Output: []string{"data"},
			Arg: []netdef.Argument{netdef.IntArg("to", int64(tensor.Float))}})
		run(t, r, ctx, netdef.OperatorDef{Type: "Scale", Input: []string{"data"}, Output: []string{"data"},
			Arg: []netdef.Argument{netdef.FloatArg("scale", 1.0/256)}})
		run(t, r, ctx, netdef.OperatorDef{Type: "StopGradient", Input: []string{"data"}, Output: []string{"data"}})

		data := blobs["data"].(*tensor.Tensor)
		assert.True(t, data.Matches(tensor.Shape{4, 1, 28, 28}, tensor.Float))
		for _, v := range data.Float32() {
			require.GreaterOrEqual(t, v, float32(0))
			require.Less(t, v, float32(1))
		}
		assert.True(t, blobs["label"].(*tensor.Tensor).Matches(tensor.Shape{4}, tensor.Int32))
	}
	// 12 records read from a 5-record store: the third batch starts at record 8 % 5 = 3.
	assert.Equal(t, []int32{3, 4, 0, 1}, blobs["label"].(*tensor.Tensor).Int32())
}

func TestInputBatchTooLarge(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	run(t, r, ctx, netdef.OperatorDef{Type: "CreateDB", Output: []string{"dbreader"},
		Arg: []netdef.Argument{netdef.StringArg("db", writeStore(t, 3))}})
	defer blobs["dbreader"].(*store.Reader).Close()

	err := r.Execute(ctx, &netdef.OperatorDef{Type: "TensorProtosDBInput", Input: []string{"dbreader"},
		Output: []string{"data", "label"}, Arg: []netdef.Argument{netdef.IntArg("batch_size", 64)}})
	var dse *store.DataSourceError
	require.ErrorAs(t, err, &dse)
	require.ErrorIs(t, err, store.ErrBatchTooLarge)
}

func TestCreateDBMissing(t *testing.T) {
	r := NewRegistry()
	ctx, _ := newTestContext()
	err := r.Execute(ctx, &netdef.OperatorDef{Type: "CreateDB", Output: []string{"dbreader"},
		Arg: []netdef.Argument{netdef.StringArg("db", filepath.Join(t.TempDir(), "missing"))}})
	var dse *store.DataSourceError
	require.ErrorAs(t, err, &dse)
}

func TestFillers(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()

	run(t, r, ctx, netdef.OperatorDef{Type: "ConstantFill", Output: []string{"b"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{3}), netdef.FloatArg("value", 0.5)}})
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, floats(t, blobs, "b"))

	run(t, r, ctx, netdef.OperatorDef{Type: "ConstantFill", Output: []string{"it"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{1}), netdef.IntArg("value", 7), netdef.IntArg("dtype", 10)}})
	assert.Equal(t, []int64{7}, blobs["it"].(*tensor.Tensor).Int64())

	run(t, r, ctx, netdef.OperatorDef{Type: "ConstantFill", Input: []string{"b"}, Output: []string{"b_like"},
		Arg: []netdef.Argument{netdef.FloatArg("value", 1)}})
	assert.Equal(t, []float32{1, 1, 1}, floats(t, blobs, "b_like"))

	run(t, r, ctx, netdef.OperatorDef{Type: "GivenTensorFill", Output: []string{"w"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{2, 2}), netdef.FloatsArg("values", []float32{1, 2, 3, 4})}})
	assert.Equal(t, []float32{1, 2, 3, 4}, floats(t, blobs, "w"))

	run(t, r, ctx, netdef.OperatorDef{Type: "GivenTensorIntFill", Output: []string{"l"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{2}), netdef.IntsArg("values", []int64{4, 9})}})
	assert.Equal(t, []int32{4, 9}, blobs["l"].(*tensor.Tensor).Int32())

	err := r.Execute(ctx, &netdef.OperatorDef{Type: "GivenTensorFill", Output: []string{"bad"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{2, 2}), netdef.FloatsArg("values", []float32{1})}})
	require.ErrorIs(t, err, ErrArgument)
}

func TestXavierFill(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	run(t, r, ctx, netdef.OperatorDef{Type: "XavierFill", Output: []string{"w"},
		Arg: []netdef.Argument{netdef.IntsArg("shape", []int64{20, 1, 5, 5})}})

	w := floats(t, blobs, "w")
	require.Len(t, w, 500)
	limit := float32(math.Sqrt(3.0 / 25))
	var nonzero int
	for _, v := range w {
		require.LessOrEqual(t, v, limit)
		require.GreaterOrEqual(t, v, -limit)
		if v != 0 {
			nonzero++
		}
	}
	assert.Greater(t, nonzero, 450)
}

func TestLayerShapes(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	setFloat(t, blobs, "data", tensor.Shape{2, 1, 28, 28}, make([]float32, 2*784))
	setFloat(t, blobs, "w", tensor.Shape{20, 1, 5, 5}, make([]float32, 500))
	setFloat(t, blobs, "b", tensor.Shape{20}, make([]float32, 20))

	run(t, r, ctx, netdef.OperatorDef{Type: "Conv", Input: []string{"data", "w", "b"}, Output: []string{"conv"},
		Arg: []netdef.Argument{netdef.IntArg("kernel", 5), netdef.StringArg("order", "NCHW")}})
	assert.Equal(t, tensor.Shape{2, 20, 24, 24}, blobs["conv"].(*tensor.Tensor).Shape())

	run(t, r, ctx, netdef.OperatorDef{Type: "MaxPool", Input: []string{"conv"}, Output: []string{"pool"},
		Arg: []netdef.Argument{netdef.IntArg("kernel", 2), netdef.IntArg("stride", 2)}})
	assert.Equal(t, tensor.Shape{2, 20, 12, 12}, blobs["pool"].(*tensor.Tensor).Shape())

	setFloat(t, blobs, "fw", tensor.Shape{10, 2880}, make([]float32, 28800))
	setFloat(t, blobs, "fb", tensor.Shape{10}, make([]float32, 10))
	run(t, r, ctx, netdef.OperatorDef{Type: "FC", Input: []string{"pool", "fw", "fb"}, Output: []string{"fc"}})
	assert.Equal(t, tensor.Shape{2, 10}, blobs["fc"].(*tensor.Tensor).Shape())

	run(t, r, ctx, netdef.OperatorDef{Type: "Softmax", Input: []string{"fc"}, Output: []string{"sm"}})
	assert.InDeltaSlice(t, []float32{0.1, 0.1}, floats(t, blobs, "sm")[:2], 1e-6)

	err := r.Execute(ctx, &netdef.OperatorDef{Type: "Conv", Input: []string{"data", "w", "b"}, Output: []string{"x"},
		Arg: []netdef.Argument{netdef.IntArg("kernel", 3)}})
	require.ErrorIs(t, err, ErrShape)

	err = r.Execute(ctx, &netdef.OperatorDef{Type: "Conv", Input: []string{"data", "w"}, Output: []string{"x"}})
	require.ErrorIs(t, err, ErrArity)

	err = r.Execute(ctx, &netdef.OperatorDef{Type: "Relu", Input: []string{"nope"}, Output: []string{"x"}})
	require.ErrorIs(t, err, ErrMissingBlob)
}

func TestLossAndAccuracy(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	setFloat(t, blobs, "sm", tensor.Shape{2, 2}, []float32{0.25, 0.75, 0.5, 0.5})
	lbl, err := tensor.FromInt32([]int32{1, 1}, tensor.Shape{2})
	require.NoError(t, err)
	blobs["label"] = lbl

	run(t, r, ctx, netdef.OperatorDef{Type: "LabelCrossEntropy", Input: []string{"sm", "label"}, Output: []string{"xent"}})
	run(t, r, ctx, netdef.OperatorDef{Type: "AveragedLoss", Input: []string{"xent"}, Output: []string{"loss"}})
	run(t, r, ctx, netdef.OperatorDef{Type: "Accuracy", Input: []string{"sm", "label"}, Output: []string{"accuracy"}})

	want := (-math.Log(0.75) - math.Log(0.5)) / 2
	assert.InDelta(t, want, floats(t, blobs, "loss")[0], 1e-6)
	assert.Equal(t, tensor.Shape{}, blobs["loss"].(*tensor.Tensor).Shape())
	assert.InDelta(t, 0.5, floats(t, blobs, "accuracy")[0], 1e-6)

	setFloat(t, blobs, "loss_grad", tensor.Shape{}, []float32{1})
	run(t, r, ctx, netdef.OperatorDef{Type: "AveragedLossGradient", Input: []string{"xent", "loss_grad"}, Output: []string{"xent_grad"}})
	assert.Equal(t, []float32{0.5, 0.5}, floats(t, blobs, "xent_grad"))

	run(t, r, ctx, netdef.OperatorDef{Type: "LabelCrossEntropyGradient", Input: []string{"sm", "label", "xent_grad"}, Output: []string{"sm_grad"}})
	assert.InDeltaSlice(t, []float32{0, -0.5 / 0.75, 0, -1}, floats(t, blobs, "sm_grad"), 1e-6)
}

// TestSGDStep runs one Iter/LearningRate/WeightedSum step by hand.
func TestSGDStep(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	it, err := tensor.FromInt64([]int64{0}, tensor.Shape{1})
	require.NoError(t, err)
	blobs["iter"] = it
	setFloat(t, blobs, "ONE", tensor.Shape{1}, []float32{1})
	setFloat(t, blobs, "w", tensor.Shape{2}, []float32{1, 2})
	setFloat(t, blobs, "w_grad", tensor.Shape{2}, []float32{10, -10})

	run(t, r, ctx, netdef.OperatorDef{Type: "Iter", Input: []string{"iter"}, Output: []string{"iter"}})
	run(t, r, ctx, netdef.OperatorDef{Type: "LearningRate", Input: []string{"iter"}, Output: []string{"lr"},
		Arg: []netdef.Argument{
			netdef.StringArg("policy", "step"), netdef.FloatArg("base_lr", -0.01),
			netdef.FloatArg("gamma", 0.999), netdef.IntArg("stepsize", 1),
		}})
	run(t, r, ctx, netdef.OperatorDef{Type: "WeightedSum", Input: []string{"w", "ONE", "w_grad", "lr"}, Output: []string{"w"}})

	assert.Equal(t, []int64{1}, it.Int64())
	lr := float32(-0.01 * 0.999)
	assert.InEpsilon(t, lr, floats(t, blobs, "lr")[0], 1e-6)
	assert.InDeltaSlice(t, []float32{1 + 10*lr, 2 - 10*lr}, floats(t, blobs, "w"), 1e-6)
}

func TestMomentumSGDUpdate(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	setFloat(t, blobs, "g", tensor.Shape{1}, []float32{2})
	setFloat(t, blobs, "m", tensor.Shape{1}, []float32{1})
	setFloat(t, blobs, "lr", tensor.Shape{1}, []float32{0.1})
	setFloat(t, blobs, "p", tensor.Shape{1}, []float32{5})

	run(t, r, ctx, netdef.OperatorDef{Type: "MomentumSGDUpdate", Input: []string{"g", "m", "lr", "p"},
		Output: []string{"g", "m", "p"}, Arg: []netdef.Argument{netdef.FloatArg("momentum", 0.9)}})
	assert.InDelta(t, 1.1, floats(t, blobs, "m")[0], 1e-6)
	assert.InDelta(t, 3.9, floats(t, blobs, "p")[0], 1e-6)
}

func TestSum(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	setFloat(t, blobs, "a", tensor.Shape{2}, []float32{1, 2})
	setFloat(t, blobs, "b", tensor.Shape{2}, []float32{3, 4})
	run(t, r, ctx, netdef.OperatorDef{Type: "Sum", Input: []string{"a", "b"}, Output: []string{"a"}})
	assert.Equal(t, []float32{4, 6}, floats(t, blobs, "a"))
}

func TestPrintEveryN(t *testing.T) {
	r := NewRegistry()
	ctx, blobs := newTestContext()
	var buf bytes.Buffer
	ctx.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	setFloat(t, blobs, "loss", tensor.Shape{}, []float32{2.5})

	op := netdef.OperatorDef{Type: "Print", Input: []string{"loss"}, Arg: []netdef.Argument{netdef.IntArg("every_n", 3)}}
	for i := int64(0); i < 7; i++ {
		ctx.RunIndex = i
		run(t, r, ctx, op)
	}
	assert.Equal(t, 3, strings.Count(buf.String(), "name=loss"))
	assert.Contains(t, buf.String(), "value=2.5")
}
