package operators

import (
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/store"
	"github.com/born-ml/lenet/internal/tensor"
)

// registerDataOps adds input pipeline and utility operators to the registry.
func (r *Registry) registerDataOps() {
	r.Register("CreateDB", handleCreateDB)
	r.Register("TensorProtosDBInput", handleTensorProtosDBInput)
	r.Register("Cast", handleCast)
	r.Register("Scale", handleScale)
	r.Register("StopGradient", handleStopGradient)
	r.Register("Print", handlePrint)
}

// handleCreateDB opens a record store and stores a reader under the output name.
// Args: db (path), db_type (default "leveldb").
func handleCreateDB(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 0, 0, 1, 1); err != nil {
		return err
	}
	path := op.ArgString("db", "")
	if path == "" {
		return fmt.Errorf("%w: CreateDB needs a db path", ErrArgument)
	}

	if old, ok := ctx.Blobs.Blob(op.Output[0]); ok {
		if c, ok := old.(io.Closer); ok {
			_ = c.Close()
		}
	}
	r, err := store.NewReader(path, op.ArgString("db_type", store.TypeLevelDB))
	if err != nil {
		return err
	}
	ctx.Blobs.SetBlob(op.Output[0], r)
	return nil
}

// handleTensorProtosDBInput reads batch_size records into a [B, dims...]
// uint8 tensor and a [B] int32 label tensor.
func handleTensorProtosDBInput(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 2, 2); err != nil {
		return err
	}
	v, ok := ctx.Blobs.Blob(op.Input[0])
	if !ok {
		return fmt.Errorf("%w: %q", ErrMissingBlob, op.Input[0])
	}
	reader, ok := v.(*store.Reader)
	if !ok {
		return fmt.Errorf("%w: %q is %T, want db reader", ErrBlobType, op.Input[0], v)
	}
	n := int(op.ArgInt("batch_size", 0))
	if n <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrArgument, n)
	}

	recs, err := reader.ReadBatch(n)
	if err != nil {
		return err
	}
	dims := tensor.Shape(recs[0].Dims)
	for i := range recs {
		if !dims.Equal(recs[i].Dims) {
			return &store.DataSourceError{
				Path: reader.Path(),
				Op:   "read batch",
				Err:  fmt.Errorf("%w: record dims %v differ from %v", store.ErrMalformedRecord, recs[i].Dims, dims),
			}
		}
	}

	data, err := ctx.Output(op, 0, append(tensor.Shape{n}, dims...), tensor.Uint8)
	if err != nil {
		return err
	}
	label, err := ctx.Output(op, 1, tensor.Shape{n}, tensor.Int32)
	if err != nil {
		return err
	}
	size := dims.NumElements()
	pixels, labels := data.Uint8(), label.Int32()
	for i, r := range recs {
		copy(pixels[i*size:(i+1)*size], r.Image)
		labels[i] = r.Label
	}
	return nil
}

type number interface {
	~float32 | ~int32 | ~int64 | ~uint8
}

func convert[D, S number](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}

func castFrom[S number](dst *tensor.Tensor, src []S) {
	switch dst.DType() {
	case tensor.Float:
		convert(dst.Float32(), src)
	case tensor.Int32:
		convert(dst.Int32(), src)
	case tensor.Int64:
		convert(dst.Int64(), src)
	case tensor.Uint8, tensor.Byte:
		convert(dst.Uint8(), src)
	}
}

// handleCast converts the input to the dtype named by the "to" argument
// (a TensorProto data type code).
func handleCast(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.Input(op, 0)
	if err != nil {
		return err
	}
	to := tensor.DataType(op.ArgInt("to", int64(tensor.Float)))
	if !to.Valid() {
		return fmt.Errorf("%w: cast to %d", ErrArgument, to)
	}
	y, err := ctx.Output(op, 0, x.Shape(), to)
	if err != nil {
		return err
	}

	switch x.DType() {
	case tensor.Float:
		castFrom(y, x.Float32())
	case tensor.Int32:
		castFrom(y, x.Int32())
	case tensor.Int64:
		castFrom(y, x.Int64())
	case tensor.Uint8, tensor.Byte:
		castFrom(y, x.Uint8())
	}
	return nil
}

// handleScale computes Y = scale * X. X and Y may be the same blob.
func handleScale(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	x, err := ctx.FloatInput(op, 0)
	if err != nil {
		return err
	}
	scale := op.ArgFloat("scale", 1)
	y, err := ctx.Output(op, 0, x.Shape(), tensor.Float)
	if err != nil {
		return err
	}
	yd := y.Float32()
	for i, v := range x.Float32() {
		yd[i] = v * scale
	}
	return nil
}

// handleStopGradient copies X to Y; gradient synthesis does not propagate past it.
func handleStopGradient(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 1, 1); err != nil {
		return err
	}
	if op.Input[0] == op.Output[0] {
		_, err := ctx.Input(op, 0)
		return err
	}
	x, err := ctx.Input(op, 0)
	if err != nil {
		return err
	}
	y, err := ctx.Output(op, 0, x.Shape(), x.DType())
	if err != nil {
		return err
	}
	return y.CopyFrom(x)
}

// printLimit caps the number of values written per Print record.
const printLimit = 10

// handlePrint logs a blob every every_n runs of the net (default 1).
func handlePrint(ctx *Context, op *netdef.OperatorDef) error {
	if err := checkIO(op, 1, 1, 0, 0); err != nil {
		return err
	}
	everyN := op.ArgInt("every_n", 1)
	if everyN > 1 && ctx.RunIndex%everyN != 0 {
		return nil
	}
	x, err := ctx.Input(op, 0)
	if err != nil {
		return err
	}
	ctx.logger().Info("blob",
		"name", op.Input[0],
		"run", ctx.RunIndex+1,
		"shape", fmt.Sprint([]int(x.Shape())),
		"value", formatValues(x, printLimit),
	)
	return nil
}

// formatValues renders up to limit values of a tensor.
func formatValues(t *tensor.Tensor, limit int) string {
	n := min(t.NumElements(), limit)
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		switch t.DType() {
		case tensor.Float:
			fmt.Fprintf(&b, "%g", t.Float32()[i])
		case tensor.Int32:
			fmt.Fprint(&b, t.Int32()[i])
		case tensor.Int64:
			fmt.Fprint(&b, t.Int64()[i])
		default:
			fmt.Fprint(&b, t.Uint8()[i])
		}
	}
	if t.NumElements() > limit {
		b.WriteString(",...")
	}
	return b.String()
}
