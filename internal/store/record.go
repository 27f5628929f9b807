package store

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// Record is one labelled image as stored in the database.
type Record struct {
	Image []byte // Row-major pixels, one byte each
	Dims  []int  // Image dimensions, [C,H,W]
	Label int32
}

// Key formats a record index as a database key.
func Key(i int) []byte {
	return fmt.Appendf(nil, "%08d", i)
}

// EncodeRecord serializes a record as a TensorProtos value:
// the image as a BYTE tensor with byte_data, then the label as an INT32 scalar.
func EncodeRecord(r Record) []byte {
	dims := make([]int64, len(r.Dims))
	for i, d := range r.Dims {
		dims[i] = int64(d)
	}
	return netdef.MarshalTensorProtos(&netdef.TensorProtos{Protos: []netdef.TensorProto{
		{Dims: dims, DataType: int32(tensor.Byte), ByteData: r.Image},
		{DataType: int32(tensor.Int32), Int32Data: []int32{r.Label}},
	}})
}

// DecodeRecord parses a TensorProtos value into a record.
func DecodeRecord(value []byte) (Record, error) {
	tp, err := netdef.UnmarshalTensorProtos(value)
	if err != nil {
		return Record{}, err
	}
	if len(tp.Protos) != 2 {
		return Record{}, fmt.Errorf("%w: %d tensors, want 2", ErrMalformedRecord, len(tp.Protos))
	}

	img, err := netdef.TensorFromProto(&tp.Protos[0])
	if err != nil {
		return Record{}, fmt.Errorf("%w: image: %w", ErrMalformedRecord, err)
	}
	if img.Uint8() == nil {
		return Record{}, fmt.Errorf("%w: image dtype %s", ErrMalformedRecord, img.DType())
	}

	lbl := tp.Protos[1]
	if tensor.DataType(lbl.DataType) != tensor.Int32 || len(lbl.Int32Data) != 1 {
		return Record{}, fmt.Errorf("%w: label must be a single int32", ErrMalformedRecord)
	}

	return Record{
		Image: img.Uint8(),
		Dims:  []int(img.Shape().Clone()),
		Label: lbl.Int32Data[0],
	}, nil
}
