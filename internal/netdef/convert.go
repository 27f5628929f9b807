package netdef

import (
	"fmt"

	"github.com/born-ml/lenet/internal/tensor"
)

// TensorFromProto builds a tensor from its serialized form.
// The payload length must match the product of the dimensions.
func TensorFromProto(p *TensorProto) (*tensor.Tensor, error) {
	shape := tensor.ShapeFromInt64(p.Dims)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: %w", p.Name, err)
	}
	n := shape.NumElements()
	check := func(got int) error {
		if got != n {
			return fmt.Errorf("tensor %q: %w: %d values for shape %v", p.Name, ErrIncomplete, got, shape)
		}
		return nil
	}

	switch dt := tensor.DataType(p.DataType); dt {
	case tensor.Float:
		if err := check(len(p.FloatData)); err != nil {
			return nil, err
		}
		return tensor.FromFloat32(append([]float32(nil), p.FloatData...), shape)
	case tensor.Int32:
		if err := check(len(p.Int32Data)); err != nil {
			return nil, err
		}
		return tensor.FromInt32(append([]int32(nil), p.Int32Data...), shape)
	case tensor.Int64:
		if err := check(len(p.Int64Data)); err != nil {
			return nil, err
		}
		return tensor.FromInt64(append([]int64(nil), p.Int64Data...), shape)
	case tensor.Byte, tensor.Uint8:
		// uint8 payloads travel in int32_data; raw bytes in byte_data.
		data := make([]uint8, 0, n)
		if len(p.ByteData) > 0 || len(p.Int32Data) == 0 {
			data = append(data, p.ByteData...)
		} else {
			for _, v := range p.Int32Data {
				data = append(data, uint8(v))
			}
		}
		if err := check(len(data)); err != nil {
			return nil, err
		}
		t, err := tensor.New(shape, dt)
		if err != nil {
			return nil, err
		}
		copy(t.Uint8(), data)
		return t, nil
	default:
		return nil, fmt.Errorf("tensor %q: %w: %d", p.Name, ErrDataType, p.DataType)
	}
}

// ProtoFromTensor serializes a tensor under the given name.
func ProtoFromTensor(name string, t *tensor.Tensor) TensorProto {
	p := TensorProto{
		Name:     name,
		Dims:     t.Shape().Int64(),
		DataType: int32(t.DType()),
	}
	switch t.DType() {
	case tensor.Float:
		p.FloatData = append([]float32(nil), t.Float32()...)
	case tensor.Int32:
		p.Int32Data = append([]int32(nil), t.Int32()...)
	case tensor.Int64:
		p.Int64Data = append([]int64(nil), t.Int64()...)
	case tensor.Byte:
		p.ByteData = append([]byte{}, t.Uint8()...)
	case tensor.Uint8:
		p.Int32Data = make([]int32, len(t.Uint8()))
		for i, v := range t.Uint8() {
			p.Int32Data[i] = int32(v)
		}
	}
	return p
}
