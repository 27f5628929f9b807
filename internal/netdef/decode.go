package netdef

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// UnmarshalNet decodes a NetDef.
// Malformed or truncated input yields a *DeserializationError.
func UnmarshalNet(b []byte) (*NetDef, error) {
	n := &NetDef{}
	if err := readNet(b, n); err != nil {
		return nil, toDeserializationError("NetDef", err)
	}
	return n, nil
}

// UnmarshalTensorProtos decodes a TensorProtos record.
func UnmarshalTensorProtos(b []byte) (*TensorProtos, error) {
	tp := &TensorProtos{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if num != 1 {
			return skip, nil
		}
		msg, n, err := bytesField(typ, v)
		if err != nil {
			return 0, inIndexed("protos", len(tp.Protos), err)
		}
		var t TensorProto
		if err := readTensor(msg, &t); err != nil {
			return 0, inIndexed("protos", len(tp.Protos), err)
		}
		tp.Protos = append(tp.Protos, t)
		return n, nil
	})
	if err != nil {
		return nil, toDeserializationError("TensorProtos", err)
	}
	return tp, nil
}

// UnmarshalTensor decodes a single TensorProto.
func UnmarshalTensor(b []byte) (*TensorProto, error) {
	t := &TensorProto{}
	if err := readTensor(b, t); err != nil {
		return nil, toDeserializationError("TensorProto", err)
	}
	return t, nil
}

// skip tells walk to skip the current field.
const skip = -1

// walk iterates over the fields of one message. The callback returns the
// number of value bytes it consumed, or skip for fields it does not know.
func walk(b []byte, field func(num protowire.Number, typ protowire.Type, v []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m == skip {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return inField(fmt.Sprintf("#%d", num), protowire.ParseError(m))
			}
		}
		b = b[m:]
	}
	return nil
}

//nolint:gocyclo // Field-by-field switch mirrors the message layout.
func readNet(b []byte, n *NetDef) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField("name", err)
			}
			n.Name = s
			return m, nil
		case 2:
			msg, m, err := bytesField(typ, v)
			if err != nil {
				return 0, inIndexed("op", len(n.Op), err)
			}
			var op OperatorDef
			if err := readOperator(msg, &op); err != nil {
				return 0, inIndexed("op", len(n.Op), err)
			}
			n.Op = append(n.Op, op)
			return m, nil
		case 3:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField("type", err)
			}
			n.Type = s
			return m, nil
		case 4:
			x, m, err := varintField(typ, v)
			if err != nil {
				return 0, inField("num_workers", err)
			}
			n.NumWorkers = int32(x)
			return m, nil
		case 5:
			msg, m, err := bytesField(typ, v)
			if err != nil {
				return 0, inField("device_option", err)
			}
			n.DeviceOption = &DeviceOption{}
			if err := readDeviceOption(msg, n.DeviceOption); err != nil {
				return 0, inField("device_option", err)
			}
			return m, nil
		case 6:
			msg, m, err := bytesField(typ, v)
			if err != nil {
				return 0, inIndexed("arg", len(n.Arg), err)
			}
			var a Argument
			if err := readArgument(msg, &a); err != nil {
				return 0, inIndexed("arg", len(n.Arg), err)
			}
			n.Arg = append(n.Arg, a)
			return m, nil
		case 7:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField("external_input", err)
			}
			n.ExternalInput = append(n.ExternalInput, s)
			return m, nil
		case 8:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField("external_output", err)
			}
			n.ExternalOutput = append(n.ExternalOutput, s)
			return m, nil
		}
		return skip, nil
	})
}

//nolint:gocyclo // Field-by-field switch mirrors the message layout.
func readOperator(b []byte, op *OperatorDef) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1, 2, 3, 4, 7, 8, 10:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField(operatorFieldNames[num], err)
			}
			switch num {
			case 1:
				op.Input = append(op.Input, s)
			case 2:
				op.Output = append(op.Output, s)
			case 3:
				op.Name = s
			case 4:
				op.Type = s
			case 7:
				op.Engine = s
			case 8:
				op.ControlInput = append(op.ControlInput, s)
			case 10:
				op.DebugInfo = s
			}
			return m, nil
		case 5:
			msg, m, err := bytesField(typ, v)
			if err != nil {
				return 0, inIndexed("arg", len(op.Arg), err)
			}
			var a Argument
			if err := readArgument(msg, &a); err != nil {
				return 0, inIndexed("arg", len(op.Arg), err)
			}
			op.Arg = append(op.Arg, a)
			return m, nil
		case 6:
			msg, m, err := bytesField(typ, v)
			if err != nil {
				return 0, inField("device_option", err)
			}
			op.DeviceOption = &DeviceOption{}
			if err := readDeviceOption(msg, op.DeviceOption); err != nil {
				return 0, inField("device_option", err)
			}
			return m, nil
		case 9:
			x, m, err := varintField(typ, v)
			if err != nil {
				return 0, inField("is_gradient_op", err)
			}
			op.IsGradientOp = protowire.DecodeBool(x)
			return m, nil
		}
		return skip, nil
	})
}

var operatorFieldNames = map[protowire.Number]string{
	1: "input", 2: "output", 3: "name", 4: "type", 7: "engine", 8: "control_input", 10: "debug_info",
}

func readArgument(b []byte, a *Argument) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var (
			m   int
			err error
		)
		switch num {
		case 1:
			a.Name, m, err = stringField(typ, v)
			return m, wrapIf("name", err)
		case 2:
			var x uint32
			x, m, err = fixed32Field(typ, v)
			a.F, a.Kind = math.Float32frombits(x), ArgFloat
			return m, wrapIf("f", err)
		case 3:
			var x uint64
			x, m, err = varintField(typ, v)
			a.I, a.Kind = int64(x), ArgInt
			return m, wrapIf("i", err)
		case 4:
			var s []byte
			s, m, err = bytesField(typ, v)
			a.S, a.Kind = append([]byte(nil), s...), ArgString
			return m, wrapIf("s", err)
		case 5:
			a.Floats, m, err = appendFloats(a.Floats, typ, v)
			a.Kind = ArgFloats
			return m, wrapIf("floats", err)
		case 6:
			a.Ints, m, err = appendInt64s(a.Ints, typ, v)
			a.Kind = ArgInts
			return m, wrapIf("ints", err)
		case 7:
			var s []byte
			s, m, err = bytesField(typ, v)
			a.Strings, a.Kind = append(a.Strings, append([]byte(nil), s...)), ArgStrings
			return m, wrapIf("strings", err)
		}
		return skip, nil
	})
}

func readDeviceOption(b []byte, d *DeviceOption) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1, 2, 3, 5:
			x, m, err := varintField(typ, v)
			if err != nil {
				return 0, inField("device_option", err)
			}
			switch num {
			case 1:
				d.DeviceType = int32(x)
			case 2:
				d.DeviceID = int32(x)
			case 3:
				d.RandomSeed = uint32(x)
			case 5:
				d.NumaNodeID = int32(x)
			}
			return m, nil
		case 4, 6:
			s, m, err := stringField(typ, v)
			if err != nil {
				return 0, inField("device_option", err)
			}
			if num == 4 {
				d.NodeName = s
			} else {
				d.ExtraInfo = append(d.ExtraInfo, s)
			}
			return m, nil
		}
		return skip, nil
	})
}

//nolint:gocyclo // Field-by-field switch mirrors the message layout.
func readTensor(b []byte, t *TensorProto) error {
	t.DataType = 1 // proto default: FLOAT
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		var (
			m   int
			err error
		)
		switch num {
		case 1:
			t.Dims, m, err = appendInt64s(t.Dims, typ, v)
			return m, wrapIf("dims", err)
		case 2:
			var x uint64
			x, m, err = varintField(typ, v)
			t.DataType = int32(x)
			return m, wrapIf("data_type", err)
		case 3:
			t.FloatData, m, err = appendFloats(t.FloatData, typ, v)
			return m, wrapIf("float_data", err)
		case 4:
			t.Int32Data, m, err = appendInt32s(t.Int32Data, typ, v)
			return m, wrapIf("int32_data", err)
		case 5:
			var s []byte
			s, m, err = bytesField(typ, v)
			t.ByteData = append([]byte{}, s...)
			return m, wrapIf("byte_data", err)
		case 6:
			var s []byte
			s, m, err = bytesField(typ, v)
			t.StringData = append(t.StringData, append([]byte(nil), s...))
			return m, wrapIf("string_data", err)
		case 7:
			t.Name, m, err = stringField(typ, v)
			return m, wrapIf("name", err)
		case 9:
			t.DoubleData, m, err = appendFloat64s(t.DoubleData, typ, v)
			return m, wrapIf("double_data", err)
		case 10:
			t.Int64Data, m, err = appendInt64s(t.Int64Data, typ, v)
			return m, wrapIf("int64_data", err)
		}
		return skip, nil
	})
}

func wrapIf(name string, err error) error {
	if err == nil {
		return nil
	}
	return inField(name, err)
}

func bytesField(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, ErrWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func stringField(typ protowire.Type, b []byte) (string, int, error) {
	v, n, err := bytesField(typ, b)
	return string(v), n, err
}

func varintField(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, ErrWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func fixed32Field(typ protowire.Type, b []byte) (uint32, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, ErrWireType
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// appendFloats accepts both packed and unpacked encodings.
func appendFloats(dst []float32, typ protowire.Type, b []byte) ([]float32, int, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return dst, 0, protowire.ParseError(n)
		}
		return append(dst, math.Float32frombits(v)), n, nil
	case protowire.BytesType:
		buf, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, protowire.ParseError(n)
		}
		if len(buf)%4 != 0 {
			return dst, 0, fmt.Errorf("packed float length %d is not a multiple of 4", len(buf))
		}
		if dst == nil {
			dst = make([]float32, 0, len(buf)/4)
		}
		for len(buf) > 0 {
			v, m := protowire.ConsumeFixed32(buf)
			dst = append(dst, math.Float32frombits(v))
			buf = buf[m:]
		}
		return dst, n, nil
	}
	return dst, 0, ErrWireType
}

func appendFloat64s(dst []float64, typ protowire.Type, b []byte) ([]float64, int, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return dst, 0, protowire.ParseError(n)
		}
		return append(dst, math.Float64frombits(v)), n, nil
	case protowire.BytesType:
		buf, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, 0, protowire.ParseError(n)
		}
		if len(buf)%8 != 0 {
			return dst, 0, fmt.Errorf("packed double length %d is not a multiple of 8", len(buf))
		}
		for len(buf) > 0 {
			v, m := protowire.ConsumeFixed64(buf)
			dst = append(dst, math.Float64frombits(v))
			buf = buf[m:]
		}
		return dst, n, nil
	}
	return dst, 0, ErrWireType
}

func appendInt64s(dst []int64, typ protowire.Type, b []byte) ([]int64, int, error) {
	err := eachVarint(typ, b, func(v uint64) { dst = append(dst, int64(v)) })
	if err != nil {
		return dst, 0, err
	}
	return dst, varintPayloadLen(typ, b), nil
}

func appendInt32s(dst []int32, typ protowire.Type, b []byte) ([]int32, int, error) {
	err := eachVarint(typ, b, func(v uint64) { dst = append(dst, int32(int64(v))) })
	if err != nil {
		return dst, 0, err
	}
	return dst, varintPayloadLen(typ, b), nil
}

// eachVarint decodes a single varint or a packed run of varints.
func eachVarint(typ protowire.Type, b []byte, fn func(uint64)) error {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		fn(v)
		return nil
	case protowire.BytesType:
		buf, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		for len(buf) > 0 {
			v, m := protowire.ConsumeVarint(buf)
			if m < 0 {
				return protowire.ParseError(m)
			}
			fn(v)
			buf = buf[m:]
		}
		return nil
	}
	return ErrWireType
}

// varintPayloadLen returns the bytes taken by a field already validated by eachVarint.
func varintPayloadLen(typ protowire.Type, b []byte) int {
	if typ == protowire.VarintType {
		_, n := protowire.ConsumeVarint(b)
		return n
	}
	_, n := protowire.ConsumeBytes(b)
	return n
}
