package netdef

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// MarshalNet encodes a NetDef. The output is deterministic.
func MarshalNet(n *NetDef) []byte {
	return appendNet(nil, n)
}

// MarshalTensorProtos encodes a TensorProtos record.
func MarshalTensorProtos(tp *TensorProtos) []byte {
	var b []byte
	for i := range tp.Protos {
		b = appendMessage(b, 1, appendTensor(nil, &tp.Protos[i]))
	}
	return b
}

func appendNet(b []byte, n *NetDef) []byte {
	b = appendString(b, 1, n.Name)
	for i := range n.Op {
		b = appendMessage(b, 2, appendOperator(nil, &n.Op[i]))
	}
	b = appendString(b, 3, n.Type)
	if n.NumWorkers != 0 {
		b = appendInt32(b, 4, n.NumWorkers)
	}
	if n.DeviceOption != nil {
		b = appendMessage(b, 5, appendDeviceOption(nil, n.DeviceOption))
	}
	for i := range n.Arg {
		b = appendMessage(b, 6, appendArgument(nil, &n.Arg[i]))
	}
	for _, s := range n.ExternalInput {
		b = appendRepeatedString(b, 7, s)
	}
	for _, s := range n.ExternalOutput {
		b = appendRepeatedString(b, 8, s)
	}
	return b
}

func appendOperator(b []byte, op *OperatorDef) []byte {
	for _, s := range op.Input {
		b = appendRepeatedString(b, 1, s)
	}
	for _, s := range op.Output {
		b = appendRepeatedString(b, 2, s)
	}
	b = appendString(b, 3, op.Name)
	b = appendString(b, 4, op.Type)
	for i := range op.Arg {
		b = appendMessage(b, 5, appendArgument(nil, &op.Arg[i]))
	}
	if op.DeviceOption != nil {
		b = appendMessage(b, 6, appendDeviceOption(nil, op.DeviceOption))
	}
	b = appendString(b, 7, op.Engine)
	for _, s := range op.ControlInput {
		b = appendRepeatedString(b, 8, s)
	}
	if op.IsGradientOp {
		b = protowire.AppendTag(b, 9, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	b = appendString(b, 10, op.DebugInfo)
	return b
}

func appendArgument(b []byte, a *Argument) []byte {
	b = appendString(b, 1, a.Name)
	switch a.Kind {
	case ArgFloat:
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(a.F))
	case ArgInt:
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.I))
	case ArgString:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, a.S)
	case ArgFloats:
		// Argument lists are unpacked proto2 fields.
		for _, f := range a.Floats {
			b = protowire.AppendTag(b, 5, protowire.Fixed32Type)
			b = protowire.AppendFixed32(b, math.Float32bits(f))
		}
	case ArgInts:
		for _, v := range a.Ints {
			b = protowire.AppendTag(b, 6, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(v))
		}
	case ArgStrings:
		for _, s := range a.Strings {
			b = protowire.AppendTag(b, 7, protowire.BytesType)
			b = protowire.AppendBytes(b, s)
		}
	}
	return b
}

func appendDeviceOption(b []byte, d *DeviceOption) []byte {
	if d.DeviceType != 0 {
		b = appendInt32(b, 1, d.DeviceType)
	}
	if d.DeviceID != 0 {
		b = appendInt32(b, 2, d.DeviceID)
	}
	if d.RandomSeed != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.RandomSeed))
	}
	b = appendString(b, 4, d.NodeName)
	if d.NumaNodeID != 0 {
		b = appendInt32(b, 5, d.NumaNodeID)
	}
	for _, s := range d.ExtraInfo {
		b = appendRepeatedString(b, 6, s)
	}
	return b
}

func appendTensor(b []byte, t *TensorProto) []byte {
	if len(t.Dims) > 0 {
		var packed []byte
		for _, d := range t.Dims {
			packed = protowire.AppendVarint(packed, uint64(d))
		}
		b = appendMessage(b, 1, packed)
	}
	b = appendInt32(b, 2, t.DataType)
	if len(t.FloatData) > 0 {
		packed := make([]byte, 0, 4*len(t.FloatData))
		for _, f := range t.FloatData {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		b = appendMessage(b, 3, packed)
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(int64(v)))
		}
		b = appendMessage(b, 4, packed)
	}
	if t.ByteData != nil {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, t.ByteData)
	}
	for _, s := range t.StringData {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	b = appendString(b, 7, t.Name)
	if len(t.DoubleData) > 0 {
		packed := make([]byte, 0, 8*len(t.DoubleData))
		for _, f := range t.DoubleData {
			packed = protowire.AppendFixed64(packed, math.Float64bits(f))
		}
		b = appendMessage(b, 9, packed)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendMessage(b, 10, packed)
	}
	return b
}

// appendString writes an optional string field; empty strings are omitted.
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendRepeatedString(b, num, s)
}

func appendRepeatedString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
