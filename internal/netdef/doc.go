// Package netdef defines the serialized form of nets, operators and tensors.
//
// The message layout follows the caffe2 NetDef family so that exported
// artifacts stay readable by other tooling built around that schema:
//
//	NetDef        name, op[], device_option, arg[], external_input[], external_output[]
//	OperatorDef   input[], output[], name, type, arg[], device_option, engine
//	Argument      name plus one of f, i, s, floats, ints, strings
//	TensorProto   dims[], data_type, float_data, int32_data, byte_data, int64_data, name
//	TensorProtos  protos[]
//
// Encoding and decoding use the protobuf wire primitives from
// google.golang.org/protobuf/encoding/protowire; there is no generated code.
// Unknown fields are skipped on decode and never emitted on encode.
package netdef
