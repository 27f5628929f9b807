// Package tensor provides the dtype-tagged tensor values stored in a workspace.
package tensor

// DataType identifies the element type of a tensor.
//
// Values match the data_type codes used by serialized TensorProto messages,
// so a DataType can be written to and read from the wire unchanged.
type DataType int32

// Supported data types.
const (
	Undefined DataType = 0
	Float     DataType = 1
	Int32     DataType = 2
	Byte      DataType = 3
	Uint8     DataType = 6
	Int64     DataType = 10
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float, Int32:
		return 4
	case Int64:
		return 8
	case Byte, Uint8:
		return 1
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float:
		return "float32"
	case Int32:
		return "int32"
	case Byte:
		return "byte"
	case Uint8:
		return "uint8"
	case Int64:
		return "int64"
	default:
		return "undefined"
	}
}

// Valid reports whether tensors of this type can be allocated.
func (dt DataType) Valid() bool {
	return dt.Size() > 0
}

// Storage returns the dtype whose backing slice holds the data; Byte maps to Uint8.
func (dt DataType) Storage() DataType {
	if dt == Byte {
		return Uint8
	}
	return dt
}
