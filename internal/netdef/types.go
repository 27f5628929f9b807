package netdef

// Device types (DeviceOption.DeviceType).
const (
	DeviceCPU    = 0
	DeviceCUDA   = 1
	DeviceMKLDNN = 2
	DeviceOpenGL = 3
	DeviceOpenCL = 4
	DeviceIDEEP  = 5
	DeviceHIP    = 6
)

// DeviceOption describes where a net or operator runs.
type DeviceOption struct {
	DeviceType int32    // One of the Device* constants
	DeviceID   int32    // Device ordinal for accelerators
	RandomSeed uint32   // Seed for random fillers (0 = workspace default)
	NodeName   string   // Host name for distributed runs
	NumaNodeID int32    // NUMA node hint
	ExtraInfo  []string // Free-form engine hints
}

// Clone returns a copy of the option, or nil for a nil receiver.
func (d *DeviceOption) Clone() *DeviceOption {
	if d == nil {
		return nil
	}
	c := *d
	c.ExtraInfo = append([]string(nil), d.ExtraInfo...)
	return &c
}

// ArgKind tells which value field of an Argument is set.
type ArgKind int

// Argument kinds.
const (
	ArgUnset ArgKind = iota
	ArgFloat
	ArgInt
	ArgString
	ArgFloats
	ArgInts
	ArgStrings
)

// Argument is a named operator or net attribute.
type Argument struct {
	Name    string
	Kind    ArgKind
	F       float32
	I       int64
	S       []byte
	Floats  []float32
	Ints    []int64
	Strings [][]byte
}

// OperatorDef is a single operator in a net.
type OperatorDef struct {
	Input        []string
	Output       []string
	Name         string
	Type         string
	Arg          []Argument
	DeviceOption *DeviceOption
	Engine       string
	ControlInput []string
	IsGradientOp bool
	DebugInfo    string
}

// NetDef is an ordered list of operators plus its external interface.
type NetDef struct {
	Name           string
	Op             []OperatorDef
	Type           string
	NumWorkers     int32
	DeviceOption   *DeviceOption
	Arg            []Argument
	ExternalInput  []string
	ExternalOutput []string
}

// TensorProto is a serialized tensor.
type TensorProto struct {
	Dims       []int64
	DataType   int32
	FloatData  []float32
	Int32Data  []int32
	ByteData   []byte
	StringData [][]byte
	Name       string
	DoubleData []float64
	Int64Data  []int64
}

// TensorProtos is a list of tensors; one database record.
type TensorProtos struct {
	Protos []TensorProto
}

// Clone returns a deep copy of the operator.
func (op *OperatorDef) Clone() OperatorDef {
	c := OperatorDef{
		Input:        append([]string(nil), op.Input...),
		Output:       append([]string(nil), op.Output...),
		Name:         op.Name,
		Type:         op.Type,
		DeviceOption: op.DeviceOption.Clone(),
		Engine:       op.Engine,
		ControlInput: append([]string(nil), op.ControlInput...),
		IsGradientOp: op.IsGradientOp,
		DebugInfo:    op.DebugInfo,
	}
	c.Arg = cloneArgs(op.Arg)
	return c
}

// Clone returns a deep copy of the net.
func (n *NetDef) Clone() *NetDef {
	c := &NetDef{
		Name:           n.Name,
		Type:           n.Type,
		NumWorkers:     n.NumWorkers,
		DeviceOption:   n.DeviceOption.Clone(),
		Arg:            cloneArgs(n.Arg),
		ExternalInput:  append([]string(nil), n.ExternalInput...),
		ExternalOutput: append([]string(nil), n.ExternalOutput...),
	}
	c.Op = make([]OperatorDef, len(n.Op))
	for i := range n.Op {
		c.Op[i] = n.Op[i].Clone()
	}
	return c
}

// AddOp appends an operator and returns a pointer to it.
func (n *NetDef) AddOp(op OperatorDef) *OperatorDef {
	n.Op = append(n.Op, op)
	return &n.Op[len(n.Op)-1]
}

// AddExternalInput records blobs that must exist before the net runs.
// Duplicates are ignored.
func (n *NetDef) AddExternalInput(names ...string) {
	n.ExternalInput = appendUnique(n.ExternalInput, names...)
}

// AddExternalOutput records blobs the net is expected to produce.
// Duplicates are ignored.
func (n *NetDef) AddExternalOutput(names ...string) {
	n.ExternalOutput = appendUnique(n.ExternalOutput, names...)
}

func appendUnique(list []string, names ...string) []string {
	for _, name := range names {
		found := false
		for _, have := range list {
			if have == name {
				found = true
				break
			}
		}
		if !found {
			list = append(list, name)
		}
	}
	return list
}

func cloneArgs(args []Argument) []Argument {
	if args == nil {
		return nil
	}
	out := make([]Argument, len(args))
	for i, a := range args {
		out[i] = Argument{
			Name:   a.Name,
			Kind:   a.Kind,
			F:      a.F,
			I:      a.I,
			S:      append([]byte(nil), a.S...),
			Floats: append([]float32(nil), a.Floats...),
			Ints:   append([]int64(nil), a.Ints...),
		}
		for _, s := range a.Strings {
			out[i].Strings = append(out[i].Strings, append([]byte(nil), s...))
		}
	}
	return out
}
