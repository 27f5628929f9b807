package netdef

// FloatArg builds a float argument.
func FloatArg(name string, v float32) Argument {
	return Argument{Name: name, Kind: ArgFloat, F: v}
}

// IntArg builds an integer argument.
func IntArg(name string, v int64) Argument {
	return Argument{Name: name, Kind: ArgInt, I: v}
}

// StringArg builds a string argument.
func StringArg(name, v string) Argument {
	return Argument{Name: name, Kind: ArgString, S: []byte(v)}
}

// FloatsArg builds a float list argument.
func FloatsArg(name string, v []float32) Argument {
	return Argument{Name: name, Kind: ArgFloats, Floats: v}
}

// IntsArg builds an integer list argument.
func IntsArg(name string, v []int64) Argument {
	return Argument{Name: name, Kind: ArgInts, Ints: v}
}

// FindArg returns the named argument or nil.
func FindArg(args []Argument, name string) *Argument {
	for i := range args {
		if args[i].Name == name {
			return &args[i]
		}
	}
	return nil
}

// ArgInt returns an integer argument or the default value.
func (op *OperatorDef) ArgInt(name string, defaultVal int64) int64 {
	if a := FindArg(op.Arg, name); a != nil {
		return a.I
	}
	return defaultVal
}

// ArgFloat returns a float argument or the default value.
// Integer arguments are accepted and converted.
func (op *OperatorDef) ArgFloat(name string, defaultVal float32) float32 {
	if a := FindArg(op.Arg, name); a != nil {
		if a.Kind == ArgInt {
			return float32(a.I)
		}
		return a.F
	}
	return defaultVal
}

// ArgString returns a string argument or the default value.
func (op *OperatorDef) ArgString(name, defaultVal string) string {
	if a := FindArg(op.Arg, name); a != nil {
		return string(a.S)
	}
	return defaultVal
}

// ArgInts returns an integer list argument.
func (op *OperatorDef) ArgInts(name string) []int64 {
	if a := FindArg(op.Arg, name); a != nil {
		return a.Ints
	}
	return nil
}

// ArgFloats returns a float list argument.
func (op *OperatorDef) ArgFloats(name string) []float32 {
	if a := FindArg(op.Arg, name); a != nil {
		return a.Floats
	}
	return nil
}

// ArgString returns a net-level string argument or the default value.
func (n *NetDef) ArgString(name, defaultVal string) string {
	if a := FindArg(n.Arg, name); a != nil {
		return string(a.S)
	}
	return defaultVal
}
