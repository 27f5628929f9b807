package operators

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
)

// Common errors.
var (
	ErrUnsupportedOp = errors.New("unsupported operator")
	ErrMissingBlob   = errors.New("blob does not exist")
	ErrBlobType      = errors.New("blob has unexpected type")
	ErrArity         = errors.New("wrong number of inputs or outputs")
	ErrShape         = errors.New("shape mismatch")
	ErrArgument      = errors.New("invalid argument")
)

// Blobs is the named value store operators read from and write to.
type Blobs interface {
	Blob(name string) (any, bool)
	SetBlob(name string, v any)
}

// OpHandler runs one operator against the blobs in ctx.
type OpHandler func(ctx *Context, op *netdef.OperatorDef) error

// Context provides blobs, kernels and run state to operators.
type Context struct {
	Blobs   Blobs
	Backend *cpu.CPUBackend
	Logger  *slog.Logger
	Rand    *rand.Rand

	// RunIndex counts previous runs of the net being executed.
	RunIndex int64
}

// Registry maps operator types to handler functions.
type Registry struct {
	handlers map[string]OpHandler
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]OpHandler),
	}

	r.registerDataOps()
	r.registerFillOps()
	r.registerLayerOps()
	r.registerLossOps()
	r.registerTrainOps()
	r.registerGradientOps()

	return r
}

// Register adds a custom operator handler.
func (r *Registry) Register(opType string, handler OpHandler) {
	r.handlers[opType] = handler
}

// Supports reports whether opType has a handler.
func (r *Registry) Supports(opType string) bool {
	_, ok := r.handlers[opType]
	return ok
}

// Execute runs an operator.
func (r *Registry) Execute(ctx *Context, op *netdef.OperatorDef) error {
	handler, ok := r.handlers[op.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedOp, op.Type)
	}
	return handler(ctx, op)
}

// SupportedOps returns all supported operator types, sorted.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// checkIO validates input and output counts. A negative max means unbounded.
func checkIO(op *netdef.OperatorDef, minIn, maxIn, minOut, maxOut int) error {
	in, out := len(op.Input), len(op.Output)
	if in < minIn || (maxIn >= 0 && in > maxIn) {
		return fmt.Errorf("%w: %s takes %s inputs, got %d", ErrArity, op.Type, bounds(minIn, maxIn), in)
	}
	if out < minOut || (maxOut >= 0 && out > maxOut) {
		return fmt.Errorf("%w: %s takes %s outputs, got %d", ErrArity, op.Type, bounds(minOut, maxOut), out)
	}
	return nil
}

func bounds(lo, hi int) string {
	switch {
	case lo == hi:
		return fmt.Sprint(lo)
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

// Tensor returns the named blob as a tensor.
func (c *Context) Tensor(name string) (*tensor.Tensor, error) {
	v, ok := c.Blobs.Blob(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingBlob, name)
	}
	t, ok := v.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, want tensor", ErrBlobType, name, v)
	}
	return t, nil
}

// Input returns input i of op as a tensor.
func (c *Context) Input(op *netdef.OperatorDef, i int) (*tensor.Tensor, error) {
	return c.Tensor(op.Input[i])
}

// FloatInput returns input i of op, which must be float32.
func (c *Context) FloatInput(op *netdef.OperatorDef, i int) (*tensor.Tensor, error) {
	t, err := c.Input(op, i)
	if err != nil {
		return nil, err
	}
	if t.DType() != tensor.Float {
		return nil, fmt.Errorf("%w: %q is %s, want float32", tensor.ErrDTypeMismatch, op.Input[i], t.DType())
	}
	return t, nil
}

// Output returns a tensor of the given shape and dtype stored under output i.
// An existing tensor with the same dtype is resized and reused.
func (c *Context) Output(op *netdef.OperatorDef, i int, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	name := op.Output[i]
	if v, ok := c.Blobs.Blob(name); ok {
		if t, ok := v.(*tensor.Tensor); ok && t.DType() == dtype {
			if !t.Shape().Equal(shape) {
				t.Resize(shape)
			}
			return t, nil
		}
	}
	t, err := tensor.New(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("output %q: %w", name, err)
	}
	c.Blobs.SetBlob(name, t)
	return t, nil
}

// logger returns the context logger or the default one.
func (c *Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
