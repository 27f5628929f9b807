// Package workspace holds named blobs and runs nets against them.
//
// A Workspace is the only state shared between pipeline stages: parameter
// tensors, data readers and registered nets all live here until Reset.
// A Workspace is not safe for concurrent use.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"

	"github.com/born-ml/lenet/internal/backend/cpu"
	"github.com/born-ml/lenet/internal/device"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/operators"
	"github.com/born-ml/lenet/internal/parallel"
	"github.com/born-ml/lenet/internal/tensor"
)

// Common errors.
var (
	ErrNetExists    = errors.New("net already exists")
	ErrNetNotFound  = errors.New("net not found")
	ErrMissingInput = errors.New("external input does not exist")
	ErrBlobNotFound = errors.New("blob not found")
)

// OperatorError reports the operator that failed during a run.
type OperatorError struct {
	Net   string // Net name
	Index int    // Operator position in the net
	Type  string // Operator type
	Err   error  // Underlying cause
}

// Error implements the error interface.
func (e *OperatorError) Error() string {
	return fmt.Sprintf("net %q op %d (%s): %v", e.Net, e.Index, e.Type, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OperatorError) Unwrap() error {
	return e.Err
}

// Options configures a Workspace.
type Options struct {
	Logger   *slog.Logger        // Default: slog.Default()
	Seed     uint64              // Seed for random fillers
	Parallel *parallel.Config    // Kernel worker pool; default sized by CPU cores
	Registry *operators.Registry // Default: operators.NewRegistry()
}

type net struct {
	def  *netdef.NetDef
	runs int64
}

// Workspace holds blobs and registered nets.
type Workspace struct {
	blobs    map[string]any
	nets     map[string]*net
	registry *operators.Registry
	backend  *cpu.CPUBackend
	logger   *slog.Logger
	rand     *rand.Rand
	seed     uint64
}

// New creates an empty workspace.
func New(opts Options) *Workspace {
	ws := &Workspace{
		blobs:    make(map[string]any),
		nets:     make(map[string]*net),
		registry: opts.Registry,
		logger:   opts.Logger,
		seed:     opts.Seed,
	}
	if ws.registry == nil {
		ws.registry = operators.NewRegistry()
	}
	if ws.logger == nil {
		ws.logger = slog.Default()
	}
	if opts.Parallel != nil {
		ws.backend = cpu.NewWithConfig(*opts.Parallel)
	} else {
		ws.backend = cpu.New()
	}
	ws.rand = newRand(opts.Seed)
	return ws
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Blob returns a blob by name.
func (ws *Workspace) Blob(name string) (any, bool) {
	v, ok := ws.blobs[name]
	return v, ok
}

// SetBlob stores a value under name, replacing any previous value.
func (ws *Workspace) SetBlob(name string, v any) {
	ws.blobs[name] = v
}

// HasBlob reports whether a blob exists.
func (ws *Workspace) HasBlob(name string) bool {
	_, ok := ws.blobs[name]
	return ok
}

// Blobs returns all blob names, sorted.
func (ws *Workspace) Blobs() []string {
	names := make([]string, 0, len(ws.blobs))
	for name := range ws.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeedBlob copies t into the named blob. An existing tensor of the same
// dtype is updated in place so nets that hold it see the new value.
func (ws *Workspace) FeedBlob(name string, t *tensor.Tensor) error {
	if cur, ok := ws.blobs[name].(*tensor.Tensor); ok && cur.DType() == t.DType() {
		return cur.CopyFrom(t)
	}
	ws.blobs[name] = t.Clone()
	return nil
}

// FetchBlob returns a copy of the named tensor blob.
func (ws *Workspace) FetchBlob(name string) (*tensor.Tensor, error) {
	v, ok := ws.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBlobNotFound, name)
	}
	t, ok := v.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, want tensor", operators.ErrBlobType, name, v)
	}
	return t.Clone(), nil
}

// Tensor returns the live tensor stored under name, without copying.
func (ws *Workspace) Tensor(name string) (*tensor.Tensor, error) {
	v, ok := ws.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBlobNotFound, name)
	}
	t, ok := v.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, want tensor", operators.ErrBlobType, name, v)
	}
	return t, nil
}

// RunNetOnce runs a net a single time without registering it.
func (ws *Workspace) RunNetOnce(def *netdef.NetDef) error {
	if err := ws.validate(def); err != nil {
		return err
	}
	return ws.run(def, 0)
}

// CreateNet registers a net for repeated runs. All external inputs must
// already exist as blobs.
func (ws *Workspace) CreateNet(def *netdef.NetDef, overwrite bool) error {
	if def.Name == "" {
		return errors.New("workspace: net has no name")
	}
	if _, ok := ws.nets[def.Name]; ok && !overwrite {
		return fmt.Errorf("%w: %q", ErrNetExists, def.Name)
	}
	if err := ws.validate(def); err != nil {
		return err
	}
	for _, in := range def.ExternalInput {
		if !ws.HasBlob(in) {
			return fmt.Errorf("net %q: %w: %q", def.Name, ErrMissingInput, in)
		}
	}
	ws.nets[def.Name] = &net{def: def.Clone()}
	return nil
}

// Net returns a copy of a registered net.
func (ws *Workspace) Net(name string) (*netdef.NetDef, bool) {
	n, ok := ws.nets[name]
	if !ok {
		return nil, false
	}
	return n.def.Clone(), true
}

// Nets returns registered net names, sorted.
func (ws *Workspace) Nets() []string {
	names := make([]string, 0, len(ws.nets))
	for name := range ws.nets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNet runs a registered net iters times. The first failing operator
// aborts the run.
func (ws *Workspace) RunNet(name string, iters int) error {
	n, ok := ws.nets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNetNotFound, name)
	}
	for i := 0; i < iters; i++ {
		if err := ws.run(n.def, n.runs); err != nil {
			return err
		}
		n.runs++
	}
	return nil
}

// Runs returns how many times a registered net has completed.
func (ws *Workspace) Runs(name string) int64 {
	if n, ok := ws.nets[name]; ok {
		return n.runs
	}
	return 0
}

func (ws *Workspace) validate(def *netdef.NetDef) error {
	if err := device.ValidateNet(def); err != nil {
		return err
	}
	for i := range def.Op {
		if !ws.registry.Supports(def.Op[i].Type) {
			return &OperatorError{Net: def.Name, Index: i, Type: def.Op[i].Type, Err: operators.ErrUnsupportedOp}
		}
	}
	return nil
}

func (ws *Workspace) run(def *netdef.NetDef, runIndex int64) error {
	ctx := &operators.Context{
		Blobs:    ws,
		Backend:  ws.backend,
		Logger:   ws.logger,
		Rand:     ws.rand,
		RunIndex: runIndex,
	}
	for i := range def.Op {
		if err := ws.registry.Execute(ctx, &def.Op[i]); err != nil {
			return &OperatorError{Net: def.Name, Index: i, Type: def.Op[i].Type, Err: err}
		}
	}
	return nil
}

// Reset closes blobs that hold resources and clears all blobs and nets.
// The random source is reseeded so a reset workspace behaves like a new one.
func (ws *Workspace) Reset() error {
	var errs []error
	for name, v := range ws.blobs {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %q: %w", name, err))
			}
		}
	}
	clear(ws.blobs)
	clear(ws.nets)
	ws.rand = newRand(ws.seed)
	return errors.Join(errs...)
}

// Close releases all resources held by the workspace.
func (ws *Workspace) Close() error {
	return ws.Reset()
}
