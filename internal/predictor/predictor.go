package predictor

import (
	"fmt"

	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/tensor"
	"github.com/born-ml/lenet/internal/workspace"
)

// Predictor runs a loaded predict net in a private workspace.
type Predictor struct {
	ws  *workspace.Workspace
	net *netdef.NetDef
}

// New loads both artifacts into a new workspace.
func New(initBytes, predictBytes []byte, opts workspace.Options) (*Predictor, error) {
	ws := workspace.New(opts)
	net, err := Load(ws, initBytes, predictBytes)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	if len(net.ExternalInput) == 0 || len(net.ExternalOutput) == 0 {
		_ = ws.Close()
		return nil, fmt.Errorf("predict net %q: needs at least one external input and output", net.Name)
	}
	return &Predictor{ws: ws, net: net}, nil
}

// NewFromDir loads the artifacts stored in dir.
func NewFromDir(dir string, opts workspace.Options) (*Predictor, error) {
	initBytes, predictBytes, err := ReadFiles(dir)
	if err != nil {
		return nil, err
	}
	return New(initBytes, predictBytes, opts)
}

// Input returns the blob Run feeds.
func (p *Predictor) Input() string { return p.net.ExternalInput[0] }

// Output returns the blob Run fetches.
func (p *Predictor) Output() string { return p.net.ExternalOutput[0] }

// RunID returns the run id stamped into the predict net, if any.
func (p *Predictor) RunID() string { return p.net.ArgString(RunIDArg, "") }

// Run feeds input, runs the predict net once and returns a copy of the output.
func (p *Predictor) Run(input *tensor.Tensor) (*tensor.Tensor, error) {
	if err := p.ws.FeedBlob(p.Input(), input); err != nil {
		return nil, fmt.Errorf("feed %q: %w", p.Input(), err)
	}
	if err := p.ws.RunNet(p.net.Name, 1); err != nil {
		return nil, err
	}
	return p.ws.FetchBlob(p.Output())
}

// Close releases the workspace.
func (p *Predictor) Close() error {
	return p.ws.Close()
}
