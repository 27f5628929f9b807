package predictor

import (
	"fmt"

	"github.com/born-ml/lenet/internal/device"
	"github.com/born-ml/lenet/internal/netdef"
	"github.com/born-ml/lenet/internal/workspace"
)

// Load resets ws, decodes both artifacts, runs the init net and registers
// the predict net. It returns the decoded predict net.
//
// Both nets and all of their operators are pinned to the CPU regardless
// of what the artifacts say.
func Load(ws *workspace.Workspace, initBytes, predictBytes []byte) (*netdef.NetDef, error) {
	if err := ws.Reset(); err != nil {
		return nil, fmt.Errorf("reset workspace: %w", err)
	}
	initNet, err := netdef.UnmarshalNet(initBytes)
	if err != nil {
		return nil, fmt.Errorf("decode init net: %w", err)
	}
	predictNet, err := netdef.UnmarshalNet(predictBytes)
	if err != nil {
		return nil, fmt.Errorf("decode predict net: %w", err)
	}
	pinCPU(initNet)
	pinCPU(predictNet)

	if err := ws.RunNetOnce(initNet); err != nil {
		return nil, fmt.Errorf("run init net: %w", err)
	}
	for _, in := range predictNet.ExternalInput {
		if !ws.HasBlob(in) {
			return nil, &GraphBindingError{Net: predictNet.Name, Blob: in, Err: ErrUnboundInput}
		}
	}
	if err := ws.CreateNet(predictNet, true); err != nil {
		return nil, fmt.Errorf("create predict net: %w", err)
	}
	return predictNet, nil
}

// pinCPU places the net on the CPU and drops per-operator device options.
func pinCPU(n *netdef.NetDef) {
	n.DeviceOption = device.CPU()
	for i := range n.Op {
		n.Op[i].DeviceOption = nil
	}
}

// LoadFiles is Load over the artifacts in dir.
func LoadFiles(ws *workspace.Workspace, dir string) (*netdef.NetDef, error) {
	initBytes, predictBytes, err := ReadFiles(dir)
	if err != nil {
		return nil, err
	}
	return Load(ws, initBytes, predictBytes)
}
