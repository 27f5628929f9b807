package predictor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/lenet/internal/netdef"
)

// Artifact file names.
const (
	InitNetFile    = "mnist_init_net.pb"
	PredictNetFile = "mnist_predict_net.pb"
)

// Artifact describes a written net file.
type Artifact struct {
	Path   string
	Size   int
	SHA256 string
}

// Marshal encodes both nets.
func Marshal(initNet, predictNet *netdef.NetDef) (initBytes, predictBytes []byte) {
	return netdef.MarshalNet(initNet), netdef.MarshalNet(predictNet)
}

// SaveFiles writes both nets into dir and returns what was written.
func SaveFiles(dir string, initNet, predictNet *netdef.NetDef) ([]Artifact, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	initBytes, predictBytes := Marshal(initNet, predictNet)
	var out []Artifact
	for _, f := range []struct {
		name string
		data []byte
	}{
		{PredictNetFile, predictBytes},
		{InitNetFile, initBytes},
	} {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		sum := sha256.Sum256(f.data)
		out = append(out, Artifact{Path: path, Size: len(f.data), SHA256: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

// ReadFiles reads the raw artifacts from dir.
func ReadFiles(dir string) (initBytes, predictBytes []byte, err error) {
	//nolint:gosec // G304: artifact directory comes from configuration
	initBytes, err = os.ReadFile(filepath.Join(dir, InitNetFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read init net: %w", err)
	}
	//nolint:gosec // G304: artifact directory comes from configuration
	predictBytes, err = os.ReadFile(filepath.Join(dir, PredictNetFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read predict net: %w", err)
	}
	return initBytes, predictBytes, nil
}
