package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lenet/internal/netdef"
)

func TestProbe(t *testing.T) {
	info := Probe()
	assert.GreaterOrEqual(t, info.LogicalCores, 1)
	assert.GreaterOrEqual(t, info.PhysicalCores, 1)
	assert.NotEmpty(t, info.String())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.NoError(t, Validate(CPU()))

	err := Validate(&netdef.DeviceOption{DeviceType: netdef.DeviceCUDA})
	require.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "CUDA")
}

func TestValidateNet(t *testing.T) {
	n := &netdef.NetDef{Name: "predict"}
	n.AddOp(netdef.OperatorDef{Type: "Relu"})
	require.NoError(t, ValidateNet(n))

	n.Op[0].DeviceOption = &netdef.DeviceOption{DeviceType: netdef.DeviceOpenCL}
	err := ValidateNet(n)
	require.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "Relu")
}
