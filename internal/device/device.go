// Package device probes the host CPU and validates net device options.
//
// Only CPU execution is supported. Nets that request an accelerator are
// rejected before any operator runs.
package device

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/lenet/internal/netdef"
)

// ErrUnsupportedDevice is returned for any non-CPU device option.
var ErrUnsupportedDevice = errors.New("unsupported device")

// Info summarizes the host CPU.
type Info struct {
	Vendor        string
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string // SIMD features relevant to dense kernels
}

// simdFeatures are reported in Info.Features when present.
var simdFeatures = []cpuid.FeatureID{
	cpuid.SSE2, cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F,
	cpuid.ASIMD,
}

// Probe reads the CPU description.
func Probe() Info {
	info := Info{
		Vendor:        cpuid.CPU.VendorString,
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if info.LogicalCores <= 0 {
		info.LogicalCores = runtime.NumCPU()
	}
	if info.PhysicalCores <= 0 {
		info.PhysicalCores = info.LogicalCores
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	return info
}

// String returns a one-line description for logs.
func (i Info) String() string {
	return fmt.Sprintf("%s (%d cores, %d threads)", i.Brand, i.PhysicalCores, i.LogicalCores)
}

// CPU returns the device option for host execution.
func CPU() *netdef.DeviceOption {
	return &netdef.DeviceOption{DeviceType: netdef.DeviceCPU}
}

// Validate accepts nil (CPU by default) and CPU options.
func Validate(opt *netdef.DeviceOption) error {
	if opt == nil || opt.DeviceType == netdef.DeviceCPU {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedDevice, Name(opt.DeviceType))
}

// Name returns the display name of a device type.
func Name(deviceType int32) string {
	switch deviceType {
	case netdef.DeviceCPU:
		return "CPU"
	case netdef.DeviceCUDA:
		return "CUDA"
	case netdef.DeviceMKLDNN:
		return "MKLDNN"
	case netdef.DeviceOpenGL:
		return "OpenGL"
	case netdef.DeviceOpenCL:
		return "OpenCL"
	case netdef.DeviceIDEEP:
		return "IDEEP"
	case netdef.DeviceHIP:
		return "HIP"
	default:
		return fmt.Sprintf("device(%d)", deviceType)
	}
}

// ValidateNet checks the net-level option and every operator option.
func ValidateNet(n *netdef.NetDef) error {
	if err := Validate(n.DeviceOption); err != nil {
		return fmt.Errorf("net %q: %w", n.Name, err)
	}
	for i := range n.Op {
		if err := Validate(n.Op[i].DeviceOption); err != nil {
			return fmt.Errorf("net %q op %d (%s): %w", n.Name, i, n.Op[i].Type, err)
		}
	}
	return nil
}
