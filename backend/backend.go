package backend

import (
	"errors"

	"github.com/gogpu/shade/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or no registered backend could open an adapter.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendWGPU is the name of the Vulkan backend built on gogpu/wgpu.
	BackendWGPU = "wgpu"
	// BackendSoftware is the name of the CPU reference backend.
	BackendSoftware = "software"
)

// Opener opens a GPU adapter. It is called once per server initialize or
// CLI run; the caller owns the adapter and must Close it.
type Opener func() (gpucore.GPUAdapter, error)
