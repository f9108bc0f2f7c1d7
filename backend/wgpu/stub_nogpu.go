//go:build nogpu

package wgpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/shade/gpucore"
)

// Adapter is unavailable in nogpu builds.
type Adapter struct {
	gpucore.GPUAdapter
}

// Open always fails in nogpu builds.
func Open() (*Adapter, error) { return nil, ErrNoBackend }

// FromProvider always fails in nogpu builds.
func FromProvider(gpucontext.DeviceProvider) (*Adapter, error) { return nil, ErrNoBackend }
