// Package backend selects the GPU adapter implementation.
//
// Backends register an Opener from their init() functions and are chosen
// at runtime by name or by priority:
//
//	import (
//		_ "github.com/gogpu/shade/backend/software"
//		_ "github.com/gogpu/shade/backend/wgpu"
//	)
//
//	adapter, name, err := backend.OpenDefault()
//
// # Available Backends
//
//   - "wgpu": Vulkan through gogpu/wgpu HAL (excluded by the nogpu build tag)
//   - "software": CPU reference implementation (always available)
package backend
