// Package shade is a node-based GPU compute pipeline for image color grading,
// driven either directly or as an out-of-process service.
//
// # Overview
//
// An image is run through a [graph.Graph] of operations (brightness, contrast,
// levels, blur, resize and so on). The [executor.Executor] compiles one WGSL
// compute pipeline per operation kind and dispatches them in topological
// order on a [gpucore.GPUAdapter]. Images too large for a single GPU buffer
// are split into square tiles and reassembled.
//
// The same pipeline is exposed over a framed protocol (package protocol):
// a JSON control message followed by raw, length-prefixed binary
// attachments. Package server implements the request state machine and
// cmd/shade runs it on stdin/stdout with --socket.
//
// # Quick Start
//
//	adapter, err := wgpu.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exec, err := executor.New(adapter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	g, _ := graph.BuildChain([]graph.Params{
//	    graph.Brightness{Value: 0.1},
//	    graph.Contrast{Value: 1.2},
//	})
//	out, err := exec.Process(g, img)
//
// # Backends
//
//   - backend/wgpu: Vulkan through the pure-Go gogpu/wgpu HAL
//   - backend/software: CPU reference kernels, used for tests and hosts
//     without a GPU
//
// # Logging
//
// shade produces no log output by default. See [SetLogger].
package shade

// Version information
const (
	// Version is the current version of the module
	Version = "0.3.0"

	// Name is reported as server_info.name by the request server
	Name = "shade-image-processor"
)
