// Package gpucore defines the GPU abstraction the shade executor runs on.
//
// The [GPUAdapter] interface covers exactly what an image compute pipeline
// needs: buffers, WGSL shader modules, bind groups, compute pipelines, a
// command encoder with compute passes and buffer copies, and a blocking
// submit. Resources are referenced by opaque IDs so that adapters can keep
// their native handles private.
//
//	               +-----------------+
//	               |    executor     |
//	               +--------+--------+
//	                        | gpucore.GPUAdapter
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          | backend/software|
//	|  (hal.Device)   |          |  (CPU kernels)  |
//	+-----------------+          +-----------------+
//
// # Resource lifecycle
//
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and are never reused
//
// # Synchronization
//
// [GPUAdapter.Submit] blocks until the GPU has finished the submitted work.
// There is no internal timeout: a stalled driver blocks the caller.
// Callers that need bounded latency must supervise the process externally.
package gpucore
