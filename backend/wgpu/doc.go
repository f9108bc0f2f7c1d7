// Package wgpu runs shade compute pipelines on a GPU through the
// gogpu/wgpu HAL.
//
// Importing the package registers the "wgpu" backend:
//
//	import _ "github.com/gogpu/shade/backend/wgpu"
//
//	adapter, name, err := backend.OpenDefault()
//
// Open creates its own Vulkan instance and prefers discrete, then
// integrated GPUs. FromProvider reuses a device owned by a host
// application, such as a gogpu window, and never destroys it.
//
// Submit blocks until the GPU signals completion. Fence waits are retried
// without an overall timeout, so a long dispatch on a slow device is not
// reported as a failure.
//
// Build with -tags nogpu to drop the GPU dependency; the backend is then
// not registered and Open returns ErrNoBackend.
package wgpu
