package wgpu

import "errors"

var (
	// ErrNoBackend is returned when the Vulkan HAL backend is missing.
	ErrNoBackend = errors.New("wgpu: vulkan backend not available")

	// ErrNoAdapter is returned when no GPU adapter was enumerated.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")

	// ErrProvider is returned by FromProvider for unusable providers.
	ErrProvider = errors.New("wgpu: unsupported device provider")

	// ErrBufferTooLarge is returned for buffers over the device limit.
	ErrBufferTooLarge = errors.New("wgpu: buffer exceeds device limit")
)
