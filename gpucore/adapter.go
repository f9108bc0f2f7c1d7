package gpucore

// GPUAdapter abstracts over GPU backend implementations.
//
// Implementations must be safe for concurrent use: the executor serializes
// its own submissions, but a server may hold several executors on one
// adapter.
type GPUAdapter interface {
	// Info describes the underlying device.
	Info() AdapterInfo

	// Limits returns the device limits.
	Limits() Limits

	// CreateShaderModule compiles a shader module.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateBuffer allocates a buffer. Fails if Size exceeds
	// Limits().MaxBufferSize.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer uploads data at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer maps a MapRead buffer, copies len(dst) bytes from offset
	// and unmaps it. All submitted work touching the buffer must be done.
	ReadBuffer(id BufferID, offset uint64, dst []byte) error

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout combines bind group layouts.
	CreatePipelineLayout(label string, layouts []BindGroupLayoutID) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup binds resources to a layout.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// CreateCommandEncoder starts recording commands.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit executes a finished command buffer and blocks until the GPU
	// signals completion. The command buffer is consumed.
	Submit(cmd CommandBuffer) error

	// Close releases the device. Resources that were not destroyed are
	// released with it.
	Close() error
}

// CommandEncoder records compute passes and copies.
//
// Usage:
//  1. Obtain an encoder from GPUAdapter.CreateCommandEncoder
//  2. Record passes and copies
//  3. Call Finish to get a CommandBuffer, or Discard to abandon it
//
// The encoder is single-use.
type CommandEncoder interface {
	// BeginComputePass starts a compute pass. The pass must be ended
	// before another pass begins or the encoder is finished.
	BeginComputePass(label string) ComputePassEncoder

	// CopyBufferToBuffer records a copy of size bytes.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset uint64, size uint64)

	// Finish ends recording.
	Finish() (CommandBuffer, error)

	// Discard abandons the recording.
	Discard()
}

// CommandBuffer is a finished recording ready for GPUAdapter.Submit.
type CommandBuffer interface {
	Label() string
}

// ComputePassEncoder records compute commands.
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets the bind group at index.
	SetBindGroup(index uint32, group BindGroupID)

	// Dispatch dispatches x*y*z workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the pass.
	End()
}
