package gpucore

// Resource identifiers. Zero is never a valid ID.
type (
	BufferID          uint64
	ShaderModuleID    uint64
	ComputePipelineID uint64
	BindGroupLayoutID uint64
	BindGroupID       uint64
	PipelineLayoutID  uint64
)

// InvalidID is the zero value of every ID type.
const InvalidID = 0

// BufferUsage is a bitmask of how a buffer may be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageMapRead  BufferUsage = 1 << 0
	BufferUsageMapWrite BufferUsage = 1 << 1
	BufferUsageCopySrc  BufferUsage = 1 << 2
	BufferUsageCopyDst  BufferUsage = 1 << 3
	BufferUsageUniform  BufferUsage = 1 << 6
	BufferUsageStorage  BufferUsage = 1 << 7
)

// Has reports whether all flags in f are set.
func (u BufferUsage) Has(f BufferUsage) bool { return u&f == f }

// BindingType describes the resource type of a bind group layout entry.
type BindingType uint32

// Binding types.
const (
	BindingTypeUniformBuffer BindingType = iota + 1
	BindingTypeStorageBuffer
	BindingTypeReadOnlyStorageBuffer
)

// String returns a short name for logs.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeStorageBuffer:
		return "storage"
	case BindingTypeReadOnlyStorageBuffer:
		return "read-only-storage"
	default:
		return "unknown"
	}
}

// Limits reports device limits relevant to image processing.
type Limits struct {
	// MaxBufferSize is the largest single buffer the device can allocate.
	// Images whose padded staging size exceeds it are tiled.
	MaxBufferSize uint64

	// CopyBytesPerRowAlignment is the row pitch granularity for copies
	// between buffers and images. 256 on WebGPU.
	CopyBytesPerRowAlignment uint32

	// MaxComputeWorkgroupsPerDimension bounds each dispatch axis.
	MaxComputeWorkgroupsPerDimension uint32
}

// Default WebGPU limits.
const (
	DefaultMaxBufferSize            = 256 << 20
	DefaultCopyBytesPerRowAlignment = 256
	DefaultMaxWorkgroupsPerDim      = 65535
)

// DefaultLimits returns the WebGPU baseline limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:                    DefaultMaxBufferSize,
		CopyBytesPerRowAlignment:         DefaultCopyBytesPerRowAlignment,
		MaxComputeWorkgroupsPerDimension: DefaultMaxWorkgroupsPerDim,
	}
}

// AdapterInfo describes the device behind an adapter.
type AdapterInfo struct {
	Name    string
	Backend string
	Vendor  string
}

// BufferDesc describes a buffer to create.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// ShaderModuleDesc describes a shader module.
// WGSL is the source text. SPIRV, when set, is a precompiled form of the
// same source that adapters may prefer.
type ShaderModuleDesc struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label        string
	Layout       PipelineLayoutID
	ShaderModule ShaderModuleID
	EntryPoint   string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding slot, visible to the
// compute stage.
type BindGroupLayoutEntry struct {
	Binding uint32
	Type    BindingType
}

// BindGroupDesc binds buffers to a layout.
type BindGroupDesc struct {
	Label   string
	Layout  BindGroupLayoutID
	Entries []BindGroupEntry
}

// BindGroupEntry binds a buffer range to a slot. A zero Size binds the
// whole buffer from Offset.
type BindGroupEntry struct {
	Binding uint32
	Buffer  BufferID
	Offset  uint64
	Size    uint64
}
