//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/backend"
	"github.com/gogpu/shade/gpucore"
)

// fenceSlice is how long one fence wait blocks before it is retried.
// Completion waits have no overall bound.
const fenceSlice = time.Second

func init() {
	backend.Register(backend.BackendWGPU, func() (gpucore.GPUAdapter, error) {
		return Open()
	})
}

// Adapter implements gpucore.GPUAdapter on gogpu/wgpu/hal.
//
// Adapter is safe for concurrent use. Resource maps are guarded by a
// mutex; submissions are serialized so one fence wait covers one command
// buffer.
type Adapter struct {
	mu       sync.RWMutex
	submitMu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	info     gpucore.AdapterInfo
	limits   gpucore.Limits
	closed   bool

	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*halBuffer
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup
}

type halBuffer struct {
	buf  hal.Buffer
	size uint64
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

func newAdapter(device hal.Device, queue hal.Queue, info gpucore.AdapterInfo) *Adapter {
	lim := gputypes.DefaultLimits()
	limits := gpucore.DefaultLimits()
	if lim.MaxBufferSize > 0 {
		limits.MaxBufferSize = lim.MaxBufferSize
	}
	a := &Adapter{
		device:           device,
		queue:            queue,
		info:             info,
		limits:           limits,
		buffers:          make(map[gpucore.BufferID]*halBuffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

// Open creates a Vulkan instance, picks a discrete or integrated GPU when
// one exists and opens a device on it.
func Open() (*Adapter, error) {
	vk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, ErrNoBackend
	}
	instance, err := vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	a := newAdapter(openDev.Device, openDev.Queue, gpucore.AdapterInfo{
		Name:    selected.Info.Name,
		Backend: "vulkan",
	})
	a.instance = instance
	shade.Logger().Info("wgpu: adapter selected", "name", selected.Info.Name, "max_buffer", a.limits.MaxBufferSize)
	return a, nil
}

// FromProvider wraps a device owned by a host application. The provider
// must also expose HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue. Close leaves the shared device open.
func FromProvider(provider gpucontext.DeviceProvider) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: %w: provider does not expose HAL types", ErrProvider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: %w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: %w: HalQueue is not hal.Queue", ErrProvider)
	}
	a := newAdapter(device, queue, gpucore.AdapterInfo{Name: "shared", Backend: "vulkan"})
	a.external = true
	shade.Logger().Info("wgpu: using shared device", "surface_format", provider.SurfaceFormat())
	return a, nil
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Info describes the device.
func (a *Adapter) Info() gpucore.AdapterInfo { return a.info }

// Limits returns the device limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// CreateShaderModule compiles WGSL, or uses SPIR-V when it is provided.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	src := hal.ShaderSource{WGSL: desc.WGSL}
	if len(desc.SPIRV) > 0 {
		src = hal.ShaderSource{SPIRV: desc.SPIRV}
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: desc.Label, Source: src})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create shader module %q: %w", desc.Label, err)
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// CreateBuffer allocates a device buffer.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer %q has zero size", desc.Label)
	}
	if desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer %q: %w (%d > %d)",
			desc.Label, ErrBufferTooLarge, desc.Size, a.limits.MaxBufferSize)
	}
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer %q: %w", desc.Label, err)
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &halBuffer{buf: buf, size: desc.Size}
	a.mu.Unlock()
	shade.Logger().Debug("wgpu: buffer created", "label", desc.Label, "size", desc.Size)
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBuffer(b.buf)
	}
}

func (a *Adapter) buffer(id gpucore.BufferID) (*halBuffer, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("wgpu: buffer %d not found", id)
	}
	return b, nil
}

// WriteBuffer queues an upload.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b, err := a.buffer(id)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d overflows buffer %d", len(data), offset, id)
	}
	if len(data) > 0 {
		a.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

// ReadBuffer maps a MapRead buffer and copies it out.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	b, err := a.buffer(id)
	if err != nil {
		return err
	}
	if offset+uint64(len(dst)) > b.size {
		return fmt.Errorf("wgpu: read of %d bytes at %d overflows buffer %d", len(dst), offset, id)
	}
	if err := a.queue.ReadBuffer(b.buf, offset, dst); err != nil {
		return fmt.Errorf("wgpu: readback: %w", err)
	}
	return nil
}

// CreateBindGroupLayout creates a compute-visible buffer layout.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    e.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: convertBindingType(e.Type)},
		}
	}
	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group layout: %w", err)
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout combines bind group layouts.
func (a *Adapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		l, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", id)
		}
		halLayouts[i] = l
	}
	a.mu.RUnlock()

	pl, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: label, BindGroupLayouts: halLayouts})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pl
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	pl, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyPipelineLayout(pl)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	layout, layoutOK := a.pipelineLayouts[desc.Layout]
	module, moduleOK := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()
	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: pipeline layout %d not found", desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("wgpu: shader module %d not found", desc.ShaderModule)
	}

	p, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create %s pipeline: %w", desc.Label, err)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = p
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	p, ok := a.computePipelines[id]
	delete(a.computePipelines, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyComputePipeline(p)
	}
}

// CreateBindGroup binds buffer ranges to a layout.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group layout %d not found", desc.Layout)
	}
	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("wgpu: binding %d: buffer %d not found", e.Binding, e.Buffer)
		}
		size := e.Size
		if size == 0 {
			size = b.size - e.Offset
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: e.Offset, Size: size},
		}
	}
	a.mu.RUnlock()

	bg, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{Label: desc.Label, Layout: layout, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group: %w", err)
	}
	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = bg
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	bg, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroup(bg)
	}
}

// CreateCommandEncoder begins a HAL recording.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return &commandEncoder{adapter: a, enc: enc, label: label}, nil
}

// Submit submits cmd and waits on a fence until the GPU is done. The wait
// is retried in fenceSlice steps without an overall timeout.
func (a *Adapter) Submit(cmd gpucore.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb == nil {
		return fmt.Errorf("wgpu: foreign command buffer %T", cmd)
	}
	defer a.device.FreeCommandBuffer(cb.buf)

	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	fence, err := a.device.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpu: create fence: %w", err)
	}
	defer a.device.DestroyFence(fence)

	if err := a.queue.Submit([]hal.CommandBuffer{cb.buf}, fence, 1); err != nil {
		return fmt.Errorf("wgpu: submit %s: %w", cb.label, err)
	}
	for {
		done, err := a.device.Wait(fence, 1, fenceSlice)
		if err != nil {
			return fmt.Errorf("wgpu: wait for %s: %w", cb.label, err)
		}
		if done {
			return nil
		}
		shade.Logger().Debug("wgpu: still waiting for GPU", "label", cb.label)
	}
}

// Close releases every live resource and, unless the device is shared,
// the device and instance.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	for id, bg := range a.bindGroups {
		a.device.DestroyBindGroup(bg)
		delete(a.bindGroups, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b.buf)
		delete(a.buffers, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, pl := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(pl)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	if !a.external {
		a.device.Destroy()
		if a.instance != nil {
			a.instance.Destroy()
		}
	}
	return nil
}

func convertBufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u.Has(gpucore.BufferUsageMapRead) {
		out |= gputypes.BufferUsageMapRead
	}
	if u.Has(gpucore.BufferUsageMapWrite) {
		out |= gputypes.BufferUsageMapWrite
	}
	if u.Has(gpucore.BufferUsageCopySrc) {
		out |= gputypes.BufferUsageCopySrc
	}
	if u.Has(gpucore.BufferUsageCopyDst) {
		out |= gputypes.BufferUsageCopyDst
	}
	if u.Has(gpucore.BufferUsageUniform) {
		out |= gputypes.BufferUsageUniform
	}
	if u.Has(gpucore.BufferUsageStorage) {
		out |= gputypes.BufferUsageStorage
	}
	return out
}

func convertBindingType(t gpucore.BindingType) gputypes.BufferBindingType {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return gputypes.BufferBindingTypeUniform
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}
