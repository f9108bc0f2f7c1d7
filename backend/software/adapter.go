// Package software implements gpucore.GPUAdapter on the CPU.
//
// It executes the same operations as the WGSL shaders with Go kernels, so
// the executor can run unchanged on hosts without a GPU and in tests. The
// adapter enforces the rules a real device would: buffer size limits,
// usage flags on bindings, copies and mapping, and binding types matching
// their layout.
//
// Shader modules are resolved by label: the label must be an operation
// kind name such as "brightness". The WGSL source is not interpreted.
package software

import (
	"fmt"
	"sync"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/backend"
	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/parallel"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.GPUAdapter, error) {
		return New(), nil
	})
}

// Adapter is a CPU implementation of gpucore.GPUAdapter.
type Adapter struct {
	mu     sync.Mutex
	limits gpucore.Limits
	pool   *parallel.WorkerPool
	nextID uint64
	closed bool

	buffers   map[gpucore.BufferID]*buffer
	modules   map[gpucore.ShaderModuleID]graph.Kind
	layouts   map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry
	pipeLays  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines map[gpucore.ComputePipelineID]*pipeline
	groups    map[gpucore.BindGroupID]*bindGroup

	submits int
}

type buffer struct {
	label string
	usage gpucore.BufferUsage
	data  []byte
}

type pipeline struct {
	kind   graph.Kind
	layout gpucore.PipelineLayoutID
}

type bindGroup struct {
	layout  gpucore.BindGroupLayoutID
	entries map[uint32]gpucore.BindGroupEntry
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLimits overrides the reported device limits. Tests use a small
// MaxBufferSize to force the tiled path.
func WithLimits(l gpucore.Limits) Option {
	return func(a *Adapter) { a.limits = l }
}

// WithMaxBufferSize overrides only the maximum buffer size.
func WithMaxBufferSize(n uint64) Option {
	return func(a *Adapter) { a.limits.MaxBufferSize = n }
}

// WithWorkers sets the number of kernel goroutines. 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Adapter) {
		if a.pool != nil {
			a.pool.Close()
		}
		a.pool = parallel.NewWorkerPool(n)
	}
}

// New returns a CPU adapter with WebGPU default limits.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		limits:    gpucore.DefaultLimits(),
		buffers:   make(map[gpucore.BufferID]*buffer),
		modules:   make(map[gpucore.ShaderModuleID]graph.Kind),
		layouts:   make(map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry),
		pipeLays:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines: make(map[gpucore.ComputePipelineID]*pipeline),
		groups:    make(map[gpucore.BindGroupID]*bindGroup),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pool == nil {
		a.pool = parallel.NewWorkerPool(0)
	}
	shade.Logger().Info("software: adapter created", "workers", a.pool.Workers(), "max_buffer", a.limits.MaxBufferSize)
	return a
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)

// Info describes the adapter.
func (a *Adapter) Info() gpucore.AdapterInfo {
	return gpucore.AdapterInfo{Name: "cpu", Backend: "software", Vendor: "shade"}
}

// Limits returns the configured limits.
func (a *Adapter) Limits() gpucore.Limits { return a.limits }

// Stats reports live resources and completed submissions.
type Stats struct {
	Buffers    int
	BindGroups int
	Pipelines  int
	Submits    int
}

// Stats returns a snapshot of live resource counts.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Buffers:    len(a.buffers),
		BindGroups: len(a.groups),
		Pipelines:  len(a.pipelines),
		Submits:    a.submits,
	}
}

func (a *Adapter) id() uint64 {
	a.nextID++
	return a.nextID
}

// CreateShaderModule resolves desc.Label to a CPU kernel.
func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	k, err := graph.ParseKind(desc.Label)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: shader module %q: %w", desc.Label, err)
	}
	if _, ok := kernels[k]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: no kernel for %s", k)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ShaderModuleID(a.id())
	a.modules[id] = k
	return id, nil
}

// DestroyShaderModule releases a module.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.modules, id)
}

// CreateBuffer allocates zeroed memory.
func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q has zero size", desc.Label)
	}
	if desc.Size > a.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: %w (%d > %d)",
			desc.Label, ErrBufferTooLarge, desc.Size, a.limits.MaxBufferSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(a.id())
	a.buffers[id] = &buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}

// WriteBuffer copies data into a CopyDst buffer.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.bufferLocked(id, gpucore.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("software: write of %d bytes at %d overflows %q (%d bytes)",
			len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// ReadBuffer copies from a MapRead buffer.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset uint64, dst []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.bufferLocked(id, gpucore.BufferUsageMapRead)
	if err != nil {
		return err
	}
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("software: read of %d bytes at %d overflows %q (%d bytes)",
			len(dst), offset, b.label, len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

func (a *Adapter) bufferLocked(id gpucore.BufferID, need gpucore.BufferUsage) (*buffer, error) {
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("software: %w: buffer %d", ErrInvalidResource, id)
	}
	if !b.usage.Has(need) {
		return nil, fmt.Errorf("software: buffer %q: %w", b.label, ErrUsage)
	}
	return b, nil
}

// CreateBindGroupLayout records the layout entries.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return gpucore.InvalidID, fmt.Errorf("software: layout %q: duplicate binding %d", desc.Label, e.Binding)
		}
		seen[e.Binding] = true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := gpucore.BindGroupLayoutID(a.id())
	a.layouts[id] = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	return id, nil
}

// DestroyBindGroupLayout releases a layout.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.layouts, id)
}

// CreatePipelineLayout records the bind group layouts.
func (a *Adapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("software: pipeline layout %q: %w: bind group layout %d", label, ErrInvalidResource, l)
		}
	}
	id := gpucore.PipelineLayoutID(a.id())
	a.pipeLays[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipeLays, id)
}

// CreateComputePipeline binds a module's kernel to a layout.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.modules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: %w: module %d", desc.Label, ErrInvalidResource, desc.ShaderModule)
	}
	if _, ok := a.pipeLays[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: %w: layout %d", desc.Label, ErrInvalidResource, desc.Layout)
	}
	if desc.EntryPoint != "main" {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: unknown entry point %q", desc.Label, desc.EntryPoint)
	}
	id := gpucore.ComputePipelineID(a.id())
	a.pipelines[id] = &pipeline{kind: k, layout: desc.Layout}
	return id, nil
}

// DestroyComputePipeline releases a pipeline.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelines, id)
}

// CreateBindGroup validates entries against the layout and buffer usages.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	layout, ok := a.layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: bind group %q: %w: layout %d", desc.Label, ErrInvalidResource, desc.Layout)
	}
	entries := make(map[uint32]gpucore.BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		entries[e.Binding] = e
	}
	for _, le := range layout {
		e, ok := entries[le.Binding]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q: binding %d missing", desc.Label, le.Binding)
		}
		need := gpucore.BufferUsageStorage
		if le.Type == gpucore.BindingTypeUniformBuffer {
			need = gpucore.BufferUsageUniform
		}
		b, err := a.bufferLocked(e.Buffer, need)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q binding %d (%s): %w", desc.Label, le.Binding, le.Type, err)
		}
		if e.Offset+e.Size > uint64(len(b.data)) {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q binding %d: range exceeds buffer", desc.Label, le.Binding)
		}
	}
	id := gpucore.BindGroupID(a.id())
	a.groups[id] = &bindGroup{layout: desc.Layout, entries: entries}
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.groups, id)
}

// CreateCommandEncoder starts a recording.
func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	return &encoder{label: label}, nil
}

// Submit runs the recorded commands in order.
func (a *Adapter) Submit(cmd gpucore.CommandBuffer) error {
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb == nil {
		return fmt.Errorf("software: foreign command buffer %T", cmd)
	}
	for i, c := range cb.commands {
		if err := c.run(a); err != nil {
			return fmt.Errorf("software: %s command %d: %w", cb.label, i, err)
		}
	}
	a.mu.Lock()
	a.submits++
	a.mu.Unlock()
	return nil
}

// Close drops all resources and stops the worker pool.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	clear(a.buffers)
	clear(a.groups)
	clear(a.pipelines)
	clear(a.pipeLays)
	clear(a.layouts)
	clear(a.modules)
	a.mu.Unlock()

	a.pool.Close()
	return nil
}
