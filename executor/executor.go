// Package executor runs a pipeline graph over an image on a GPU adapter.
//
// Init compiles one compute pipeline per operation kind, all sharing one
// bind group layout:
//
//	0: read-only storage   source image, tightly packed rgba32float
//	1: read-write storage  output image, rows padded to 256 bytes
//	2: uniform             operation parameters (internal/uniform)
//	3: uniform             dispatch dimensions and tile origin
//	4: read-only storage   second source (mix), the primary otherwise
//
// Process walks the graph in execution order and runs one dispatch per
// enabled operation node. Outputs that would exceed the adapter's maximum
// buffer size are processed in square tiles and reassembled. Resize is
// exempt from tiling.
package executor

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/uniform"
	"github.com/gogpu/shade/shaders"
)

// Executor dispatches graph nodes to compute pipelines.
//
// Executor is safe for concurrent use; Process calls are serialized.
type Executor struct {
	mu      sync.Mutex
	adapter gpucore.GPUAdapter
	opts    options
	ready   bool
	closed  bool

	layout     gpucore.BindGroupLayoutID
	pipeLayout gpucore.PipelineLayoutID
	modules    map[graph.Kind]gpucore.ShaderModuleID
	pipelines  map[graph.Kind]gpucore.ComputePipelineID
}

// New returns an executor for adapter. Call Init before Process.
func New(adapter gpucore.GPUAdapter, opts ...Option) *Executor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Executor{
		adapter:   adapter,
		opts:      o,
		modules:   make(map[graph.Kind]gpucore.ShaderModuleID),
		pipelines: make(map[graph.Kind]gpucore.ComputePipelineID),
	}
}

func (e *Executor) log() *slog.Logger {
	if e.opts.logger != nil {
		return e.opts.logger
	}
	return shade.Logger()
}

// Adapter returns the adapter the executor dispatches to.
func (e *Executor) Adapter() gpucore.GPUAdapter { return e.adapter }

// Init compiles the pipelines. Calling Init again after success is a no-op.
func (e *Executor) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.ready {
		return nil
	}
	if err := e.createPipelines(); err != nil {
		e.destroyPipelines()
		return err
	}
	e.ready = true
	info := e.adapter.Info()
	e.log().Info("executor: pipelines ready",
		"adapter", info.Name, "backend", info.Backend, "kinds", len(e.pipelines))
	return nil
}

func (e *Executor) createPipelines() error {
	layout, err := e.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "shade_bind_layout",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
			{Binding: 1, Type: gpucore.BindingTypeStorageBuffer},
			{Binding: 2, Type: gpucore.BindingTypeUniformBuffer},
			{Binding: 3, Type: gpucore.BindingTypeUniformBuffer},
			{Binding: 4, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
		},
	})
	if err != nil {
		return fmt.Errorf("executor: create bind group layout: %w", err)
	}
	e.layout = layout

	pipeLayout, err := e.adapter.CreatePipelineLayout("shade_pipe_layout", []gpucore.BindGroupLayoutID{layout})
	if err != nil {
		return fmt.Errorf("executor: create pipeline layout: %w", err)
	}
	e.pipeLayout = pipeLayout

	for _, k := range graph.Operations() {
		src, err := shaders.Source(k)
		if err != nil {
			return fmt.Errorf("executor: %w", err)
		}
		desc := &gpucore.ShaderModuleDesc{Label: k.String(), WGSL: src}
		if e.opts.spirv {
			words, err := shaders.SPIRV(k)
			if err != nil {
				e.log().Warn("executor: SPIR-V precompile failed, using WGSL", "kind", k, "err", err)
			} else {
				desc.SPIRV = words
			}
		}
		module, err := e.adapter.CreateShaderModule(desc)
		if err != nil {
			return fmt.Errorf("executor: compile %s shader: %w", k, err)
		}
		e.modules[k] = module

		pipeline, err := e.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
			Label:        k.String(),
			Layout:       pipeLayout,
			ShaderModule: module,
			EntryPoint:   shaders.EntryPoint,
		})
		if err != nil {
			return fmt.Errorf("executor: create %s pipeline: %w", k, err)
		}
		e.pipelines[k] = pipeline
	}
	return nil
}

func (e *Executor) destroyPipelines() {
	for k, p := range e.pipelines {
		e.adapter.DestroyComputePipeline(p)
		delete(e.pipelines, k)
	}
	for k, m := range e.modules {
		e.adapter.DestroyShaderModule(m)
		delete(e.modules, k)
	}
	if e.pipeLayout != gpucore.InvalidID {
		e.adapter.DestroyPipelineLayout(e.pipeLayout)
		e.pipeLayout = gpucore.InvalidID
	}
	if e.layout != gpucore.InvalidID {
		e.adapter.DestroyBindGroupLayout(e.layout)
		e.layout = gpucore.InvalidID
	}
}

// Close releases the pipelines. The adapter stays open.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.destroyPipelines()
	e.ready = false
	e.closed = true
}

// Kinds returns the operation kinds with a compiled pipeline.
func (e *Executor) Kinds() []graph.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]graph.Kind, 0, len(e.pipelines))
	for k := range e.pipelines {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Process runs g over img and returns the image feeding the Output node,
// or the last processed image when there is none. Any failure aborts the
// whole call and no partial result is returned.
func (e *Executor) Process(g *graph.Graph, img Image) (Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Image{}, ErrClosed
	}
	if !e.ready {
		return Image{}, ErrNotInitialized
	}
	if err := img.Validate(); err != nil {
		return Image{}, err
	}
	order, err := g.ExecutionOrder()
	if err != nil {
		return Image{}, fmt.Errorf("executor: internal error: %w", err)
	}

	outputs := make(map[graph.NodeID]Image, len(order))
	current := img
	for _, id := range order {
		node, _ := g.Node(id)
		switch node.Kind {
		case graph.KindInput:
			outputs[id] = img
			continue
		case graph.KindOutput:
			continue
		}

		primary := e.input(g, outputs, node, node.Inputs[0], current)
		if !node.Enabled {
			outputs[id] = primary
			continue
		}
		var second *Image
		if node.Kind == graph.KindMix {
			s := e.input(g, outputs, node, graph.PortImage2, primary)
			if s.Width != primary.Width || s.Height != primary.Height {
				return Image{}, fmt.Errorf("%w: %dx%d and %dx%d",
					ErrDimensionMismatch, primary.Width, primary.Height, s.Width, s.Height)
			}
			second = &s
		}

		out, err := e.runNode(node, primary, second)
		if err != nil {
			return Image{}, fmt.Errorf("executor: node %d (%s): %w", node.ID, node.Kind, err)
		}
		outputs[id] = out
		current = out
	}

	if outID, ok := g.OutputNode(); ok {
		if conn, ok := g.Source(outID, graph.PortImage); ok {
			if out, ok := outputs[conn.From]; ok {
				return out, nil
			}
		}
	}
	return current, nil
}

// input resolves the image feeding port, or fallback when nothing
// connected to it has produced an image.
func (e *Executor) input(g *graph.Graph, outputs map[graph.NodeID]Image, node graph.Node, port string, fallback Image) Image {
	if conn, ok := g.Source(node.ID, port); ok {
		if img, ok := outputs[conn.From]; ok {
			return img
		}
	}
	return fallback
}

func (e *Executor) runNode(node graph.Node, src Image, src2 *Image) (Image, error) {
	params, err := uniform.Encode(node.Params)
	if err != nil {
		return Image{}, err
	}

	if rp, ok := node.Params.(graph.Resize); ok {
		w, h, ok := ResizeTarget(rp, src.Width, src.Height)
		if !ok {
			return src, nil
		}
		if w == 0 || h == 0 {
			return Image{}, fmt.Errorf("%w: resize to %dx%d", ErrEmptyImage, w, h)
		}
		e.log().Debug("executor: resize", "from_w", src.Width, "from_h", src.Height, "to_w", w, "to_h", h)
		return e.dispatch(job{
			kind:   node.Kind,
			params: params,
			src:    src,
			dstW:   w,
			dstH:   h,
			fullW:  w,
			fullH:  h,
		})
	}

	limit := e.adapter.Limits().MaxBufferSize
	if !NeedsTiling(src.Width, src.Height, limit) {
		return e.dispatch(job{
			kind:   node.Kind,
			params: params,
			src:    src,
			src2:   src2,
			dstW:   src.Width,
			dstH:   src.Height,
			fullW:  src.Width,
			fullH:  src.Height,
		})
	}
	return e.runTiled(node.Kind, params, src, src2, limit)
}

// runTiled processes src in square tiles sequentially and reassembles
// them by row copies.
func (e *Executor) runTiled(kind graph.Kind, params []byte, src Image, src2 *Image, limit uint64) (Image, error) {
	edge := TileEdge(limit, e.opts.maxTileEdge)
	if edge == 0 {
		return Image{}, fmt.Errorf("%w: limit %d bytes", ErrTileTooSmall, limit)
	}
	regions := tiles(src.Width, src.Height, edge)
	e.log().Debug("executor: tiled dispatch",
		"kind", kind, "width", src.Width, "height", src.Height, "edge", edge, "tiles", len(regions))

	result := NewImage(src.Width, src.Height)
	for _, t := range regions {
		j := job{
			kind:    kind,
			params:  params,
			src:     src.sub(t.x, t.y, t.w, t.h),
			dstW:    t.w,
			dstH:    t.h,
			originX: t.x,
			originY: t.y,
			fullW:   src.Width,
			fullH:   src.Height,
		}
		if src2 != nil {
			s := src2.sub(t.x, t.y, t.w, t.h)
			j.src2 = &s
		}
		out, err := e.dispatch(j)
		if err != nil {
			return Image{}, fmt.Errorf("tile at (%d, %d): %w", t.x, t.y, err)
		}
		result.paste(out, t.x, t.y)
	}
	return result, nil
}

// ResizeTarget returns the output size for p applied to a w x h image.
// With only one dimension set the other keeps the aspect ratio and is
// truncated. ok is false when neither is set and the image passes through.
func ResizeTarget(p graph.Resize, w, h uint32) (tw, th uint32, ok bool) {
	switch {
	case p.Width > 0 && p.Height > 0:
		return p.Width, p.Height, true
	case p.Width > 0:
		aspect := float32(h) / float32(w)
		return p.Width, uint32(float32(p.Width) * aspect), true
	case p.Height > 0:
		aspect := float32(w) / float32(h)
		return uint32(float32(p.Height) * aspect), p.Height, true
	default:
		return w, h, false
	}
}
