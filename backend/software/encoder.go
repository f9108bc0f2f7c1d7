package software

import (
	"errors"
	"fmt"

	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/internal/uniform"
)

// Errors reported by the software adapter.
var (
	ErrClosed          = errors.New("software: adapter closed")
	ErrBufferTooLarge  = errors.New("buffer exceeds max_buffer_size")
	ErrInvalidResource = errors.New("invalid resource")
	ErrUsage           = errors.New("buffer usage does not allow this access")
	ErrEncoderState    = errors.New("software: encoder is finished")
)

// command is one recorded operation.
type command interface {
	run(a *Adapter) error
}

type encoder struct {
	label    string
	commands []command
	finished bool
	open     bool
}

func (e *encoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	e.open = true
	return &computePass{enc: e, label: label}
}

func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset, size uint64) {
	if e.finished {
		return
	}
	e.commands = append(e.commands, copyCommand{src: src, srcOffset: srcOffset, dst: dst, dstOffset: dstOffset, size: size})
}

func (e *encoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, ErrEncoderState
	}
	if e.open {
		return nil, fmt.Errorf("software: encoder %q: compute pass not ended", e.label)
	}
	e.finished = true
	return &commandBuffer{label: e.label, commands: e.commands}, nil
}

func (e *encoder) Discard() {
	e.finished = true
	e.commands = nil
}

type commandBuffer struct {
	label    string
	commands []command
}

func (c *commandBuffer) Label() string { return c.label }

type computePass struct {
	enc      *encoder
	label    string
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
}

func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) { p.pipeline = id }

func (p *computePass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if index == 0 {
		p.group = id
	}
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.enc.finished {
		return
	}
	p.enc.commands = append(p.enc.commands, dispatchCommand{
		label:    p.label,
		pipeline: p.pipeline,
		group:    p.group,
		x:        x,
		y:        y,
		z:        z,
	})
}

func (p *computePass) End() { p.enc.open = false }

type copyCommand struct {
	src, dst             gpucore.BufferID
	srcOffset, dstOffset uint64
	size                 uint64
}

func (c copyCommand) run(a *Adapter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, err := a.bufferLocked(c.src, gpucore.BufferUsageCopySrc)
	if err != nil {
		return err
	}
	dst, err := a.bufferLocked(c.dst, gpucore.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	if c.srcOffset+c.size > uint64(len(src.data)) || c.dstOffset+c.size > uint64(len(dst.data)) {
		return fmt.Errorf("copy of %d bytes out of range", c.size)
	}
	copy(dst.data[c.dstOffset:c.dstOffset+c.size], src.data[c.srcOffset:])
	return nil
}

type dispatchCommand struct {
	label    string
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	x, y, z  uint32
}

// Binding slots shared by every kernel.
const (
	bindSrc    = 0
	bindDst    = 1
	bindParams = 2
	bindDims   = 3
	bindSrc2   = 4
)

func (d dispatchCommand) run(a *Adapter) error {
	a.mu.Lock()
	pl, ok := a.pipelines[d.pipeline]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("dispatch %q: %w: pipeline %d", d.label, ErrInvalidResource, d.pipeline)
	}
	bg, ok := a.groups[d.group]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("dispatch %q: %w: bind group %d", d.label, ErrInvalidResource, d.group)
	}
	views := make(map[uint32][]byte, len(bg.entries))
	for binding, e := range bg.entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			a.mu.Unlock()
			return fmt.Errorf("dispatch %q: %w: buffer %d", d.label, ErrInvalidResource, e.Buffer)
		}
		end := uint64(len(b.data))
		if e.Size != 0 {
			end = e.Offset + e.Size
		}
		views[binding] = b.data[e.Offset:end]
	}
	a.mu.Unlock()

	dims, err := uniform.DecodeDimensions(views[bindDims])
	if err != nil {
		return fmt.Errorf("dispatch %q: %w", d.label, err)
	}
	p := &pass{
		src:    views[bindSrc],
		dst:    views[bindDst],
		src2:   views[bindSrc2],
		params: views[bindParams],
		dims:   dims,
	}
	if p.src2 == nil {
		p.src2 = p.src
	}
	if err := p.check(); err != nil {
		return fmt.Errorf("dispatch %q: %w", d.label, err)
	}

	if d.z == 0 {
		return nil
	}
	k := kernels[pl.kind]
	if k.prepare != nil {
		k.prepare(p)
	}
	// Invocations outside the dispatch grid never run, matching the GPU.
	w := min(int(d.x)*workgroup, int(dims.DstWidth))
	h := min(int(d.y)*workgroup, int(dims.DstHeight))
	a.pool.Rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				p.store(x, y, k.pixel(p, x, y))
			}
		}
	})
	return nil
}
