//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shade/gpucore"
)

// commandEncoder records into a hal.CommandEncoder, translating resource
// IDs as commands arrive.
type commandEncoder struct {
	adapter *Adapter
	enc     hal.CommandEncoder
	label   string
	done    bool
}

type commandBuffer struct {
	buf   hal.CommandBuffer
	label string
}

func (c *commandBuffer) Label() string { return c.label }

type computePass struct {
	adapter *Adapter
	pass    hal.ComputePassEncoder
}

func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	return &computePass{
		adapter: e.adapter,
		pass:    e.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: label}),
	}
}

func (e *commandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) {
	e.adapter.mu.RLock()
	s, sok := e.adapter.buffers[src]
	d, dok := e.adapter.buffers[dst]
	e.adapter.mu.RUnlock()
	if !sok || !dok {
		return
	}
	e.enc.CopyBufferToBuffer(s.buf, d.buf, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

func (e *commandEncoder) Finish() (gpucore.CommandBuffer, error) {
	if e.done {
		return nil, fmt.Errorf("wgpu: encoder %q already finished", e.label)
	}
	buf, err := e.enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	e.done = true
	return &commandBuffer{buf: buf, label: e.label}, nil
}

func (e *commandEncoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.enc.DiscardEncoding()
}

func (p *computePass) SetPipeline(pipeline gpucore.ComputePipelineID) {
	p.adapter.mu.RLock()
	halPipeline, ok := p.adapter.computePipelines[pipeline]
	p.adapter.mu.RUnlock()
	if ok {
		p.pass.SetPipeline(halPipeline)
	}
}

func (p *computePass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	p.adapter.mu.RLock()
	halGroup, ok := p.adapter.bindGroups[group]
	p.adapter.mu.RUnlock()
	if ok {
		p.pass.SetBindGroup(index, halGroup, nil)
	}
}

func (p *computePass) Dispatch(x, y, z uint32) { p.pass.Dispatch(x, y, z) }

func (p *computePass) End() { p.pass.End() }
