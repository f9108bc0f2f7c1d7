package executor

import (
	"fmt"

	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/uniform"
	"github.com/gogpu/shade/shaders"
)

// job is one compute dispatch over a whole image or a single tile.
type job struct {
	kind   graph.Kind
	params []byte
	src    Image
	src2   *Image

	dstW, dstH       uint32
	originX, originY uint32
	fullW, fullH     uint32
}

type upload struct {
	id   gpucore.BufferID
	data []byte
}

// resources tracks per-dispatch objects so every exit path releases them.
type resources struct {
	adapter gpucore.GPUAdapter
	buffers []gpucore.BufferID
	groups  []gpucore.BindGroupID
}

func (r *resources) buffer(label string, size uint64, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	id, err := r.adapter.CreateBuffer(&gpucore.BufferDesc{Label: label, Size: size, Usage: usage})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("create %s buffer (%d bytes): %w", label, size, err)
	}
	r.buffers = append(r.buffers, id)
	return id, nil
}

func (r *resources) release() {
	for _, g := range r.groups {
		r.adapter.DestroyBindGroup(g)
	}
	for _, b := range r.buffers {
		r.adapter.DestroyBuffer(b)
	}
	r.groups, r.buffers = nil, nil
}

// dispatch uploads the job's inputs, runs its pipeline once and reads the
// unpadded output back.
func (e *Executor) dispatch(j job) (Image, error) {
	pipeline, ok := e.pipelines[j.kind]
	if !ok {
		return Image{}, fmt.Errorf("executor: no pipeline for %s", j.kind)
	}

	pitchBytes := AlignedRowBytes(j.dstW)
	dstSize := pitchBytes * uint64(j.dstH)
	srcSize := uint64(len(j.src.Pix))

	res := &resources{adapter: e.adapter}
	defer res.release()

	storageIn := gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst
	srcBuf, err := res.buffer("src", srcSize, storageIn)
	if err != nil {
		return Image{}, err
	}
	src2Buf := srcBuf
	if j.src2 != nil {
		if src2Buf, err = res.buffer("src2", srcSize, storageIn); err != nil {
			return Image{}, err
		}
	}
	dstBuf, err := res.buffer("dst", dstSize, gpucore.BufferUsageStorage|gpucore.BufferUsageCopySrc)
	if err != nil {
		return Image{}, err
	}
	uniformIn := gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst
	paramBuf, err := res.buffer("params", uint64(len(j.params)), uniformIn)
	if err != nil {
		return Image{}, err
	}
	dimBuf, err := res.buffer("dims", uniform.DimensionsSize, uniformIn)
	if err != nil {
		return Image{}, err
	}
	stagingBuf, err := res.buffer("staging", dstSize, gpucore.BufferUsageMapRead|gpucore.BufferUsageCopyDst)
	if err != nil {
		return Image{}, err
	}

	dims := uniform.EncodeDimensions(uniform.Dimensions{
		SrcWidth:   j.src.Width,
		SrcHeight:  j.src.Height,
		DstWidth:   j.dstW,
		DstHeight:  j.dstH,
		DstPitch:   uint32(pitchBytes / BytesPerPixel), //nolint:gosec // pitch is bounded by the buffer limit
		OriginX:    j.originX,
		OriginY:    j.originY,
		FullWidth:  j.fullW,
		FullHeight: j.fullH,
	})
	uploads := []upload{
		{srcBuf, j.src.Pix},
		{paramBuf, j.params},
		{dimBuf, dims},
	}
	if j.src2 != nil {
		uploads = append(uploads, upload{src2Buf, j.src2.Pix})
	}
	for _, u := range uploads {
		if err := e.adapter.WriteBuffer(u.id, 0, u.data); err != nil {
			return Image{}, fmt.Errorf("upload: %w", err)
		}
	}

	group, err := e.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  j.kind.String(),
		Layout: e.layout,
		Entries: []gpucore.BindGroupEntry{
			{Binding: 0, Buffer: srcBuf, Size: srcSize},
			{Binding: 1, Buffer: dstBuf, Size: dstSize},
			{Binding: 2, Buffer: paramBuf, Size: uint64(len(j.params))},
			{Binding: 3, Buffer: dimBuf, Size: uniform.DimensionsSize},
			{Binding: 4, Buffer: src2Buf, Size: srcSize},
		},
	})
	if err != nil {
		return Image{}, fmt.Errorf("create bind group: %w", err)
	}
	res.groups = append(res.groups, group)

	enc, err := e.adapter.CreateCommandEncoder(j.kind.String())
	if err != nil {
		return Image{}, fmt.Errorf("create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(j.kind.String())
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(workgroups(j.dstW), workgroups(j.dstH), 1)
	pass.End()
	enc.CopyBufferToBuffer(dstBuf, 0, stagingBuf, 0, dstSize)
	cmd, err := enc.Finish()
	if err != nil {
		enc.Discard()
		return Image{}, fmt.Errorf("finish encoding: %w", err)
	}
	if err := e.adapter.Submit(cmd); err != nil {
		return Image{}, fmt.Errorf("submit: %w", err)
	}

	padded := make([]byte, dstSize)
	if err := e.adapter.ReadBuffer(stagingBuf, 0, padded); err != nil {
		return Image{}, fmt.Errorf("read back: %w", err)
	}
	return unpad(padded, j.dstW, j.dstH, pitchBytes), nil
}

// unpad drops the row padding of a read-back buffer.
func unpad(padded []byte, w, h uint32, pitchBytes uint64) Image {
	out := NewImage(w, h)
	rowBytes := int(w) * BytesPerPixel
	for y := range int(h) {
		so := y * int(pitchBytes)
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], padded[so:so+rowBytes])
	}
	return out
}

func workgroups(n uint32) uint32 {
	return (n + shaders.WorkgroupSize - 1) / shaders.WorkgroupSize
}
