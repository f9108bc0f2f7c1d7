// Package uniform serializes node parameters into the fixed byte layouts the
// compute shaders read from their uniform parameter block.
//
// Every layout is a multiple of 16 bytes, the minimum uniform buffer
// alignment. Shaders read fields by fixed offset, so a layout change here
// must land together with the matching shader change.
package uniform

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/shade/graph"
)

// Alignment is the size granularity of every encoded block.
const Alignment = 16

// Size returns the encoded size in bytes for a kind.
func Size(k graph.Kind) int {
	if k == graph.KindColorBalance {
		return 48
	}
	return 16
}

// Encode returns the uniform bytes for p.
//
// Layouts (little-endian f32 unless noted):
//
//	brightness, contrast, saturation, gamma, sharpen, mix: [value, 0, 0, 0]
//	hue:           [degrees, 0, 0, 0]
//	blur:          [radius, 0, 0, 0]
//	levels:        [in_black, in_white, out_black, out_white]
//	color_balance: [shadows.rgb, 0, midtones.rgb, 0, highlights.rgb, 0]
//	white_balance: [auto (0 or 1), temperature, tint, 0]
//	noise:         [amount, seed, 0, 0]
//	resize:        [width u32, height u32, 0, 0]
//	crop:          [x, y, width, height]
//	others:        [0, 0, 0, 0]
func Encode(p graph.Params) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("uniform: nil params")
	}
	w := newWriter(Size(p.Kind()))

	switch v := p.(type) {
	case graph.Input, graph.Output, graph.Mask, graph.Invert:
	case graph.Brightness:
		w.f32(v.Value)
	case graph.Contrast:
		w.f32(v.Value)
	case graph.Saturation:
		w.f32(v.Value)
	case graph.Hue:
		w.f32(v.Degrees)
	case graph.Gamma:
		w.f32(v.Value)
	case graph.Levels:
		w.f32(v.InBlack, v.InWhite, v.OutBlack, v.OutWhite)
	case graph.ColorBalance:
		for _, rgb := range [3][3]float32{v.Shadows, v.Midtones, v.Highlights} {
			w.f32(rgb[0], rgb[1], rgb[2], 0)
		}
	case graph.WhiteBalance:
		var auto float32
		if v.Auto {
			auto = 1
		}
		w.f32(auto, v.Temperature, v.Tint)
	case graph.Blur:
		w.f32(v.Radius)
	case graph.Sharpen:
		w.f32(v.Amount)
	case graph.Noise:
		w.f32(v.Amount, float32(v.Seed))
	case graph.Resize:
		w.u32(v.Width, v.Height)
	case graph.Crop:
		w.f32(v.X, v.Y, v.Width, v.Height)
	case graph.Mix:
		w.f32(v.Factor)
	default:
		return nil, fmt.Errorf("uniform: unsupported params %T", p)
	}
	return w.buf, nil
}

// Dimensions is the per-dispatch geometry block bound next to the params.
// SrcWidth/SrcHeight describe the input buffer, DstWidth/DstHeight the
// output region and DstPitch the output row stride in pixels. OriginX,
// OriginY and FullWidth/FullHeight place a tile inside the whole image so
// position-dependent shaders (noise, crop) behave the same tiled or not.
type Dimensions struct {
	SrcWidth   uint32
	SrcHeight  uint32
	DstWidth   uint32
	DstHeight  uint32
	DstPitch   uint32
	OriginX    uint32
	OriginY    uint32
	FullWidth  uint32
	FullHeight uint32
}

// DimensionsSize is the encoded size of Dimensions.
const DimensionsSize = 48

// EncodeDimensions serializes d as nine u32 values padded to 48 bytes.
func EncodeDimensions(d Dimensions) []byte {
	w := newWriter(DimensionsSize)
	w.u32(d.SrcWidth, d.SrcHeight, d.DstWidth, d.DstHeight,
		d.DstPitch, d.OriginX, d.OriginY, d.FullWidth, d.FullHeight)
	return w.buf
}

// DecodeDimensions is the inverse of EncodeDimensions.
func DecodeDimensions(b []byte) (Dimensions, error) {
	if len(b) < DimensionsSize {
		return Dimensions{}, fmt.Errorf("uniform: dimensions block is %d bytes", len(b))
	}
	u := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4:]) }
	return Dimensions{
		SrcWidth: u(0), SrcHeight: u(1),
		DstWidth: u(2), DstHeight: u(3),
		DstPitch: u(4),
		OriginX:  u(5), OriginY: u(6),
		FullWidth: u(7), FullHeight: u(8),
	}, nil
}

// Float reads the f32 at field index i of an encoded block.
func Float(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

// Uint reads the u32 at field index i of an encoded block.
func Uint(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i*4:])
}

type writer struct {
	buf []byte
	off int
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, size)}
}

func (w *writer) f32(vs ...float32) {
	for _, v := range vs {
		binary.LittleEndian.PutUint32(w.buf[w.off:], math.Float32bits(v))
		w.off += 4
	}
}

func (w *writer) u32(vs ...uint32) {
	for _, v := range vs {
		binary.LittleEndian.PutUint32(w.buf[w.off:], v)
		w.off += 4
	}
}
