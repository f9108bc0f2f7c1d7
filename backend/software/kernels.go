package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/uniform"
)

const (
	workgroup   = 8
	pixelBytes  = 16
	maxBlur     = 32
	wbGrid      = 16
	minAvg      = 1e-4
	levelsEps   = 1e-5
	noiseDenom  = 4294967295.0
	lumaR       = 0.2126
	lumaG       = 0.7152
	lumaB       = 0.0722
	invSqrt3    = 0.57735026918962576
	degToRadian = math32.Pi / 180
)

type vec4 [4]float32

// pass is the resolved state of one dispatch.
type pass struct {
	src, src2, dst []byte
	params         []byte
	dims           uniform.Dimensions

	// gain is precomputed by kernels with a prepare step.
	gain [3]float32
}

func (p *pass) check() error {
	d := p.dims
	if need := int(d.SrcWidth) * int(d.SrcHeight) * pixelBytes; len(p.src) < need {
		return fmt.Errorf("source binding is %d bytes, need %d", len(p.src), need)
	}
	if need := int(d.SrcWidth) * int(d.SrcHeight) * pixelBytes; len(p.src2) < need {
		return fmt.Errorf("second source binding is %d bytes, need %d", len(p.src2), need)
	}
	if d.DstHeight > 0 {
		need := (int(d.DstHeight)-1)*int(d.DstPitch)*pixelBytes + int(d.DstWidth)*pixelBytes
		if len(p.dst) < need {
			return fmt.Errorf("destination binding is %d bytes, need %d", len(p.dst), need)
		}
	}
	if len(p.params) < uniform.Alignment {
		return fmt.Errorf("params binding is %d bytes", len(p.params))
	}
	return nil
}

func read(b []byte, i int) vec4 {
	o := i * pixelBytes
	return vec4{
		math.Float32frombits(binary.LittleEndian.Uint32(b[o:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[o+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[o+8:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[o+12:])),
	}
}

func (p *pass) load(x, y int) vec4 {
	return read(p.src, y*int(p.dims.SrcWidth)+x)
}

func (p *pass) load2(x, y int) vec4 {
	return read(p.src2, y*int(p.dims.SrcWidth)+x)
}

func (p *pass) loadClamped(x, y int) vec4 {
	x = min(max(x, 0), int(p.dims.SrcWidth)-1)
	y = min(max(y, 0), int(p.dims.SrcHeight)-1)
	return p.load(x, y)
}

func (p *pass) store(x, y int, c vec4) {
	o := (y*int(p.dims.DstPitch) + x) * pixelBytes
	for i, v := range c {
		binary.LittleEndian.PutUint32(p.dst[o+i*4:], math.Float32bits(v))
	}
}

func (p *pass) param(i int) float32 { return uniform.Float(p.params, i) }

type kernel struct {
	prepare func(p *pass)
	pixel   func(p *pass, x, y int) vec4
}

// kernels mirrors the WGSL shaders in package shaders.
var kernels = map[graph.Kind]kernel{
	graph.KindBrightness:   {pixel: brightness},
	graph.KindContrast:     {pixel: contrast},
	graph.KindSaturation:   {pixel: saturation},
	graph.KindHue:          {pixel: hue},
	graph.KindGamma:        {pixel: gamma},
	graph.KindLevels:       {pixel: levels},
	graph.KindColorBalance: {pixel: colorBalance},
	graph.KindWhiteBalance: {prepare: whiteBalanceGain, pixel: whiteBalance},
	graph.KindBlur:         {pixel: blur},
	graph.KindSharpen:      {pixel: sharpen},
	graph.KindNoise:        {pixel: noise},
	graph.KindResize:       {pixel: resize},
	graph.KindCrop:         {pixel: crop},
	graph.KindMix:          {pixel: mix},
	graph.KindMask:         {pixel: mask},
	graph.KindInvert:       {pixel: invert},
}

func clamp(v, lo, hi float32) float32 { return math32.Min(math32.Max(v, lo), hi) }

func luma(c vec4) float32 { return c[0]*lumaR + c[1]*lumaG + c[2]*lumaB }

func brightness(p *pass, x, y int) vec4 {
	c, v := p.load(x, y), p.param(0)
	return vec4{c[0] + v, c[1] + v, c[2] + v, c[3]}
}

func contrast(p *pass, x, y int) vec4 {
	c, v := p.load(x, y), p.param(0)
	for i := range 3 {
		c[i] = (c[i]-0.5)*v + 0.5
	}
	return c
}

func saturation(p *pass, x, y int) vec4 {
	c, v := p.load(x, y), p.param(0)
	l := luma(c)
	for i := range 3 {
		c[i] = l + (c[i]-l)*v
	}
	return c
}

// hue rotates rgb about the gray axis.
func hue(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	a := p.param(0) * degToRadian
	cs, sn := math32.Cos(a), math32.Sin(a)
	k := (1 - cs) / 3
	s := invSqrt3 * sn
	r, g, b := c[0], c[1], c[2]
	return vec4{
		r*(cs+k) + g*(k-s) + b*(k+s),
		r*(k+s) + g*(cs+k) + b*(k-s),
		r*(k-s) + g*(k+s) + b*(cs+k),
		c[3],
	}
}

func gamma(p *pass, x, y int) vec4 {
	c, v := p.load(x, y), p.param(0)
	if v <= 0 {
		return c
	}
	inv := 1 / v
	for i := range 3 {
		c[i] = math32.Pow(math32.Max(c[i], 0), inv)
	}
	return c
}

func levels(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	ib, iw, ob, ow := p.param(0), p.param(1), p.param(2), p.param(3)
	span := math32.Max(iw-ib, levelsEps)
	for i := range 3 {
		t := clamp((c[i]-ib)/span, 0, 1)
		c[i] = ob + t*(ow-ob)
	}
	return c
}

func colorBalance(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	l := clamp(luma(c), 0, 1)
	ws := clamp(1-2*l, 0, 1)
	wh := clamp(2*l-1, 0, 1)
	wm := 1 - ws - wh
	for i := range 3 {
		gain := p.param(i)*ws + p.param(4+i)*wm + p.param(8+i)*wh
		c[i] *= gain
	}
	return c
}

// whiteBalanceGain computes the per-channel gain once per dispatch.
func whiteBalanceGain(p *pass) {
	if p.param(0) <= 0.5 {
		t, tint := p.param(1), p.param(2)
		p.gain = [3]float32{1 + 0.2*t, 1 - 0.2*tint, 1 - 0.2*t}
		return
	}
	var sum [3]float32
	w, h := p.dims.SrcWidth, p.dims.SrcHeight
	for j := range uint32(wbGrid) {
		for i := range uint32(wbGrid) {
			sx := (i*2 + 1) * w / (wbGrid * 2)
			sy := (j*2 + 1) * h / (wbGrid * 2)
			c := p.load(int(sx), int(sy))
			for k := range 3 {
				sum[k] += c[k]
			}
		}
	}
	var avg [3]float32
	for k := range 3 {
		avg[k] = math32.Max(sum[k]/(wbGrid*wbGrid), minAvg)
	}
	gray := (avg[0] + avg[1] + avg[2]) / 3
	for k := range 3 {
		p.gain[k] = gray / avg[k]
	}
}

func whiteBalance(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	for i := range 3 {
		c[i] *= p.gain[i]
	}
	return c
}

func blur(p *pass, x, y int) vec4 {
	r := int(clamp(math32.Ceil(p.param(0)), 0, maxBlur))
	var sum vec4
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			c := p.loadClamped(x+dx, y+dy)
			for i := range 4 {
				sum[i] += c[i]
			}
		}
	}
	n := float32((2*r + 1) * (2*r + 1))
	for i := range 4 {
		sum[i] /= n
	}
	return sum
}

func sharpen(p *pass, x, y int) vec4 {
	var sum [3]float32
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := p.loadClamped(x+dx, y+dy)
			for i := range 3 {
				sum[i] += c[i]
			}
		}
	}
	c, amount := p.load(x, y), p.param(0)
	for i := range 3 {
		c[i] += (c[i] - sum[i]/9) * amount
	}
	return c
}

// noiseHash is the PCG-style integer hash used by noise.wgsl.
func noiseHash(v uint32) uint32 {
	s := v*747796405 + 2891336453
	w := ((s >> ((s >> 28) + 4)) ^ s) * 277803737
	return (w >> 22) ^ w
}

func noise(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	px := p.dims.OriginX + uint32(x)
	py := p.dims.OriginY + uint32(y)
	h := noiseHash(px + noiseHash(py+noiseHash(uint32(p.param(1)))))
	n := (float32(h)/noiseDenom - 0.5) * p.param(0)
	return vec4{c[0] + n, c[1] + n, c[2] + n, c[3]}
}

func lerp(a, b vec4, t float32) vec4 {
	var out vec4
	for i := range 4 {
		out[i] = a[i] + (b[i]-a[i])*t
	}
	return out
}

func resize(p *pass, x, y int) vec4 {
	d := p.dims
	sx := (float32(x)+0.5)*float32(d.SrcWidth)/float32(d.DstWidth) - 0.5
	sy := (float32(y)+0.5)*float32(d.SrcHeight)/float32(d.DstHeight) - 0.5
	fx := clamp(sx, 0, float32(d.SrcWidth-1))
	fy := clamp(sy, 0, float32(d.SrcHeight-1))
	x0, y0 := int(math32.Floor(fx)), int(math32.Floor(fy))
	tx, ty := fx-float32(x0), fy-float32(y0)
	top := lerp(p.loadClamped(x0, y0), p.loadClamped(x0+1, y0), tx)
	bottom := lerp(p.loadClamped(x0, y0+1), p.loadClamped(x0+1, y0+1), tx)
	return lerp(top, bottom, ty)
}

func crop(p *pass, x, y int) vec4 {
	px := float32(p.dims.OriginX + uint32(x))
	py := float32(p.dims.OriginY + uint32(y))
	cx, cy, cw, ch := p.param(0), p.param(1), p.param(2), p.param(3)
	if px >= cx && px < cx+cw && py >= cy && py < cy+ch {
		return p.load(x, y)
	}
	return vec4{}
}

func mix(p *pass, x, y int) vec4 {
	return lerp(p.load(x, y), p.load2(x, y), p.param(0))
}

func mask(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	return vec4{c[0] * c[3], c[1] * c[3], c[2] * c[3], c[3]}
}

func invert(p *pass, x, y int) vec4 {
	c := p.load(x, y)
	return vec4{1 - c[0], 1 - c[1], 1 - c[2], c[3]}
}
