package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/gogpu/shade/graph"
)

// pipelineFlags collects operation flags in command-line order. Every
// occurrence of a scalar flag adds an operation. The white balance flags
// form one operation placed at the first of them, and so do the resize
// flags.
type pipelineFlags struct {
	seq int
	ops []orderedOp

	wb        graph.WhiteBalance
	wbSeq     int
	resize    graph.Resize
	resizeSeq int
}

type orderedOp struct {
	seq    int
	params graph.Params
}

func (p *pipelineFlags) next() int {
	p.seq++
	return p.seq
}

// Operations returns the collected operations in order.
func (p *pipelineFlags) Operations() []graph.Params {
	ops := slices.Clone(p.ops)
	if p.wbSeq > 0 {
		ops = append(ops, orderedOp{p.wbSeq, p.wb})
	}
	if p.resizeSeq > 0 {
		ops = append(ops, orderedOp{p.resizeSeq, p.resize})
	}
	slices.SortFunc(ops, func(a, b orderedOp) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]graph.Params, len(ops))
	for i, op := range ops {
		out[i] = op.params
	}
	return out
}

func (p *pipelineFlags) register(fs *pflag.FlagSet) {
	scalars := []struct {
		name, usage string
		make        func(float32) graph.Params
	}{
		{"brightness", "add `value` to each channel", func(v float32) graph.Params { return graph.Brightness{Value: v} }},
		{"contrast", "scale contrast around mid gray by `factor`", func(v float32) graph.Params { return graph.Contrast{Value: v} }},
		{"saturation", "scale saturation by `factor`", func(v float32) graph.Params { return graph.Saturation{Value: v} }},
		{"hue", "rotate hue by `degrees`", func(v float32) graph.Params { return graph.Hue{Degrees: v} }},
		{"gamma", "apply gamma `value`", func(v float32) graph.Params { return graph.Gamma{Value: v} }},
		{"blur", "box blur with `radius` pixels", func(v float32) graph.Params { return graph.Blur{Radius: v} }},
		{"sharpen", "sharpen by `amount`", func(v float32) graph.Params { return graph.Sharpen{Amount: v} }},
		{"noise", "add noise of `amount`", func(v float32) graph.Params {
			return graph.Noise{Amount: v, Seed: graph.DefaultNoiseSeed}
		}},
	}
	for _, s := range scalars {
		fs.Var(&scalarFlag{p: p, make: s.make}, s.name, s.usage)
	}

	fs.Var(&wbFlag{p: p, typ: "bool", set: func(v string) error {
		b, err := strconv.ParseBool(v)
		p.wb.Auto = b
		return err
	}}, "auto-white-balance", "estimate white balance from the image")
	fs.Lookup("auto-white-balance").NoOptDefVal = "true"
	fs.Var(&wbFlag{p: p, typ: "float", set: floatSetter(&p.wb.Temperature)}, "wb-temperature", "white balance temperature `shift` (-1 cool to 1 warm)")
	fs.Var(&wbFlag{p: p, typ: "float", set: floatSetter(&p.wb.Tint)}, "wb-tint", "white balance tint `shift` (-1 green to 1 magenta)")

	fs.Var(&resizeFlag{p: p, dst: &p.resize.Width}, "resize-width", "resize to `width` pixels")
	fs.Var(&resizeFlag{p: p, dst: &p.resize.Height}, "resize-height", "resize to `height` pixels")
}

func parseFloat32(v string) (float32, error) {
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

func floatSetter(dst *float32) func(string) error {
	return func(v string) error {
		f, err := parseFloat32(v)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

type scalarFlag struct {
	p    *pipelineFlags
	make func(float32) graph.Params
	last string
}

func (f *scalarFlag) String() string { return f.last }
func (f *scalarFlag) Type() string   { return "float" }

func (f *scalarFlag) Set(v string) error {
	x, err := parseFloat32(v)
	if err != nil {
		return err
	}
	f.p.ops = append(f.p.ops, orderedOp{f.p.next(), f.make(x)})
	f.last = v
	return nil
}

type wbFlag struct {
	p    *pipelineFlags
	typ  string
	set  func(string) error
	last string
}

func (f *wbFlag) String() string { return f.last }
func (f *wbFlag) Type() string   { return f.typ }

func (f *wbFlag) Set(v string) error {
	if err := f.set(v); err != nil {
		return err
	}
	if f.p.wbSeq == 0 {
		f.p.wbSeq = f.p.next()
	}
	f.last = v
	return nil
}

type resizeFlag struct {
	p    *pipelineFlags
	dst  *uint32
	last string
}

func (f *resizeFlag) String() string { return f.last }
func (f *resizeFlag) Type() string   { return "uint32" }

func (f *resizeFlag) Set(v string) error {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return err
	}
	*f.dst = uint32(n)
	if f.p.resizeSeq == 0 {
		f.p.resizeSeq = f.p.next()
	}
	f.last = v
	return nil
}

func describe(op graph.Params) string {
	switch p := op.(type) {
	case graph.Brightness:
		return fmt.Sprintf("Brightness: %.2f", p.Value)
	case graph.Contrast:
		return fmt.Sprintf("Contrast: %.2f", p.Value)
	case graph.Saturation:
		return fmt.Sprintf("Saturation: %.2f", p.Value)
	case graph.Hue:
		return fmt.Sprintf("Hue: %.2f°", p.Degrees)
	case graph.Gamma:
		return fmt.Sprintf("Gamma: %.2f", p.Value)
	case graph.Blur:
		return fmt.Sprintf("Blur: %.2fpx", p.Radius)
	case graph.Sharpen:
		return fmt.Sprintf("Sharpen: %.2f", p.Amount)
	case graph.Noise:
		return fmt.Sprintf("Noise: %.2f", p.Amount)
	case graph.WhiteBalance:
		return fmt.Sprintf("White Balance (auto: %t, temperature: %.2f, tint: %.2f)", p.Auto, p.Temperature, p.Tint)
	case graph.Resize:
		switch {
		case p.Width > 0 && p.Height > 0:
			return fmt.Sprintf("Resize: %dx%d", p.Width, p.Height)
		case p.Width > 0:
			return fmt.Sprintf("Resize: %dx? (keep aspect)", p.Width)
		case p.Height > 0:
			return fmt.Sprintf("Resize: ?x%d (keep aspect)", p.Height)
		default:
			return "Resize: no change"
		}
	default:
		return op.Kind().String()
	}
}

type job struct {
	input  string
	output string
	ops    []graph.Params
}

func (j job) print(w io.Writer) {
	fmt.Fprintln(w, "Image Processing Pipeline Configuration:")
	fmt.Fprintf(w, "Input:  %s\nOutput: %s\n\n", j.input, j.output)
	if len(j.ops) == 0 {
		fmt.Fprintln(w, "No operations specified - image will be passed through unchanged.")
		return
	}
	fmt.Fprintln(w, "Operations to apply (in order):")
	for i, op := range j.ops {
		fmt.Fprintf(w, "  %d. %s\n", i+1, describe(op))
	}
}
