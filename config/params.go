package config

import (
	"errors"
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/gogpu/shade/graph"
)

// ParamsSection is the INI section holding a pipeline description.
const ParamsSection = "params"

// ErrNoParamsSection is returned when the INI source has no [params].
var ErrNoParamsSection = errors.New("config: missing [params] section")

// Params is a pipeline described in an INI file.
type Params struct {
	InputPath  string
	OutputPath string
	Verbose    bool
	Operations []graph.Params
}

// LoadParams reads the [params] section of the INI file at path.
func LoadParams(path string) (*Params, error) {
	return parseParams(path)
}

// ParseParams reads the [params] section of INI text.
func ParseParams(data []byte) (*Params, error) {
	return parseParams(data)
}

// scalarKeys are the single valued operations, in pipeline order.
var scalarKeys = []struct {
	key  string
	make func(float32) graph.Params
}{
	{"brightness", func(v float32) graph.Params { return graph.Brightness{Value: v} }},
	{"contrast", func(v float32) graph.Params { return graph.Contrast{Value: v} }},
	{"saturation", func(v float32) graph.Params { return graph.Saturation{Value: v} }},
	{"hue", func(v float32) graph.Params { return graph.Hue{Degrees: v} }},
	{"gamma", func(v float32) graph.Params { return graph.Gamma{Value: v} }},
	{"blur", func(v float32) graph.Params { return graph.Blur{Radius: v} }},
	{"sharpen", func(v float32) graph.Params { return graph.Sharpen{Amount: v} }},
	{"noise", func(v float32) graph.Params { return graph.Noise{Amount: v, Seed: graph.DefaultNoiseSeed} }},
}

// parseParams builds the operation list. The order is fixed regardless of
// key order in the file: the scalar operations, then white balance, then
// resize.
func parseParams(source any) (*Params, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, source)
	if err != nil {
		return nil, fmt.Errorf("config: load params: %w", err)
	}
	sec, err := f.GetSection(ParamsSection)
	if err != nil {
		return nil, ErrNoParamsSection
	}

	p := &Params{
		InputPath:  sec.Key("input_path").String(),
		OutputPath: sec.Key("output_path").String(),
	}
	if p.Verbose, err = boolKey(sec, "verbose"); err != nil {
		return nil, err
	}

	for _, s := range scalarKeys {
		if !sec.HasKey(s.key) {
			continue
		}
		v, err := floatKey(sec, s.key)
		if err != nil {
			return nil, err
		}
		p.Operations = append(p.Operations, s.make(v))
	}

	if sec.HasKey("auto_white_balance") || sec.HasKey("wb_temperature") || sec.HasKey("wb_tint") {
		var wb graph.WhiteBalance
		if wb.Auto, err = boolKey(sec, "auto_white_balance"); err != nil {
			return nil, err
		}
		if wb.Temperature, err = floatKey(sec, "wb_temperature"); err != nil {
			return nil, err
		}
		if wb.Tint, err = floatKey(sec, "wb_tint"); err != nil {
			return nil, err
		}
		if wb.Auto || sec.HasKey("wb_temperature") || sec.HasKey("wb_tint") {
			p.Operations = append(p.Operations, wb)
		}
	}

	if sec.HasKey("resize_width") || sec.HasKey("resize_height") {
		var r graph.Resize
		if r.Width, err = uintKey(sec, "resize_width"); err != nil {
			return nil, err
		}
		if r.Height, err = uintKey(sec, "resize_height"); err != nil {
			return nil, err
		}
		p.Operations = append(p.Operations, r)
	}
	if err := validateOperations(p.Operations); err != nil {
		return nil, err
	}
	return p, nil
}

func validateOperations(ops []graph.Params) error {
	for _, op := range ops {
		if g, ok := op.(graph.Gamma); ok && g.Value <= 0 {
			return fmt.Errorf("config: gamma must be positive, got %v", g.Value)
		}
	}
	return nil
}

func floatKey(sec *ini.Section, name string) (float32, error) {
	if !sec.HasKey(name) {
		return 0, nil
	}
	v, err := sec.Key(name).Float64()
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return float32(v), nil
}

func uintKey(sec *ini.Section, name string) (uint32, error) {
	if !sec.HasKey(name) {
		return 0, nil
	}
	v, err := sec.Key(name).Uint()
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return uint32(v), nil //nolint:gosec // image dimensions
}

func boolKey(sec *ini.Section, name string) (bool, error) {
	if !sec.HasKey(name) {
		return false, nil
	}
	v, err := sec.Key(name).Bool()
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}
