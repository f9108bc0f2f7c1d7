package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/gogpu/shade/graph"
)

var folder = cases.Fold()

// operationAliases maps alternative names onto graph kinds.
var operationAliases = map[string]graph.Kind{
	"scale":        graph.KindResize,
	"whitebalance": graph.KindWhiteBalance,
	"colorbalance": graph.KindColorBalance,
}

// OperationKind resolves an operation name. Names are case folded and
// dashes or spaces read as underscores, so "White-Balance" names
// white_balance.
func OperationKind(name string) (graph.Kind, error) {
	n := folder.String(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_").Replace(n)
	if k, ok := operationAliases[n]; ok {
		return k, nil
	}
	k, err := graph.ParseKind(n)
	if err != nil || k == graph.KindInput || k == graph.KindOutput {
		return 0, fmt.Errorf("unknown operation: %s", name)
	}
	return k, nil
}

// OperationNames lists the operation names accepted by ParseOperation.
func OperationNames() []string {
	ops := graph.Operations()
	out := make([]string, len(ops))
	for i, k := range ops {
		out[i] = k.String()
	}
	return out
}

// ParseOperations converts every request, stopping at the first error.
func ParseOperations(reqs []OperationRequest) ([]graph.Params, error) {
	out := make([]graph.Params, 0, len(reqs))
	for i, s := range reqs {
		p, err := ParseOperation(s)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseOperation converts a request to node params, starting from the kind's
// defaults so omitted fields keep them.
//
// Single valued operations take a bare number or an object:
// brightness, contrast, saturation and gamma {"value"}, hue {"degrees"},
// blur {"radius"}, sharpen {"amount"}, mix {"factor"}. noise takes a number
// or {"amount","seed"}. white_balance takes {"auto_adjust","temperature",
// "tint"}, resize {"width","height"}, crop {"x","y","width","height"},
// levels {"in_black","in_white","out_black","out_white"} and
// color_balance {"shadows","midtones","highlights"} as RGB triples.
// invert and mask take no params.
func ParseOperation(req OperationRequest) (graph.Params, error) {
	k, err := OperationKind(req.Operation)
	if err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(req.Params)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = nil
	}

	p, err := parseParams(k, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: %w", k, err)
	}
	return p, nil
}

func parseParams(k graph.Kind, raw json.RawMessage) (graph.Params, error) {
	switch k {
	case graph.KindBrightness:
		p := graph.DefaultParams(k).(graph.Brightness)
		err := scalar(raw, "value", &p.Value)
		return p, err
	case graph.KindContrast:
		p := graph.DefaultParams(k).(graph.Contrast)
		err := scalar(raw, "value", &p.Value)
		return p, err
	case graph.KindSaturation:
		p := graph.DefaultParams(k).(graph.Saturation)
		err := scalar(raw, "value", &p.Value)
		return p, err
	case graph.KindHue:
		p := graph.DefaultParams(k).(graph.Hue)
		err := scalar(raw, "degrees", &p.Degrees)
		return p, err
	case graph.KindGamma:
		p := graph.DefaultParams(k).(graph.Gamma)
		if err := scalar(raw, "value", &p.Value); err != nil {
			return nil, err
		}
		if p.Value <= 0 {
			return nil, fmt.Errorf("gamma must be positive, got %v", p.Value)
		}
		return p, nil
	case graph.KindBlur:
		p := graph.DefaultParams(k).(graph.Blur)
		err := scalar(raw, "radius", &p.Radius)
		return p, err
	case graph.KindSharpen:
		p := graph.DefaultParams(k).(graph.Sharpen)
		err := scalar(raw, "amount", &p.Amount)
		return p, err
	case graph.KindMix:
		p := graph.DefaultParams(k).(graph.Mix)
		err := scalar(raw, "factor", &p.Factor)
		return p, err
	case graph.KindNoise:
		p := graph.DefaultParams(k).(graph.Noise)
		if isNumber(raw) {
			err := json.Unmarshal(raw, &p.Amount)
			return p, err
		}
		var v struct {
			Amount *float32 `json:"amount"`
			Seed   *uint32  `json:"seed"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		setF(&p.Amount, v.Amount)
		if v.Seed != nil {
			p.Seed = *v.Seed
		}
		return p, nil
	case graph.KindWhiteBalance:
		p := graph.DefaultParams(k).(graph.WhiteBalance)
		var v struct {
			AutoAdjust  *bool    `json:"auto_adjust"`
			Temperature *float32 `json:"temperature"`
			Tint        *float32 `json:"tint"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		if v.AutoAdjust != nil {
			p.Auto = *v.AutoAdjust
		}
		setF(&p.Temperature, v.Temperature)
		setF(&p.Tint, v.Tint)
		return p, nil
	case graph.KindResize:
		p := graph.DefaultParams(k).(graph.Resize)
		var v struct {
			Width  *uint32 `json:"width"`
			Height *uint32 `json:"height"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		if v.Width != nil {
			p.Width = *v.Width
		}
		if v.Height != nil {
			p.Height = *v.Height
		}
		return p, nil
	case graph.KindCrop:
		p := graph.DefaultParams(k).(graph.Crop)
		var v struct {
			X      *float32 `json:"x"`
			Y      *float32 `json:"y"`
			Width  *float32 `json:"width"`
			Height *float32 `json:"height"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		setF(&p.X, v.X)
		setF(&p.Y, v.Y)
		setF(&p.Width, v.Width)
		setF(&p.Height, v.Height)
		return p, nil
	case graph.KindLevels:
		p := graph.DefaultParams(k).(graph.Levels)
		var v struct {
			InBlack  *float32 `json:"in_black"`
			InWhite  *float32 `json:"in_white"`
			OutBlack *float32 `json:"out_black"`
			OutWhite *float32 `json:"out_white"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		setF(&p.InBlack, v.InBlack)
		setF(&p.InWhite, v.InWhite)
		setF(&p.OutBlack, v.OutBlack)
		setF(&p.OutWhite, v.OutWhite)
		return p, nil
	case graph.KindColorBalance:
		p := graph.DefaultParams(k).(graph.ColorBalance)
		var v struct {
			Shadows    *[3]float32 `json:"shadows"`
			Midtones   *[3]float32 `json:"midtones"`
			Highlights *[3]float32 `json:"highlights"`
		}
		if err := object(raw, &v); err != nil {
			return nil, err
		}
		if v.Shadows != nil {
			p.Shadows = *v.Shadows
		}
		if v.Midtones != nil {
			p.Midtones = *v.Midtones
		}
		if v.Highlights != nil {
			p.Highlights = *v.Highlights
		}
		return p, nil
	case graph.KindInvert, graph.KindMask:
		return graph.DefaultParams(k), nil
	default:
		return nil, fmt.Errorf("no parameters for %s", k)
	}
}

func isNumber(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// scalar reads a bare number or {key: number} into dst. A missing value
// leaves dst unchanged.
func scalar(raw json.RawMessage, key string, dst *float32) error {
	if raw == nil {
		return nil
	}
	if isNumber(raw) {
		return json.Unmarshal(raw, dst)
	}
	var obj map[string]*float32
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("want a number or {%q: number}", key)
	}
	setF(dst, obj[key])
	return nil
}

func object(raw json.RawMessage, v any) error {
	if raw == nil {
		return nil
	}
	if raw[0] != '{' {
		return fmt.Errorf("want an object, got %s", raw)
	}
	return json.Unmarshal(raw, v)
}

func setF(dst, src *float32) {
	if src != nil {
		*dst = *src
	}
}
