package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shade/graph"
)

func TestParseParams(t *testing.T) {
	p, err := ParseParams([]byte(`
[params]
input_path = in.png
output_path = out.png
verbose = true
resize_width = 640
noise = 0.05
Brightness = 0.2
contrast = 1.1
wb_temperature = 0.3
`))
	require.NoError(t, err)
	assert.Equal(t, "in.png", p.InputPath)
	assert.Equal(t, "out.png", p.OutputPath)
	assert.True(t, p.Verbose)
	assert.Equal(t, []graph.Params{
		graph.Brightness{Value: 0.2},
		graph.Contrast{Value: 1.1},
		graph.Noise{Amount: 0.05, Seed: graph.DefaultNoiseSeed},
		graph.WhiteBalance{Temperature: 0.3},
		graph.Resize{Width: 640},
	}, p.Operations)
}

func TestParseParamsAllKeys(t *testing.T) {
	p, err := ParseParams([]byte(`[params]
brightness = 0.1
contrast = 1.2
saturation = 0.8
hue = 45
gamma = 2.2
blur = 3
sharpen = 0.5
noise = 0.1
auto_white_balance = true
wb_tint = -0.1
resize_height = 100
`))
	require.NoError(t, err)
	kinds := make([]graph.Kind, len(p.Operations))
	for i, op := range p.Operations {
		kinds[i] = op.Kind()
	}
	assert.Equal(t, []graph.Kind{
		graph.KindBrightness, graph.KindContrast, graph.KindSaturation, graph.KindHue,
		graph.KindGamma, graph.KindBlur, graph.KindSharpen, graph.KindNoise,
		graph.KindWhiteBalance, graph.KindResize,
	}, kinds)
	assert.Equal(t, graph.WhiteBalance{Auto: true, Tint: -0.1}, p.Operations[8])
	assert.Equal(t, graph.Resize{Height: 100}, p.Operations[9])

	g, err := graph.BuildChain(p.Operations)
	require.NoError(t, err)
	assert.Equal(t, len(p.Operations)+2, g.Len())
}

func TestParseParamsEmpty(t *testing.T) {
	p, err := ParseParams([]byte("[params]\nauto_white_balance = false\n"))
	require.NoError(t, err)
	assert.Empty(t, p.Operations)
	assert.False(t, p.Verbose)
}

func TestParseParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		ini  string
		msg  string
	}{
		{"no section", "brightness = 1\n", "missing [params]"},
		{"bad float", "[params]\ncontrast = high\n", "contrast"},
		{"bad uint", "[params]\nresize_width = -5\n", "resize_width"},
		{"bad bool", "[params]\nverbose = maybe\n", "verbose"},
		{"bad gamma", "[params]\ngamma = 0\n", "gamma must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParams([]byte(tt.ini))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadParamsFile(t *testing.T) {
	path := writeFile(t, "params.ini", "[params]\nbrightness = 0.5\n")
	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, []graph.Params{graph.Brightness{Value: 0.5}}, p.Operations)

	_, err = LoadParams(path + ".missing")
	assert.Error(t, err)
}
