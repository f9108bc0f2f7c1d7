package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shade/codec"
	"github.com/gogpu/shade/executor"
	"github.com/gogpu/shade/graph"
)

func parse(t *testing.T, args ...string) *pipelineFlags {
	t.Helper()
	var p pipelineFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	p.register(fs)
	require.NoError(t, fs.Parse(args))
	return &p
}

func TestOperationOrder(t *testing.T) {
	p := parse(t,
		"--contrast", "1.2",
		"--wb-tint", "0.1",
		"--brightness", "0.3",
		"--resize-height", "50",
		"--auto-white-balance",
		"--contrast", "0.9",
		"--resize-width", "80",
	)
	assert.Equal(t, []graph.Params{
		graph.Contrast{Value: 1.2},
		graph.WhiteBalance{Auto: true, Tint: 0.1},
		graph.Brightness{Value: 0.3},
		graph.Resize{Width: 80, Height: 50},
		graph.Contrast{Value: 0.9},
	}, p.Operations())
}

func TestOperationFlagErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--brightness", "bright"},
		{"--resize-width", "-3"},
		{"--auto-white-balance=maybe"},
	} {
		var p pipelineFlags
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.SetOutput(io.Discard)
		p.register(fs)
		assert.Error(t, fs.Parse(args), "%v", args)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Brightness: 0.50", describe(graph.Brightness{Value: 0.5}))
	assert.Equal(t, "Resize: 10x? (keep aspect)", describe(graph.Resize{Width: 10}))
	assert.Equal(t, "Resize: no change", describe(graph.Resize{}))
	assert.Equal(t, "invert", describe(graph.Invert{}))
}

func writeGray(t *testing.T, dir string) string {
	t.Helper()
	img := executor.NewImage(6, 4)
	img.Fill([4]float32{0.5, 0.5, 0.5, 1})
	data, err := codec.EncodeBytes(img, codec.PNG)
	require.NoError(t, err)
	path := filepath.Join(dir, "in.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHADE_BACKEND", "software")
	t.Setenv("SHADE_CACHE_DIR", filepath.Join(t.TempDir(), "cache"))
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestOneShot(t *testing.T) {
	dir := t.TempDir()
	in := writeGray(t, dir)
	outPath := filepath.Join(dir, "out.tiff")

	_, err := execute(t, "-i", in, "-o", outPath, "--brightness", "1", "--resize-width", "3")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	img, err := codec.Decode(data, outPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, img.At(1, 1))
}

func TestOneShotINI(t *testing.T) {
	dir := t.TempDir()
	in := writeGray(t, dir)
	outPath := filepath.Join(dir, "graded.png")
	ini := filepath.Join(dir, "params.ini")
	require.NoError(t, os.WriteFile(ini, []byte("[params]\ninput_path = "+in+"\noutput_path = "+outPath+
		"\nbrightness = -1\nverbose = true\n"), 0o600))

	out, err := execute(t, "--config", ini, "--contrast", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Brightness: -1.00")
	assert.NotContains(t, out, "Contrast", "the INI pipeline replaces operation flags")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	img, err := codec.Decode(data, outPath)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, img.At(0, 0))
}

func TestOneShotErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeGray(t, dir)
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"no input", []string{"--brightness", "1"}, "no input image"},
		{"missing input", []string{"-i", filepath.Join(dir, "nope.png")}, "does not exist"},
		{"bad output", []string{"-i", in, "-o", filepath.Join(dir, "out.exr")}, "unsupported output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestListFormats(t *testing.T) {
	out, err := execute(t, "--list-formats")
	require.NoError(t, err)
	assert.Contains(t, out, "Supported input formats:")
	assert.Contains(t, out, "tiff")
	assert.Contains(t, out, "software")
}

func TestCacheInfo(t *testing.T) {
	out, err := execute(t, "--clear-cache", "--cache-info")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared successfully")
	assert.Contains(t, out, "Cache location:")
	assert.Contains(t, out, "0 entries")
}
