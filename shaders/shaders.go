// Package shaders holds the WGSL compute shaders for every operation kind.
//
// Each shader is common.wgsl (bindings 0, 1, 3, 4 and helpers) followed by
// the per-kind body that declares the binding 2 parameter block and main.
// All shaders use an 8x8x1 workgroup and the entry point "main".
package shaders

import (
	"embed"
	"fmt"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/shade/graph"
)

// EntryPoint is the compute entry point of every shader.
const EntryPoint = "main"

// WorkgroupSize is the edge of the square workgroup.
const WorkgroupSize = 8

//go:embed *.wgsl
var files embed.FS

// Source returns the full WGSL source for the operation kind.
// Input and Output have no shader.
func Source(k graph.Kind) (string, error) {
	name, err := fileName(k)
	if err != nil {
		return "", err
	}
	common, err := files.ReadFile("common.wgsl")
	if err != nil {
		return "", fmt.Errorf("shaders: %w", err)
	}
	body, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("shaders: %w", err)
	}
	return string(common) + "\n" + string(body), nil
}

// fileName maps a kind to its shader body.
func fileName(k graph.Kind) (string, error) {
	switch k {
	case graph.KindBrightness,
		graph.KindContrast,
		graph.KindSaturation,
		graph.KindHue,
		graph.KindGamma,
		graph.KindLevels,
		graph.KindColorBalance,
		graph.KindWhiteBalance,
		graph.KindBlur,
		graph.KindSharpen,
		graph.KindNoise,
		graph.KindResize,
		graph.KindCrop,
		graph.KindMix,
		graph.KindMask,
		graph.KindInvert:
		return k.String() + ".wgsl", nil
	case graph.KindInput, graph.KindOutput:
		return "", fmt.Errorf("shaders: %s has no shader", k)
	default:
		return "", fmt.Errorf("shaders: %w: %s", graph.ErrUnknownKind, k)
	}
}

var (
	spirvMu    sync.Mutex
	spirvCache = make(map[graph.Kind][]uint32)
)

// SPIRV compiles the kind's shader to SPIR-V words with naga.
// Results are cached for the life of the process.
func SPIRV(k graph.Kind) ([]uint32, error) {
	spirvMu.Lock()
	defer spirvMu.Unlock()

	if words, ok := spirvCache[k]; ok {
		return words, nil
	}
	src, err := Source(k)
	if err != nil {
		return nil, err
	}
	words, err := compile(src)
	if err != nil {
		return nil, fmt.Errorf("shaders: compile %s: %w", k, err)
	}
	spirvCache[k] = words
	return words, nil
}

// compile converts WGSL to little-endian SPIR-V words.
func compile(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V length %d is not word aligned", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
