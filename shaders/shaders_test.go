package shaders

import (
	"strings"
	"testing"

	"github.com/gogpu/shade/graph"
)

func TestSourceForEveryOperation(t *testing.T) {
	for _, k := range graph.Operations() {
		src, err := Source(k)
		if err != nil {
			t.Errorf("Source(%s): %v", k, err)
			continue
		}
		for _, want := range []string{"@binding(0)", "@binding(1)", "@binding(2)", "@binding(3)", "@binding(4)", "fn main", "@workgroup_size(8, 8, 1)"} {
			if !strings.Contains(src, want) {
				t.Errorf("%s shader is missing %q", k, want)
			}
		}
	}
}

func TestSourceEndpoints(t *testing.T) {
	for _, k := range []graph.Kind{graph.KindInput, graph.KindOutput} {
		if _, err := Source(k); err == nil {
			t.Errorf("Source(%s) should fail", k)
		}
	}
}

// TestShadersCompile checks that every shader compiles to SPIR-V.
func TestShadersCompile(t *testing.T) {
	for _, k := range graph.Operations() {
		t.Run(k.String(), func(t *testing.T) {
			words, err := SPIRV(k)
			if err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("naga feature not yet implemented: %v", err)
				}
				t.Fatalf("compile: %v", err)
			}
			if len(words) == 0 {
				t.Fatal("SPIR-V output is empty")
			}
			if words[0] != 0x07230203 {
				t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x07230203", words[0])
			}
		})
	}
}
