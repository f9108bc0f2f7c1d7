package backend_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/shade/backend"
	"github.com/gogpu/shade/backend/software"
	"github.com/gogpu/shade/gpucore"
)

var errNoDevice = errors.New("no device")

func failing() (gpucore.GPUAdapter, error) { return nil, errNoDevice }

func TestSoftwareRegistered(t *testing.T) {
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Fatal("software backend not registered on import")
	}
	a, err := backend.Open(backend.BackendSoftware)
	if err != nil {
		t.Fatalf("Open(software) error = %v", err)
	}
	defer a.Close()
	if a.Info().Backend != "software" {
		t.Errorf("Info().Backend = %q", a.Info().Backend)
	}
}

func TestRegistryOpenUnregistered(t *testing.T) {
	_, err := backend.Open("nonexistent")
	if !errors.Is(err, backend.ErrBackendNotAvailable) {
		t.Errorf("Open(nonexistent) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryOpenWrapsError(t *testing.T) {
	backend.Register("broken", failing)
	defer backend.Unregister("broken")

	_, err := backend.Open("broken")
	if !errors.Is(err, errNoDevice) {
		t.Errorf("Open(broken) error = %v, want wrapped errNoDevice", err)
	}
}

func TestRegistryAvailable(t *testing.T) {
	backend.Register("test-extra", failing)
	defer backend.Unregister("test-extra")

	names := backend.Available()
	if !slices.Contains(names, "test-extra") || !slices.Contains(names, backend.BackendSoftware) {
		t.Errorf("Available() = %v", names)
	}
	if !slices.IsSorted(names) {
		t.Errorf("Available() not sorted: %v", names)
	}
}

func TestRegistryUnregister(t *testing.T) {
	backend.Register("temp", failing)
	if !backend.IsRegistered("temp") {
		t.Fatal("temp not registered")
	}
	backend.Unregister("temp")
	if backend.IsRegistered("temp") {
		t.Error("temp still registered after Unregister")
	}
}

func TestOpenDefaultFallsBack(t *testing.T) {
	// Shadow the GPU backend with one that always fails.
	backend.Register(backend.BackendWGPU, failing)
	defer backend.Unregister(backend.BackendWGPU)

	a, name, err := backend.OpenDefault()
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	defer a.Close()
	if name != backend.BackendSoftware {
		t.Errorf("OpenDefault() picked %q, want software", name)
	}
	if _, ok := a.(*software.Adapter); !ok {
		t.Errorf("adapter is %T", a)
	}
}

func TestOpenDefaultAllFail(t *testing.T) {
	backend.Register(backend.BackendWGPU, failing)
	backend.Register(backend.BackendSoftware, failing)
	defer backend.Unregister(backend.BackendWGPU)
	defer backend.Register(backend.BackendSoftware, func() (gpucore.GPUAdapter, error) {
		return software.New(), nil
	})

	_, _, err := backend.OpenDefault()
	if !errors.Is(err, backend.ErrBackendNotAvailable) || !errors.Is(err, errNoDevice) {
		t.Errorf("OpenDefault() error = %v", err)
	}
}
