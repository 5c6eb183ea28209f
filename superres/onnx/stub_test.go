//go:build !(onnx && cgo)

package onnx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/7blacky7/visionprep/superres"
)

func TestStubUnavailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ModelFile), []byte("graph"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := superres.DefaultRegistry.Create(Name, superres.BackendConfig{ModelDir: dir, Arch: superres.DefaultArch()})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Erwartete ErrUnavailable, bekam %v", err)
	}
}
