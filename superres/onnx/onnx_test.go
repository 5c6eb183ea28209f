package onnx

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/7blacky7/visionprep/superres"
)

func TestRegistered(t *testing.T) {
	if _, ok := superres.DefaultRegistry.Get(Name); !ok {
		t.Fatal("onnx nicht in DefaultRegistry")
	}
}

func TestModelPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := modelPath(dir); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Erwartete fs.ErrNotExist, bekam %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ModelFile), []byte("graph"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := modelPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, ModelFile) {
		t.Errorf("modelPath = %q", path)
	}
}

func TestOutputShape(t *testing.T) {
	got, err := outputShape([]int{1, 3, 10, 20}, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 3, 40, 80}, got); diff != "" {
		t.Errorf("outputShape mismatch (-want +got):\n%s", diff)
	}

	if _, err := outputShape([]int{3, 10, 20}, 3, 4); err == nil {
		t.Error("Erwartete Fehler fuer [3,H,W]")
	}
	if _, err := outputShape([]int{1, 3, 10, 20}, 3, 0); err == nil {
		t.Error("Erwartete Fehler fuer Scale 0")
	}
}
