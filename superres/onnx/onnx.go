// MODUL: onnx
// ZWECK: ONNX Runtime Forward-Backend fuer die Super-Resolution Pipeline
// INPUT: Modellverzeichnis mit model.onnx, Tensor [1,3,H,W]
// OUTPUT: Tensor [1,3,H*s,W*s]
// NEBENEFFEKTE: Registriert "onnx" in superres.DefaultRegistry bei Package-Import
// ABHAENGIGKEITEN: github.com/yalue/onnxruntime_go (nur mit Build-Tag onnx und cgo)
// HINWEISE: Import mit _ "github.com/7blacky7/visionprep/superres/onnx"
//           Ohne Build-Tag liefert die Factory ErrUnavailable

package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/7blacky7/visionprep/superres"
)

// Name ist der Registry-Name des Backends
const Name = "onnx"

// ModelFile ist der exportierte Graph im Modellverzeichnis
const ModelFile = "model.onnx"

// Default Tensor-Namen (torch.onnx.export Defaults der ESRGAN-Exporte)
const (
	DefaultInputName  = "input"
	DefaultOutputName = "output"
)

var (
	ErrUnavailable   = errors.New("onnx: backend requires the onnx build tag and cgo")
	ErrAlreadyClosed = errors.New("onnx: backend already closed")
)

// modelPath prueft ob model.onnx existiert
func modelPath(dir string) (string, error) {
	path := filepath.Join(dir, ModelFile)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("onnx: %w", err)
	}
	return path, nil
}

// outputShape berechnet [1,C,H*s,W*s] fuer eine Eingabe [1,C,H,W]
func outputShape(input []int, outCh, scale int) ([]int64, error) {
	if len(input) != 4 || input[0] != 1 {
		return nil, fmt.Errorf("onnx: expected input shape [1,C,H,W], got %v", input)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("onnx: invalid scale %d", scale)
	}
	return []int64{1, int64(outCh), int64(input[2] * scale), int64(input[3] * scale)}, nil
}

// compile-time check: Factory-Signatur
var _ superres.Factory = factory
