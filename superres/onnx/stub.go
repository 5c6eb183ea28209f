//go:build !(onnx && cgo)

// MODUL: onnx/stub
// ZWECK: Stub-Implementierung ohne onnx Build-Tag oder ohne CGO
// HINWEISE: Das Backend ist registriert, die Factory liefert immer ErrUnavailable

package onnx

import (
	"github.com/7blacky7/visionprep/superres"
)

func init() {
	superres.RegisterBackend(Name, factory)
}

func factory(cfg superres.BackendConfig) (superres.Backend, error) {
	if _, err := modelPath(cfg.ModelDir); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
