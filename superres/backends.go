// MODUL: backends
// ZWECK: Eingebaute Referenz-Backends ohne neuronales Netz
// INPUT: kanonischer Tensor [1,3,H,W]
// OUTPUT: Tensor [1,3,H,W] (identity) bzw. [1,3,H*s,W*s] (bicubic)
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/image/draw, github.com/pdevine/tensor (extern)
// HINWEISE: bicubic skaliert ueber 16-Bit Kanaele, Catmull-Rom wie PIL BICUBIC

package superres

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/pdevine/tensor"
	"golang.org/x/image/draw"
)

const (
	BackendIdentity = "identity"
	BackendBicubic  = "bicubic"
)

func init() {
	RegisterBackend(BackendIdentity, func(BackendConfig) (Backend, error) {
		return identityBackend{}, nil
	})
	RegisterBackend(BackendBicubic, func(cfg BackendConfig) (Backend, error) {
		if cfg.Arch.Scale <= 0 {
			return nil, fmt.Errorf("bicubic: invalid scale %d", cfg.Arch.Scale)
		}
		return bicubicBackend{scale: cfg.Arch.Scale}, nil
	})
}

// referenceBackend markiert Backends ohne neuronales Netz. Sie werten
// das State-Dict nicht aus.
type referenceBackend interface {
	reference()
}

func isReference(b Backend) bool {
	_, ok := b.(referenceBackend)
	return ok
}

// checkInput prueft [1,3,H,W] und liefert H, W
func checkInput(t *tensor.Dense) (int, int, error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 {
		return 0, 0, fmt.Errorf("expected input shape [1,3,H,W], got %v", shape)
	}
	return shape[2], shape[3], nil
}

// identityBackend gibt eine Kopie der Eingabe zurueck
type identityBackend struct{}

func (identityBackend) Name() string { return BackendIdentity }

func (identityBackend) Forward(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if _, _, err := checkInput(input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return input.Clone().(*tensor.Dense), nil
}

func (identityBackend) Close() error { return nil }

func (identityBackend) reference() {}

// bicubicBackend vergroessert um den Scale-Faktor der Architektur
type bicubicBackend struct {
	scale int
}

func (b bicubicBackend) Name() string { return BackendBicubic }

func (b bicubicBackend) Forward(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	h, w, err := checkInput(input)
	if err != nil {
		return nil, err
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, got %v", input.Dtype())
	}

	src := image.NewNRGBA64(image.Rect(0, 0, w, h))
	plane := h * w
	for i := range plane {
		for c := range 3 {
			v := uint16(math.Round(float64(clamp01(data[c*plane+i])) * 0xffff))
			src.Pix[i*8+c*2] = uint8(v >> 8)
			src.Pix[i*8+c*2+1] = uint8(v)
		}
		src.Pix[i*8+6], src.Pix[i*8+7] = 0xff, 0xff
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	oh, ow := h*b.scale, w*b.scale
	dst := image.NewNRGBA64(image.Rect(0, 0, ow, oh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float32, 3*oh*ow)
	oplane := oh * ow
	for i := range oplane {
		for c := range 3 {
			v := uint16(dst.Pix[i*8+c*2])<<8 | uint16(dst.Pix[i*8+c*2+1])
			out[c*oplane+i] = float32(v) / 0xffff
		}
	}

	return tensor.New(tensor.WithShape(1, 3, oh, ow), tensor.WithBacking(out)), nil
}

func (bicubicBackend) Close() error { return nil }

func (bicubicBackend) reference() {}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
