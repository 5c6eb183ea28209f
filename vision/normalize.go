// MODUL: normalize
// ZWECK: Normalisierung von Bildquellen zu Tensoren und Rueckkonvertierung
// INPUT: Source bzw. ImageInput, Normalisierungs-Parameter (mean, std)
// OUTPUT: float32-Tensoren (pdevine/tensor) im CHW Layout, uint8-Arrays
// NEBENEFFEKTE: keine (ausser Dekodier-Puffern)
// ABHAENGIGKEITEN: github.com/pdevine/tensor (extern)
// HINWEISE: Kanonischer Tensor ist [1,3,H,W], RGB, Werte in [0,1]

package vision

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/pdevine/tensor"
)

// Standard-Normalisierungswerte fuer verschiedene Modelle
var (
	// ImageNet Default (ResNet, EfficientNet, etc.)
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}

	// ImageNet Standard (normalisiert auf [-1, 1])
	ImageNetStandardMean = [3]float32{0.5, 0.5, 0.5}
	ImageNetStandardStd  = [3]float32{0.5, 0.5, 0.5}

	// CLIP Default
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}

	// Keine Normalisierung (nur Skalierung auf [0,1])
	NoNormMean = [3]float32{0.0, 0.0, 0.0}
	NoNormStd  = [3]float32{1.0, 1.0, 1.0}
)

// NormalizeSource konvertiert eine Bildquelle in den kanonischen Tensor
// [1,3,H,W] (RGB, Werte in [0,1]).
//
//   - KindPath: Laden per LoadSource, RGB
//   - KindImage: explizit nach RGB (Alpha verworfen)
//   - KindArray [H,W]: Graustufen auf 3 Kanaele erweitert, dann als RGB behandelt
//   - KindArray [H,W,3]: BGR, Kanalachse wird umgedreht
//
// Alles andere ergibt *UnsupportedInputTypeError ohne Teilergebnis.
func NormalizeSource(ctx context.Context, src Source, opts ...LoadOption) (*tensor.Dense, error) {
	var (
		rgb  []uint8
		w, h int
	)

	switch src.Kind() {
	case KindPath:
		img, err := LoadSource(ctx, src.Path(), opts...)
		if err != nil {
			return nil, err
		}
		rgb, w, h = rgbPixels(img.Image)
	case KindImage:
		rgb, w, h = rgbPixels(src.Image())
	case KindArray:
		a := src.Array()
		if err := a.validate(); err != nil {
			return nil, &UnsupportedInputTypeError{Type: fmt.Sprintf("vision.Array%v", a.Shape)}
		}
		rgb, w, h = a.rgb(), a.Width(), a.Height()
	default:
		return nil, &UnsupportedInputTypeError{Type: "vision.Source(" + src.Kind().String() + ")"}
	}

	f32s := make([]float32, len(rgb))
	for i, v := range rgb {
		f32s[i] = float32(v) / 255.0
	}

	t, err := channelFirst(f32s, h, w)
	if err != nil {
		return nil, err
	}

	if err := t.Reshape(1, 3, h, w); err != nil {
		return nil, err
	}
	return t, nil
}

// channelFirst baut aus HWC-Daten einen [3,H,W] Tensor
func channelFirst(hwc []float32, h, w int) (*tensor.Dense, error) {
	t := tensor.New(tensor.WithShape(h, w, 3), tensor.WithBacking(hwc))
	if err := t.T(2, 0, 1); err != nil {
		return nil, err
	}

	if err := t.Transpose(); err != nil {
		return nil, err
	}
	return t, nil
}

// Denormalize kehrt die Normalisierung um: Batch-Achse entfernen,
// CHW nach HWC, Kanalachse umdrehen, *255, auf [0,255] begrenzen,
// runden und nach uint8 konvertieren. Erwartet [1,3,H,W] oder [3,H,W].
func Denormalize(t *tensor.Dense) (*Array, error) {
	shape := t.Shape()

	var h, w int
	switch {
	case len(shape) == 4 && shape[0] == 1 && shape[1] == 3:
		h, w = shape[2], shape[3]
	case len(shape) == 3 && shape[0] == 3:
		h, w = shape[1], shape[2]
	default:
		return nil, fmt.Errorf("denormalize: expected [1,3,H,W] or [3,H,W], got %v", shape)
	}

	if t.IsMaterializable() {
		return nil, fmt.Errorf("denormalize: tensor view must be materialized")
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("denormalize: expected float32 tensor, got %v", t.Dtype())
	}

	hwc := tensor.New(tensor.WithShape(3, h, w), tensor.WithBacking(slices.Clone(data)))
	if err := hwc.T(1, 2, 0); err != nil {
		return nil, err
	}

	if err := hwc.Transpose(); err != nil {
		return nil, err
	}

	f32s := hwc.Data().([]float32)
	out := make([]uint8, len(f32s))
	for i := 0; i < h*w; i++ {
		for c := 0; c < 3; c++ {
			out[i*3+c] = toUint8(f32s[i*3+2-c])
		}
	}

	return &Array{Shape: []int{h, w, 3}, Data: out}, nil
}

// toUint8 skaliert [0,1] nach [0,255] mit Clipping und Rundung
func toUint8(v float32) uint8 {
	f := float64(v) * 255
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(math.Round(f))
}

// NormalizeCHW skaliert ein Bild auf [0,1] und normalisiert jeden Kanal
// mit (x - mean) / std. Ergebnis ist ein [3,H,W] Tensor.
func NormalizeCHW(img *ImageInput, mean, std [3]float32) (*tensor.Dense, error) {
	for c, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("normalize: std[%d] is zero", c)
		}
	}

	rgb, w, h := rgbPixels(img.Image)
	f32s := make([]float32, len(rgb))
	for i, v := range rgb {
		c := i % 3
		f32s[i] = (float32(v)/255.0 - mean[c]) / std[c]
	}

	return channelFirst(f32s, h, w)
}

// Float32s gibt die Daten eines float32 Tensors zurueck
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t.IsMaterializable() {
		return nil, fmt.Errorf("tensor view must be materialized")
	}

	data, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
	return data, nil
}

// Dimensions gibt die Bild-Dimensionen als (H, W, C) zurueck
func (img *ImageInput) Dimensions() (int, int, int) {
	return img.Height, img.Width, 3
}

// TensorShape gibt die Tensor-Form fuer ein gegebenes Layout zurueck
func (img *ImageInput) TensorShape(channelFirst bool) []int {
	if channelFirst {
		return []int{3, img.Height, img.Width}
	}
	return []int{img.Height, img.Width, 3}
}
