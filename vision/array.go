// MODUL: array
// ZWECK: Rohes uint8-Pixelarray im HWC Layout (Graustufen oder 3 Kanaele BGR)
// INPUT: Shape [H,W] oder [H,W,3], Zeilen-major Daten
// OUTPUT: Array, Konvertierung zu/von image.Image
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: image (Standardbibliothek)
// HINWEISE: 3-Kanal-Arrays folgen der OpenCV-Konvention (BGR)

package vision

import (
	"fmt"
	"image"
)

// Array ist ein rohes Pixelarray. Shape ist [H,W] (Graustufen) oder
// [H,W,3] (BGR). Data ist zeilenweise abgelegt.
type Array struct {
	Shape []int
	Data  []uint8
}

// NewArray erstellt ein Array und prueft Shape gegen Datenlaenge.
func NewArray(data []uint8, shape ...int) (*Array, error) {
	a := &Array{Shape: shape, Data: data}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Dims gibt die Anzahl der Dimensionen zurueck.
func (a *Array) Dims() int { return len(a.Shape) }

// Height gibt H zurueck.
func (a *Array) Height() int { return a.Shape[0] }

// Width gibt W zurueck.
func (a *Array) Width() int { return a.Shape[1] }

// validate prueft ob das Array eine gueltige RawArray-Variante ist
func (a *Array) validate() error {
	switch len(a.Shape) {
	case 2:
	case 3:
		if a.Shape[2] != 3 {
			return fmt.Errorf("array: expected 3 channels, got %d", a.Shape[2])
		}
	default:
		return fmt.Errorf("array: expected 2 or 3 dimensions, got %d", len(a.Shape))
	}

	n := 1
	for _, d := range a.Shape {
		if d <= 0 {
			return fmt.Errorf("array: invalid shape %v", a.Shape)
		}
		n *= d
	}

	if n != len(a.Data) {
		return fmt.Errorf("array: shape %v needs %d values, got %d", a.Shape, n, len(a.Data))
	}
	return nil
}

// rgb liefert die Pixel als HWC RGB. Graustufen werden zuerst auf
// 3 Kanaele erweitert und dann als RGB behandelt, 3-Kanal-Daten
// werden von BGR nach RGB umgedreht.
func (a *Array) rgb() []uint8 {
	h, w := a.Height(), a.Width()
	out := make([]uint8, h*w*3)

	switch a.Dims() {
	case 2:
		for i, v := range a.Data {
			out[i*3], out[i*3+1], out[i*3+2] = v, v, v
		}
	case 3:
		for i := 0; i < h*w; i++ {
			out[i*3], out[i*3+1], out[i*3+2] = a.Data[i*3+2], a.Data[i*3+1], a.Data[i*3]
		}
	}
	return out
}

// Image konvertiert das Array zu *image.RGBA
func (a *Array) Image() (*image.RGBA, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	h, w := a.Height(), a.Width()
	px := a.rgb()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < h*w; i++ {
		img.Pix[i*4] = px[i*3]
		img.Pix[i*4+1] = px[i*3+1]
		img.Pix[i*4+2] = px[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img, nil
}

// ArrayFromImage erzeugt ein [H,W,3] BGR Array aus einem Bild.
// Alpha wird verworfen.
func ArrayFromImage(img image.Image) *Array {
	pix, w, h := rgbPixels(img)
	for i := 0; i < w*h; i++ {
		pix[i*3], pix[i*3+2] = pix[i*3+2], pix[i*3]
	}
	return &Array{Shape: []int{h, w, 3}, Data: pix}
}
