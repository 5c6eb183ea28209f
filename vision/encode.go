// MODUL: encode
// ZWECK: Ausgabe-Arrays als PNG/JPEG kodieren
// INPUT: Array ([H,W,3] BGR oder [H,W])
// OUTPUT: Kodierte Bytes in einen io.Writer
// NEBENEFFEKTE: Schreibt in den Writer
// ABHAENGIGKEITEN: github.com/disintegration/imaging (extern)
// HINWEISE: Format wird aus der Dateiendung abgeleitet (SaveArray)

package vision

import (
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// Encode schreibt ein Array im angegebenen Format
func Encode(w io.Writer, a *Array, format ImageFormat) error {
	img, err := a.Image()
	if err != nil {
		return err
	}

	switch format {
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(95))
	case FormatBMP:
		return imaging.Encode(w, img, imaging.BMP)
	case FormatTIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	case FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	default:
		return fmt.Errorf("%w: cannot encode %s", ErrUnsupportedFormat, format)
	}
}

// EncodePNG schreibt ein Array als PNG
func EncodePNG(w io.Writer, a *Array) error {
	return Encode(w, a, FormatPNG)
}

// EncodeJPEG schreibt ein Array als JPEG (Qualitaet 95)
func EncodeJPEG(w io.Writer, a *Array) error {
	return Encode(w, a, FormatJPEG)
}

// SaveArray speichert ein Array, das Format folgt der Dateiendung
func SaveArray(path string, a *Array) error {
	f, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}

	format, ok := map[imaging.Format]ImageFormat{
		imaging.JPEG: FormatJPEG,
		imaging.PNG:  FormatPNG,
		imaging.GIF:  FormatGIF,
		imaging.TIFF: FormatTIFF,
		imaging.BMP:  FormatBMP,
	}[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Encode(out, a, format); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
