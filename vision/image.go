// MODUL: image
// ZWECK: Bild-Lade- und Verarbeitungsfunktionen fuer Vorverarbeitung
// INPUT: Dateipfad, URL, Bytes oder io.Reader
// OUTPUT: ImageInput Struktur mit dekodiertem Bild
// NEBENEFFEKTE: Dateisystem-Lesezugriff bzw. HTTP-Abruf bei LoadSource
// ABHAENGIGKEITEN: golang.org/x/image (extern), github.com/disintegration/imaging (extern)
// HINWEISE: EXIF-Orientierung wird beim Dekodieren angewendet, Ausgabe ist NRGBA (nicht vormultipliziert)

package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"strings"

	// Standard-Decoder registrieren
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten.
// Image haelt nicht vormultiplizierte Farben, transparente Pixel
// behalten ihre RGB-Werte.
type ImageInput struct {
	Image  *image.NRGBA
	Width  int
	Height int
	Format ImageFormat
}

// IsURL prueft ob eine Quelle per HTTP geladen werden muss
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// LoadSource laedt ein Bild von einem Dateipfad oder einer http(s) URL.
// Alle Fehler werden als *ImageDecodeError gemeldet.
func LoadSource(ctx context.Context, ref string, opts ...LoadOption) (*ImageInput, error) {
	o, err := newLoadOptions(opts)
	if err != nil {
		return nil, err
	}

	var data []byte
	if IsURL(ref) {
		data, err = fetch(ctx, ref, o)
	} else {
		data, err = readFile(ref, o.MaxBytes)
	}
	if err != nil {
		return nil, &ImageDecodeError{Source: ref, Err: err}
	}

	img, err := LoadImageFromBytes(data)
	if err != nil {
		return nil, &ImageDecodeError{Source: ref, Err: err}
	}

	o.Logger.Debug("loaded image", "source", ref, "format", img.Format, "width", img.Width, "height", img.Height)
	return img, nil
}

// LoadImage laedt ein Bild von einem Dateipfad
func LoadImage(path string) (*ImageInput, error) {
	return LoadSource(context.Background(), path)
}

func readFile(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readLimited(f, limit)
}

func fetch(ctx context.Context, url string, o LoadOptions) ([]byte, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	return readLimited(resp.Body, o.MaxBytes)
}

// readLimited liest hoechstens limit Bytes und meldet groessere Quellen als Fehler
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return data, nil
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	return decodeWithFormat(bytes.NewReader(data), format)
}

// DecodeImage dekodiert ein Bild aus einem io.Reader
func DecodeImage(reader io.Reader) (*ImageInput, error) {
	// Erst Daten puffern fuer Format-Erkennung
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return LoadImageFromBytes(data)
}

// decodeWithFormat dekodiert, wendet EXIF-Orientierung an und konvertiert zu NRGBA
func decodeWithFormat(reader io.Reader, format ImageFormat) (*ImageInput, error) {
	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	return newImageInput(toNRGBA(img), format), nil
}

// FromDecoded verpackt ein bereits dekodiertes Bild
func FromDecoded(img image.Image) *ImageInput {
	return newImageInput(toNRGBA(img), FormatUnknown)
}

func newImageInput(nrgba *image.NRGBA, format ImageFormat) *ImageInput {
	b := nrgba.Bounds()
	return &ImageInput{
		Image:  nrgba,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}
}

// toNRGBA konvertiert ein beliebiges image.Image zu *image.NRGBA mit Ursprung (0,0).
// Kein Umweg ueber *image.RGBA: das wuerde transparente Pixel vormultiplizieren.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}
	return imaging.Clone(img)
}

// rgbPixels liefert die Pixel als HWC RGB. Alpha wird verworfen
// (nicht verrechnet), wie bei einer expliziten RGB-Konvertierung.
func rgbPixels(img image.Image) (pix []uint8, w, h int) {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	w, h = b.Dx(), b.Dy()

	pix = make([]uint8, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			pix = append(pix, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return pix, w, h
}

// ToRGB erzwingt ein opakes RGB-Bild (Alpha verworfen)
func ToRGB(img image.Image) *image.RGBA {
	pix, w, h := rgbPixels(img)
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		copy(rgba.Pix[i*4:i*4+3], pix[i*3:i*3+3])
		rgba.Pix[i*4+3] = 0xff
	}
	return rgba
}

// ============================================================================
// Resize
// ============================================================================

// Resample waehlt den Interpolations-Kernel (Werte wie PIL/Pillow)
type Resample int

const (
	ResampleNearest  Resample = 0
	ResampleLanczos  Resample = 1
	ResampleBilinear Resample = 2
	ResampleBicubic  Resample = 3
)

func (r Resample) String() string {
	switch r {
	case ResampleNearest:
		return "nearest"
	case ResampleLanczos:
		return "lanczos"
	case ResampleBilinear:
		return "bilinear"
	case ResampleBicubic:
		return "bicubic"
	default:
		return fmt.Sprintf("resample(%d)", int(r))
	}
}

// ResizeImage skaliert ein Bild auf die angegebene Groesse (bilinear)
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	return Resize(img, width, height, ResampleBilinear)
}

// Resize skaliert ein Bild mit dem gewaehlten Kernel.
// Bicubic nutzt Catmull-Rom (a=-0.5), wie PIL.
func Resize(img *ImageInput, width, height int, resample Resample) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size: %dx%d", width, height)
	}

	var dst *image.NRGBA
	switch resample {
	case ResampleLanczos:
		dst = imaging.Resize(img.Image, width, height, imaging.Lanczos)
	case ResampleNearest, ResampleBilinear, ResampleBicubic:
		var scaler draw.Scaler
		switch resample {
		case ResampleNearest:
			scaler = draw.NearestNeighbor
		case ResampleBilinear:
			scaler = draw.BiLinear
		default:
			scaler = draw.CatmullRom
		}
		dst = image.NewNRGBA(image.Rect(0, 0, width, height))
		scaler.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)
	default:
		return nil, fmt.Errorf("unknown resample method %v", resample)
	}

	return &ImageInput{
		Image:  dst,
		Width:  width,
		Height: height,
		Format: img.Format,
	}, nil
}

// Composite entfernt Alpha-Kanal durch weissen Hintergrund
func Composite(img *ImageInput) *ImageInput {
	return CompositeWithColor(img, color.White)
}

// CompositeWithColor entfernt Alpha-Kanal mit gegebener Hintergrundfarbe
func CompositeWithColor(img *ImageInput, bgColor color.Color) *ImageInput {
	return &ImageInput{
		Image:  toNRGBA(compositeOver(img.Image, bgColor)),
		Width:  img.Width,
		Height: img.Height,
		Format: img.Format,
	}
}

func compositeOver(img image.Image, bgColor color.Color) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// Hintergrund fuellen, Bild darueber zeichnen
	draw.Draw(dst, dst.Bounds(), &image.Uniform{bgColor}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
