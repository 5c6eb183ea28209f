package vision

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewArray(t *testing.T) {
	tests := []struct {
		name  string
		data  []uint8
		shape []int
		ok    bool
	}{
		{"grau", make([]uint8, 6), []int{2, 3}, true},
		{"bgr", make([]uint8, 18), []int{2, 3, 3}, true},
		{"rgba", make([]uint8, 24), []int{2, 3, 4}, false},
		{"zu kurz", make([]uint8, 5), []int{2, 3}, false},
		{"null", nil, []int{0, 3}, false},
		{"4D", make([]uint8, 6), []int{1, 2, 3, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArray(tt.data, tt.shape...)
			if (err == nil) != tt.ok {
				t.Errorf("NewArray() error = %v, ok %v", err, tt.ok)
			}
		})
	}
}

func TestArrayImage(t *testing.T) {
	// BGR: blau, gruen
	a := &Array{Shape: []int{1, 2, 3}, Data: []uint8{255, 0, 0, 0, 255, 0}}
	img, err := a.Image()
	if err != nil {
		t.Fatal(err)
	}

	want := []uint8{0, 0, 255, 255, 0, 255, 0, 255}
	if !bytes.Equal(img.Pix, want) {
		t.Errorf("Pix = %v, erwartet %v", img.Pix, want)
	}

	gray := &Array{Shape: []int{1, 1}, Data: []uint8{77}}
	img, err = gray.Image()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Pix, []uint8{77, 77, 77, 255}) {
		t.Errorf("Graustufen Pix = %v", img.Pix)
	}
}

func TestArrayFromImageRoundtrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 10)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}

	a := ArrayFromImage(src)
	if diff := cmp.Diff([]int{2, 3, 3}, a.Shape); diff != "" {
		t.Fatalf("Shape mismatch (-want +got):\n%s", diff)
	}
	// erstes Pixel RGB (0,10,20) -> BGR (20,10,0)
	if diff := cmp.Diff([]uint8{20, 10, 0}, a.Data[:3]); diff != "" {
		t.Errorf("BGR mismatch (-want +got):\n%s", diff)
	}

	back, err := a.Image()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Pix, src.Pix) {
		t.Errorf("Roundtrip Pix = %v, erwartet %v", back.Pix, src.Pix)
	}
}

func TestEncodeAndSave(t *testing.T) {
	a := ArrayFromImage(createTestImage(4, 3, color.RGBA{10, 20, 30, 255}).Image)

	var buf bytes.Buffer
	if err := EncodePNG(&buf, a); err != nil {
		t.Fatal(err)
	}
	if DetectFormat(buf.Bytes()) != FormatPNG {
		t.Error("Erwartet PNG-Signatur")
	}

	img, err := LoadImageFromBytes(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, ArrayFromImage(img.Image)); diff != "" {
		t.Errorf("PNG Roundtrip mismatch (-want +got):\n%s", diff)
	}

	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.jpg", "out.bmp"} {
		path := filepath.Join(dir, name)
		if err := SaveArray(path, a); err != nil {
			t.Fatalf("SaveArray(%s) error = %v", name, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := ValidateFormat(DetectFormat(data)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if err := SaveArray(filepath.Join(dir, "out.xyz"), a); err == nil {
		t.Error("Erwartet Fehler bei unbekannter Endung")
	}
	if err := Encode(&buf, a, FormatWebP); err == nil {
		t.Error("Erwartet Fehler bei WebP-Kodierung")
	}
}
