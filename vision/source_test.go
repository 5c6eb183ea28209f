package vision

import (
	"errors"
	"image"
	"testing"
)

func TestSourceOf(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	arr := &Array{Shape: []int{2, 3}, Data: make([]uint8, 6)}

	tests := []struct {
		name string
		in   any
		kind Kind
		typ  string
	}{
		{"string", "cat.png", KindPath, ""},
		{"image", img, KindImage, ""},
		{"image input", FromDecoded(img), KindImage, ""},
		{"array", arr, KindArray, ""},
		{"array wert", *arr, KindArray, ""},
		{"source", FromPath("x.jpg"), KindPath, ""},
		{"int", 42, KindInvalid, "int"},
		{"float slice", []float64{1, 2}, KindInvalid, "[]float64"},
		{"nil", nil, KindInvalid, "<nil>"},
		{"nil array", (*Array)(nil), KindInvalid, "*vision.Array"},
		{"leere source", Source{}, KindInvalid, "vision.Source(invalid)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := SourceOf(tt.in)
			if src.Kind() != tt.kind {
				t.Errorf("Kind = %v, erwartet %v", src.Kind(), tt.kind)
			}

			if tt.typ == "" {
				if err != nil {
					t.Fatalf("Unerwarteter Fehler: %v", err)
				}
				return
			}

			var unsupported *UnsupportedInputTypeError
			if !errors.As(err, &unsupported) {
				t.Fatalf("Erwartet *UnsupportedInputTypeError, bekam %v", err)
			}
			if unsupported.Type != tt.typ {
				t.Errorf("Type = %q, erwartet %q", unsupported.Type, tt.typ)
			}
			if !errors.Is(err, ErrUnsupportedInput) {
				t.Error("Erwartet errors.Is(err, ErrUnsupportedInput)")
			}
		})
	}
}

func TestSourceVariants(t *testing.T) {
	if s := FromImage(nil); s.Kind() != KindInvalid {
		t.Errorf("FromImage(nil) Kind = %v, erwartet invalid", s.Kind())
	}
	if s := FromArray(nil); s.Kind() != KindInvalid {
		t.Errorf("FromArray(nil) Kind = %v, erwartet invalid", s.Kind())
	}

	p := FromPath("https://example.com/a.png")
	if p.Path() != "https://example.com/a.png" || p.Image() != nil || p.Array() != nil {
		t.Error("FromPath belegt mehr als eine Variante")
	}
	if p.String() != "https://example.com/a.png" {
		t.Errorf("String() = %q", p.String())
	}

	a := FromArray(&Array{Shape: []int{2, 2}, Data: make([]uint8, 4)})
	if a.String() != "array[2 2]" {
		t.Errorf("String() = %q, erwartet array[2 2]", a.String())
	}

	i := FromImage(image.NewGray(image.Rect(0, 0, 4, 3)))
	if i.String() != "image(4x3)" {
		t.Errorf("String() = %q, erwartet image(4x3)", i.String())
	}
}
