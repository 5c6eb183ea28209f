// MODUL: source
// ZWECK: Tagged Union fuer Bildquellen (Pfad/URL, dekodiertes Bild, rohes Array)
// INPUT: Genau eine Quellvariante pro Aufruf
// OUTPUT: Source, Kind-Dispatch fuer Normalisierung und Grounding
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: image (Standardbibliothek)
// HINWEISE: Nur die Konstruktoren erzeugen gueltige Varianten, Source{} ist ungueltig

package vision

import (
	"fmt"
	"image"
)

// Kind identifiziert die Variante einer Source
type Kind int

const (
	KindInvalid Kind = iota
	KindPath
	KindImage
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindImage:
		return "image"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Source ist eine Bildquelle mit genau einer belegten Variante.
type Source struct {
	kind  Kind
	path  string
	image image.Image
	array *Array
}

// FromPath erstellt eine Quelle aus einem Dateipfad oder einer URL
func FromPath(path string) Source {
	return Source{kind: KindPath, path: path}
}

// FromImage erstellt eine Quelle aus einem dekodierten Bild
func FromImage(img image.Image) Source {
	if img == nil {
		return Source{}
	}
	return Source{kind: KindImage, image: img}
}

// FromArray erstellt eine Quelle aus einem rohen Array
func FromArray(a *Array) Source {
	if a == nil {
		return Source{}
	}
	return Source{kind: KindArray, array: a}
}

// SourceOf ordnet einen untypisierten Wert einer Variante zu.
// Unbekannte Typen ergeben *UnsupportedInputTypeError.
func SourceOf(v any) (Source, error) {
	switch v := v.(type) {
	case Source:
		if v.kind == KindInvalid {
			return Source{}, &UnsupportedInputTypeError{Type: "vision.Source(invalid)"}
		}
		return v, nil
	case string:
		return FromPath(v), nil
	case *Array:
		if v != nil {
			return FromArray(v), nil
		}
	case Array:
		return FromArray(&v), nil
	case *ImageInput:
		if v != nil {
			return FromImage(v.Image), nil
		}
	case image.Image:
		if v != nil {
			return FromImage(v), nil
		}
	}
	return Source{}, &UnsupportedInputTypeError{Type: fmt.Sprintf("%T", v)}
}

// Kind gibt die belegte Variante zurueck
func (s Source) Kind() Kind { return s.kind }

// Path gibt Pfad/URL zurueck (nur KindPath)
func (s Source) Path() string { return s.path }

// Image gibt das dekodierte Bild zurueck (nur KindImage)
func (s Source) Image() image.Image { return s.image }

// Array gibt das rohe Array zurueck (nur KindArray)
func (s Source) Array() *Array { return s.array }

// String beschreibt die Quelle fuer Logs und Fehler
func (s Source) String() string {
	switch s.kind {
	case KindPath:
		return s.path
	case KindImage:
		b := s.image.Bounds()
		return fmt.Sprintf("image(%dx%d)", b.Dx(), b.Dy())
	case KindArray:
		return fmt.Sprintf("array%v", s.array.Shape)
	default:
		return "invalid"
	}
}
