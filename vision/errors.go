// MODUL: errors
// ZWECK: Fehler-Taxonomie fuer Bild-Normalisierung, Grounding und Modell-Laden
// INPUT: Fehlerursachen aus Loader, Konfiguration und Gewichts-Deserialisierung
// OUTPUT: Typisierte Fehler, pruefbar mit errors.As / errors.Is
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Fehler werden nie intern wiederholt, Aufrufer entscheidet

package vision

import (
	"errors"
	"fmt"
)

// Sentinel-Fehler fuer errors.Is Vergleiche
var (
	ErrUnsupportedInput = errors.New("unsupported input type")
	ErrImageDecode      = errors.New("image decode failed")
	ErrConfiguration    = errors.New("invalid configuration")
	ErrModelLoad        = errors.New("model load failed")
)

// UnsupportedInputTypeError wird zurueckgegeben wenn eine Bildquelle
// keiner bekannten Variante entspricht.
type UnsupportedInputTypeError struct {
	Type string
}

func (e *UnsupportedInputTypeError) Error() string {
	return fmt.Sprintf("unsupported input type: %s", e.Type)
}

func (e *UnsupportedInputTypeError) Is(target error) bool {
	return target == ErrUnsupportedInput
}

// ImageDecodeError wird zurueckgegeben wenn ein Bild nicht gelesen
// oder dekodiert werden kann.
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %q: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

func (e *ImageDecodeError) Is(target error) bool {
	return target == ErrImageDecode
}

// ConfigurationError meldet ein fehlendes oder ungueltiges Konfigurationsfeld.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ModelLoadError meldet einen fatalen Fehler beim Laden der Modellgewichte.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool {
	return target == ErrModelLoad
}
