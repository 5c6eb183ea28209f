// preprocessor.go - Parser fuer HuggingFace preprocessor_config.json
//
// Grounding-Modelle ohne configuration.json beschreiben Patch-Groesse,
// Normalisierung und Resampling hier. Fehlende Felder melden ok=false,
// die Defaults setzt der Aufrufer.
package huggingface

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PIL-Resampling-Nummern
const (
	ResampleNearest  = 0
	ResampleLanczos  = 1
	ResampleBilinear = 2
	ResampleBicubic  = 3
)

// PreprocessorFile ist der Dateiname im Modell-Verzeichnis
const PreprocessorFile = "preprocessor_config.json"

var (
	ErrPreprocessorNotFound = errors.New("preprocessor_config.json not found")
	ErrInvalidPreprocessor  = errors.New("invalid preprocessor_config.json")
)

// ParsePreprocessorConfig parst die rohen JSON-Bytes. Eine Datei ohne
// Groesse, Normalisierung oder Prozessor-Typ ist ungueltig.
func ParsePreprocessorConfig(data []byte) (*PreprocessorConfig, error) {
	var config PreprocessorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &HuggingFaceError{Op: "parse_preprocessor", Err: fmt.Errorf("%w: %v", ErrInvalidPreprocessor, err)}
	}

	_, _, hasSize := config.ImageSize()
	if !hasSize && len(config.ImageMean) == 0 && len(config.ImageStd) == 0 &&
		config.ImageProcessorType == "" && config.ProcessorClass == "" {
		return nil, &HuggingFaceError{Op: "parse_preprocessor", Err: ErrInvalidPreprocessor}
	}
	return &config, nil
}

// LoadPreprocessor liest dir/preprocessor_config.json
func LoadPreprocessor(dir string) (*PreprocessorConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, PreprocessorFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &HuggingFaceError{Op: "load_preprocessor", Err: ErrPreprocessorNotFound}
	} else if err != nil {
		return nil, &HuggingFaceError{Op: "load_preprocessor", Err: err}
	}
	return ParsePreprocessorConfig(data)
}

// ImageSize gibt die Zielgroesse zurueck. Reihenfolge: size, crop_size,
// image_size, width/height. Eine einzelne Kante gilt fuer beide Seiten.
func (c *PreprocessorConfig) ImageSize() (width, height int, ok bool) {
	for _, block := range []*ImageSizeConfig{c.Size, c.CropSize} {
		if block == nil {
			continue
		}
		switch {
		case block.Width > 0 && block.Height > 0:
			return block.Width, block.Height, true
		case block.ShortestEdge > 0:
			return block.ShortestEdge, block.ShortestEdge, true
		case block.LongestEdge > 0:
			return block.LongestEdge, block.LongestEdge, true
		}
	}

	switch {
	case c.ImageSizeDirect > 0:
		return c.ImageSizeDirect, c.ImageSizeDirect, true
	case c.Width > 0 && c.Height > 0:
		return c.Width, c.Height, true
	}
	return 0, 0, false
}

// Normalization gibt image_mean und image_std zurueck, falls beide gesetzt sind
func (c *PreprocessorConfig) Normalization() (mean, std []float32, ok bool) {
	if len(c.ImageMean) == 0 || len(c.ImageStd) == 0 {
		return nil, nil, false
	}
	return c.ImageMean, c.ImageStd, true
}

// ResampleFilter gibt den PIL-Filter zurueck. BOX (4) und HAMMING (5)
// gibt es in vision nicht, sie zaehlen als nicht gesetzt.
func (c *PreprocessorConfig) ResampleFilter() (int, bool) {
	if c.Resample == nil {
		return 0, false
	}
	switch r := *c.Resample; r {
	case ResampleNearest, ResampleLanczos, ResampleBilinear, ResampleBicubic:
		return r, true
	}
	return 0, false
}
