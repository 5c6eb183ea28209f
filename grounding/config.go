// MODUL: config
// ZWECK: Konfiguration des Grounding-Sample-Builders laden und pruefen
// INPUT: Modellverzeichnis mit configuration.json, preprocessor_config.json oder config.yaml
// OUTPUT: Config (Patch-Groesse, Quell-Laenge, Mean/Std, Prompt, Resample)
// NEBENEFFEKTE: Dateisystem-Zugriffe
// ABHAENGIGKEITEN: gopkg.in/yaml.v3 (extern), huggingface, vision
// HINWEISE: Reihenfolge: configuration.json, preprocessor_config.json, config.yaml

package grounding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/vision"
)

// DefaultPrompt ist das OFA Prompt-Template. Das fuehrende Leerzeichen
// gehoert dazu, der BPE-Tokenizer kodiert "Ġwhich".
const DefaultPrompt = ` which region does the text " {} " describe?`

// OFA Defaults, gelten sobald eine Datei den model-Abschnitt deklariert
const (
	DefaultPatchImageSize = 480
	DefaultMaxSrcLength   = 256
)

// YAMLFile ist die optionale Konfiguration im yaml Format
const YAMLFile = "config.yaml"

// Config ist nach NewBuilder unveraenderlich
type Config struct {
	PatchImageSize int
	MaxSrcLength   int
	Mean           [3]float32
	Std            [3]float32
	Prompt         string
	Resample       vision.Resample
}

// DefaultConfig liefert die OFA Defaults (Mean/Std 0.5, bicubic)
func DefaultConfig() Config {
	return Config{
		PatchImageSize: DefaultPatchImageSize,
		MaxSrcLength:   DefaultMaxSrcLength,
		Mean:           vision.ImageNetStandardMean,
		Std:            vision.ImageNetStandardStd,
		Prompt:         DefaultPrompt,
		Resample:       vision.ResampleBicubic,
	}
}

// Validate prueft die Pflichtfelder
func (c Config) Validate() error {
	if c.PatchImageSize <= 0 {
		return &vision.ConfigurationError{Field: "patch_image_size", Reason: fmt.Sprintf("must be positive, got %d", c.PatchImageSize)}
	}
	if c.MaxSrcLength <= 0 {
		return &vision.ConfigurationError{Field: "max_src_length", Reason: fmt.Sprintf("must be positive, got %d", c.MaxSrcLength)}
	}
	for i, s := range c.Std {
		if s == 0 {
			return &vision.ConfigurationError{Field: "std", Reason: fmt.Sprintf("std[%d] is zero", i)}
		}
	}
	if c.Prompt == "" {
		return &vision.ConfigurationError{Field: "prompt", Reason: "is empty"}
	}
	return nil
}

// modelSection entspricht model.* in configuration.json bzw. config.yaml
type modelSection struct {
	PatchImageSize  *int      `json:"patch_image_size" yaml:"patch_image_size"`
	MaxSrcLength    *int      `json:"max_src_length" yaml:"max_src_length"`
	ImageNetMeanStd bool      `json:"imagenet_default_mean_and_std" yaml:"imagenet_default_mean_and_std"`
	Mean            []float32 `json:"mean" yaml:"mean"`
	Std             []float32 `json:"std" yaml:"std"`
	Prompt          *string   `json:"prompt" yaml:"prompt"`
}

type configFile struct {
	Model *modelSection `json:"model" yaml:"model"`
}

// apply setzt die Felder des Abschnitts ueber die OFA Defaults. Ein
// Abschnitt ohne patch_image_size und max_src_length gilt als unvollstaendig.
func (m *modelSection) apply() (Config, error) {
	if m.PatchImageSize == nil && m.MaxSrcLength == nil {
		return Config{}, &vision.ConfigurationError{Field: "model", Reason: "section needs patch_image_size or max_src_length"}
	}

	cfg := DefaultConfig()
	if m.PatchImageSize != nil {
		cfg.PatchImageSize = *m.PatchImageSize
	}
	if m.MaxSrcLength != nil {
		cfg.MaxSrcLength = *m.MaxSrcLength
	}
	if m.ImageNetMeanStd {
		cfg.Mean, cfg.Std = vision.ImageNetMean, vision.ImageNetStd
	}

	var err error
	if m.Mean != nil {
		if cfg.Mean, err = triple("mean", m.Mean); err != nil {
			return Config{}, err
		}
	}
	if m.Std != nil {
		if cfg.Std, err = triple("std", m.Std); err != nil {
			return Config{}, err
		}
	}
	if m.Prompt != nil {
		cfg.Prompt = *m.Prompt
	}
	return cfg, nil
}

func triple(field string, v []float32) ([3]float32, error) {
	if len(v) != 3 {
		return [3]float32{}, &vision.ConfigurationError{Field: field, Reason: fmt.Sprintf("expected 3 values, got %d", len(v))}
	}
	return [3]float32{v[0], v[1], v[2]}, nil
}

// LoadConfig liest die Grounding-Konfiguration aus einem Modellverzeichnis.
// Ein Verzeichnis ohne jede Konfigurationsdatei ergibt ConfigurationError.
func LoadConfig(dir string) (Config, error) {
	cfg, ok, err := loadModelScope(dir)
	if err != nil || ok {
		return cfg, err
	}

	cfg, ok, err = loadPreprocessor(dir)
	if err != nil || ok {
		return cfg, err
	}

	cfg, ok, err = loadYAML(dir)
	if err != nil || ok {
		return cfg, err
	}

	return Config{}, &vision.ConfigurationError{
		Field:  "model",
		Reason: fmt.Sprintf("no %s, %s or %s with a model section in %s", huggingface.ConfigurationFile, huggingface.PreprocessorFile, YAMLFile, dir),
	}
}

func loadModelScope(dir string) (Config, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, huggingface.ConfigurationFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, false, nil
	} else if err != nil {
		return Config{}, false, err
	}

	var f configFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Config{}, false, &vision.ConfigurationError{Field: huggingface.ConfigurationFile, Reason: err.Error()}
	}
	if f.Model == nil {
		return Config{}, false, nil
	}

	cfg, err := f.Model.apply()
	return cfg, true, err
}

func loadPreprocessor(dir string) (Config, bool, error) {
	pp, err := huggingface.LoadPreprocessor(dir)
	if errors.Is(err, huggingface.ErrPreprocessorNotFound) {
		return Config{}, false, nil
	} else if err != nil {
		return Config{}, false, &vision.ConfigurationError{Field: huggingface.PreprocessorFile, Reason: err.Error()}
	}

	cfg := DefaultConfig()
	if w, h, ok := pp.ImageSize(); ok {
		if w != h {
			return Config{}, false, &vision.ConfigurationError{Field: "size", Reason: fmt.Sprintf("patch must be square, got %dx%d", w, h)}
		}
		cfg.PatchImageSize = w
	}

	if mean, std, ok := pp.Normalization(); ok {
		if cfg.Mean, err = triple("image_mean", mean); err != nil {
			return Config{}, false, err
		}
		if cfg.Std, err = triple("image_std", std); err != nil {
			return Config{}, false, err
		}
	}

	if r, ok := pp.ResampleFilter(); ok {
		cfg.Resample = vision.Resample(r)
	}
	return cfg, true, nil
}

func loadYAML(dir string) (Config, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, YAMLFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, false, nil
	} else if err != nil {
		return Config{}, false, err
	}

	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, false, &vision.ConfigurationError{Field: YAMLFile, Reason: err.Error()}
	}
	if f.Model == nil {
		return Config{}, false, nil
	}

	cfg, err := f.Model.apply()
	return cfg, true, err
}
