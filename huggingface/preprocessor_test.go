// preprocessor_test.go - Unit Tests fuer Preprocessor Config Parser und Task-Erkennung
package huggingface

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestParsePreprocessorConfig testet das Parsen von preprocessor_config.json
func TestParsePreprocessorConfig(t *testing.T) {
	tests := []struct {
		name, data string
		expectErr  bool
	}{
		{"OFA", `{"image_processor_type": "OFAImageProcessor", "size": {"height": 480, "width": 480}}`, false},
		{"CLIP crop", `{"processor_class": "CLIPProcessor", "crop_size": {"height": 224, "width": 224}}`, false},
		{"image_size direkt", `{"image_processor_type": "ViTImageProcessor", "image_size": 224}`, false},
		{"shortest_edge", `{"image_processor_type": "Processor", "size": {"shortest_edge": 518}}`, false},
		{"Invalides JSON", `{"invalid: json}`, true},
		{"Leere Config", `{}`, true},
		{"Nur Mean", `{"image_mean": [0.5, 0.5, 0.5]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := ParsePreprocessorConfig([]byte(tt.data))
			if tt.expectErr {
				if !errors.Is(err, ErrInvalidPreprocessor) {
					t.Errorf("Erwartete ErrInvalidPreprocessor, bekam %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unerwarteter Fehler: %v", err)
			} else if config == nil {
				t.Error("Erwartete Config, bekam nil")
			}
		})
	}
}

func TestLoadPreprocessor(t *testing.T) {
	dir := t.TempDir()
	data := `{"image_processor_type": "OFAImageProcessor", "size": {"height": 384, "width": 384}, "resample": 3}`
	if err := os.WriteFile(filepath.Join(dir, PreprocessorFile), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadPreprocessor(dir)
	if err != nil {
		t.Fatalf("Fehler: %v", err)
	}
	if r, ok := config.ResampleFilter(); !ok || r != ResampleBicubic {
		t.Errorf("ResampleFilter() = %d, %v", r, ok)
	}
	if _, _, ok := config.Normalization(); ok {
		t.Error("Normalization() ohne image_mean sollte ok=false liefern")
	}

	_, err = LoadPreprocessor(t.TempDir())
	var hfErr *HuggingFaceError
	if !errors.As(err, &hfErr) || !errors.Is(err, ErrPreprocessorNotFound) {
		t.Errorf("Erwartete HuggingFaceError mit ErrPreprocessorNotFound, bekam %v", err)
	}
}

func TestImageSize(t *testing.T) {
	tests := []struct {
		name   string
		config PreprocessorConfig
		w, h   int
		ok     bool
	}{
		{"Leer", PreprocessorConfig{}, 0, 0, false},
		{"Size w/h", PreprocessorConfig{Size: &ImageSizeConfig{Width: 384, Height: 384}}, 384, 384, true},
		{"shortest_edge", PreprocessorConfig{Size: &ImageSizeConfig{ShortestEdge: 518}}, 518, 518, true},
		{"longest_edge", PreprocessorConfig{Size: &ImageSizeConfig{LongestEdge: 1024}}, 1024, 1024, true},
		{"CropSize", PreprocessorConfig{CropSize: &ImageSizeConfig{Width: 224, Height: 224}}, 224, 224, true},
		{"image_size direkt", PreprocessorConfig{ImageSizeDirect: 336}, 336, 336, true},
		{"width/height direkt", PreprocessorConfig{Width: 256, Height: 256}, 256, 256, true},
		{"Leere Size", PreprocessorConfig{Size: &ImageSizeConfig{}, CropSize: &ImageSizeConfig{Width: 224, Height: 224}}, 224, 224, true},
		{"Nicht-quadratisch", PreprocessorConfig{Size: &ImageSizeConfig{Width: 640, Height: 480}}, 640, 480, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, ok := tt.config.ImageSize()
			if w != tt.w || h != tt.h || ok != tt.ok {
				t.Errorf("ImageSize() = (%d, %d, %v), erwartet (%d, %d, %v)", w, h, ok, tt.w, tt.h, tt.ok)
			}
		})
	}
}

func TestNormalization(t *testing.T) {
	half := []float32{0.5, 0.5, 0.5}

	mean, std, ok := (&PreprocessorConfig{ImageMean: half, ImageStd: half}).Normalization()
	if !ok {
		t.Fatal("erwartet ok")
	}
	if diff := cmp.Diff(half, mean); diff != "" {
		t.Errorf("mean mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(half, std); diff != "" {
		t.Errorf("std mismatch (-want +got):\n%s", diff)
	}

	if _, _, ok := (&PreprocessorConfig{ImageMean: half}).Normalization(); ok {
		t.Error("nur image_mean sollte ok=false liefern")
	}
}

func TestResampleFilter(t *testing.T) {
	r := func(v int) *int { return &v }
	tests := []struct {
		name   string
		config PreprocessorConfig
		want   int
		ok     bool
	}{
		{"Nicht gesetzt", PreprocessorConfig{}, 0, false},
		{"Nearest", PreprocessorConfig{Resample: r(ResampleNearest)}, ResampleNearest, true},
		{"Bilinear", PreprocessorConfig{Resample: r(ResampleBilinear)}, ResampleBilinear, true},
		{"Hamming", PreprocessorConfig{Resample: r(5)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := tt.config.ResampleFilter(); got != tt.want || ok != tt.ok {
				t.Errorf("ResampleFilter() = %d, %v, erwartet %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetectTask(t *testing.T) {
	write := func(dir, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"ModelScope SR", map[string]string{ConfigurationFile: `{"task": "image-super-resolution"}`}, TaskSuperResolution},
		{"ModelScope Grounding", map[string]string{ConfigurationFile: `{"task": "visual_grounding", "model": {"type": "ofa"}}`}, TaskVisualGrounding},
		{"Nur Gewichte", map[string]string{"pytorch_model.pt": "x"}, TaskSuperResolution},
		{"Vokabular", map[string]string{"vocab.json": "{}", "model.safetensors": "x"}, TaskVisualGrounding},
		{"Unbekannter Task", map[string]string{ConfigurationFile: `{"task": "ocr"}`, "model.safetensors": "x"}, TaskSuperResolution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				write(dir, name, content)
			}
			got, err := DetectTask(dir)
			if err != nil {
				t.Fatalf("DetectTask() Fehler: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectTask() = %q, erwartet %q", got, tt.want)
			}
		})
	}

	if _, err := DetectTask(t.TempDir()); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Erwartete ErrUnknownTask, bekam %v", err)
	}

	dir := t.TempDir()
	write(dir, ConfigurationFile, `{"task": `)
	if _, err := DetectTask(dir); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Erwartete ErrInvalidConfig, bekam %v", err)
	}
}
