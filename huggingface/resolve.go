// resolve.go - Aufloesung von Modell-Referenzen zu lokalen Verzeichnissen
//
// Reihenfolge: lokales Verzeichnis, Verzeichnis unter VISIONPREP_MODELS,
// Hub-Cache, Download vom Hub.
package huggingface

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/7blacky7/visionprep/envconfig"
)

// ResolveLocal findet ein Modell ohne Netzwerkzugriff
func (c *Client) ResolveLocal(ref string) (string, error) {
	if ref == "" {
		return "", &HuggingFaceError{Op: "resolve", Err: ErrModelNotFound}
	}

	candidates := []string{ref}
	if !filepath.IsAbs(ref) {
		candidates = append(candidates, filepath.Join(envconfig.Models(), ref))
	}

	for _, dir := range candidates {
		if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
			return filepath.Abs(dir)
		}
	}

	if validateModelID(ref) == nil {
		if dir, ok := c.CachedModel(ref, "main"); ok {
			return dir, nil
		}
	}

	return "", &HuggingFaceError{Op: "resolve", ModelID: ref, Err: ErrModelNotFound}
}

// Resolve findet ein Modell lokal oder laedt es vom Hub herunter
func (c *Client) Resolve(ctx context.Context, ref string, opts ...DownloadOption) (string, error) {
	dir, err := c.ResolveLocal(ref)
	if err == nil || !errors.Is(err, ErrModelNotFound) {
		return dir, err
	}

	if err := validateModelID(ref); err != nil {
		return "", &HuggingFaceError{Op: "resolve", ModelID: ref, Err: ErrModelNotFound}
	}

	slog.Info("model not found locally, pulling", "model", ref, "hub", c.baseURL)
	result, err := c.DownloadModel(ctx, ref, opts...)
	if err != nil {
		return "", err
	}
	return result.CachePath, nil
}

// LocalModel ist ein lokal verfuegbares Modell-Verzeichnis
type LocalModel struct {
	Name string
	Path string
	Task string
}

// ListLocal listet Modelle unter modelsDir und im Hub-Cache, sortiert nach Name.
// Ein fehlendes modelsDir ist kein Fehler.
func (c *Client) ListLocal(modelsDir string) ([]LocalModel, error) {
	var models []LocalModel

	entries, err := os.ReadDir(modelsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			models = append(models, describeLocal(e.Name(), filepath.Join(modelsDir, e.Name())))
		}
	}

	cached, err := c.ListCachedModels()
	if err != nil {
		return nil, err
	}
	for _, id := range cached {
		if dir, ok := c.CachedModel(id, "main"); ok {
			models = append(models, describeLocal(id, dir))
		}
	}

	slices.SortFunc(models, func(a, b LocalModel) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return models, nil
}

func describeLocal(name, dir string) LocalModel {
	task, err := DetectTask(dir)
	if err != nil {
		task = TaskUnknown
	}
	return LocalModel{Name: name, Path: dir, Task: task}
}
