// cache.go - Cache-Management fuer heruntergeladene Modelle
// Kompatibel mit der Python huggingface_hub Cache-Struktur.
package huggingface

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache-Konstanten
const (
	DefaultCacheSubdir = "huggingface/hub"
	CacheSnapshotDir   = "snapshots"
	CacheModelPrefix   = "models--"
)

var ErrModelNotInCache = errors.New("model not in cache")

// GetCacheDir gibt das Cache-Verzeichnis zurueck (HF_HUB_CACHE, HF_HOME, XDG_CACHE_HOME)
func GetCacheDir() string {
	if cacheDir := os.Getenv("HF_HUB_CACHE"); cacheDir != "" {
		return cacheDir
	}
	if hfHome := os.Getenv("HF_HOME"); hfHome != "" {
		return filepath.Join(hfHome, "hub")
	}

	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".cache")
		} else {
			base = filepath.Join(os.TempDir(), "huggingface_cache")
		}
	}
	return filepath.Join(base, DefaultCacheSubdir)
}

// CachedModel prueft ob eine Revision eines Modells im Cache liegt
func (c *Client) CachedModel(modelID, revision string) (string, bool) {
	snapshot := filepath.Join(c.cacheDir, modelIDToCacheDir(modelID), CacheSnapshotDir, revision)
	if entries, err := os.ReadDir(snapshot); err == nil && len(entries) > 0 {
		return snapshot, true
	}
	return "", false
}

// ListCachedModels gibt alle Modell-IDs im Cache zurueck
func (c *Client) ListCachedModels() ([]string, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var models []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), CacheModelPrefix) {
			models = append(models, cacheDirToModelID(entry.Name()))
		}
	}
	return models, nil
}

// RemoveCachedModel loescht alle Revisionen eines Modells
func (c *Client) RemoveCachedModel(modelID string) error {
	path := filepath.Join(c.cacheDir, modelIDToCacheDir(modelID))
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &HuggingFaceError{Op: "remove", ModelID: modelID, Err: ErrModelNotInCache}
	}
	return os.RemoveAll(path)
}

func modelIDToCacheDir(modelID string) string {
	return CacheModelPrefix + strings.ReplaceAll(modelID, "/", "--")
}

func cacheDirToModelID(cacheDir string) string {
	return strings.Replace(strings.TrimPrefix(cacheDir, CacheModelPrefix), "--", "/", 1)
}
