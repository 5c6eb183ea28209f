// detect.go - Aufgaben-Erkennung fuer Modell-Verzeichnisse
//
// Erkennt anhand von configuration.json (ModelScope) bzw. der vorhandenen
// Dateien, ob ein Verzeichnis ein Super-Resolution- oder ein
// Visual-Grounding-Modell enthaelt.
package huggingface

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModelScope-Konfigurationsdatei
const ConfigurationFile = "configuration.json"

var (
	ErrInvalidConfig = errors.New("invalid configuration.json")
	ErrUnknownTask   = errors.New("cannot determine model task")
)

// ModelScopeConfig ist der fuer die Erkennung relevante Teil von configuration.json
type ModelScopeConfig struct {
	Framework string `json:"framework"`
	Task      string `json:"task"`
	Model     struct {
		Type string `json:"type"`
	} `json:"model"`
}

// ParseConfiguration parst die rohen JSON-Bytes einer configuration.json.
func ParseConfiguration(data []byte) (*ModelScopeConfig, error) {
	var cfg ModelScopeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &HuggingFaceError{Op: "parse", Err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}
	return &cfg, nil
}

// normalizeTask bildet ModelScope-Tasknamen auf die internen Konstanten ab
func normalizeTask(task string) string {
	task = strings.ToLower(strings.ReplaceAll(task, "_", "-"))
	switch {
	case containsAny(task, "super-resolution"):
		return TaskSuperResolution
	case containsAny(task, "grounding"):
		return TaskVisualGrounding
	default:
		return TaskUnknown
	}
}

// DetectTask erkennt die Aufgabe eines Modell-Verzeichnisses.
func DetectTask(dir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(dir, ConfigurationFile)); err == nil {
		cfg, err := ParseConfiguration(data)
		if err != nil {
			return TaskUnknown, err
		}
		if task := normalizeTask(cfg.Task); task != TaskUnknown {
			return task, nil
		}
	}

	// Ohne Task-Feld entscheiden die vorhandenen Dateien
	switch {
	case anyExists(dir, "vocab.json", "vocab.txt"):
		return TaskVisualGrounding, nil
	case anyExists(dir, "pytorch_model.pt", "model.safetensors"):
		return TaskSuperResolution, nil
	}

	return TaskUnknown, &HuggingFaceError{Op: "detect", Err: fmt.Errorf("%w in %s", ErrUnknownTask, dir)}
}

func anyExists(dir string, names ...string) bool {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// containsAny prueft ob str mindestens einen der Substrings enthaelt.
func containsAny(str string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(str, sub) {
			return true
		}
	}
	return false
}
