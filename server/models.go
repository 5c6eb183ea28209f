// MODUL: models
// ZWECK: Cache geladener Pipelines und Grounding-Builder pro Modellverzeichnis
// INPUT: Modell-Referenz (Verzeichnis, Name unter VISIONPREP_MODELS, Hub-ID)
// OUTPUT: *superres.Pipeline bzw. *grounding.Builder
// NEBENEFFEKTE: Laedt Gewichte und Tokenizer beim ersten Zugriff
// ABHAENGIGKEITEN: superres, grounding, huggingface (intern)
// HINWEISE: Aufloesung nur lokal, der Server laedt nichts vom Hub herunter

package server

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/grounding"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/vision"
)

// loadedModel ist ein Eintrag im Cache; once serialisiert das Laden,
// done wird nach Abschluss geschlossen
type loadedModel[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newLoadedModel[T any]() *loadedModel[T] {
	return &loadedModel[T]{done: make(chan struct{})}
}

// modelCache haelt geladene Modelle, Schluessel ist das aufgeloeste Verzeichnis.
// Fehlgeschlagene Ladevorgaenge werden nicht gecacht.
type modelCache struct {
	hub      *huggingface.Client
	logger   *slog.Logger
	srOpts   []superres.Option
	loadOpts []vision.LoadOption

	mu        sync.Mutex
	pipelines map[string]*loadedModel[*superres.Pipeline]
	builders  map[string]*loadedModel[*grounding.Builder]
}

func newModelCache(hub *huggingface.Client, logger *slog.Logger, loadOpts []vision.LoadOption, srOpts ...superres.Option) *modelCache {
	return &modelCache{
		hub:       hub,
		logger:    logger,
		srOpts:    srOpts,
		loadOpts:  loadOpts,
		pipelines: make(map[string]*loadedModel[*superres.Pipeline]),
		builders:  make(map[string]*loadedModel[*grounding.Builder]),
	}
}

func (m *modelCache) resolve(ref string) (string, error) {
	return m.hub.ResolveLocal(ref)
}

// Pipeline gibt die Super-Resolution-Pipeline fuer ref zurueck
func (m *modelCache) Pipeline(ref string) (*superres.Pipeline, error) {
	dir, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}

	return load(m, m.pipelines, dir, func() (*superres.Pipeline, error) {
		opts := append([]superres.Option{
			superres.WithLogger(m.logger),
			superres.WithLoadOptions(m.loadOpts...),
		}, m.srOpts...)
		return superres.New(dir, opts...)
	})
}

// Builder gibt den Grounding-Builder fuer ref zurueck
func (m *modelCache) Builder(ref string) (*grounding.Builder, error) {
	dir, err := m.resolve(ref)
	if err != nil {
		return nil, err
	}

	return load(m, m.builders, dir, func() (*grounding.Builder, error) {
		return grounding.Load(dir,
			grounding.WithLogger(m.logger),
			grounding.WithLoadOptions(m.loadOpts...),
		)
	})
}

func load[T any](m *modelCache, entries map[string]*loadedModel[T], dir string, fn func() (T, error)) (T, error) {
	m.mu.Lock()
	entry, ok := entries[dir]
	if !ok {
		entry = newLoadedModel[T]()
		entries[dir] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		defer close(entry.done)
		m.logger.Info("loading model", "dir", dir)
		entry.value, entry.err = fn()
	})

	if entry.err != nil {
		m.mu.Lock()
		if entries[dir] == entry {
			delete(entries, dir)
		}
		m.mu.Unlock()
	}
	return entry.value, entry.err
}

// Close gibt alle geladenen Pipelines frei. Laufende Ladevorgaenge
// werden abgewartet, bevor ihr Ergebnis gelesen wird.
func (m *modelCache) Close() error {
	m.mu.Lock()
	pipelines := maps.Clone(m.pipelines)
	clear(m.pipelines)
	clear(m.builders)
	m.mu.Unlock()

	var firstErr error
	for dir, entry := range pipelines {
		<-entry.done
		if entry.err == nil && entry.value != nil {
			if err := entry.value.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", dir, err)
			}
		}
	}
	return firstErr
}

// List listet Modelle unter modelsDir und im Hub-Cache
func (m *modelCache) List(modelsDir string) ([]api.ModelResponse, error) {
	local, err := m.hub.ListLocal(modelsDir)
	if err != nil {
		return nil, err
	}

	models := make([]api.ModelResponse, 0, len(local))
	for _, lm := range local {
		models = append(models, api.ModelResponse{Name: lm.Name, Path: lm.Path, Task: lm.Task})
	}
	return models, nil
}
