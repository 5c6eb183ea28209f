// MODUL: registry
// ZWECK: Zentrale Registry fuer Forward-Backend-Factories mit Thread-sicherer Verwaltung
// INPUT: Backend-Name, Factory-Funktionen, BackendConfig
// OUTPUT: Backend-Instanzen
// NEBENEFFEKTE: DefaultRegistry wird von init() Funktionen befuellt
// ABHAENGIGKEITEN: github.com/agnivade/levenshtein (extern)
// HINWEISE: Backends registrieren sich via init(), z.B. superres/onnx

package superres

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/pdevine/tensor"
)

// ============================================================================
// Backend Interface
// ============================================================================

// Backend fuehrt den Forward-Pass aus. Eingabe ist der kanonische Tensor
// [1,3,H,W], Ausgabe [1,3,H*s,W*s] in derselben Kanal-Reihenfolge.
type Backend interface {
	Name() string
	Forward(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error)
	Close() error
}

// BackendConfig wird an jede Factory uebergeben
type BackendConfig struct {
	ModelDir string
	Arch     Arch
	Logger   *slog.Logger
}

// Factory erstellt ein Backend
type Factory func(cfg BackendConfig) (Backend, error)

// ============================================================================
// Registry
// ============================================================================

// ErrBackendNotRegistered wird zurueckgegeben wenn ein Backend nicht registriert ist.
var ErrBackendNotRegistered = errors.New("superres: backend not registered")

// RegistryError repraesentiert einen Registry-spezifischen Fehler.
type RegistryError struct {
	Op         string // Operation (z.B. "create")
	Name       string // Backend-Name
	Suggestion string // aehnlichster registrierter Name, falls vorhanden
	Err        error
}

func (e *RegistryError) Error() string {
	msg := "superres: " + e.Op + " backend '" + e.Name + "': " + e.Err.Error()
	if e.Suggestion != "" {
		msg += " (did you mean '" + e.Suggestion + "'?)"
	}
	return msg
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Registry verwaltet Backend-Factories. Thread-sicher durch RWMutex.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry erstellt eine neue leere Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registriert eine Factory. Ueberschreibt existierende Eintraege.
func (r *Registry) Register(name string, factory Factory) {
	if factory == nil {
		panic("superres: nil factory for backend '" + name + "'")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Unregister entfernt ein Backend. Gibt true zurueck wenn es existierte.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.factories[name]
	delete(r.factories, name)
	return exists
}

// Get gibt die Factory fuer den Namen zurueck.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	return factory, exists
}

// List gibt alle registrierten Namen sortiert zurueck.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Suggest liefert den registrierten Namen mit der kleinsten Editier-Distanz,
// sofern er nah genug am gesuchten liegt.
func (r *Registry) Suggest(name string) string {
	best, score := "", len(name)/2+2
	for _, candidate := range r.List() {
		if d := levenshtein.ComputeDistance(name, candidate); d < score {
			best, score = candidate, d
		}
	}
	return best
}

// Create erstellt ein Backend mit der registrierten Factory.
func (r *Registry) Create(name string, cfg BackendConfig) (Backend, error) {
	factory, exists := r.Get(name)
	if !exists {
		return nil, &RegistryError{
			Op:         "create",
			Name:       name,
			Suggestion: r.Suggest(name),
			Err:        ErrBackendNotRegistered,
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return factory(cfg)
}

// ============================================================================
// Globale Registry
// ============================================================================

// DefaultRegistry ist die globale Registry. Eingebaute Backends
// (identity, bicubic) sind immer registriert.
var DefaultRegistry = NewRegistry()

// RegisterBackend registriert eine Factory in der DefaultRegistry.
func RegisterBackend(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// Backends gibt die Namen aller Backends der DefaultRegistry zurueck.
func Backends() []string {
	return DefaultRegistry.List()
}
