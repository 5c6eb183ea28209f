// MODUL: pipeline
// ZWECK: Super-Resolution Pipeline: Gewichte laden, Bild normalisieren, Forward, Rueckkonvertierung
// INPUT: Modellverzeichnis (pytorch_model.pt oder model.safetensors), vision.Source
// OUTPUT: Output mit uint8-Array [H*s,W*s,3]
// NEBENEFFEKTE: Dateisystem-Zugriffe beim Laden, Bild-Laden pro Aufruf
// ABHAENGIGKEITEN: golang.org/x/sync/errgroup (extern), weights, vision, envconfig
// HINWEISE: Pipeline ist nach New unveraenderlich, Run ist nebenlaeufig nutzbar

package superres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/vision"
	"github.com/7blacky7/visionprep/weights"
)

// Gewichtsdateien in Suchreihenfolge
const (
	TorchModelFile       = "pytorch_model.pt"
	SafetensorsModelFile = "model.safetensors"
)

// ============================================================================
// Optionen
// ============================================================================

// Options ist nach New unveraenderlich
type Options struct {
	Backend     string
	Parallel    int
	Logger      *slog.Logger
	Arch        Arch
	LoadOptions []vision.LoadOption
	Registry    *Registry
}

// Option konfiguriert eine Pipeline
type Option func(*Options)

// WithBackend waehlt das Forward-Backend (Default: VISIONPREP_BACKEND)
func WithBackend(name string) Option {
	return func(o *Options) { o.Backend = name }
}

// WithParallel begrenzt die gleichzeitigen Bilder in RunBatch
func WithParallel(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Parallel = n
		}
	}
}

// WithLogger setzt den Logger (Default: slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithArch ueberschreibt die erwartete Architektur. Scale wird weiterhin
// aus conv_first abgeleitet.
func WithArch(a Arch) Option {
	return func(o *Options) { o.Arch = a }
}

// WithLoadOptions reicht Optionen an vision.LoadSource weiter
func WithLoadOptions(opts ...vision.LoadOption) Option {
	return func(o *Options) { o.LoadOptions = append(o.LoadOptions, opts...) }
}

// WithRegistry nutzt eine eigene Backend-Registry statt DefaultRegistry
func WithRegistry(r *Registry) Option {
	return func(o *Options) { o.Registry = r }
}

func defaultOptions() Options {
	return Options{
		Backend:  envconfig.Backend(),
		Parallel: max(int(envconfig.Parallel()), 1),
		Logger:   slog.Default(),
		Arch:     DefaultArch(),
		Registry: DefaultRegistry,
	}
}

// ============================================================================
// Pipeline
// ============================================================================

// Output ist das Ergebnis eines Forward-Passes
type Output struct {
	Image *vision.Array
}

// Pipeline haelt State-Dict und Backend
type Pipeline struct {
	dir     string
	opts    Options
	arch    Arch
	weights *weights.StateDict
	backend Backend
}

// WeightsFile sucht die Gewichtsdatei im Modellverzeichnis
func WeightsFile(dir string) (string, error) {
	for _, name := range []string{TorchModelFile, SafetensorsModelFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &vision.ModelLoadError{
		Path: filepath.Join(dir, TorchModelFile),
		Err:  fmt.Errorf("no %s or %s: %w", TorchModelFile, SafetensorsModelFile, fs.ErrNotExist),
	}
}

// New laedt die Gewichte einmalig und prueft sie strikt gegen die Architektur.
// Ladefehler sind *vision.ModelLoadError, ein unbekanntes Backend ist
// *vision.ConfigurationError.
func New(modelDir string, opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	path, err := WeightsFile(modelDir)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sd, err := weights.Load(path)
	if err != nil {
		return nil, err
	}
	sd = stripModulePrefix(sd)

	arch := o.Arch
	if arch.Scale, err = InferScale(sd, arch.NumInCh); err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: err}
	}
	if err := arch.Validate(sd); err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: err}
	}

	backend, err := o.Registry.Create(o.Backend, BackendConfig{
		ModelDir: modelDir,
		Arch:     arch,
		Logger:   o.Logger,
	})
	if err != nil {
		var regErr *RegistryError
		if errors.As(err, &regErr) {
			return nil, &vision.ConfigurationError{Field: "backend", Reason: regErr.Error()}
		}
		return nil, &vision.ModelLoadError{Path: modelDir, Err: err}
	}

	if isReference(backend) {
		o.Logger.Warn("backend does not run the network, output is not model inference", "backend", backend.Name(), "path", path)
	}

	o.Logger.Info("load model done", "path", path, "backend", backend.Name(), "scale", arch.Scale,
		"tensors", sd.Len(), "params", sd.NumParams(), "elapsed", time.Since(start))

	return &Pipeline{
		dir:     modelDir,
		opts:    o,
		arch:    arch,
		weights: sd,
		backend: backend,
	}, nil
}

// stripModulePrefix entfernt "module." wenn alle Schluessel es tragen (DataParallel)
func stripModulePrefix(sd *weights.StateDict) *weights.StateDict {
	const prefix = "module."
	keys := sd.Keys()
	if len(keys) == 0 {
		return sd
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			return sd
		}
	}
	return sd.StripPrefix(prefix)
}

// Dir gibt das Modellverzeichnis zurueck
func (p *Pipeline) Dir() string { return p.dir }

// Arch gibt die erkannte Architektur zurueck
func (p *Pipeline) Arch() Arch { return p.arch }

// StateDict gibt die geladenen Gewichte zurueck (nur lesen)
func (p *Pipeline) StateDict() *weights.StateDict { return p.weights }

// Backend gibt den Namen des Backends zurueck
func (p *Pipeline) Backend() string { return p.backend.Name() }

// Run vergroessert ein einzelnes Bild
func (p *Pipeline) Run(ctx context.Context, src vision.Source) (Output, error) {
	start := time.Now()

	input, err := vision.NormalizeSource(ctx, src, p.loadOptions()...)
	if err != nil {
		return Output{}, err
	}

	out, err := p.backend.Forward(ctx, input)
	if err != nil {
		return Output{}, fmt.Errorf("%s forward: %w", p.backend.Name(), err)
	}

	img, err := vision.Denormalize(out)
	if err != nil {
		return Output{}, err
	}

	p.opts.Logger.Debug("super resolution", "source", src.String(), "backend", p.backend.Name(),
		"in", input.Shape(), "out", img.Shape, "elapsed", time.Since(start))
	return Output{Image: img}, nil
}

// RunBatch vergroessert mehrere Bilder parallel (Limit: Options.Parallel).
// Der erste Fehler bricht den Batch ab, es gibt keine Teilergebnisse.
func (p *Pipeline) RunBatch(ctx context.Context, srcs []vision.Source) ([]Output, error) {
	outputs := make([]Output, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Parallel)
	for i, src := range srcs {
		g.Go(func() error {
			out, err := p.Run(gctx, src)
			if err != nil {
				return fmt.Errorf("image %d (%s): %w", i, src, err)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// Close gibt Backend-Ressourcen frei
func (p *Pipeline) Close() error {
	return p.backend.Close()
}

func (p *Pipeline) loadOptions() []vision.LoadOption {
	return append([]vision.LoadOption{vision.WithLogger(p.opts.Logger)}, p.opts.LoadOptions...)
}
