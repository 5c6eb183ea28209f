// MODUL: builder
// ZWECK: Bild + Suchtext zu einem Visual-Grounding Sample fuer OFA-Modelle zusammensetzen
// INPUT: vision.Source, Suchtext, Config, Tokenizer
// OUTPUT: Sample (Token-IDs, Patch-Tensor [3,S,S], Patch-Maske, Resize-Ratios)
// NEBENEFFEKTE: Bild-Laden (Datei oder URL)
// ABHAENGIGKEITEN: vision, tokenizer, github.com/pdevine/tensor (extern)
// HINWEISE: Builder ist nach NewBuilder unveraenderlich und nebenlaeufig nutzbar

package grounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdevine/tensor"

	"github.com/7blacky7/visionprep/logutil"
	"github.com/7blacky7/visionprep/tokenizer"
	"github.com/7blacky7/visionprep/vision"
)

// Sample ist das Eingabe-Bundle fuer ein Grounding-Modell
type Sample struct {
	Source       []int32
	PatchImage   *tensor.Dense
	PatchMask    []bool
	WResizeRatio float32
	HResizeRatio float32
	Caption      string
	Prompt       string

	// Originalgroesse vor dem Resize
	Width, Height int
}

// Option konfiguriert einen Builder
type Option func(*Builder)

// WithLogger setzt den Logger (Default: slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithLoadOptions reicht Optionen an vision.LoadSource weiter
func WithLoadOptions(opts ...vision.LoadOption) Option {
	return func(b *Builder) { b.loadOpts = append(b.loadOpts, opts...) }
}

// Builder erzeugt Grounding-Samples
type Builder struct {
	cfg      Config
	tok      tokenizer.Tokenizer
	bos, eos int32
	logger   *slog.Logger
	loadOpts []vision.LoadOption
}

// NewBuilder prueft die Konfiguration und das Vokabular
func NewBuilder(cfg Config, tok tokenizer.Tokenizer, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, &vision.ConfigurationError{Field: "tokenizer", Reason: "is nil"}
	}

	vocab := tok.Vocabulary()
	if len(vocab.BOS) == 0 || len(vocab.EOS) == 0 {
		return nil, &vision.ConfigurationError{Field: "tokenizer", Reason: "vocabulary has no bos or eos token"}
	}

	b := &Builder{
		cfg:    cfg,
		tok:    tok,
		bos:    vocab.BOS[0],
		eos:    vocab.EOS[0],
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if !strings.Contains(cfg.Prompt, "{}") {
		b.logger.Warn("grounding prompt has no {} placeholder, text will be ignored", "prompt", cfg.Prompt)
	}
	return b, nil
}

// Load baut einen Builder aus einem Modellverzeichnis (Konfiguration + Tokenizer)
func Load(dir string, opts ...Option) (*Builder, error) {
	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(dir)
	if err != nil {
		return nil, &vision.ModelLoadError{Path: dir, Err: err}
	}
	return NewBuilder(cfg, tok, opts...)
}

// Config gibt die Konfiguration zurueck
func (b *Builder) Config() Config { return b.cfg }

// Build erzeugt ein Sample aus Bild und Suchtext
func (b *Builder) Build(ctx context.Context, src vision.Source, text string) (*Sample, error) {
	img, err := b.resolve(ctx, src)
	if err != nil {
		return nil, err
	}

	w, h := img.Width, img.Height
	if w == 0 || h == 0 {
		return nil, &vision.ImageDecodeError{Source: src.String(), Err: errors.New("image is empty")}
	}

	s := b.cfg.PatchImageSize
	resized, err := vision.Resize(vision.FromDecoded(vision.ToRGB(img.Image)), s, s, b.cfg.Resample)
	if err != nil {
		return nil, err
	}

	patch, err := vision.NormalizeCHW(resized, b.cfg.Mean, b.cfg.Std)
	if err != nil {
		return nil, err
	}

	caption := PreCaption(text, b.cfg.MaxSrcLength)
	prompt := strings.Replace(b.cfg.Prompt, "{}", caption, 1)

	ids, err := b.tok.Encode(prompt, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize prompt: %w", err)
	}
	if len(ids) > b.cfg.MaxSrcLength {
		ids = ids[:b.cfg.MaxSrcLength]
	}

	source := make([]int32, 0, len(ids)+2)
	source = append(source, b.bos)
	source = append(source, ids...)
	source = append(source, b.eos)

	logutil.TraceContext(ctx, "grounding sample", "source", src.String(), "width", w, "height", h, "tokens", len(source), "caption", caption)

	return &Sample{
		Source:       source,
		PatchImage:   patch,
		PatchMask:    []bool{true},
		WResizeRatio: float32(s) / float32(w),
		HResizeRatio: float32(s) / float32(h),
		Caption:      caption,
		Prompt:       prompt,
		Width:        w,
		Height:       h,
	}, nil
}

// resolve liefert das dekodierte Bild, Fehler sind immer ImageDecodeError
// bzw. UnsupportedInputTypeError fuer eine leere Source
func (b *Builder) resolve(ctx context.Context, src vision.Source) (*vision.ImageInput, error) {
	switch src.Kind() {
	case vision.KindImage:
		return vision.FromDecoded(src.Image()), nil
	case vision.KindPath:
		opts := append([]vision.LoadOption{vision.WithLogger(b.logger)}, b.loadOpts...)
		return vision.LoadSource(ctx, src.Path(), opts...)
	case vision.KindArray:
		rgba, err := src.Array().Image()
		if err != nil {
			return nil, &vision.ImageDecodeError{Source: src.String(), Err: err}
		}
		return vision.FromDecoded(rgba), nil
	default:
		return nil, &vision.UnsupportedInputTypeError{Type: "vision.Source(" + src.Kind().String() + ")"}
	}
}
