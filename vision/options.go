// MODUL: options
// ZWECK: Functional Options fuer das Laden von Bildquellen
// INPUT: Optionale Parameter (HTTP-Client, Timeout, Groessenlimit, Logger)
// OUTPUT: LoadOptions Struct mit Konfiguration
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: net/http, log/slog (Standard-Library)
// HINWEISE: Defaults sind fuer CLI und Server gleich

package vision

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ============================================================================
// LoadOptions - Konfiguration fuer LoadSource
// ============================================================================

// LoadOptions enthaelt die Konfiguration fuer das Laden einer Bildquelle.
type LoadOptions struct {
	HTTPClient *http.Client  // Client fuer URL-Quellen
	Timeout    time.Duration // Timeout fuer URL-Abrufe (0 = keiner)
	MaxBytes   int64         // Maximale Groesse einer Quelle in Bytes
	Logger     *slog.Logger
}

// LoadOption ist eine funktionale Option fuer LoadOptions.
type LoadOption func(*LoadOptions)

// DefaultMaxBytes begrenzt Quellbilder auf 32 MiB.
const DefaultMaxBytes = 32 << 20

var (
	ErrInvalidMaxBytes = errors.New("vision: invalid max bytes")
	ErrInvalidTimeout  = errors.New("vision: invalid timeout")
)

// DefaultLoadOptions gibt eine Standard-Konfiguration zurueck.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		HTTPClient: http.DefaultClient,
		Timeout:    30 * time.Second,
		MaxBytes:   DefaultMaxBytes,
		Logger:     slog.Default(),
	}
}

// WithHTTPClient setzt den Client fuer URL-Quellen.
func WithHTTPClient(c *http.Client) LoadOption {
	return func(o *LoadOptions) {
		if c != nil {
			o.HTTPClient = c
		}
	}
}

// WithTimeout setzt das Timeout fuer URL-Abrufe.
func WithTimeout(d time.Duration) LoadOption {
	return func(o *LoadOptions) {
		o.Timeout = d
	}
}

// WithMaxBytes begrenzt die Groesse einer Quelle.
// Werte <= 0 werden ignoriert.
func WithMaxBytes(n int64) LoadOption {
	return func(o *LoadOptions) {
		if n > 0 {
			o.MaxBytes = n
		}
	}
}

// WithLogger setzt den Logger.
func WithLogger(l *slog.Logger) LoadOption {
	return func(o *LoadOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Apply wendet alle Options an.
func (o *LoadOptions) Apply(opts ...LoadOption) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate prueft ob die LoadOptions gueltig sind.
func (o *LoadOptions) Validate() error {
	if o.MaxBytes <= 0 {
		return ErrInvalidMaxBytes
	}
	if o.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

func newLoadOptions(opts []LoadOption) (LoadOptions, error) {
	o := DefaultLoadOptions()
	o.Apply(opts...)
	return o, o.Validate()
}
