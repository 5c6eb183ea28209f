// download.go - Paralleler Modell-Download mit Progress-Callback und Resume
package huggingface

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Download-Konstanten
const (
	MaxDownloadRetries = 3
	DownloadRetryDelay = 2 * time.Second
	DefaultParallelism = 4
)

// Dateien, die fuer visionprep-Modelle benoetigt werden
var DefaultIncludePatterns = []string{
	"*.json", "*.txt", "*.yaml", "*.pt", "*.pth", "*.safetensors", "*.onnx",
}

// ModelDownloadResult enthaelt das Ergebnis eines Model-Downloads
type ModelDownloadResult struct {
	ModelID      string
	Revision     string
	CachePath    string
	Files        []DownloadedFile
	TotalSize    int64
	DownloadTime time.Duration
}

// DownloadedFile repraesentiert eine heruntergeladene Datei
type DownloadedFile struct {
	Filename  string
	LocalPath string
	Size      int64
	FromCache bool
}

// ProgressCallback wird waehrend des Downloads aufgerufen
type ProgressCallback func(downloaded, total int64)

// DownloadOption konfiguriert einen Download
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	revision        string
	progressFn      ProgressCallback
	parallelism     int
	includePatterns []string
	retryDelay      time.Duration
}

// WithDownloadRevision setzt die Git-Revision
func WithDownloadRevision(revision string) DownloadOption {
	return func(cfg *downloadConfig) { cfg.revision = revision }
}

// WithDownloadProgress setzt den Progress-Callback
func WithDownloadProgress(fn ProgressCallback) DownloadOption {
	return func(cfg *downloadConfig) { cfg.progressFn = fn }
}

// WithDownloadParallelism setzt die Anzahl paralleler Downloads
func WithDownloadParallelism(n int) DownloadOption {
	return func(cfg *downloadConfig) {
		if n > 0 {
			cfg.parallelism = n
		}
	}
}

// WithIncludePatterns filtert Dateien nach Glob-Patterns
func WithIncludePatterns(patterns ...string) DownloadOption {
	return func(cfg *downloadConfig) { cfg.includePatterns = patterns }
}

// WithRetryDelay setzt die Wartezeit zwischen Versuchen
func WithRetryDelay(d time.Duration) DownloadOption {
	return func(cfg *downloadConfig) { cfg.retryDelay = d }
}

// DownloadModel laedt alle passenden Dateien eines Modells in den Cache
func (c *Client) DownloadModel(ctx context.Context, modelID string, opts ...DownloadOption) (*ModelDownloadResult, error) {
	start := time.Now()
	cfg := &downloadConfig{
		revision:        "main",
		parallelism:     DefaultParallelism,
		includePatterns: DefaultIncludePatterns,
		retryDelay:      DownloadRetryDelay,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	info, err := c.GetModelInfo(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if info.IsGated() && !c.HasToken() {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: fmt.Errorf("%w: gated model requires HF_TOKEN", ErrUnauthorized)}
	}

	files := filterDownloadFiles(info.Siblings, cfg.includePatterns)
	if len(files) == 0 {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: fmt.Errorf("%w: no matching files", ErrDownloadFailed)}
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}

	snapshotDir := filepath.Join(c.cacheDir, modelIDToCacheDir(modelID), CacheSnapshotDir, cfg.revision)

	var downloaded int64
	var progressMu sync.Mutex
	progress := func(n int64) {
		progressMu.Lock()
		defer progressMu.Unlock()
		downloaded += n
		if cfg.progressFn != nil {
			cfg.progressFn(downloaded, total)
		}
	}

	results := make([]DownloadedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.parallelism)
	for i, f := range files {
		g.Go(func() error {
			localPath := filepath.Join(snapshotDir, f.Filename)
			fromCache := false
			if stat, err := os.Stat(localPath); err == nil && (f.Size == 0 || stat.Size() == f.Size) {
				fromCache = true
				progress(stat.Size())
			} else if err := c.downloadFile(gctx, modelID, f.Filename, cfg, localPath, progress); err != nil {
				return fmt.Errorf("%s: %w", f.Filename, err)
			}

			results[i] = DownloadedFile{Filename: f.Filename, LocalPath: localPath, Size: f.Size, FromCache: fromCache}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: err}
	}

	slog.Info("model downloaded", "model", modelID, "revision", cfg.revision, "files", len(results), "bytes", total, "elapsed", time.Since(start))
	return &ModelDownloadResult{
		ModelID:      modelID,
		Revision:     cfg.revision,
		CachePath:    snapshotDir,
		Files:        results,
		TotalSize:    total,
		DownloadTime: time.Since(start),
	}, nil
}

func (c *Client) downloadFile(ctx context.Context, modelID, filename string, cfg *downloadConfig, targetPath string, progressFn func(int64)) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	url := c.resolveURL(modelID, cfg.revision, filename)
	var lastErr error
	for attempt := range MaxDownloadRetries {
		if attempt > 0 {
			slog.Debug("retrying download", "file", filename, "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.retryDelay):
			}
		}

		lastErr = c.doDownload(ctx, url, targetPath, progressFn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDownloadFailed, MaxDownloadRetries, lastErr)
}

// doDownload schreibt in targetPath+".download" und setzt einen
// abgebrochenen Download per Range-Header fort
func (c *Client) doDownload(ctx context.Context, url, targetPath string, progressFn func(int64)) error {
	tmpPath := targetPath + ".download"

	header := http.Header{}
	var existing int64
	if stat, err := os.Stat(tmpPath); err == nil {
		existing = stat.Size()
		header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if existing > 0 && resp.StatusCode == http.StatusPartialContent {
		flags = os.O_WRONLY | os.O_APPEND
		progressFn(existing)
	}

	file, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, &progressReader{r: resp.Body, fn: progressFn}); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, targetPath)
}

type progressReader struct {
	r  io.Reader
	fn func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.fn(int64(n))
	}
	return n, err
}

func filterDownloadFiles(siblings []APISibling, patterns []string) []APISibling {
	var result []APISibling
	for _, s := range siblings {
		for _, pattern := range patterns {
			if m, _ := filepath.Match(pattern, filepath.Base(s.Filename)); m {
				result = append(result, s)
				break
			}
		}
	}
	return result
}
