// client_test.go - Tests fuer Hub-Client, Download und Resolve gegen einen lokalen Testserver
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeHub struct {
	files    map[string]string
	requests atomic.Int32
	failures atomic.Int32 // Anzahl der Resolve-Requests, die mit 500 antworten
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)

	if r.URL.Path == "/api/models/org/gated" {
		json.NewEncoder(w).Encode(APIModelInfo{ID: "org/gated", Gated: "manual"})
		return
	}

	if r.Header.Get("Authorization") != "Bearer hf_test" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/api/models/org/sr-model":
		info := APIModelInfo{ID: "org/sr-model"}
		for name, content := range h.files {
			info.Siblings = append(info.Siblings, APISibling{Filename: name, Size: int64(len(content))})
		}
		json.NewEncoder(w).Encode(info)
		return
	}

	for name, content := range h.files {
		if r.URL.Path == "/org/sr-model/resolve/main/"+name {
			if h.failures.Add(-1) >= 0 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Write([]byte(content))
			return
		}
	}

	http.NotFound(w, r)
}

func newTestClient(t *testing.T, hub http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL), WithToken("hf_test"), WithCacheDir(t.TempDir()))
}

func TestGetModelInfo(t *testing.T) {
	c := newTestClient(t, &fakeHub{files: map[string]string{"configuration.json": "{}"}})

	info, err := c.GetModelInfo(context.Background(), "org/sr-model")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "org/sr-model" || len(info.Siblings) != 1 {
		t.Errorf("info = %+v", info)
	}

	if _, err := c.GetModelInfo(context.Background(), "org/missing"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Erwartete ErrModelNotFound, bekam %v", err)
	}

	if _, err := c.GetModelInfo(context.Background(), "no-owner"); !errors.Is(err, ErrInvalidModelID) {
		t.Errorf("Erwartete ErrInvalidModelID, bekam %v", err)
	}

	anon := NewClient(WithBaseURL(c.BaseURL()), WithToken(""), WithCacheDir(t.TempDir()))
	if _, err := anon.GetModelInfo(context.Background(), "org/sr-model"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Erwartete ErrUnauthorized, bekam %v", err)
	}
}

func TestDownloadModel(t *testing.T) {
	hub := &fakeHub{files: map[string]string{
		"configuration.json": `{"task": "image-super-resolution"}`,
		"pytorch_model.pt":   "weights",
		"README.md":          "ignored",
	}}
	hub.failures.Store(1)
	c := newTestClient(t, hub)

	var last atomic.Int64
	result, err := c.DownloadModel(context.Background(), "org/sr-model",
		WithRetryDelay(time.Millisecond),
		WithDownloadProgress(func(downloaded, total int64) { last.Store(downloaded) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range result.Files {
		names = append(names, f.Filename)
		data, err := os.ReadFile(f.LocalPath)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != hub.files[f.Filename] {
			t.Errorf("%s = %q", f.Filename, data)
		}
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"configuration.json", "pytorch_model.pt"}, names); diff != "" {
		t.Errorf("Dateien mismatch (-want +got):\n%s", diff)
	}
	if last.Load() != result.TotalSize {
		t.Errorf("Progress = %d, erwartet %d", last.Load(), result.TotalSize)
	}

	// zweiter Lauf kommt komplett aus dem Cache
	before := hub.requests.Load()
	again, err := c.DownloadModel(context.Background(), "org/sr-model")
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range again.Files {
		if !f.FromCache {
			t.Errorf("%s nicht aus dem Cache", f.Filename)
		}
	}
	if got := hub.requests.Load() - before; got != 1 {
		t.Errorf("Requests = %d, erwartet nur die Info-Abfrage", got)
	}

	models, err := c.ListCachedModels()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"org/sr-model"}, models); diff != "" {
		t.Errorf("ListCachedModels mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve(t *testing.T) {
	hub := &fakeHub{files: map[string]string{"pytorch_model.pt": "weights"}}
	c := newTestClient(t, hub)

	models := t.TempDir()
	t.Setenv("VISIONPREP_MODELS", models)
	if err := os.MkdirAll(filepath.Join(models, "local-sr"), 0o755); err != nil {
		t.Fatal(err)
	}

	dir, err := c.ResolveLocal("local-sr")
	if err != nil {
		t.Fatal(err)
	}
	if dir != filepath.Join(models, "local-sr") {
		t.Errorf("ResolveLocal = %q", dir)
	}

	if _, err := c.ResolveLocal("org/sr-model"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Erwartete ErrModelNotFound vor dem Download, bekam %v", err)
	}

	dir, err = c.Resolve(context.Background(), "org/sr-model")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pytorch_model.pt")); err != nil {
		t.Errorf("Gewichte fehlen in %s: %v", dir, err)
	}

	cached, err := c.ResolveLocal("org/sr-model")
	if err != nil || cached != dir {
		t.Errorf("ResolveLocal nach Download = %q, %v", cached, err)
	}

	if _, err := c.Resolve(context.Background(), "not-a-hub-id"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Erwartete ErrModelNotFound, bekam %v", err)
	}

	if err := c.RemoveCachedModel("org/sr-model"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveCachedModel("org/sr-model"); !errors.Is(err, ErrModelNotInCache) {
		t.Errorf("Erwartete ErrModelNotInCache, bekam %v", err)
	}
}

func TestDownloadGated(t *testing.T) {
	c := newTestClient(t, &fakeHub{})
	anon := NewClient(WithBaseURL(c.BaseURL()), WithToken(""), WithCacheDir(t.TempDir()))

	_, err := anon.DownloadModel(context.Background(), "org/gated")
	var hfErr *HuggingFaceError
	if !errors.As(err, &hfErr) || !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Erwartete ErrUnauthorized fuer gated Modell, bekam %v", err)
	}
}

func TestListLocal(t *testing.T) {
	hub := &fakeHub{files: map[string]string{"pytorch_model.pt": "weights"}}
	c := newTestClient(t, hub)

	if _, err := c.DownloadModel(context.Background(), "org/sr-model"); err != nil {
		t.Fatal(err)
	}

	models := t.TempDir()
	for name, file := range map[string]string{"og": "vocab.txt", "misc": "notes.txt"} {
		if err := os.MkdirAll(filepath.Join(models, name), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(models, name, file), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(models, "stray.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := c.ListLocal(models)
	if err != nil {
		t.Fatal(err)
	}

	want := []LocalModel{
		{Name: "misc", Path: filepath.Join(models, "misc"), Task: TaskUnknown},
		{Name: "og", Path: filepath.Join(models, "og"), Task: TaskVisualGrounding},
		{Name: "org/sr-model", Path: filepath.Join(c.cacheDir, "models--org--sr-model", CacheSnapshotDir, "main"), Task: TaskSuperResolution},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListLocal mismatch (-want +got):\n%s", diff)
	}

	empty, err := NewClient(WithCacheDir(t.TempDir())).ListLocal(filepath.Join(models, "missing"))
	if err != nil || len(empty) != 0 {
		t.Errorf("ListLocal auf fehlendem Verzeichnis = %v, %v", empty, err)
	}
}

func TestDownloadIncludePatterns(t *testing.T) {
	hub := &fakeHub{files: map[string]string{
		"configuration.json": "{}",
		"pytorch_model.pt":   "weights",
	}}
	c := newTestClient(t, hub)

	result, err := c.DownloadModel(context.Background(), "org/sr-model",
		WithIncludePatterns("*.pt"),
		WithDownloadParallelism(1),
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Files) != 1 || result.Files[0].Filename != "pytorch_model.pt" {
		t.Errorf("Files = %+v", result.Files)
	}

	if _, err := c.DownloadModel(context.Background(), "org/sr-model", WithIncludePatterns("*.onnx")); !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("Erwartete ErrDownloadFailed, bekam %v", err)
	}
}
