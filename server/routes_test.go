package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/version"
	"github.com/7blacky7/visionprep/weights"
)

var groundingVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"which", "region", "does", "the", "text", `"`, "describe", "?",
	"red", "car",
}

func tinyArch() superres.Arch {
	return superres.Arch{NumInCh: 3, NumOutCh: 3, NumFeat: 4, NumBlock: 1, NumGrowCh: 2, Scale: 4}
}

// setupModels legt ein Super-Resolution- und ein Grounding-Modell unter
// VISIONPREP_MODELS an
func setupModels(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	t.Setenv("VISIONPREP_MODELS", root)

	srDir := filepath.Join(root, "sr")
	require.NoError(t, os.MkdirAll(srDir, 0o755))
	sd := weights.NewStateDict()
	for _, p := range tinyArch().Layout() {
		w := &weights.Tensor{Name: p.Name, DType: weights.DTypeF32, Shape: p.Shape}
		w.Data = make([]float32, w.NumElements())
		sd.Set(w)
	}
	require.NoError(t, weights.SaveSafetensors(filepath.Join(srDir, superres.SafetensorsModelFile), sd, weights.DTypeF32))

	ogDir := filepath.Join(root, "og")
	require.NoError(t, os.MkdirAll(ogDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ogDir, huggingface.ConfigurationFile),
		[]byte(`{"task": "visual-grounding", "model": {"patch_image_size": 16}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ogDir, "vocab.txt"),
		[]byte(strings.Join(groundingVocab, "\n")+"\n"), 0o644))

	return root
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := huggingface.NewClient(huggingface.WithCacheDir(t.TempDir()))
	s := NewServer(nil, hub, logger, superres.WithArch(tinyArch()), superres.WithBackend(superres.BackendBicubic))
	t.Cleanup(func() { s.Close() })
	return s, s.GenerateRoutes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		var b bytes.Buffer
		require.NoError(t, json.NewEncoder(&b).Encode(body))
		r = &b
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestVersionAndRoot(t *testing.T) {
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "visionprep is running", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = doRequest(t, h, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.VersionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, version.Version, resp.Version)
}

func TestRequestIDPassthrough(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestBackendsHandler(t *testing.T) {
	t.Setenv("VISIONPREP_BACKEND", "identity")
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodGet, "/api/backends", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.BackendsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Backends, superres.BackendBicubic)
	assert.Contains(t, resp.Backends, superres.BackendIdentity)
	assert.Equal(t, "identity", resp.Default)
}

func TestListHandler(t *testing.T) {
	setupModels(t)
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Models, 2)
	assert.Equal(t, "og", resp.Models[0].Name)
	assert.Equal(t, huggingface.TaskVisualGrounding, resp.Models[0].Task)
	assert.Equal(t, "sr", resp.Models[1].Name)
	assert.Equal(t, huggingface.TaskSuperResolution, resp.Models[1].Task)
}

func TestListHandlerEmpty(t *testing.T) {
	t.Setenv("VISIONPREP_MODELS", filepath.Join(t.TempDir(), "missing"))
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"models":[]}`, w.Body.String())
}

func TestSuperResolutionHandler(t *testing.T) {
	setupModels(t)
	s, h := newTestServer(t)

	w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{
		Model:    "sr",
		ImageRef: api.ImageRef{Image: pngBytes(t, 4, 3)},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SuperResolutionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sr", resp.Model)
	assert.Equal(t, superres.BackendBicubic, resp.Backend)
	assert.Equal(t, "png", resp.Format)
	assert.Equal(t, 4, resp.Scale)
	assert.Equal(t, 16, resp.Width)
	assert.Equal(t, 12, resp.Height)

	img, err := png.Decode(bytes.NewReader(resp.Image))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 12), img.Bounds())

	r, g, b, _ := img.At(7, 5).RGBA()
	assert.InDelta(t, 200, r>>8, 1)
	assert.InDelta(t, 100, g>>8, 1)
	assert.InDelta(t, 50, b>>8, 1)

	// zweiter Aufruf nutzt den Cache
	p1, err := s.models.Pipeline("sr")
	require.NoError(t, err)
	p2, err := s.models.Pipeline("sr")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestSuperResolutionJPEG(t *testing.T) {
	setupModels(t)
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{
		Model:    "sr",
		ImageRef: api.ImageRef{Array: &api.RawArray{Shape: []int{2, 2}, Data: []byte{0, 64, 128, 255}}},
		Format:   "jpg",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SuperResolutionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "jpeg", resp.Format)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, []byte(resp.Image[:3]))
}

func TestGroundingHandler(t *testing.T) {
	setupModels(t)
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodPost, "/api/grounding", api.GroundingRequest{
		Model:        "og",
		ImageRef:     api.ImageRef{Image: pngBytes(t, 32, 8)},
		Text:         "Red car",
		IncludePatch: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.GroundingResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, []int32{2, 4, 5, 6, 7, 8, 9, 12, 13, 9, 10, 11, 3}, resp.Source)
	assert.Equal(t, []int{3, 16, 16}, resp.PatchShape)
	assert.Len(t, resp.PatchImage, 3*16*16)
	assert.Equal(t, []bool{true}, resp.PatchMask)
	assert.Equal(t, "red car", resp.Caption)
	assert.InDelta(t, 0.5, resp.WResizeRatio, 1e-6)
	assert.InDelta(t, 2.0, resp.HResizeRatio, 1e-6)
	assert.Equal(t, 32, resp.Width)
	assert.Equal(t, 8, resp.Height)
}

func TestGroundingWithoutPatch(t *testing.T) {
	setupModels(t)
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodPost, "/api/grounding", api.GroundingRequest{
		Model:    "og",
		ImageRef: api.ImageRef{Image: pngBytes(t, 4, 4)},
		Text:     "car",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "patch_image\"")
}

func TestHandlerErrors(t *testing.T) {
	t.Setenv("VISIONPREP_ALLOW_REMOTE_SOURCES", "1")
	root := setupModels(t)
	_, h := newTestServer(t)

	broken := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, superres.SafetensorsModelFile), []byte("nope"), 0o644))

	cases := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "empty body",
			path:   "/api/super-resolution",
			status: http.StatusBadRequest,
			code:   CodeInvalidRequest,
		},
		{
			name:   "missing model",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{ImageRef: api.ImageRef{Path: "x.png"}},
			status: http.StatusBadRequest,
			code:   CodeInvalidRequest,
		},
		{
			name:   "bad format",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "sr", ImageRef: api.ImageRef{Path: "x.png"}, Format: "webp"},
			status: http.StatusBadRequest,
			code:   CodeInvalidRequest,
		},
		{
			name:   "no image",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "sr"},
			status: http.StatusBadRequest,
			code:   CodeUnsupportedInput,
		},
		{
			name:   "undecodable image",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "sr", ImageRef: api.ImageRef{Image: []byte("not an image")}},
			status: http.StatusUnprocessableEntity,
			code:   CodeImageDecode,
		},
		{
			name:   "missing file",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "sr", ImageRef: api.ImageRef{Path: filepath.Join(root, "missing.png")}},
			status: http.StatusUnprocessableEntity,
			code:   CodeImageDecode,
		},
		{
			name:   "unknown model",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "does-not-exist", ImageRef: api.ImageRef{Path: "x.png"}},
			status: http.StatusNotFound,
			code:   CodeModelNotFound,
		},
		{
			name:   "broken weights",
			path:   "/api/super-resolution",
			body:   api.SuperResolutionRequest{Model: "broken", ImageRef: api.ImageRef{Path: "x.png"}},
			status: http.StatusInternalServerError,
			code:   CodeModelLoad,
		},
		{
			name:   "grounding without vocabulary",
			path:   "/api/grounding",
			body:   api.GroundingRequest{Model: "sr", ImageRef: api.ImageRef{Path: "x.png"}, Text: "car"},
			status: http.StatusInternalServerError,
			code:   CodeConfiguration,
		},
		{
			name:   "grounding bad array",
			path:   "/api/grounding",
			body:   api.GroundingRequest{Model: "og", ImageRef: api.ImageRef{Array: &api.RawArray{Shape: []int{1, 1, 4}, Data: []byte{1, 2, 3, 4}}}, Text: "car"},
			status: http.StatusUnprocessableEntity,
			code:   CodeImageDecode,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())

			resp := decodeError(t, w)
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRemoteSources(t *testing.T) {
	root := setupModels(t)
	_, h := newTestServer(t)

	path := filepath.Join(root, "in.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t, 4, 3), 0o644))

	refs := map[string]api.ImageRef{
		"path": {Path: path},
		"url":  {URL: "http://169.254.169.254/latest/meta-data"},
	}

	t.Run("gesperrt", func(t *testing.T) {
		t.Setenv("VISIONPREP_ALLOW_REMOTE_SOURCES", "")
		for name, ref := range refs {
			w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{Model: "sr", ImageRef: ref})
			require.Equal(t, http.StatusBadRequest, w.Code, name)
			assert.Equal(t, CodeInvalidRequest, decodeError(t, w).Code, name)

			w = doRequest(t, h, http.MethodPost, "/api/grounding", api.GroundingRequest{Model: "og", ImageRef: ref, Text: "car"})
			require.Equal(t, http.StatusBadRequest, w.Code, name)
			assert.Equal(t, CodeInvalidRequest, decodeError(t, w).Code, name)
		}

		// eingebettete Bilder bleiben erlaubt
		w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{Model: "sr", ImageRef: api.ImageRef{Image: pngBytes(t, 4, 3)}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("erlaubt", func(t *testing.T) {
		t.Setenv("VISIONPREP_ALLOW_REMOTE_SOURCES", "1")
		w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{Model: "sr", ImageRef: refs["path"]})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})
}

func TestRequestTooLarge(t *testing.T) {
	t.Setenv("VISIONPREP_MAX_IMAGE_BYTES", "1024")
	setupModels(t)
	_, h := newTestServer(t)

	w := doRequest(t, h, http.MethodPost, "/api/super-resolution", api.SuperResolutionRequest{
		Model:    "sr",
		ImageRef: api.ImageRef{Image: bytes.Repeat([]byte{1}, 128<<10)},
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "REQUEST_TOO_LARGE", decodeError(t, w).Code)
}

func TestAllowedHosts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11500}

	s := NewServer(addr, huggingface.NewClient(huggingface.WithCacheDir(t.TempDir())), slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := s.GenerateRoutes()

	cases := []struct {
		host   string
		status int
	}{
		{"localhost", http.StatusOK},
		{"127.0.0.1:11500", http.StatusOK},
		{"my-box.local", http.StatusOK},
		{"example.com", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
			req.Host = tc.host
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
