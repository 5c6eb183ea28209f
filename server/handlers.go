// handlers.go - Handler fuer Super-Resolution, Grounding, Modelle und Backends
// Enthaelt: SuperResolutionHandler, GroundingHandler, ListHandler, BackendsHandler

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/superres"
	"github.com/7blacky7/visionprep/vision"
)

// bind liest den JSON-Body mit Groessenlimit
func (s *Server) bind(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)

	err := c.ShouldBindJSON(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &maxErr):
		return APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "REQUEST_TOO_LARGE",
			Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit),
		}
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: missing request body", errInvalidRequest)
	default:
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
}

// outputFormat bildet das angefragte Format auf ein Kodierformat ab
func outputFormat(name string) (vision.ImageFormat, error) {
	switch strings.ToLower(name) {
	case "", "png":
		return vision.FormatPNG, nil
	case "jpeg", "jpg":
		return vision.FormatJPEG, nil
	default:
		return "", fmt.Errorf("%w: unsupported output format %q", errInvalidRequest, name)
	}
}

// imageSource wandelt die Referenz eines Requests. path und url sind nur
// mit VISIONPREP_ALLOW_REMOTE_SOURCES erlaubt.
func imageSource(ref api.ImageRef) (vision.Source, error) {
	if (ref.Path != "" || ref.URL != "") && !envconfig.AllowRemoteSources() {
		return vision.Source{}, fmt.Errorf("%w: path and url sources are disabled, set VISIONPREP_ALLOW_REMOTE_SOURCES=1", errInvalidRequest)
	}
	return ref.Source()
}

// SuperResolutionHandler verarbeitet POST /api/super-resolution
func (s *Server) SuperResolutionHandler(c *gin.Context) {
	start := time.Now()

	var req api.SuperResolutionRequest
	if err := s.bind(c, &req); err != nil {
		abortWithError(c, err)
		return
	}

	if req.Model == "" {
		abortWithError(c, fmt.Errorf("%w: model is required", errInvalidRequest))
		return
	}

	format, err := outputFormat(req.Format)
	if err != nil {
		abortWithError(c, err)
		return
	}

	src, err := imageSource(req.ImageRef)
	if err != nil {
		abortWithError(c, err)
		return
	}

	p, err := s.models.Pipeline(req.Model)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out, err := p.Run(c.Request.Context(), src)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := vision.Encode(&buf, out.Image, format); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.SuperResolutionResponse{
		Model:         req.Model,
		Backend:       p.Backend(),
		Image:         buf.Bytes(),
		Format:        string(format),
		Width:         out.Image.Width(),
		Height:        out.Image.Height(),
		Scale:         p.Arch().Scale,
		TotalDuration: time.Since(start),
	})
}

// GroundingHandler verarbeitet POST /api/grounding
func (s *Server) GroundingHandler(c *gin.Context) {
	start := time.Now()

	var req api.GroundingRequest
	if err := s.bind(c, &req); err != nil {
		abortWithError(c, err)
		return
	}

	if req.Model == "" {
		abortWithError(c, fmt.Errorf("%w: model is required", errInvalidRequest))
		return
	}

	src, err := imageSource(req.ImageRef)
	if err != nil {
		abortWithError(c, err)
		return
	}

	b, err := s.models.Builder(req.Model)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sample, err := b.Build(c.Request.Context(), src, req.Text)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := sample.Response(req.Model, req.IncludePatch)
	if err != nil {
		abortWithError(c, err)
		return
	}
	resp.TotalDuration = time.Since(start)

	c.JSON(http.StatusOK, resp)
}

// ListHandler verarbeitet GET /api/models
func (s *Server) ListHandler(c *gin.Context) {
	models, err := s.models.List(envconfig.Models())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.ListResponse{Models: models})
}

// BackendsHandler verarbeitet GET /api/backends
func (s *Server) BackendsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.BackendsResponse{
		Backends: superres.Backends(),
		Default:  envconfig.Backend(),
	})
}
