// types.go - Request/Response Typen der visionprep REST API
// Enthaelt: StatusError, ImageRef, Super-Resolution, Grounding, Modelle, Version
package api

import (
	"fmt"
	"time"

	"github.com/7blacky7/visionprep/vision"
)

// StatusError is an error with an HTTP status code, an API error code and
// a message.
type StatusError struct {
	StatusCode   int
	Status       string
	Code         string `json:"code"`
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the visionprep server logs for details"
	}
}

// ErrorResponse ist der JSON-Body jeder Fehlerantwort
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ImageData represents the raw binary data of an image file.
type ImageData []byte

// RawArray ist ein uint8-Array [H,W] oder [H,W,3] (BGR)
type RawArray struct {
	Shape []int     `json:"shape"`
	Data  ImageData `json:"data"`
}

// ImageRef referenziert ein Bild. Genau ein Feld muss gesetzt sein.
type ImageRef struct {
	// Image ist das kodierte Bild (Base64 im JSON)
	Image ImageData `json:"image,omitempty"`

	// Path ist ein Dateipfad auf dem Server
	Path string `json:"path,omitempty"`

	// URL wird vom Server geladen
	URL string `json:"url,omitempty"`

	// Array ist ein rohes Pixelarray
	Array *RawArray `json:"array,omitempty"`
}

// Source wandelt die Referenz in eine vision.Source. Null oder mehr als
// ein gesetztes Feld ergibt *vision.UnsupportedInputTypeError.
func (r ImageRef) Source() (vision.Source, error) {
	var set []vision.Source
	if len(r.Image) > 0 {
		img, err := vision.LoadImageFromBytes(r.Image)
		if err != nil {
			return vision.Source{}, &vision.ImageDecodeError{Source: "image", Err: err}
		}
		set = append(set, vision.FromImage(img.Image))
	}
	if r.Path != "" {
		set = append(set, vision.FromPath(r.Path))
	}
	if r.URL != "" {
		set = append(set, vision.FromPath(r.URL))
	}
	if r.Array != nil {
		set = append(set, vision.FromArray(&vision.Array{Shape: r.Array.Shape, Data: r.Array.Data}))
	}

	switch len(set) {
	case 1:
		return set[0], nil
	case 0:
		return vision.Source{}, &vision.UnsupportedInputTypeError{Type: "empty image reference"}
	default:
		return vision.Source{}, &vision.UnsupportedInputTypeError{Type: fmt.Sprintf("image reference with %d sources", len(set))}
	}
}

// ============================================================================
// Super-Resolution
// ============================================================================

// SuperResolutionRequest - Endpoint: POST /api/super-resolution
type SuperResolutionRequest struct {
	Model string `json:"model"`
	ImageRef

	// Format ist das Ausgabeformat (png, jpeg). Default: png
	Format string `json:"format,omitempty"`
}

// SuperResolutionResponse enthaelt das vergroesserte Bild
type SuperResolutionResponse struct {
	Model         string        `json:"model"`
	Backend       string        `json:"backend"`
	Image         ImageData     `json:"image"`
	Format        string        `json:"format"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Scale         int           `json:"scale"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

// ============================================================================
// Grounding
// ============================================================================

// GroundingRequest - Endpoint: POST /api/grounding
type GroundingRequest struct {
	Model string `json:"model"`
	ImageRef
	Text string `json:"text"`

	// IncludePatch liefert zusaetzlich die Patch-Werte ([3,S,S] flach)
	IncludePatch bool `json:"include_patch,omitempty"`
}

// GroundingResponse ist ein Grounding-Sample als JSON
type GroundingResponse struct {
	Model         string        `json:"model"`
	Source        []int32       `json:"source"`
	PatchShape    []int         `json:"patch_shape"`
	PatchImage    []float32     `json:"patch_image,omitempty"`
	PatchMask     []bool        `json:"patch_mask"`
	WResizeRatio  float32       `json:"w_resize_ratio"`
	HResizeRatio  float32       `json:"h_resize_ratio"`
	Caption       string        `json:"caption"`
	Prompt        string        `json:"prompt"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}

// ============================================================================
// Modelle, Backends, Version
// ============================================================================

// ModelResponse beschreibt ein lokal verfuegbares Modell
type ModelResponse struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Task string `json:"task,omitempty"`
}

// ListResponse - Endpoint: GET /api/models
type ListResponse struct {
	Models []ModelResponse `json:"models"`
}

// BackendsResponse - Endpoint: GET /api/backends
type BackendsResponse struct {
	Backends []string `json:"backends"`
	Default  string   `json:"default"`
}

// VersionResponse - Endpoint: GET /api/version
type VersionResponse struct {
	Version string `json:"version"`
}
