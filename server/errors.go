// MODUL: errors
// ZWECK: Abbildung der Pipeline-Fehler auf HTTP-Status und API-Codes
// INPUT: Fehler aus vision, superres, grounding und huggingface
// OUTPUT: JSON-Fehlerantworten ({code, error})
// NEBENEFFEKTE: Schreibt HTTP-Responses
// ABHAENGIGKEITEN: gin-gonic/gin, api (intern)
// HINWEISE: Reihenfolge in errorCodes entscheidet bei mehrfach passenden Fehlern

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/7blacky7/visionprep/api"
	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/vision"
)

// API-Fehlercodes
const (
	CodeUnsupportedInput = "UNSUPPORTED_INPUT"
	CodeImageDecode      = "IMAGE_DECODE_FAILED"
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeModelLoad        = "MODEL_LOAD_FAILED"
	CodeModelNotFound    = "MODEL_NOT_FOUND"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInternal         = "INTERNAL_ERROR"
)

var errInvalidRequest = errors.New("invalid request")

type errorCode struct {
	err    error
	code   string
	status int
}

var errorCodes = []errorCode{
	{huggingface.ErrModelNotFound, CodeModelNotFound, http.StatusNotFound},
	{vision.ErrUnsupportedInput, CodeUnsupportedInput, http.StatusBadRequest},
	{errInvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
	{vision.ErrImageDecode, CodeImageDecode, http.StatusUnprocessableEntity},
	{vision.ErrConfiguration, CodeConfiguration, http.StatusInternalServerError},
	{vision.ErrModelLoad, CodeModelLoad, http.StatusInternalServerError},
}

// APIError ist ein Fehler mit festem Code und Status
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	return e.Message
}

// statusAndCode gibt HTTP-Status und API-Code fuer einen Fehler zurueck.
func statusAndCode(err error) (int, string) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Code
	}

	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.status, ec.code
		}
	}

	return http.StatusInternalServerError, CodeInternal
}

// abortWithError schreibt den Fehler als JSON und bricht die Handler-Kette ab.
func abortWithError(c *gin.Context, err error) {
	status, code := statusAndCode(err)
	if status >= http.StatusInternalServerError {
		logger(c).Error("request failed", "path", c.FullPath(), "code", code, "error", err)
	} else {
		logger(c).Debug("request rejected", "path", c.FullPath(), "code", code, "error", err)
	}

	c.AbortWithStatusJSON(status, api.ErrorResponse{Code: code, Error: err.Error()})
}
