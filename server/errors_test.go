package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/7blacky7/visionprep/huggingface"
	"github.com/7blacky7/visionprep/vision"
)

func TestStatusAndCode(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&vision.UnsupportedInputTypeError{Type: "int"}, http.StatusBadRequest, CodeUnsupportedInput},
		{&vision.ImageDecodeError{Source: "a.png", Err: errors.New("eof")}, http.StatusUnprocessableEntity, CodeImageDecode},
		{&vision.ConfigurationError{Field: "backend", Reason: "unknown"}, http.StatusInternalServerError, CodeConfiguration},
		{&vision.ModelLoadError{Path: "m", Err: errors.New("x")}, http.StatusInternalServerError, CodeModelLoad},
		{&huggingface.HuggingFaceError{Op: "resolve", Err: huggingface.ErrModelNotFound}, http.StatusNotFound, CodeModelNotFound},
		{fmt.Errorf("run: %w", &vision.ImageDecodeError{Err: errors.New("x")}), http.StatusUnprocessableEntity, CodeImageDecode},
		{fmt.Errorf("%w: bad", errInvalidRequest), http.StatusBadRequest, CodeInvalidRequest},
		{APIError{Status: http.StatusTeapot, Code: "TEAPOT", Message: "x"}, http.StatusTeapot, "TEAPOT"},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, code := statusAndCode(tc.err)
			if status != tc.status || code != tc.code {
				t.Errorf("statusAndCode = (%d, %s), erwartet (%d, %s)", status, code, tc.status, tc.code)
			}
		})
	}
}
