// client.go - HuggingFace Hub Client
// Stellt einen HTTP-Client fuer Metadaten und Datei-Downloads bereit.
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/7blacky7/visionprep/envconfig"
	"github.com/7blacky7/visionprep/version"
)

// Konstanten fuer die Hub API
const (
	DefaultHubURL        = "https://huggingface.co"
	DefaultClientTimeout = 30 * time.Minute // grosse Gewichte
)

var (
	ErrModelNotFound   = errors.New("model not found")
	ErrUnauthorized    = errors.New("authentication failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrNetworkError    = errors.New("network error")
	ErrInvalidModelID  = errors.New("invalid model id")
	ErrDownloadFailed  = errors.New("download failed")
	ErrInvalidResponse = errors.New("invalid server response")
)

// Client ist der HuggingFace Hub Client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	cacheDir   string
}

// ClientOption konfiguriert den Client
type ClientOption func(*Client)

// WithToken setzt den API Token
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithBaseURL setzt eine eigene Hub-URL (Mirror oder Test-Server)
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient setzt einen eigenen HTTP Client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithCacheDir setzt das Cache-Verzeichnis fuer Downloads
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) { c.cacheDir = dir }
}

// NewClient erstellt einen Client; HF_TOKEN und HF_ENDPOINT werden beachtet.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		baseURL:    DefaultHubURL,
		token:      envconfig.HFToken(),
		userAgent:  "visionprep/" + version.Version,
	}
	if endpoint := envconfig.HFEndpoint(); endpoint != "" {
		c.baseURL = strings.TrimSuffix(endpoint, "/")
	}
	for _, opt := range options {
		opt(c)
	}
	if c.cacheDir == "" {
		c.cacheDir = GetCacheDir()
	}
	return c
}

// BaseURL gibt die aktuelle Hub-URL zurueck
func (c *Client) BaseURL() string { return c.baseURL }

// HasToken prueft ob ein Token konfiguriert ist
func (c *Client) HasToken() bool { return c.token != "" }

// GetModelInfo ruft die Metadaten eines Modells ab
func (c *Client) GetModelInfo(ctx context.Context, modelID string) (*APIModelInfo, error) {
	if err := validateModelID(modelID); err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, fmt.Sprintf("%s/api/models/%s", c.baseURL, modelID), nil)
	if err != nil {
		return nil, &HuggingFaceError{Op: "info", ModelID: modelID, Err: err}
	}
	defer resp.Body.Close()

	var info APIModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &HuggingFaceError{Op: "info", ModelID: modelID, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}
	return &info, nil
}

func (c *Client) resolveURL(modelID, revision, filename string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, modelID, revision, filename)
}

// get fuehrt einen GET aus und liefert die Antwort nur bei 2xx
func (c *Client) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	c.setHeaders(req)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	if err := handleResponseError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func handleResponseError(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrModelNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d - %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func validateModelID(modelID string) error {
	parts := strings.Split(modelID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(modelID, "..") {
		return &HuggingFaceError{Op: "validate", ModelID: modelID, Err: fmt.Errorf("%w: expected 'owner/model'", ErrInvalidModelID)}
	}
	return nil
}
