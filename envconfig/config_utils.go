// config_utils.go - Getter-Konstruktoren und Export der Konfiguration
//
// Bool, String, StringWithDefault und Uint erzeugen Getter, die die
// Umgebung bei jedem Aufruf neu lesen. AsMap und Values beschreiben alle
// Variablen fuer die Hilfe-Ausgabe und das Server-Log.
package envconfig

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
)

// Bool liest k als Bool. Ein gesetzter, nicht parsebarer Wert gilt als true.
func Bool(k string) func() bool {
	return func() bool {
		s := Var(k)
		if s == "" {
			return false
		}
		b, err := strconv.ParseBool(s)
		return err != nil || b
	}
}

// String liest k ohne Default
func String(k string) func() string {
	return StringWithDefault(k, "")
}

// StringWithDefault liest k, leer ergibt defaultValue
func StringWithDefault(k, defaultValue string) func() string {
	return func() string {
		if v := Var(k); v != "" {
			return v
		}
		return defaultValue
	}
}

// Uint liest k als vorzeichenlose Zahl. Ungueltige Werte werden geloggt
// und durch defaultValue ersetzt.
func Uint[T uint | uint64](k string, defaultValue T) func() T {
	return func() T {
		s := Var(k)
		if s == "" {
			return defaultValue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			slog.Warn("invalid environment variable, using default", "key", k, "value", s, "default", defaultValue)
			return defaultValue
		}
		return T(n)
	}
}

// EnvVar beschreibt eine Variable mit ihrem aktuellen Wert
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle bekannten Variablen mit Wert und Beschreibung zurueck
func AsMap() map[string]EnvVar {
	vars := []EnvVar{
		{"VISIONPREP_DEBUG", LogLevel(), "Show additional debug information (e.g. VISIONPREP_DEBUG=1)"},
		{"VISIONPREP_HOST", Host(), "IP Address for the visionprep server (default 127.0.0.1:11500)"},
		{"VISIONPREP_MODELS", Models(), "The path to the models directory"},
		{"VISIONPREP_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		{"VISIONPREP_BACKEND", Backend(), "Super-resolution forward backend (default \"bicubic\")"},
		{"VISIONPREP_PARALLEL", Parallel(), "Maximum number of images processed concurrently in a batch"},
		{"VISIONPREP_MAX_IMAGE_BYTES", MaxImageBytes(), "Maximum size of an uploaded or fetched image (default 32MiB)"},
		{"VISIONPREP_FETCH_TIMEOUT", FetchTimeout(), "Timeout for fetching image URLs (default \"30s\")"},
		{"VISIONPREP_ALLOW_REMOTE_SOURCES", AllowRemoteSources(), "Allow API requests to reference server-local paths and URLs"},
		{"VISIONPREP_ONNX_LIBRARY", OnnxLibrary(), "Path to the onnxruntime shared library"},
		{"VISIONPREP_ONNX_GPU", OnnxGPU(), "Use the CUDA execution provider for ONNX models"},
		{"HF_TOKEN", redact(HFToken()), "HuggingFace access token"},
		{"HF_ENDPOINT", HFEndpoint(), "HuggingFace hub endpoint"},
	}

	proxies := []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY"}
	if runtime.GOOS != "windows" {
		// ausserhalb von Windows sind die Namen case-sensitive
		proxies = append(proxies, "http_proxy", "https_proxy", "no_proxy")
	}
	for _, k := range proxies {
		vars = append(vars, EnvVar{k, String(k)(), "Proxy for hub and image downloads"})
	}

	if runtime.GOOS != "darwin" {
		vars = append(vars, EnvVar{"CUDA_VISIBLE_DEVICES", CudaVisibleDevices(), "Set which NVIDIA devices are visible to the onnx backend"})
	}

	ret := make(map[string]EnvVar, len(vars))
	for _, v := range vars {
		ret[v.Name] = v
	}
	return ret
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Values gibt alle Werte formatiert zurueck, Tokens geschwaerzt
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
