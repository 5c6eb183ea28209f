// config_features.go - Backend-, Parallelitaets-, Server- und Hub-Konfiguration
package envconfig

import "runtime"

// =============================================================================
// Backend-Konfiguration
// =============================================================================

var (
	// Backend waehlt das Forward-Backend der Super-Resolution-Pipeline
	Backend = StringWithDefault("VISIONPREP_BACKEND", "bicubic")

	// OnnxLibrary ist der Pfad zur onnxruntime Shared Library
	OnnxLibrary = String("VISIONPREP_ONNX_LIBRARY")

	// OnnxGPU aktiviert den CUDA Execution Provider
	OnnxGPU = Bool("VISIONPREP_ONNX_GPU")

	// CudaVisibleDevices steuert sichtbare NVIDIA-Geraete
	CudaVisibleDevices = String("CUDA_VISIBLE_DEVICES")
)

// =============================================================================
// Parallelitaet und Limits
// =============================================================================

var (
	// Parallel setzt die Anzahl gleichzeitiger Bilder in einem Batch
	// Konfigurierbar via VISIONPREP_PARALLEL
	Parallel = Uint("VISIONPREP_PARALLEL", uint(runtime.NumCPU()))

	// MaxImageBytes begrenzt Uploads und URL-Downloads (Bytes)
	// Konfigurierbar via VISIONPREP_MAX_IMAGE_BYTES
	MaxImageBytes = Uint("VISIONPREP_MAX_IMAGE_BYTES", uint64(32<<20))
)

// =============================================================================
// Server
// =============================================================================

var (
	// AllowRemoteSources erlaubt path- und url-Referenzen in API-Requests.
	// Ohne den Schalter liest der Server keine lokalen Dateien und laedt
	// keine URLs im Auftrag eines Clients.
	AllowRemoteSources = Bool("VISIONPREP_ALLOW_REMOTE_SOURCES")
)

// =============================================================================
// Hub-Zugriff
// =============================================================================

var (
	// HFToken ist der HuggingFace API Token
	HFToken = String("HF_TOKEN")

	// HFEndpoint ueberschreibt die Hub-URL (Mirror)
	HFEndpoint = String("HF_ENDPOINT")
)
