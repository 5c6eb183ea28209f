// types.go - Gemeinsame Typen fuer Hub-Zugriff und Config-Parsing
//
// Enthaelt Typen fuer:
// - preprocessor_config.json Parsing (PreprocessorConfig)
// - Hub API Antworten (APIModelInfo, APISibling)
// - Fehler (HuggingFaceError)
package huggingface

// =============================================================================
// KONSTANTEN
// =============================================================================

// Aufgaben, die ein Modell-Verzeichnis bedienen kann
const (
	TaskSuperResolution = "image-super-resolution"
	TaskVisualGrounding = "visual-grounding"
	TaskUnknown         = "unknown"
)

// =============================================================================
// PREPROCESSOR TYPEN
// =============================================================================

// PreprocessorConfig enthaelt die Bildvorverarbeitungs-Parameter
// aus preprocessor_config.json
type PreprocessorConfig struct {
	ImageProcessorType string `json:"image_processor_type,omitempty"`
	ProcessorClass     string `json:"processor_class,omitempty"`

	// Bildgroesse (verschiedene Formate moeglich)
	Size     *ImageSizeConfig `json:"size,omitempty"`
	CropSize *ImageSizeConfig `json:"crop_size,omitempty"`

	ImageSizeDirect int `json:"image_size,omitempty"`
	Height          int `json:"height,omitempty"`
	Width           int `json:"width,omitempty"`

	ImageMean []float32 `json:"image_mean,omitempty"`
	ImageStd  []float32 `json:"image_std,omitempty"`

	Resample *int `json:"resample,omitempty"`
}

// ImageSizeConfig repraesentiert die Bildgroesse in verschiedenen Formaten
type ImageSizeConfig struct {
	Height       int `json:"height,omitempty"`
	Width        int `json:"width,omitempty"`
	ShortestEdge int `json:"shortest_edge,omitempty"`
	LongestEdge  int `json:"longest_edge,omitempty"`
}

// =============================================================================
// HUB API TYPEN
// =============================================================================

// APIModelInfo enthaelt Metadaten eines Modells aus der Hub API
type APIModelInfo struct {
	ID       string       `json:"id"`
	SHA      string       `json:"sha"`
	Private  bool         `json:"private"`
	Gated    any          `json:"gated"` // false, "auto" oder "manual"
	Pipeline string       `json:"pipeline_tag"`
	Tags     []string     `json:"tags"`
	Siblings []APISibling `json:"siblings"`
}

// IsGated prueft ob das Modell eine Freigabe erfordert
func (m *APIModelInfo) IsGated() bool {
	switch v := m.Gated.(type) {
	case bool:
		return v
	case string:
		return v == "auto" || v == "manual"
	default:
		return false
	}
}

// APISibling repraesentiert eine Datei im Model-Repository
type APISibling struct {
	Filename string `json:"rfilename"`
	Size     int64  `json:"size"`
}

// =============================================================================
// ERROR TYPEN
// =============================================================================

// HuggingFaceError repraesentiert einen Fehler bei Hub- oder Config-Operationen
type HuggingFaceError struct {
	Op      string // download, resolve, parse_preprocessor, ...
	ModelID string
	Err     error
}

func (e *HuggingFaceError) Error() string {
	if e.ModelID != "" {
		return "huggingface " + e.Op + " [" + e.ModelID + "]: " + e.Err.Error()
	}
	return "huggingface " + e.Op + ": " + e.Err.Error()
}

func (e *HuggingFaceError) Unwrap() error {
	return e.Err
}
