//go:build onnx && cgo

// MODUL: onnx/session
// ZWECK: ONNX Runtime Session Management - Erstellen, Konfigurieren, Ausfuehren
// INPUT: Modell-Pfad (.onnx), Session-Optionen, Input-Daten
// OUTPUT: Session-Handle, Output-Daten
// NEBENEFFEKTE: Alloziert ONNX Runtime Ressourcen, GPU Memory
// ABHAENGIGKEITEN: onnxruntime_go, envconfig
// HINWEISE: Nicht thread-sicher, der Aufrufer serialisiert Run. Destroy() MUSS aufgerufen werden

package onnx

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/7blacky7/visionprep/envconfig"
)

// ============================================================================
// Runtime Initialisierung (Singleton)
// ============================================================================

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// InitRuntime initialisiert die ONNX Runtime einmalig.
// VISIONPREP_ONNX_LIBRARY setzt den Pfad zur Shared Library.
func InitRuntime() error {
	runtimeInitOnce.Do(func() {
		if lib := envconfig.OnnxLibrary(); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// ============================================================================
// Session
// ============================================================================

// SessionOptions konfiguriert die ONNX Session
type SessionOptions struct {
	InputName   string
	OutputName  string
	NumThreads  int
	UseGPU      bool
	GPUDeviceID int
}

// DefaultSessionOptions liest GPU-Einstellungen aus der Umgebung
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		InputName:  DefaultInputName,
		OutputName: DefaultOutputName,
		UseGPU:     envconfig.OnnxGPU(),
	}
}

// Session verwaltet eine ONNX Runtime Inference Session.
type Session struct {
	inner *ort.DynamicAdvancedSession
	opts  SessionOptions
}

// CreateSession erstellt eine neue ONNX Inference Session. Input- und
// Output-Namen werden aus der Modelldatei gelesen, falls moeglich.
func CreateSession(modelPath string, opts SessionOptions, logger *slog.Logger) (*Session, error) {
	if err := InitRuntime(); err != nil {
		return nil, fmt.Errorf("runtime init: %w", err)
	}

	if inputs, outputs, err := ort.GetInputOutputInfo(modelPath); err == nil && len(inputs) == 1 && len(outputs) == 1 {
		opts.InputName, opts.OutputName = inputs[0].Name, outputs[0].Name
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer sessOpts.Destroy()

	if opts.NumThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	if opts.UseGPU {
		if err := appendCUDA(sessOpts, opts.GPUDeviceID); err != nil {
			// CPU Fallback
			logger.Warn("onnx: cuda execution provider unavailable, using cpu", "error", err)
		}
	}

	inner, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{opts.InputName}, []string{opts.OutputName}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Debug("onnx session created", "model", modelPath, "input", opts.InputName, "output", opts.OutputName, "gpu", opts.UseGPU)
	return &Session{inner: inner, opts: opts}, nil
}

func appendCUDA(sessOpts *ort.SessionOptions, deviceID int) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()

	if err := cudaOpts.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
		return err
	}
	return sessOpts.AppendExecutionProviderCUDA(cudaOpts)
}

// Run fuehrt einen Forward-Pass aus
func (s *Session) Run(input []float32, inShape, outShape []int64) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.Shape(inShape), input)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.Shape(outShape))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.inner.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	data := outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// Destroy gibt alle Session-Ressourcen frei
func (s *Session) Destroy() {
	if s.inner != nil {
		s.inner.Destroy()
		s.inner = nil
	}
}
