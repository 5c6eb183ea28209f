package superres

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pdevine/tensor"

	"github.com/7blacky7/visionprep/vision"
	"github.com/7blacky7/visionprep/weights"
)

// tinyArch haelt die Fixtures klein, Layout und Pruefung sind identisch
func tinyArch() Arch {
	return Arch{NumInCh: 3, NumOutCh: 3, NumFeat: 4, NumBlock: 1, NumGrowCh: 2, Scale: 4}
}

func stateDictFor(a Arch) *weights.StateDict {
	sd := weights.NewStateDict()
	for _, p := range a.Layout() {
		t := &weights.Tensor{Name: p.Name, DType: weights.DTypeF32, Shape: p.Shape}
		t.Data = make([]float32, t.NumElements())
		sd.Set(t)
	}
	return sd
}

func writeModel(t *testing.T, sd *weights.StateDict) string {
	t.Helper()
	dir := t.TempDir()
	if err := weights.SaveSafetensors(filepath.Join(dir, SafetensorsModelFile), sd, weights.DTypeF32); err != nil {
		t.Fatal(err)
	}
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, a Arch, backend string, opts ...Option) *Pipeline {
	t.Helper()
	dir := writeModel(t, stateDictFor(a))
	opts = append([]Option{WithArch(a), WithBackend(backend), WithLogger(quietLogger())}, opts...)
	p, err := New(dir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestDefaultArchLayout(t *testing.T) {
	layout := DefaultArch().Layout()

	shapes := make(map[string][]int, len(layout))
	params := 0
	for _, p := range layout {
		shapes[p.Name] = p.Shape
		n := 1
		for _, d := range p.Shape {
			n *= d
		}
		params += n
	}

	// RRDB_ESRGAN_x4
	if params != 16697987 {
		t.Errorf("Parameter = %d, erwartet 16697987", params)
	}
	if len(layout) != 702 {
		t.Errorf("Eintraege = %d, erwartet 702", len(layout))
	}

	tests := map[string][]int{
		"conv_first.weight":         {64, 3, 3, 3},
		"body.0.rdb1.conv2.weight":  {32, 96, 3, 3},
		"body.22.rdb3.conv5.weight": {64, 192, 3, 3},
		"conv_last.weight":          {3, 64, 3, 3},
		"conv_last.bias":            {3},
	}
	for name, want := range tests {
		if diff := cmp.Diff(want, shapes[name]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestInferScale(t *testing.T) {
	cases := map[int]int{3: 4, 12: 2, 48: 1}
	for channels, want := range cases {
		sd := weights.NewStateDict()
		sd.Set(&weights.Tensor{Name: "conv_first.weight", Shape: []int{64, channels, 3, 3}})
		got, err := InferScale(sd, 3)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("InferScale(%d Kanaele) = %d, erwartet %d", channels, got, want)
		}

		a := DefaultArch()
		a.Scale = want
		if a.FirstConvChannels() != channels {
			t.Errorf("FirstConvChannels(x%d) = %d, erwartet %d", want, a.FirstConvChannels(), channels)
		}
	}

	sd := weights.NewStateDict()
	sd.Set(&weights.Tensor{Name: "conv_first.weight", Shape: []int{64, 5, 3, 3}})
	if _, err := InferScale(sd, 3); !errors.Is(err, ErrStateDictMismatch) {
		t.Errorf("Erwartete ErrStateDictMismatch, bekam %v", err)
	}
	if _, err := InferScale(weights.NewStateDict(), 3); !errors.Is(err, ErrStateDictMismatch) {
		t.Errorf("Erwartete ErrStateDictMismatch ohne conv_first, bekam %v", err)
	}
}

func TestArchValidate(t *testing.T) {
	a := tinyArch()
	if err := a.Validate(stateDictFor(a)); err != nil {
		t.Fatalf("gueltiges State-Dict abgelehnt: %v", err)
	}

	tests := []struct {
		name   string
		modify func(sd *weights.StateDict) *weights.StateDict
		want   string
	}{
		{"Fehlender Schluessel", func(sd *weights.StateDict) *weights.StateDict {
			out := weights.NewStateDict()
			for _, t := range sd.Tensors() {
				if t.Name != "conv_hr.bias" {
					out.Set(t)
				}
			}
			return out
		}, "missing keys (1): conv_hr.bias"},
		{"Unerwarteter Schluessel", func(sd *weights.StateDict) *weights.StateDict {
			sd.Set(&weights.Tensor{Name: "extra.weight", Shape: []int{1}, Data: []float32{0}})
			return sd
		}, "unexpected keys (1): extra.weight"},
		{"Falsche Shape", func(sd *weights.StateDict) *weights.StateDict {
			sd.Set(&weights.Tensor{Name: "conv_last.bias", Shape: []int{4}, Data: make([]float32, 4)})
			return sd
		}, "conv_last.bias: got [4], want [3]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Validate(tt.modify(stateDictFor(a)))
			if !errors.Is(err, ErrStateDictMismatch) {
				t.Fatalf("Erwartete ErrStateDictMismatch, bekam %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Fehler %q enthaelt nicht %q", err, tt.want)
			}
		})
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	p := newTestPipeline(t, tinyArch(), BackendIdentity)

	data := []uint8{
		0, 10, 255, 30, 40, 50, 60, 70, 80,
		90, 100, 110, 120, 130, 140, 150, 160, 170,
	}
	arr, err := vision.NewArray(data, 2, 3, 3)
	if err != nil {
		t.Fatal(err)
	}

	out, err := p.Run(context.Background(), vision.FromArray(arr))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(arr, out.Image); diff != "" {
		t.Errorf("Round-Trip mismatch (-want +got):\n%s", diff)
	}
}

func TestBicubicScale(t *testing.T) {
	tests := []struct {
		name  string
		scale int
	}{
		{"x4", 4},
		{"x2", 2},
		{"x1", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tinyArch()
			a.Scale = tt.scale
			p := newTestPipeline(t, a, BackendBicubic)
			if p.Arch().Scale != tt.scale {
				t.Fatalf("Scale = %d, erwartet %d", p.Arch().Scale, tt.scale)
			}

			gray := make([]uint8, 5*4)
			for i := range gray {
				gray[i] = 100
			}
			arr, err := vision.NewArray(gray, 5, 4)
			if err != nil {
				t.Fatal(err)
			}

			out, err := p.Run(context.Background(), vision.FromArray(arr))
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff([]int{5 * tt.scale, 4 * tt.scale, 3}, out.Image.Shape); diff != "" {
				t.Errorf("Shape mismatch (-want +got):\n%s", diff)
			}
			for i, v := range out.Image.Data {
				if v != 100 {
					t.Fatalf("Pixel %d = %d, erwartet 100", i, v)
				}
			}
		})
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(t.TempDir(), WithLogger(quietLogger())); !errors.Is(err, vision.ErrModelLoad) {
		t.Errorf("Erwartete ErrModelLoad ohne Gewichte, bekam %v", err)
	}

	sd := stateDictFor(tinyArch())
	sd.Set(&weights.Tensor{Name: "extra.weight", Shape: []int{1}, Data: []float32{0}})
	_, err := New(writeModel(t, sd), WithArch(tinyArch()), WithLogger(quietLogger()))
	var loadErr *vision.ModelLoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, ErrStateDictMismatch) {
		t.Errorf("Erwartete ModelLoadError mit ErrStateDictMismatch, bekam %v", err)
	}

	// Default-Architektur passt nicht auf das kleine Fixture
	if _, err := New(writeModel(t, stateDictFor(tinyArch())), WithLogger(quietLogger())); !errors.Is(err, vision.ErrModelLoad) {
		t.Errorf("Erwartete ErrModelLoad fuer x4/23-Block Layout, bekam %v", err)
	}

	_, err = New(writeModel(t, stateDictFor(tinyArch())), WithArch(tinyArch()), WithBackend("bicubik"), WithLogger(quietLogger()))
	var cfgErr *vision.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Erwartete ConfigurationError, bekam %v", err)
	}
	if !strings.Contains(cfgErr.Reason, "did you mean 'bicubic'") {
		t.Errorf("Reason = %q, erwartet Vorschlag", cfgErr.Reason)
	}
}

func TestModulePrefix(t *testing.T) {
	a := tinyArch()
	sd := weights.NewStateDict()
	for _, tn := range stateDictFor(a).Tensors() {
		c := *tn
		c.Name = "module." + c.Name
		sd.Set(&c)
	}

	p, err := New(writeModel(t, sd), WithArch(a), WithBackend(BackendIdentity), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.StateDict().Get("conv_first.weight"); !ok {
		t.Error("module. Praefix wurde nicht entfernt")
	}
}

func TestRunErrors(t *testing.T) {
	p := newTestPipeline(t, tinyArch(), BackendIdentity)

	if _, err := p.Run(context.Background(), vision.Source{}); !errors.Is(err, vision.ErrUnsupportedInput) {
		t.Errorf("Erwartete ErrUnsupportedInput, bekam %v", err)
	}

	bad := &vision.Array{Shape: []int{2, 2, 4}, Data: make([]uint8, 16)}
	var unsupported *vision.UnsupportedInputTypeError
	if _, err := p.Run(context.Background(), vision.FromArray(bad)); !errors.As(err, &unsupported) {
		t.Errorf("Erwartete UnsupportedInputTypeError fuer 4 Kanaele, bekam %v", err)
	}

	if _, err := p.Run(context.Background(), vision.FromPath(filepath.Join(t.TempDir(), "missing.png"))); !errors.Is(err, vision.ErrImageDecode) {
		t.Errorf("Erwartete ErrImageDecode, bekam %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	arr, _ := vision.NewArray(make([]uint8, 4), 2, 2)
	if _, err := p.Run(ctx, vision.FromArray(arr)); !errors.Is(err, context.Canceled) {
		t.Errorf("Erwartete context.Canceled, bekam %v", err)
	}
}

func TestRunBatch(t *testing.T) {
	p := newTestPipeline(t, tinyArch(), BackendIdentity, WithParallel(2))

	var srcs []vision.Source
	var want []*vision.Array
	for i := range 5 {
		arr, err := vision.NewArray([]uint8{uint8(i), uint8(i * 10), uint8(i * 20)}, 1, 1, 3)
		if err != nil {
			t.Fatal(err)
		}
		srcs = append(srcs, vision.FromArray(arr))
		want = append(want, arr)
	}

	outputs, err := p.RunBatch(context.Background(), srcs)
	if err != nil {
		t.Fatal(err)
	}
	for i, out := range outputs {
		if diff := cmp.Diff(want[i], out.Image); diff != "" {
			t.Errorf("Bild %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	srcs = append(srcs, vision.Source{})
	if _, err := p.RunBatch(context.Background(), srcs); !errors.Is(err, vision.ErrUnsupportedInput) {
		t.Errorf("Erwartete ErrUnsupportedInput im Batch, bekam %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("onnx", func(BackendConfig) (Backend, error) { return identityBackend{}, nil })
	r.Register(BackendBicubic, func(BackendConfig) (Backend, error) { return identityBackend{}, nil })

	if diff := cmp.Diff([]string{BackendBicubic, "onnx"}, r.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	tests := map[string]string{
		"onx":      "onnx",
		"Bicubic":  BackendBicubic,
		"tensorrt": "",
	}
	for name, want := range tests {
		if got := r.Suggest(name); got != want {
			t.Errorf("Suggest(%q) = %q, erwartet %q", name, got, want)
		}
	}

	_, err := r.Create("tensorrt", BackendConfig{})
	var regErr *RegistryError
	if !errors.As(err, &regErr) || !errors.Is(err, ErrBackendNotRegistered) {
		t.Errorf("Erwartete RegistryError, bekam %v", err)
	}

	r.Register("passthrough", func(BackendConfig) (Backend, error) { return identityBackend{}, nil })
	p := newTestPipeline(t, tinyArch(), "passthrough", WithRegistry(r))
	if p.Backend() != BackendIdentity {
		t.Errorf("Backend = %q, erwartet %q", p.Backend(), BackendIdentity)
	}

	if !r.Unregister("onnx") || r.Unregister("onnx") {
		t.Error("Unregister sollte genau einmal true liefern")
	}

	for _, name := range []string{BackendBicubic, BackendIdentity} {
		if _, ok := DefaultRegistry.Get(name); !ok {
			t.Errorf("%s nicht in DefaultRegistry", name)
		}
	}
}

// networkBackend steht fuer ein Backend, das ein echtes Netz ausfuehrt
type networkBackend struct{}

func (networkBackend) Name() string { return "network" }

func (networkBackend) Forward(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	return identityBackend{}.Forward(ctx, input)
}

func (networkBackend) Close() error { return nil }

func TestReferenceBackendWarns(t *testing.T) {
	r := NewRegistry()
	r.Register(BackendIdentity, func(BackendConfig) (Backend, error) { return identityBackend{}, nil })
	r.Register(BackendBicubic, func(cfg BackendConfig) (Backend, error) { return bicubicBackend{scale: cfg.Arch.Scale}, nil })
	r.Register("network", func(BackendConfig) (Backend, error) { return networkBackend{}, nil })

	tests := []struct {
		backend string
		warn    bool
	}{
		{BackendIdentity, true},
		{BackendBicubic, true},
		{"network", false},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			newTestPipeline(t, tinyArch(), tt.backend, WithRegistry(r), WithLogger(logger))

			got := strings.Contains(buf.String(), "level=WARN")
			if got != tt.warn {
				t.Errorf("Warnung = %v, erwartet %v, Log:\n%s", got, tt.warn, buf.String())
			}
			if !strings.Contains(buf.String(), "load model done") {
				t.Errorf("Erwartete Ladeabschluss im Log, bekam:\n%s", buf.String())
			}
		})
	}
}
