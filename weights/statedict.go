// MODUL: statedict
// ZWECK: Geordnetes State-Dict (Name -> Tensor) fuer vortrainierte Gewichte
// INPUT: Pfad zu pytorch_model.pt/.pth/.bin oder *.safetensors
// OUTPUT: StateDict mit float32-Daten in Datei-Reihenfolge
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: github.com/wk8/go-ordered-map/v2 (extern)
// HINWEISE: Alle Ladefehler werden als *vision.ModelLoadError gemeldet

package weights

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/visionprep/vision"
)

// Datentypen wie im safetensors-Header
const (
	DTypeF32  = "F32"
	DTypeF16  = "F16"
	DTypeBF16 = "BF16"
	DTypeF64  = "F64"
	DTypeI64  = "I64"
	DTypeI32  = "I32"
)

var ErrUnknownWeightFormat = errors.New("unknown weight file format")

// Tensor ist ein einzelner Gewichts-Tensor. Data ist immer float32,
// DType beschreibt den Typ in der Quelldatei.
type Tensor struct {
	Name  string
	DType string
	Shape []int
	Data  []float32
}

// NumElements gibt das Produkt der Shape zurueck
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// StateDict haelt Tensoren in der Reihenfolge der Quelldatei
type StateDict struct {
	tensors *orderedmap.OrderedMap[string, *Tensor]
}

// NewStateDict erstellt ein leeres StateDict
func NewStateDict() *StateDict {
	return &StateDict{tensors: orderedmap.New[string, *Tensor]()}
}

// Set fuegt einen Tensor hinzu oder ersetzt ihn
func (sd *StateDict) Set(t *Tensor) {
	sd.tensors.Set(t.Name, t)
}

// Get gibt den Tensor mit dem Namen zurueck
func (sd *StateDict) Get(name string) (*Tensor, bool) {
	return sd.tensors.Get(name)
}

// Len gibt die Anzahl der Tensoren zurueck
func (sd *StateDict) Len() int {
	return sd.tensors.Len()
}

// Keys gibt alle Namen in Datei-Reihenfolge zurueck
func (sd *StateDict) Keys() []string {
	keys := make([]string, 0, sd.tensors.Len())
	for pair := sd.tensors.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Tensors gibt alle Tensoren in Datei-Reihenfolge zurueck
func (sd *StateDict) Tensors() []*Tensor {
	ts := make([]*Tensor, 0, sd.tensors.Len())
	for pair := sd.tensors.Oldest(); pair != nil; pair = pair.Next() {
		ts = append(ts, pair.Value)
	}
	return ts
}

// NumParams gibt die Gesamtzahl der Parameter zurueck
func (sd *StateDict) NumParams() int {
	var n int
	for pair := sd.tensors.Oldest(); pair != nil; pair = pair.Next() {
		n += pair.Value.NumElements()
	}
	return n
}

// StripPrefix entfernt ein gemeinsames Praefix (z.B. "module." aus DataParallel)
func (sd *StateDict) StripPrefix(prefix string) *StateDict {
	out := NewStateDict()
	for _, t := range sd.Tensors() {
		c := *t
		c.Name = strings.TrimPrefix(t.Name, prefix)
		out.Set(&c)
	}
	return out
}

// Load laedt ein State-Dict anhand der Dateiendung
func Load(path string) (*StateDict, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pt", ".pth", ".bin", ".ckpt":
		return LoadTorch(path)
	case ".safetensors":
		return LoadSafetensors(path)
	default:
		return nil, &vision.ModelLoadError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnknownWeightFormat, ext)}
	}
}

// strides berechnet zeilen-major Strides fuer eine Shape
func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// gather kopiert einen (evtl. nicht-kontiguierlichen) View in ein
// kontiguierliches Slice
func gather[T any](src []T, shape, stride []int, offset int, conv func(T) float32) ([]float32, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}

	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}

	if len(stride) == 0 || slices.Equal(stride, strides(shape)) {
		if offset+n > len(src) {
			return nil, fmt.Errorf("storage too small: need %d values from offset %d, have %d", n, offset, len(src))
		}
		for i, v := range src[offset : offset+n] {
			out[i] = conv(v)
		}
		return out, nil
	}

	if len(stride) != len(shape) {
		return nil, fmt.Errorf("stride %v does not match shape %v", stride, shape)
	}

	idx := make([]int, len(shape))
	for i := range out {
		pos := offset
		for d, k := range idx {
			pos += k * stride[d]
		}
		if pos < 0 || pos >= len(src) {
			return nil, fmt.Errorf("strided index %d out of range %d", pos, len(src))
		}
		out[i] = conv(src[pos])

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}
