// MODUL: arch
// ZWECK: Erwartetes State-Dict Layout des RRDBNet (ESRGAN) und strikte Pruefung
// INPUT: Arch-Parameter, geladenes weights.StateDict
// OUTPUT: Liste der Parameter (Name + Shape), Validierungsfehler
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: weights
// HINWEISE: Scale 2 und 1 nutzen pixel-unshuffle, conv_first sieht dann 12 bzw. 48 Kanaele

package superres

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/7blacky7/visionprep/weights"
)

var ErrStateDictMismatch = errors.New("state dict does not match architecture")

// Arch beschreibt ein RRDBNet
type Arch struct {
	NumInCh   int
	NumOutCh  int
	NumFeat   int
	NumBlock  int
	NumGrowCh int
	Scale     int
}

// DefaultArch ist das x4 RRDBNet der Super-Resolution-Modelle
func DefaultArch() Arch {
	return Arch{
		NumInCh:   3,
		NumOutCh:  3,
		NumFeat:   64,
		NumBlock:  23,
		NumGrowCh: 32,
		Scale:     4,
	}
}

// Param ist ein erwarteter Eintrag im State-Dict
type Param struct {
	Name  string
	Shape []int
}

// unshuffle ist der pixel-unshuffle Faktor fuer den Eingang
func (a Arch) unshuffle() int {
	switch a.Scale {
	case 2:
		return 2
	case 1:
		return 4
	default:
		return 1
	}
}

// FirstConvChannels ist die Eingangs-Kanalzahl von conv_first
func (a Arch) FirstConvChannels() int {
	u := a.unshuffle()
	return a.NumInCh * u * u
}

// Layout liefert alle Parameter in der Reihenfolge von RRDBNet.state_dict()
func (a Arch) Layout() []Param {
	f, g := a.NumFeat, a.NumGrowCh
	conv := func(name string, out, in int) []Param {
		return []Param{
			{Name: name + ".weight", Shape: []int{out, in, 3, 3}},
			{Name: name + ".bias", Shape: []int{out}},
		}
	}

	params := conv("conv_first", f, a.FirstConvChannels())
	for b := range a.NumBlock {
		for r := 1; r <= 3; r++ {
			prefix := fmt.Sprintf("body.%d.rdb%d", b, r)
			for c := 1; c <= 4; c++ {
				params = append(params, conv(fmt.Sprintf("%s.conv%d", prefix, c), g, f+(c-1)*g)...)
			}
			params = append(params, conv(prefix+".conv5", f, f+4*g)...)
		}
	}

	params = append(params, conv("conv_body", f, f)...)
	params = append(params, conv("conv_up1", f, f)...)
	params = append(params, conv("conv_up2", f, f)...)
	params = append(params, conv("conv_hr", f, f)...)
	params = append(params, conv("conv_last", a.NumOutCh, f)...)
	return params
}

// InferScale leitet den Upscale-Faktor aus conv_first.weight ab
// (3 Kanaele: x4, 12: x2, 48: x1)
func InferScale(sd *weights.StateDict, numInCh int) (int, error) {
	t, ok := sd.Get("conv_first.weight")
	if !ok {
		return 0, fmt.Errorf("%w: missing conv_first.weight", ErrStateDictMismatch)
	}
	if len(t.Shape) != 4 {
		return 0, fmt.Errorf("%w: conv_first.weight has shape %v", ErrStateDictMismatch, t.Shape)
	}

	switch t.Shape[1] {
	case numInCh:
		return 4, nil
	case numInCh * 4:
		return 2, nil
	case numInCh * 16:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: conv_first.weight has %d input channels", ErrStateDictMismatch, t.Shape[1])
	}
}

// maxReported begrenzt die Anzahl gemeldeter Schluessel pro Kategorie
const maxReported = 5

// Validate prueft das State-Dict strikt: fehlende Schluessel, unerwartete
// Schluessel und abweichende Shapes sind Fehler.
func (a Arch) Validate(sd *weights.StateDict) error {
	layout := a.Layout()
	expected := make(map[string]struct{}, len(layout))

	var missing, mismatched []string
	for _, p := range layout {
		expected[p.Name] = struct{}{}
		t, ok := sd.Get(p.Name)
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if !slices.Equal(t.Shape, p.Shape) {
			mismatched = append(mismatched, fmt.Sprintf("%s: got %v, want %v", p.Name, t.Shape, p.Shape))
		}
	}

	var unexpected []string
	for _, name := range sd.Keys() {
		if _, ok := expected[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing keys (%d): %s", len(missing), summarize(missing)))
	}
	if len(unexpected) > 0 {
		errs = append(errs, fmt.Errorf("unexpected keys (%d): %s", len(unexpected), summarize(unexpected)))
	}
	if len(mismatched) > 0 {
		errs = append(errs, fmt.Errorf("shape mismatch (%d): %s", len(mismatched), summarize(mismatched)))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStateDictMismatch, errors.Join(errs...))
}

func summarize(names []string) string {
	if len(names) <= maxReported {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:maxReported], ", ") + ", ..."
}
