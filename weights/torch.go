// MODUL: torch
// ZWECK: PyTorch State-Dict (torch.save) laden
// INPUT: Pfad zu pytorch_model.pt (Zip- oder Legacy-Pickle-Format)
// OUTPUT: StateDict
// NEBENEFFEKTE: Dateisystem-Lesezugriff
// ABHAENGIGKEITEN: github.com/nlpodyssey/gopickle (extern)
// HINWEISE: Verschachtelte Checkpoints ("params_ema", "params", "state_dict") werden entpackt

package weights

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/7blacky7/visionprep/vision"
)

// Schluessel unter denen Trainings-Checkpoints das eigentliche State-Dict ablegen
var nestedKeys = []string{"params_ema", "params", "state_dict", "model"}

// LoadTorch laedt ein mit torch.save gespeichertes State-Dict
func LoadTorch(path string) (*StateDict, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: fmt.Errorf("unpickle: %w", err)}
	}

	sd, err := stateDictFromPickle(obj)
	if err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: err}
	}

	slog.Debug("loaded torch state dict", "path", path, "tensors", sd.Len(), "params", sd.NumParams())
	return sd, nil
}

// pickleEntry ist ein Schluessel/Wert-Paar aus Dict oder OrderedDict
type pickleEntry struct {
	key   any
	value any
}

func pickleEntries(obj any) ([]pickleEntry, bool) {
	var entries []pickleEntry
	switch m := obj.(type) {
	case *types.OrderedDict:
		for e := m.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			entries = append(entries, pickleEntry{entry.Key, entry.Value})
		}
	case *types.Dict:
		for _, k := range m.Keys() {
			v, _ := m.Get(k)
			entries = append(entries, pickleEntry{k, v})
		}
	default:
		return nil, false
	}
	return entries, true
}

func stateDictFromPickle(obj any) (*StateDict, error) {
	entries, ok := pickleEntries(obj)
	if !ok {
		return nil, fmt.Errorf("expected state dict, got %T", obj)
	}

	// Checkpoint-Wrapper ohne Tensoren auf oberster Ebene
	for _, key := range nestedKeys {
		for _, e := range entries {
			if k, _ := e.key.(string); k == key {
				if _, isDict := pickleEntries(e.value); isDict && !hasTensor(entries) {
					slog.Debug("unwrapping nested state dict", "key", key)
					return stateDictFromPickle(e.value)
				}
			}
		}
	}

	sd := NewStateDict()
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			return nil, fmt.Errorf("state dict key %v is %T, not string", e.key, e.key)
		}

		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "name", name, "type", fmt.Sprintf("%T", e.value))
			continue
		}

		t, err := fromTorchTensor(name, pt)
		if err != nil {
			return nil, err
		}
		sd.Set(t)
	}

	if sd.Len() == 0 {
		return nil, fmt.Errorf("state dict contains no tensors")
	}
	return sd, nil
}

func hasTensor(entries []pickleEntry) bool {
	for _, e := range entries {
		if _, ok := e.value.(*pytorch.Tensor); ok {
			return true
		}
	}
	return false
}

func fromTorchTensor(name string, pt *pytorch.Tensor) (*Tensor, error) {
	shape := slices.Clone(pt.Size)

	var (
		dtype string
		data  []float32
		err   error
	)

	ident := func(v float32) float32 { return v }
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		dtype = DTypeF32
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, ident)
	case *pytorch.HalfStorage:
		dtype = DTypeF16
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, ident)
	case *pytorch.BFloat16Storage:
		dtype = DTypeBF16
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, ident)
	case *pytorch.DoubleStorage:
		dtype = DTypeF64
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, func(v float64) float32 { return float32(v) })
	case *pytorch.LongStorage:
		dtype = DTypeI64
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, func(v int64) float32 { return float32(v) })
	case *pytorch.IntStorage:
		dtype = DTypeI32
		data, err = gather(s.Data, shape, pt.Stride, pt.StorageOffset, func(v int32) float32 { return float32(v) })
	default:
		return nil, fmt.Errorf("tensor %s: unsupported storage %T", name, pt.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	return &Tensor{Name: name, DType: dtype, Shape: shape, Data: data}, nil
}
