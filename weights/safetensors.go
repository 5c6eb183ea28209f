// MODUL: safetensors
// ZWECK: safetensors-Dateien lesen und schreiben
// INPUT: Pfad bzw. StateDict
// OUTPUT: StateDict bzw. safetensors-Bytes
// NEBENEFFEKTE: Dateisystem-Zugriffe
// ABHAENGIGKEITEN: github.com/x448/float16, github.com/d4l3k/go-bfloat16 (extern)
// HINWEISE: Format: u64 LE Header-Laenge, JSON-Header, Rohdaten

package weights

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/7blacky7/visionprep/vision"
)

// maxHeaderSize begrenzt den JSON-Header (wie die Referenz-Implementierung)
const maxHeaderSize = 100 << 20

type safetensorsEntry struct {
	DType   string   `json:"dtype"`
	Shape   []int    `json:"shape"`
	Offsets [2]int64 `json:"data_offsets"`
}

// LoadSafetensors laedt eine safetensors-Datei
func LoadSafetensors(path string) (*StateDict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: err}
	}
	defer f.Close()

	sd, err := ReadSafetensors(f)
	if err != nil {
		return nil, &vision.ModelLoadError{Path: path, Err: err}
	}

	slog.Debug("loaded safetensors", "path", path, "tensors", sd.Len(), "params", sd.NumParams())
	return sd, nil
}

// ReadSafetensors dekodiert safetensors aus einem Reader
func ReadSafetensors(r io.ReaderAt) (*StateDict, error) {
	var n uint64
	if err := binary.Read(io.NewSectionReader(r, 0, 8), binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read header size: %w", err)
	}
	if n == 0 || n > maxHeaderSize {
		return nil, fmt.Errorf("invalid header size %d", n)
	}

	header := make([]byte, n)
	if _, err := r.ReadAt(header, 8); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	type named struct {
		name string
		safetensorsEntry
	}

	var entries []named
	for name, msg := range raw {
		if name == "__metadata__" {
			continue
		}

		var e safetensorsEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		entries = append(entries, named{name, e})
	}

	// Datei-Reihenfolge = Reihenfolge der Offsets
	slices.SortFunc(entries, func(a, b named) int {
		return cmp.Or(cmp.Compare(a.Offsets[0], b.Offsets[0]), cmp.Compare(a.name, b.name))
	})

	base := int64(8 + n)
	sd := NewStateDict()
	for _, e := range entries {
		size := e.Offsets[1] - e.Offsets[0]
		if size < 0 {
			return nil, fmt.Errorf("tensor %s: invalid offsets %v", e.name, e.Offsets)
		}

		buf := make([]byte, size)
		if _, err := r.ReadAt(buf, base+e.Offsets[0]); err != nil {
			return nil, fmt.Errorf("tensor %s: read data: %w", e.name, err)
		}

		t := &Tensor{Name: e.name, DType: e.DType, Shape: e.Shape}
		data, err := decode(e.DType, buf)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", e.name, err)
		}
		if len(data) != t.NumElements() {
			return nil, fmt.Errorf("tensor %s: shape %v needs %d values, got %d", e.name, e.Shape, t.NumElements(), len(data))
		}
		t.Data = data
		sd.Set(t)
	}

	if sd.Len() == 0 {
		return nil, fmt.Errorf("no tensors")
	}
	return sd, nil
}

func elementSize(dtype string) (int, error) {
	switch dtype {
	case DTypeF32, DTypeI32:
		return 4, nil
	case DTypeF16, DTypeBF16:
		return 2, nil
	case DTypeF64, DTypeI64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decode(dtype string, buf []byte) ([]float32, error) {
	size, err := elementSize(dtype)
	if err != nil {
		return nil, err
	}
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%d bytes is not a multiple of %s size %d", len(buf), dtype, size)
	}

	if dtype == DTypeBF16 {
		return bfloat16.DecodeFloat32(buf), nil
	}

	out := make([]float32, len(buf)/size)
	for i := range out {
		b := buf[i*size : (i+1)*size]
		switch dtype {
		case DTypeF32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case DTypeF16:
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(b)).Float32()
		case DTypeF64:
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case DTypeI64:
			out[i] = float32(int64(binary.LittleEndian.Uint64(b)))
		case DTypeI32:
			out[i] = float32(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	return out, nil
}

func encode(dtype string, data []float32) ([]byte, error) {
	switch dtype {
	case DTypeBF16:
		return bfloat16.EncodeFloat32(data), nil
	case DTypeF32, DTypeF16:
	default:
		return nil, fmt.Errorf("cannot encode dtype %q", dtype)
	}

	var buf bytes.Buffer
	for _, v := range data {
		if dtype == DTypeF16 {
			binary.Write(&buf, binary.LittleEndian, float16.Fromfloat32(v).Bits())
		} else {
			binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
		}
	}
	return buf.Bytes(), nil
}

// WriteSafetensors schreibt ein StateDict im angegebenen Datentyp
// (F32, F16 oder BF16). Leerer dtype behaelt F32.
func WriteSafetensors(w io.Writer, sd *StateDict, dtype string) error {
	if dtype == "" {
		dtype = DTypeF32
	}

	header := make(map[string]any, sd.Len()+1)
	header["__metadata__"] = map[string]string{"format": "pt"}

	var payload [][]byte
	var offset int64
	for _, t := range sd.Tensors() {
		b, err := encode(dtype, t.Data)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}

		header[t.Name] = safetensorsEntry{
			DType:   dtype,
			Shape:   t.Shape,
			Offsets: [2]int64{offset, offset + int64(len(b))},
		}
		payload = append(payload, b)
		offset += int64(len(b))
	}

	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}

	// Header auf 8 Bytes auffuellen
	if pad := len(hb) % 8; pad != 0 {
		hb = append(hb, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(hb))); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	for _, b := range payload {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// SaveSafetensors schreibt ein StateDict in eine Datei
func SaveSafetensors(path string, sd *StateDict, dtype string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteSafetensors(f, sd, dtype); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
