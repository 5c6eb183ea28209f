// MODUL: stats
// ZWECK: Kennzahlen pro Tensor fuer die Inspektion von Gewichten
// INPUT: StateDict
// OUTPUT: Summary je Tensor (Mean, Std, Min, Max)
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: gonum.org/v1/gonum (extern)
// HINWEISE: Wird von "visionprep show" genutzt

package weights

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary fasst einen Tensor zusammen
type Summary struct {
	Name  string
	DType string
	Shape []int
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

// Summarize berechnet Kennzahlen fuer einen Tensor
func Summarize(t *Tensor) Summary {
	s := Summary{Name: t.Name, DType: t.DType, Shape: t.Shape, Count: len(t.Data)}
	if len(t.Data) == 0 {
		s.Min, s.Max = math.NaN(), math.NaN()
		s.Mean, s.Std = math.NaN(), math.NaN()
		return s
	}

	f64s := make([]float64, len(t.Data))
	for i, v := range t.Data {
		f64s[i] = float64(v)
	}

	s.Min, s.Max = floats.Min(f64s), floats.Max(f64s)
	if len(f64s) == 1 {
		s.Mean = f64s[0]
		return s
	}

	s.Mean, s.Std = stat.PopMeanStdDev(f64s, nil)
	return s
}

// SummarizeAll berechnet Kennzahlen fuer alle Tensoren in Datei-Reihenfolge
func SummarizeAll(sd *StateDict) []Summary {
	out := make([]Summary, 0, sd.Len())
	for _, t := range sd.Tensors() {
		out = append(out, Summarize(t))
	}
	return out
}
