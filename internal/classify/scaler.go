package classify

import (
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature vectors to zero mean and unit variance using
// the statistics of the training rows. It is fitted once at training time
// and reapplied verbatim at inference.
type Scaler struct {
	mean  []float64
	scale []float64
}

// FitScaler computes per-feature mean and population standard deviation.
// Constant features get a scale of one so they pass through unchanged.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	features := len(rows[0])
	s := &Scaler{
		mean:  make([]float64, features),
		scale: make([]float64, features),
	}

	col := make([]float64, len(rows))
	for f := 0; f < features; f++ {
		for i, row := range rows {
			col[i] = row[f]
		}
		s.mean[f] = stat.Mean(col, nil)
		sd := stat.PopStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		s.scale[f] = sd
	}
	return s
}

// Apply standardizes one vector in place.
func (s *Scaler) Apply(row []float64) {
	for f := range row {
		row[f] = (row[f] - s.mean[f]) / s.scale[f]
	}
}

// Transform returns standardized copies of rows, leaving the input intact.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	flat := make([]float64, 0, len(rows)*len(s.mean))
	for i, row := range rows {
		flat = append(flat, row...)
		scaled := flat[len(flat)-len(row):]
		s.Apply(scaled)
		out[i] = scaled
	}
	return out
}
