// Package feature assembles per-pixel spectral feature vectors from Sentinel-2
// surface reflectance bands, optionally extended with derived indices.
package feature

import (
	"github.com/rotisserie/eris"
)

// BandOrder is the canonical band layout of every feature vector. Missing
// bands contribute zeros so vector shape never varies within a run.
var BandOrder = []string{"red", "green", "blue", "nir", "swir16", "swir22"}

// Epsilon keeps index denominators away from zero.
const Epsilon = 1e-10

// Index positions within BandOrder.
const (
	idxRed = iota
	idxGreen
	idxBlue
	idxNIR
	idxSWIR16
	idxSWIR22
)

// NDVI is the normalized difference vegetation index.
func NDVI(nir, red float64) float64 {
	return (nir - red) / (nir + red + Epsilon)
}

// NDWI is the normalized difference water index (McFeeters).
func NDWI(green, nir float64) float64 {
	return (green - nir) / (green + nir + Epsilon)
}

// NDBI is the normalized difference built-up index.
func NDBI(swir16, nir float64) float64 {
	return (swir16 - nir) / (swir16 + nir + Epsilon)
}

// EVI is the enhanced vegetation index with the canopy adjustment scaled for
// reflectance stored as 0-10000 integers.
func EVI(nir, red, blue float64) float64 {
	return 2.5 * (nir - red) / (nir + 6*red - 7.5*blue + 10000 + Epsilon)
}

// Builder turns named band values into fixed-shape feature vectors.
type Builder struct {
	includeIndices bool
}

// NewBuilder returns a builder. With includeIndices the four derived indices
// are appended after the raw bands.
func NewBuilder(includeIndices bool) Builder {
	return Builder{includeIndices: includeIndices}
}

// Size returns the feature vector length.
func (b Builder) Size() int {
	if b.includeIndices {
		return len(BandOrder) + 4
	}
	return len(BandOrder)
}

// Names returns the feature names in vector order.
func (b Builder) Names() []string {
	names := make([]string, 0, b.Size())
	names = append(names, BandOrder...)
	if b.includeIndices {
		names = append(names, "ndvi", "ndwi", "ndbi", "evi")
	}
	return names
}

// Vector builds one feature vector from named band values. Bands absent from
// the map contribute zero.
func (b Builder) Vector(bands map[string]float64) []float64 {
	v := make([]float64, b.Size())
	for i, name := range BandOrder {
		v[i] = bands[name]
	}
	b.fillIndices(v)
	return v
}

// Rows builds n feature vectors from per-band pixel slices. Every present
// band slice must have length n; absent bands contribute zeros.
func (b Builder) Rows(bands map[string][]float64, n int) ([][]float64, error) {
	for name, vals := range bands {
		if len(vals) != n {
			return nil, eris.Errorf("feature: band %s has %d pixels, want %d", name, len(vals), n)
		}
	}
	rows := make([][]float64, n)
	flat := make([]float64, n*b.Size())
	for p := 0; p < n; p++ {
		v := flat[p*b.Size() : (p+1)*b.Size()]
		for i, name := range BandOrder {
			if vals, ok := bands[name]; ok {
				v[i] = vals[p]
			}
		}
		b.fillIndices(v)
		rows[p] = v
	}
	return rows, nil
}

func (b Builder) fillIndices(v []float64) {
	if !b.includeIndices {
		return
	}
	n := len(BandOrder)
	v[n] = NDVI(v[idxNIR], v[idxRed])
	v[n+1] = NDWI(v[idxGreen], v[idxNIR])
	v[n+2] = NDBI(v[idxSWIR16], v[idxNIR])
	v[n+3] = EVI(v[idxNIR], v[idxRed], v[idxBlue])
}
