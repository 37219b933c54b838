package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitScaler(t *testing.T) {
	rows := [][]float64{
		{1, 10, 5},
		{3, 10, 5},
	}
	s := FitScaler(rows)

	assert.Equal(t, []float64{2, 10, 5}, s.mean)
	// Population std of {1,3} is 1; constant columns fall back to 1.
	assert.Equal(t, []float64{1, 1, 1}, s.scale)
}

func TestScaler_Transform(t *testing.T) {
	rows := [][]float64{
		{0, 100},
		{10, 200},
		{20, 300},
	}
	s := FitScaler(rows)
	scaled := s.Transform(rows)

	// Input untouched.
	assert.Equal(t, []float64{0, 100}, rows[0])

	for f := 0; f < 2; f++ {
		sum := 0.0
		for _, r := range scaled {
			sum += r[f]
		}
		assert.InDelta(t, 0, sum, 1e-9, "feature %d mean", f)
	}
	assert.InDelta(t, -1.224744871, scaled[0][0], 1e-6)
	assert.InDelta(t, 1.224744871, scaled[2][1], 1e-6)
}

func TestScaler_ApplyMatchesTraining(t *testing.T) {
	rows := [][]float64{{2, 4}, {6, 8}}
	s := FitScaler(rows)

	row := []float64{2, 4}
	s.Apply(row)
	scaled := s.Transform(rows)
	require.Equal(t, scaled[0], row)
}
