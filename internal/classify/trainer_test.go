package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableRows() ([][]float64, []int) {
	var rows [][]float64
	var labels []int
	for i := 0; i < 10; i++ {
		rows = append(rows, []float64{float64(i), 100})
		labels = append(labels, 1)
		rows = append(rows, []float64{float64(i) + 1000, 900})
		labels = append(labels, 2)
	}
	return rows, labels
}

func TestTrainModel(t *testing.T) {
	rows, labels := separableRows()
	m, err := TrainModel(context.Background(), rows, labels, 20)
	require.NoError(t, err)

	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 20, m.Samples)
	assert.Equal(t, []int{1, 2}, m.Classes)
	assert.Equal(t, 20, m.Forest.NumTrees())
}

func TestTrainModel_InsufficientData(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		rows   [][]float64
		labels []int
	}{
		{"too few samples", [][]float64{{1}, {2}}, []int{1, 2}},
		{"single class", [][]float64{{1}, {2}, {3}}, []int{1, 1, 1}},
		{"no samples", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := TrainModel(ctx, tc.rows, tc.labels, 5)
			require.Error(t, err)

			var ide *InsufficientDataError
			require.True(t, errors.As(err, &ide))
			assert.Equal(t, len(tc.rows), ide.Samples)
		})
	}
}

func TestTrainModel_Deterministic(t *testing.T) {
	rows, labels := separableRows()
	sample := []float64{500, 500}

	a, err := TrainModel(context.Background(), rows, labels, 10)
	require.NoError(t, err)
	b, err := TrainModel(context.Background(), rows, labels, 10)
	require.NoError(t, err)

	pa, pb := append([]float64(nil), sample...), append([]float64(nil), sample...)
	a.Scaler.Apply(pa)
	b.Scaler.Apply(pb)
	assert.Equal(t, a.Forest.Predict(pa), b.Forest.Predict(pb))
}
