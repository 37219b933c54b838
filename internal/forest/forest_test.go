package forest

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusteredData builds three well-separated gaussian-ish clusters.
func clusteredData(n int) (x [][]float64, y []int) {
	rng := rand.New(rand.NewPCG(1, 2))
	centers := [][]float64{{0, 0, 0}, {10, 10, 0}, {0, 10, 10}}
	for i := 0; i < n; i++ {
		c := i % len(centers)
		row := make([]float64, 3)
		for j := range row {
			row[j] = centers[c][j] + rng.Float64() - 0.5
		}
		x = append(x, row)
		y = append(y, c+1)
	}
	return x, y
}

func TestTrain_SeparableData(t *testing.T) {
	x, y := clusteredData(90)
	f, err := Train(context.Background(), x, y, Options{NumTrees: 25, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 25, f.NumTrees())

	for i, row := range x {
		assert.Equal(t, y[i], f.Predict(row), "row %d", i)
	}
}

func TestTrain_Deterministic(t *testing.T) {
	x, y := clusteredData(60)
	probe := [][]float64{{1, 1, 1}, {9, 9, 1}, {5, 5, 5}, {-2, 11, 9}}

	a, err := Train(context.Background(), x, y, Options{NumTrees: 15, Seed: 42})
	require.NoError(t, err)
	b, err := Train(context.Background(), x, y, Options{NumTrees: 15, Seed: 42})
	require.NoError(t, err)

	for _, p := range probe {
		assert.Equal(t, a.Predict(p), b.Predict(p))
	}
}

func TestTrain_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Train(ctx, nil, nil, Options{NumTrees: 5})
	assert.Error(t, err)

	_, err = Train(ctx, [][]float64{{1}}, []int{1, 2}, Options{NumTrees: 5})
	assert.Error(t, err)

	_, err = Train(ctx, [][]float64{{1}}, []int{1}, Options{NumTrees: 0})
	assert.Error(t, err)

	_, err = Train(ctx, [][]float64{{1, 2}, {1}}, []int{1, 2}, Options{NumTrees: 5})
	assert.Error(t, err)
}

func TestTrain_SingleClass(t *testing.T) {
	x := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	y := []int{7, 7, 7}
	f, err := Train(context.Background(), x, y, Options{NumTrees: 5, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, f.Predict([]float64{100, 100}))
}

func TestPredictBatch_MatchesPredict(t *testing.T) {
	x, y := clusteredData(60)
	f, err := Train(context.Background(), x, y, Options{NumTrees: 10, Seed: 3})
	require.NoError(t, err)

	got, err := f.PredictBatch(context.Background(), x)
	require.NoError(t, err)
	require.Len(t, got, len(x))
	for i, row := range x {
		assert.Equal(t, f.Predict(row), got[i], "row %d", i)
	}
}

func TestPredictBatch_Canceled(t *testing.T) {
	x, y := clusteredData(30)
	f, err := Train(context.Background(), x, y, Options{NumTrees: 5, Seed: 3})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.PredictBatch(ctx, x)
	assert.Error(t, err)
}
