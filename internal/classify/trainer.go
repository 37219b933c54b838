package classify

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/forest"
)

// trainSeed fixes the forest's random streams so identical inputs yield
// identical products.
const trainSeed = 42

// Model is a fitted classifier plus the preprocessing it was fitted with.
type Model struct {
	Forest *forest.Forest
	Scaler *Scaler

	// Accuracy is measured on the training rows themselves.
	Accuracy float64
	Samples  int
	// Classes holds the distinct labels seen in training, ascending.
	Classes []int
}

// TrainModel standardizes the rows and fits a random forest. Fewer than
// minSamples rows or minClasses distinct labels is an InsufficientDataError.
func TrainModel(ctx context.Context, rows [][]float64, labels []int, numTrees int) (*Model, error) {
	classes := distinctLabels(labels)
	if len(rows) < minSamples || len(classes) < minClasses {
		return nil, &InsufficientDataError{Samples: len(rows), Classes: len(classes)}
	}

	scaler := FitScaler(rows)
	scaled := scaler.Transform(rows)

	f, err := forest.Train(ctx, scaled, labels, forest.Options{
		NumTrees: numTrees,
		Seed:     trainSeed,
	})
	if err != nil {
		return nil, err
	}

	predicted, err := f.PredictBatch(ctx, scaled)
	if err != nil {
		return nil, err
	}
	correct := 0
	for i, p := range predicted {
		if p == labels[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(labels))

	zap.L().Info("model trained",
		zap.Int("samples", len(rows)),
		zap.Int("classes", len(classes)),
		zap.Int("trees", numTrees),
		zap.Float64("training_accuracy", accuracy))

	return &Model{
		Forest:   f,
		Scaler:   scaler,
		Accuracy: accuracy,
		Samples:  len(rows),
		Classes:  classes,
	}, nil
}

func distinctLabels(labels []int) []int {
	seen := make(map[int]struct{}, len(labels))
	var out []int
	for _, l := range labels {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
