// Package forest implements a random forest classifier: bagged CART trees
// with per-split feature subsampling and majority voting.
package forest

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Options controls training.
type Options struct {
	// NumTrees is the ensemble size.
	NumTrees int
	// Seed makes training deterministic; each tree derives its own stream
	// from it.
	Seed uint64
	// MaxFeatures is the number of features considered per split. Zero means
	// ceil(sqrt(total features)).
	MaxFeatures int
}

// Forest is a trained ensemble.
type Forest struct {
	trees    []*tree
	features int
}

// Train fits a forest on x (rows of features) and y (labels). Rows are
// bootstrap-sampled per tree and trees grow in parallel.
func Train(ctx context.Context, x [][]float64, y []int, opts Options) (*Forest, error) {
	if len(x) == 0 {
		return nil, eris.New("forest: no training rows")
	}
	if len(x) != len(y) {
		return nil, eris.Errorf("forest: %d rows but %d labels", len(x), len(y))
	}
	if opts.NumTrees <= 0 {
		return nil, eris.Errorf("forest: invalid tree count %d", opts.NumTrees)
	}
	features := len(x[0])
	for i, row := range x {
		if len(row) != features {
			return nil, eris.Errorf("forest: row %d has %d features, want %d", i, len(row), features)
		}
	}

	mtry := opts.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Ceil(math.Sqrt(float64(features))))
	}
	if mtry > features {
		mtry = features
	}

	f := &Forest{trees: make([]*tree, opts.NumTrees), features: features}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < opts.NumTrees; i++ {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(i)))
			idx := make([]int, len(x))
			for j := range idx {
				idx[j] = rng.IntN(len(x))
			}
			f.trees[i] = buildTree(x, y, idx, mtry, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "forest: training canceled")
	}
	return f, nil
}

// NumTrees returns the ensemble size.
func (f *Forest) NumTrees() int { return len(f.trees) }

// Predict returns the majority-vote label for one feature vector. Ties go to
// the smallest label.
func (f *Forest) Predict(x []float64) int {
	votes := map[int]int{}
	for _, t := range f.trees {
		votes[t.predict(x)]++
	}
	best, bestVotes := 0, -1
	for label, v := range votes {
		if v > bestVotes || (v == bestVotes && label < best) {
			best, bestVotes = label, v
		}
	}
	return best
}

// PredictBatch classifies every row, spreading the work across CPUs.
func (f *Forest) PredictBatch(ctx context.Context, x [][]float64) ([]int, error) {
	out := make([]int, len(x))
	if len(x) == 0 {
		return out, nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(x) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(x); start += chunk {
		end := start + chunk
		if end > len(x) {
			end = len(x)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%4096 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}
				out[i] = f.Predict(x[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "forest: prediction canceled")
	}
	return out, nil
}
