// Package classify runs the land-cover classification pipeline: sample
// training points from a satellite scene, fit a random forest, classify the
// scene around the training area and write a paletted GeoTIFF product.
package classify

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/config"
	"github.com/terralab/landcover-cli/internal/feature"
	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/raster"
	"github.com/terralab/landcover-cli/internal/stac"
)

// ItemFetcher retrieves a STAC item by URL. Satisfied by stac.Client.
type ItemFetcher interface {
	FetchItem(ctx context.Context, url string) (*stac.Item, error)
}

// Pipeline executes classification jobs end to end.
type Pipeline struct {
	defaults model.JobDefaults
	open     raster.Opener
	fetcher  ItemFetcher
	searcher SceneSearcher
	resolver BandResolver
}

// New wires a pipeline from configuration: HTTP raster access, the configured
// STAC catalog and asset signing.
func New(cfg *config.Config) *Pipeline {
	client := stac.NewClient(cfg.Catalog)
	return &Pipeline{
		defaults: model.JobDefaults{
			Collection:    cfg.Classify.Collection,
			NumTrees:      cfg.Classify.NumTrees,
			ROIPaddingDeg: cfg.Classify.ROIPaddingDeg,
			MaxDimension:  cfg.Classify.MaxDimension,
		},
		open: raster.NewHTTPOpener(
			time.Duration(cfg.Raster.TimeoutSecs)*time.Second,
			float64(cfg.Raster.RatePerHost)),
		fetcher:  client,
		searcher: client,
		resolver: stac.NewResolver(stac.NewSigner(cfg.Signing)),
	}
}

// Run executes one job and returns its result summary.
func (p *Pipeline) Run(ctx context.Context, job model.Job) (*model.Result, error) {
	job.Normalize(p.defaults)
	if err := job.Validate(); err != nil {
		return nil, err
	}
	builder := feature.NewBuilder(job.Indices())

	zap.L().Info("starting classification run",
		zap.String("item_url", job.STACItemURL),
		zap.String("output", job.OutputPath),
		zap.Int("points", len(job.TrainingData)),
		zap.Int("trees", job.NumTrees),
		zap.Bool("indices", job.Indices()))

	item, err := p.fetcher.FetchItem(ctx, job.STACItemURL)
	if err != nil {
		return nil, err
	}
	bands, err := p.resolver.ResolveBands(ctx, item)
	if err != nil {
		return nil, err
	}
	zap.L().Info("scene bands resolved",
		zap.String("item", item.ID),
		zap.Strings("bands", bands.Names()))

	sampler := &Sampler{
		Open:       p.open,
		Searcher:   p.searcher,
		Resolver:   p.resolver,
		Collection: job.Collection,
	}
	rows, labels := sampler.SamplePoints(ctx, bands, builder, job.TrainingData)

	m, err := TrainModel(ctx, rows, labels, job.NumTrees)
	if err != nil {
		return nil, err
	}

	grid, err := ClassifyScene(ctx, p.open, bands, m, builder, trainingROI(job), job.MaxDimension)
	if err != nil {
		return nil, err
	}

	if err := WriteProduct(job.OutputPath, grid); err != nil {
		return nil, err
	}
	result := BuildResult(job.OutputPath, grid, m, model.ClassNames(job.TrainingData))

	zap.L().Info("classification run complete",
		zap.String("output", job.OutputPath),
		zap.Int("width", grid.Width), zap.Int("height", grid.Height),
		zap.Float64("training_accuracy", m.Accuracy),
		zap.Ints("classes_in_output", result.ClassesInOutput))
	return result, nil
}

// trainingROI is the lon/lat bounding box of the training points padded on
// every side.
func trainingROI(job model.Job) *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, p := range job.TrainingData {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}))
	}
	pad := job.ROIPaddingDeg
	b.Set(b.Min(0)-pad, b.Min(1)-pad, b.Max(0)+pad, b.Max(1)+pad)
	return b
}
