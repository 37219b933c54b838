package classify

import (
	"context"

	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/feature"
	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/proj"
	"github.com/terralab/landcover-cli/internal/raster"
	"github.com/terralab/landcover-cli/internal/resilience"
	"github.com/terralab/landcover-cli/internal/stac"
)

// SceneSearcher finds a fallback scene covering a point. Satisfied by
// stac.Client.
type SceneSearcher interface {
	SearchPoint(ctx context.Context, collection string, lon, lat float64) *stac.Item
}

// BandResolver maps an item's assets onto the canonical band set. Satisfied
// by stac.Resolver.
type BandResolver interface {
	ResolveBands(ctx context.Context, item *stac.Item) (stac.BandSet, error)
}

// Sampler extracts per-point band values from the primary scene, falling back
// to a catalog search for points the scene does not cover. Band sources are
// opened per read and closed again; no handle survives a sample.
type Sampler struct {
	Open       raster.Opener
	Searcher   SceneSearcher
	Resolver   BandResolver
	Collection string
}

// SamplePoints samples every training point and builds feature rows. Points
// that cannot reach stac.MinBands valid band values, even after fallback, are
// skipped with a warning.
func (s *Sampler) SamplePoints(ctx context.Context, bands stac.BandSet, builder feature.Builder, pts []model.TrainingPoint) (rows [][]float64, labels []int) {
	transformers := make(map[int]*proj.Transformer)

	for i, p := range pts {
		values, n := s.sampleBands(ctx, transformers, bands, p)

		if n < stac.MinBands && s.Searcher != nil {
			if fbValues, fbN, ok := s.sampleFallback(ctx, transformers, p); ok && fbN > n {
				values, n = fbValues, fbN
			}
		}
		if n < stac.MinBands {
			zap.L().Warn("skipping training point: not enough band coverage",
				zap.Int("point", i),
				zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon),
				zap.Int("bands", n))
			continue
		}
		rows = append(rows, builder.Vector(values))
		labels = append(labels, p.Label)
	}

	zap.L().Info("training points sampled",
		zap.Int("requested", len(pts)),
		zap.Int("sampled", len(rows)))
	return rows, labels
}

// sampleBands reads one value per band for the point, returning the value map
// and how many bands produced one.
func (s *Sampler) sampleBands(ctx context.Context, transformers map[int]*proj.Transformer, bands stac.BandSet, p model.TrainingPoint) (map[string]float64, int) {
	values := make(map[string]float64, len(bands))
	for band, href := range bands {
		if v, ok := s.sampleBand(ctx, transformers, band, href, p); ok {
			values[band] = v
		}
	}
	return values, len(values)
}

// sampleBand opens the band source for one pixel read and closes it again.
func (s *Sampler) sampleBand(ctx context.Context, transformers map[int]*proj.Transformer, band, href string, p model.TrainingPoint) (float64, bool) {
	src, err := s.Open(ctx, href)
	if err != nil {
		zap.L().Warn("opening band failed",
			zap.String("band", band),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err))
		return 0, false
	}
	defer src.Close()

	tr, ok := transformers[src.EPSG()]
	if !ok {
		var terr error
		tr, terr = proj.NewTransformer(src.EPSG())
		if terr != nil {
			zap.L().Warn("band has an unsupported CRS",
				zap.String("band", band), zap.Int("epsg", src.EPSG()))
			return 0, false
		}
		transformers[src.EPSG()] = tr
	}

	x, y := tr.Forward(p.Lon, p.Lat)
	if !src.Bounds().Contains(x, y) {
		return 0, false
	}
	v, ok, err := src.Sample(ctx, x, y)
	if err != nil {
		zap.L().Warn("band sample failed",
			zap.String("band", band),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err))
		return 0, false
	}
	return v, ok
}

// sampleFallback searches the catalog for an alternate scene covering the
// point and samples it.
func (s *Sampler) sampleFallback(ctx context.Context, transformers map[int]*proj.Transformer, p model.TrainingPoint) (map[string]float64, int, bool) {
	item := s.Searcher.SearchPoint(ctx, s.Collection, p.Lon, p.Lat)
	if item == nil {
		return nil, 0, false
	}
	bands, err := s.Resolver.ResolveBands(ctx, item)
	if err != nil {
		zap.L().Warn("fallback scene unusable",
			zap.String("item", item.ID), zap.Error(err))
		return nil, 0, false
	}

	fields := []zap.Field{
		zap.String("item", item.ID),
		zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon),
	}
	if cover, ok := item.CloudCover(); ok {
		fields = append(fields, zap.Float64("cloud_cover", cover))
	}
	if acquired, ok := item.Datetime(); ok {
		fields = append(fields, zap.String("datetime", acquired))
	}
	zap.L().Info("sampling fallback scene", fields...)

	values, n := s.sampleBands(ctx, transformers, bands, p)
	return values, n, true
}
