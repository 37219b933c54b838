package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/terralab/landcover-cli/internal/feature"
	"github.com/terralab/landcover-cli/internal/raster"
	"github.com/terralab/landcover-cli/internal/stac"
)

func trainTestModel(t *testing.T, bands stac.BandSet, open raster.Opener, builder feature.Builder) *Model {
	t.Helper()
	s := &Sampler{Open: open}
	rows, labels := s.SamplePoints(context.Background(), bands, builder, testScenePoints)
	m, err := TrainModel(context.Background(), rows, labels, 15)
	require.NoError(t, err)
	return m
}

func sceneROI() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	b.Set(12.9, 52.7, 13.3, 53.1)
	return b
}

func TestClassifyScene(t *testing.T) {
	bands, open := sceneBands("scene", testScene())
	builder := feature.NewBuilder(true)
	m := trainTestModel(t, bands, open, builder)

	grid, err := ClassifyScene(context.Background(), open, bands, m, builder, sceneROI(), 10)
	require.NoError(t, err)

	assert.Equal(t, 10, grid.Width)
	assert.Equal(t, 10, grid.Height)
	assert.Equal(t, 4326, grid.EPSG)
	b := grid.Bounds()
	assert.InDelta(t, 13.0, b[0], 1e-9)
	assert.InDelta(t, 52.8, b[1], 1e-9)
	assert.InDelta(t, 13.2, b[2], 1e-9)
	assert.InDelta(t, 53.0, b[3], 1e-9)

	// Nodata notch stays 0; west half is water (2), east half forest (1).
	assert.Equal(t, uint8(0), grid.Labels[0])
	assert.Equal(t, uint8(2), grid.Labels[9*10+2])
	assert.Equal(t, uint8(1), grid.Labels[9*10+8])

	classes := ClassesPresent(grid)
	assert.Equal(t, []int{1, 2}, classes)
}

func TestClassifyScene_ScopedSourceLifetimes(t *testing.T) {
	bands, open := sceneBands("scene", testScene())
	builder := feature.NewBuilder(true)
	m := trainTestModel(t, bands, open, builder)

	counter := &countingOpener{inner: open}
	grid, err := ClassifyScene(context.Background(), counter.open, bands, m, builder, sceneROI(), 10)
	require.NoError(t, err)
	require.NotNil(t, grid)

	// One open per band, each closed before the next band's read.
	assert.Equal(t, len(bands), counter.opens)
	assert.Equal(t, 1, counter.maxLive)
	assert.Zero(t, counter.live)
}

func TestClassifyScene_ROIClipsWindow(t *testing.T) {
	bands, open := sceneBands("scene", testScene())
	builder := feature.NewBuilder(false)
	m := trainTestModel(t, bands, open, builder)

	// Only the eastern quarter of the scene.
	roi := geom.NewBounds(geom.XY)
	roi.Set(13.15, 52.8, 13.2, 53.0)

	grid, err := ClassifyScene(context.Background(), open, bands, m, builder, roi, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, grid.Width)
	assert.Equal(t, 20, grid.Height)
	for _, l := range grid.Labels {
		assert.Equal(t, uint8(1), l)
	}
}

func TestClassifyScene_NoIntersection(t *testing.T) {
	bands, open := sceneBands("scene", testScene())
	builder := feature.NewBuilder(false)
	m := trainTestModel(t, bands, open, builder)

	roi := geom.NewBounds(geom.XY)
	roi.Set(100, 10, 101, 11)

	_, err := ClassifyScene(context.Background(), open, bands, m, builder, roi, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not intersect")
}

func TestClassifyScene_MissingReferenceBand(t *testing.T) {
	bands, open := sceneBands("scene", testScene())
	builder := feature.NewBuilder(false)
	m := trainTestModel(t, bands, open, builder)
	delete(bands, "nir")

	_, err := ClassifyScene(context.Background(), open, bands, m, builder, sceneROI(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nir")
}

func TestClassifyScene_SkipsMismatchedCRS(t *testing.T) {
	sources := testScene()
	bands, open := sceneBands("scene", sources)
	builder := feature.NewBuilder(true)
	m := trainTestModel(t, bands, open, builder)

	// A band in another CRS contributes zeros instead of breaking the run.
	sources["swir22"].(*fakeSource).epsg = 32631

	grid, err := ClassifyScene(context.Background(), open, bands, m, builder, sceneROI(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, grid.Width)
}
