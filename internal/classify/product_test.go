package classify

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/terralab/landcover-cli/internal/raster"
)

func testGrid() *Grid {
	return &Grid{
		Width:  4,
		Height: 3,
		Labels: []uint8{
			0, 1, 1, 2,
			0, 1, 2, 2,
			0, 5, 5, 1,
		},
		Transform: raster.Affine{OriginX: 500000, OriginY: 6000000, PixelW: 20, PixelH: 20},
		EPSG:      32633,
	}
}

func TestClassesPresent(t *testing.T) {
	assert.Equal(t, []int{1, 2, 5}, ClassesPresent(testGrid()))
	assert.Empty(t, ClassesPresent(&Grid{Width: 2, Height: 1, Labels: []uint8{0, 0}}))
}

func TestWriteProduct_ReadBack(t *testing.T) {
	g := testGrid()
	path := filepath.Join(t.TempDir(), "cover.tif")
	require.NoError(t, WriteProduct(path, g))

	ds, err := raster.OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	w, h := ds.Size()
	assert.Equal(t, g.Width, w)
	assert.Equal(t, g.Height, h)
	assert.Equal(t, g.EPSG, ds.EPSG())
	assert.Equal(t, g.Transform, ds.Transform())

	nodata, ok := ds.NoData()
	require.True(t, ok)
	assert.Equal(t, 0.0, nodata)
}

func TestWriteProduct_ColorTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.tif")
	require.NoError(t, WriteProduct(path, testGrid()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := tiff.Decode(f)
	require.NoError(t, err)
	pal, ok := img.(*image.Paletted)
	require.True(t, ok, "expected a paletted image, got %T", img)

	want := [][3]uint32{1: {230, 25, 75}, 2: {60, 180, 75}, 10: {250, 190, 212}}
	for idx, rgb := range want {
		if rgb == [3]uint32{} {
			continue
		}
		r, g, b, _ := pal.Palette[idx].RGBA()
		assert.Equal(t, rgb[0]*257, r, "class %d red", idx)
		assert.Equal(t, rgb[1]*257, g, "class %d green", idx)
		assert.Equal(t, rgb[2]*257, b, "class %d blue", idx)
	}
	r, g, b, _ := pal.Palette[0].RGBA()
	assert.Zero(t, r+g+b)
}

func TestBuildResult(t *testing.T) {
	g := testGrid()
	m := &Model{Accuracy: 0.95, Samples: 40, Classes: []int{1, 2, 5, 9}}
	names := map[int]string{1: "forest", 2: "water", 5: "urban", 9: "class_9"}

	res := BuildResult("/tmp/cover.tif", g, m, names)

	assert.True(t, res.Success)
	assert.Equal(t, "/tmp/cover.tif", res.OutputPath)
	assert.Equal(t, 4, res.Width)
	assert.Equal(t, 3, res.Height)
	assert.Equal(t, 0.95, res.TrainingAccuracy)
	assert.Equal(t, 40, res.TrainingSamples)
	assert.Equal(t, []int{1, 2, 5}, res.ClassesInOutput)
	assert.Equal(t, []int{1, 2, 5, 9}, res.ClassesSampled)
	assert.Equal(t, map[string]string{"1": "forest", "2": "water", "5": "urban", "9": "class_9"}, res.ClassNames)
	assert.Equal(t, "EPSG:32633", res.CRS)
	assert.Equal(t, [4]float64{500000, 6000000 - 60, 500000 + 80, 6000000}, res.Bounds)
}
