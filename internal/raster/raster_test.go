package raster

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func testProduct(width, height int) GeoTIFFProduct {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = byte(i % 7)
	}
	return GeoTIFFProduct{
		Width:  width,
		Height: height,
		Data:   data,
		Transform: Affine{
			OriginX: 399960,
			OriginY: 6300040,
			PixelW:  10,
			PixelH:  10,
		},
		EPSG: 32633,
		Palette: [][3]uint8{
			{0, 0, 0}, {34, 139, 34}, {0, 0, 255}, {255, 0, 0},
			{255, 255, 0}, {0, 255, 255}, {128, 0, 128},
		},
		NoData: 0,
	}
}

func writeTestProduct(t *testing.T, p GeoTIFFProduct) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "product.tif")
	require.NoError(t, WriteGeoTIFF(path, p))
	return path
}

func TestAffine_Roundtrip(t *testing.T) {
	a := Affine{OriginX: 100, OriginY: 500, PixelW: 10, PixelH: 20}

	x, y := a.World(3, 2)
	assert.Equal(t, 130.0, x)
	assert.Equal(t, 460.0, y)

	col, row := a.Pixel(x, y)
	assert.InDelta(t, 3.0, col, 1e-12)
	assert.InDelta(t, 2.0, row, 1e-12)
}

func TestBounds_Ops(t *testing.T) {
	a := Bounds{Left: 0, Bottom: 0, Right: 10, Top: 10}
	b := Bounds{Left: 5, Bottom: 5, Right: 20, Top: 20}

	got := a.Intersect(b)
	assert.Equal(t, Bounds{Left: 5, Bottom: 5, Right: 10, Top: 10}, got)
	assert.False(t, got.Empty())

	assert.True(t, a.Contains(0, 10))
	assert.False(t, a.Contains(-1, 5))

	disjoint := a.Intersect(Bounds{Left: 11, Bottom: 11, Right: 12, Top: 12})
	assert.True(t, disjoint.Empty())
}

func TestWriteGeoTIFF_ReadBack(t *testing.T) {
	p := testProduct(33, 21)
	path := writeTestProduct(t, p)

	ds, err := OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	w, h := ds.Size()
	assert.Equal(t, 33, w)
	assert.Equal(t, 21, h)
	assert.Equal(t, 32633, ds.EPSG())
	assert.Equal(t, "EPSG:32633", ds.CRS())
	assert.Equal(t, p.Transform, ds.Transform())

	nodata, ok := ds.NoData()
	require.True(t, ok)
	assert.Equal(t, 0.0, nodata)

	b := ds.Bounds()
	assert.Equal(t, 399960.0, b.Left)
	assert.Equal(t, 6300040.0, b.Top)
	assert.Equal(t, 399960.0+330, b.Right)
	assert.Equal(t, 6300040.0-210, b.Bottom)
}

func TestWriteGeoTIFF_StdlibDecodes(t *testing.T) {
	p := testProduct(40, 25)
	path := writeTestProduct(t, p)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := tiff.Decode(f)
	require.NoError(t, err)

	pal, ok := img.(*image.Paletted)
	require.True(t, ok, "expected a paletted image, got %T", img)
	require.Equal(t, image.Rect(0, 0, 40, 25), pal.Bounds())
	for y := 0; y < 25; y++ {
		for x := 0; x < 40; x++ {
			require.Equal(t, p.Data[y*40+x], pal.ColorIndexAt(x, y), "pixel (%d,%d)", x, y)
		}
	}

	r, g, b, _ := pal.Palette[1].RGBA()
	assert.Equal(t, uint32(34*257), r)
	assert.Equal(t, uint32(139*257), g)
	assert.Equal(t, uint32(34*257), b)
}

func TestDataset_Sample(t *testing.T) {
	p := testProduct(16, 16)
	path := writeTestProduct(t, p)

	ds, err := OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	ctx := context.Background()

	// Center of pixel (3, 2).
	x, y := p.Transform.World(3.5, 2.5)
	v, ok, err := ds.Sample(ctx, x, y)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(p.Data[2*16+3]), v)

	// Outside the raster.
	_, ok, err = ds.Sample(ctx, p.Transform.OriginX-1, p.Transform.OriginY+1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataset_ReadWindowIdentity(t *testing.T) {
	p := testProduct(12, 9)
	path := writeTestProduct(t, p)

	ds, err := OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	got, err := ds.ReadWindow(context.Background(), Window{Col: 0, Row: 0, Width: 12, Height: 9}, 12, 9)
	require.NoError(t, err)
	require.Len(t, got, 12*9)
	for i, v := range got {
		assert.Equal(t, float64(p.Data[i]), v, "pixel %d", i)
	}
}

func TestDataset_ReadWindowDownsample(t *testing.T) {
	p := testProduct(4, 4)
	// Uniform quadrants so the bilinear average is exact.
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			var v byte
			if x >= 2 {
				v += 1
			}
			if y >= 2 {
				v += 2
			}
			p.Data[y*4+x] = v * 10
		}
	}
	path := writeTestProduct(t, p)

	ds, err := OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	got, err := ds.ReadWindow(context.Background(), Window{Col: 0, Row: 0, Width: 4, Height: 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 20, 30}, got)
}

func TestDataset_ReadWindowSubregion(t *testing.T) {
	p := testProduct(10, 10)
	path := writeTestProduct(t, p)

	ds, err := OpenFile(path)
	require.NoError(t, err)
	defer ds.Close()

	got, err := ds.ReadWindow(context.Background(), Window{Col: 4, Row: 3, Width: 3, Height: 2}, 3, 2)
	require.NoError(t, err)
	want := []float64{
		float64(p.Data[3*10+4]), float64(p.Data[3*10+5]), float64(p.Data[3*10+6]),
		float64(p.Data[4*10+4]), float64(p.Data[4*10+5]), float64(p.Data[4*10+6]),
	}
	assert.Equal(t, want, got)
}

func TestOpenFile_Rejects(t *testing.T) {
	dir := t.TempDir()

	junk := filepath.Join(dir, "junk.tif")
	require.NoError(t, os.WriteFile(junk, []byte("not a tiff at all"), 0o644))
	_, err := OpenFile(junk)
	assert.Error(t, err)

	bigtiff := filepath.Join(dir, "big.tif")
	require.NoError(t, os.WriteFile(bigtiff, []byte{'I', 'I', 43, 0, 8, 0, 0, 0}, 0o644))
	_, err = OpenFile(bigtiff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BigTIFF")
}

func TestWriteGeoTIFF_Validates(t *testing.T) {
	p := testProduct(4, 4)
	p.Data = p.Data[:3]
	err := WriteGeoTIFF(filepath.Join(t.TempDir(), "bad.tif"), p)
	assert.Error(t, err)
}
