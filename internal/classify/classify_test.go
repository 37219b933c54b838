package classify

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/raster"
	"github.com/terralab/landcover-cli/internal/stac"
)

// fakeSource is an in-memory raster.Source.
type fakeSource struct {
	w, h      int
	epsg      int
	transform raster.Affine
	data      []float64
	sampleErr error
}

func (f *fakeSource) Size() (int, int)         { return f.w, f.h }
func (f *fakeSource) EPSG() int                { return f.epsg }
func (f *fakeSource) CRS() string              { return raster.CRSString(f.epsg) }
func (f *fakeSource) Transform() raster.Affine { return f.transform }
func (f *fakeSource) Close() error             { return nil }

func (f *fakeSource) Bounds() raster.Bounds {
	right, bottom := f.transform.World(float64(f.w), float64(f.h))
	return raster.Bounds{Left: f.transform.OriginX, Bottom: bottom, Right: right, Top: f.transform.OriginY}
}

func (f *fakeSource) Sample(_ context.Context, x, y float64) (float64, bool, error) {
	if f.sampleErr != nil {
		return 0, false, f.sampleErr
	}
	col, row := f.transform.Pixel(x, y)
	c, r := int(math.Floor(col)), int(math.Floor(row))
	if c < 0 || r < 0 || c >= f.w || r >= f.h {
		return 0, false, nil
	}
	return f.data[r*f.w+c], true, nil
}

func (f *fakeSource) ReadWindow(_ context.Context, win raster.Window, outW, outH int) ([]float64, error) {
	out := make([]float64, outW*outH)
	for j := 0; j < outH; j++ {
		srcY := float64(win.Row) + (float64(j)+0.5)*float64(win.Height)/float64(outH) - 0.5
		r := clampInt(int(math.Round(srcY)), 0, f.h-1)
		for i := 0; i < outW; i++ {
			srcX := float64(win.Col) + (float64(i)+0.5)*float64(win.Width)/float64(outW) - 0.5
			c := clampInt(int(math.Round(srcX)), 0, f.w-1)
			out[j*outW+i] = f.data[r*f.w+c]
		}
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// testScene builds a 20x20 EPSG:4326 scene covering lon 13.0-13.2 and
// lat 52.8-53.0. The west half is water-like, the east half forest-like, and
// the top-left corner has zero NIR (nodata).
func testScene() map[string]raster.Source {
	const size = 20
	transform := raster.Affine{OriginX: 13.0, OriginY: 53.0, PixelW: 0.01, PixelH: 0.01}

	build := func(west, east float64) *fakeSource {
		data := make([]float64, size*size)
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				if c < size/2 {
					data[r*size+c] = west
				} else {
					data[r*size+c] = east
				}
			}
		}
		return &fakeSource{w: size, h: size, epsg: 4326, transform: transform, data: data}
	}

	nir := build(100, 4000)
	// Nodata notch.
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			nir.data[r*size+c] = 0
		}
	}
	return map[string]raster.Source{
		"red":    build(300, 600),
		"green":  build(500, 700),
		"blue":   build(400, 300),
		"nir":    nir,
		"swir16": build(200, 1200),
		"swir22": build(150, 900),
	}
}

var testScenePoints = []model.TrainingPoint{
	{Lat: 52.95, Lon: 13.02, Label: 2, ClassName: "water"},
	{Lat: 52.90, Lon: 13.03, Label: 2, ClassName: "water"},
	{Lat: 52.85, Lon: 13.04, Label: 2, ClassName: "water"},
	{Lat: 52.95, Lon: 13.15, Label: 1, ClassName: "forest"},
	{Lat: 52.90, Lon: 13.16, Label: 1, ClassName: "forest"},
	{Lat: 52.85, Lon: 13.17, Label: 1, ClassName: "forest"},
}

type stubSearcher struct {
	item *stac.Item
}

func (s *stubSearcher) SearchPoint(context.Context, string, float64, float64) *stac.Item {
	return s.item
}

type stubResolver struct {
	bands stac.BandSet
	err   error
}

func (s *stubResolver) ResolveBands(context.Context, *stac.Item) (stac.BandSet, error) {
	return s.bands, s.err
}

func mapOpener(sources map[string]raster.Source) raster.Opener {
	return func(_ context.Context, ref string) (raster.Source, error) {
		src, ok := sources[ref]
		if !ok {
			return nil, eris.Errorf("no source for %s", ref)
		}
		return src, nil
	}
}

// sceneBands registers sources under mem:// refs and returns the band set
// plus an opener serving them.
func sceneBands(prefix string, sources map[string]raster.Source) (stac.BandSet, raster.Opener) {
	refs := map[string]raster.Source{}
	bands := stac.BandSet{}
	for name, src := range sources {
		ref := "mem://" + prefix + "/" + name
		refs[ref] = src
		bands[name] = ref
	}
	return bands, mapOpener(refs)
}

// countingOpener wraps an opener and tracks source lifetimes.
type countingOpener struct {
	inner   raster.Opener
	opens   int
	live    int
	maxLive int
}

func (c *countingOpener) open(ctx context.Context, ref string) (raster.Source, error) {
	src, err := c.inner(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.opens++
	c.live++
	if c.live > c.maxLive {
		c.maxLive = c.live
	}
	return &countedSource{Source: src, opener: c}, nil
}

type countedSource struct {
	raster.Source
	opener *countingOpener
	closed bool
}

func (c *countedSource) Close() error {
	if !c.closed {
		c.closed = true
		c.opener.live--
	}
	return c.Source.Close()
}
