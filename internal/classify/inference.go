package classify

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/feature"
	"github.com/terralab/landcover-cli/internal/proj"
	"github.com/terralab/landcover-cli/internal/raster"
	"github.com/terralab/landcover-cli/internal/stac"
)

// referenceBand anchors the output grid's geometry and supplies the validity
// mask: pixels with zero NIR reflectance are outside the scene footprint.
const referenceBand = "nir"

// Grid is a classified raster. Label zero marks nodata.
type Grid struct {
	Width     int
	Height    int
	Labels    []uint8
	Transform raster.Affine
	EPSG      int
}

// Bounds returns the grid extent in its CRS as [left, bottom, right, top].
func (g *Grid) Bounds() [4]float64 {
	right, bottom := g.Transform.World(float64(g.Width), float64(g.Height))
	return [4]float64{g.Transform.OriginX, bottom, right, g.Transform.OriginY}
}

// sceneWindow is the shared read geometry derived from the reference band:
// every band is resampled onto the same outW x outH grid over extent.
type sceneWindow struct {
	epsg       int
	extent     raster.Bounds
	out        raster.Affine
	outW, outH int
	nir        []float64
}

// ClassifyScene classifies the part of the scene covered by roi (a lon/lat
// bounding box), downsampled so neither output dimension exceeds maxDim.
// Each band source is opened for its single windowed read and closed before
// the next band is touched.
func ClassifyScene(ctx context.Context, open raster.Opener, bands stac.BandSet, m *Model, builder feature.Builder, roi *geom.Bounds, maxDim int) (*Grid, error) {
	refHref, ok := bands[referenceBand]
	if !ok {
		return nil, eris.Errorf("classify: scene has no %s band", referenceBand)
	}
	sw, err := readReference(ctx, open, refHref, roi, maxDim)
	if err != nil {
		return nil, err
	}

	bandPixels := make(map[string][]float64, len(bands))
	bandPixels[referenceBand] = sw.nir
	for band, href := range bands {
		if band == referenceBand {
			continue
		}
		if pixels, ok := readBandWindow(ctx, open, band, href, sw); ok {
			bandPixels[band] = pixels
		}
	}

	n := sw.outW * sw.outH
	rows, err := builder.Rows(bandPixels, n)
	if err != nil {
		return nil, err
	}

	validIdx := make([]int, 0, n)
	for i, v := range sw.nir {
		if v > 0 {
			validIdx = append(validIdx, i)
		}
	}
	validRows := make([][]float64, len(validIdx))
	for i, idx := range validIdx {
		m.Scaler.Apply(rows[idx])
		validRows[i] = rows[idx]
	}

	predicted, err := m.Forest.PredictBatch(ctx, validRows)
	if err != nil {
		return nil, err
	}

	labels := make([]uint8, n)
	for i, idx := range validIdx {
		labels[idx] = uint8(predicted[i])
	}
	zap.L().Info("scene classified",
		zap.Int("pixels", n),
		zap.Int("valid_pixels", len(validIdx)))

	return &Grid{
		Width:     sw.outW,
		Height:    sw.outH,
		Labels:    labels,
		Transform: sw.out,
		EPSG:      sw.epsg,
	}, nil
}

// readReference opens the reference band once, derives the shared window
// geometry, reads the band and closes the source again. Reference failures
// are fatal: without it there is no output grid and no validity mask.
func readReference(ctx context.Context, open raster.Opener, href string, roi *geom.Bounds, maxDim int) (*sceneWindow, error) {
	ref, err := open(ctx, href)
	if err != nil {
		return nil, eris.Wrap(err, "classify: open reference band")
	}
	defer ref.Close()

	tr, err := proj.NewTransformer(ref.EPSG())
	if err != nil {
		return nil, eris.Wrap(err, "classify: reference band CRS")
	}
	win, extent, err := roiWindow(ref, tr, roi)
	if err != nil {
		return nil, err
	}

	scale := math.Max(float64(win.Width)/float64(maxDim), float64(win.Height)/float64(maxDim))
	if scale < 1 {
		scale = 1
	}
	outW := max(int(math.Round(float64(win.Width)/scale)), 1)
	outH := max(int(math.Round(float64(win.Height)/scale)), 1)

	zap.L().Info("classifying scene window",
		zap.Int("window_width", win.Width), zap.Int("window_height", win.Height),
		zap.Int("out_width", outW), zap.Int("out_height", outH))

	nir, err := ref.ReadWindow(ctx, win, outW, outH)
	if err != nil {
		return nil, eris.Wrap(err, "classify: read reference band")
	}

	return &sceneWindow{
		epsg:   ref.EPSG(),
		extent: extent,
		out: raster.Affine{
			OriginX: extent.Left,
			OriginY: extent.Top,
			PixelW:  (extent.Right - extent.Left) / float64(outW),
			PixelH:  (extent.Top - extent.Bottom) / float64(outH),
		},
		outW: outW,
		outH: outH,
		nir:  nir,
	}, nil
}

// readBandWindow opens one band for its windowed read and closes it again.
// Bands that cannot contribute are skipped with a warning; their features
// fill with zeros.
func readBandWindow(ctx context.Context, open raster.Opener, band, href string, sw *sceneWindow) ([]float64, bool) {
	src, err := open(ctx, href)
	if err != nil {
		zap.L().Warn("opening band failed, skipping",
			zap.String("band", band), zap.Error(err))
		return nil, false
	}
	defer src.Close()

	if src.EPSG() != sw.epsg {
		zap.L().Warn("band CRS differs from reference band, skipping",
			zap.String("band", band),
			zap.Int("epsg", src.EPSG()), zap.Int("reference_epsg", sw.epsg))
		return nil, false
	}
	bwin, ok := bandWindow(src, sw.extent)
	if !ok {
		zap.L().Warn("band does not cover the classification window, skipping",
			zap.String("band", band))
		return nil, false
	}
	pixels, err := src.ReadWindow(ctx, bwin, sw.outW, sw.outH)
	if err != nil {
		zap.L().Warn("band read failed, skipping",
			zap.String("band", band), zap.Error(err))
		return nil, false
	}
	return pixels, true
}

// roiWindow projects the lon/lat ROI into the reference band's CRS, clips it
// to the scene and returns the pixel window plus its exact world extent.
func roiWindow(ref raster.Source, tr *proj.Transformer, roi *geom.Bounds) (raster.Window, raster.Bounds, error) {
	corners := [4][2]float64{
		{roi.Min(0), roi.Min(1)},
		{roi.Min(0), roi.Max(1)},
		{roi.Max(0), roi.Min(1)},
		{roi.Max(0), roi.Max(1)},
	}
	projected := raster.Bounds{
		Left: math.Inf(1), Bottom: math.Inf(1),
		Right: math.Inf(-1), Top: math.Inf(-1),
	}
	for _, c := range corners {
		x, y := tr.Forward(c[0], c[1])
		projected.Left = math.Min(projected.Left, x)
		projected.Right = math.Max(projected.Right, x)
		projected.Bottom = math.Min(projected.Bottom, y)
		projected.Top = math.Max(projected.Top, y)
	}

	inter := projected.Intersect(ref.Bounds())
	if inter.Empty() {
		return raster.Window{}, raster.Bounds{}, eris.New("classify: training area does not intersect the scene")
	}

	w, h := ref.Size()
	t := ref.Transform()
	c0f, r0f := t.Pixel(inter.Left, inter.Top)
	c1f, r1f := t.Pixel(inter.Right, inter.Bottom)
	c0 := max(int(math.Floor(c0f)), 0)
	r0 := max(int(math.Floor(r0f)), 0)
	c1 := min(int(math.Ceil(c1f)), w)
	r1 := min(int(math.Ceil(r1f)), h)
	if c1 <= c0 || r1 <= r0 {
		return raster.Window{}, raster.Bounds{}, eris.New("classify: training area does not intersect the scene")
	}

	left, top := t.World(float64(c0), float64(r0))
	right, bottom := t.World(float64(c1), float64(r1))
	win := raster.Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0}
	return win, raster.Bounds{Left: left, Bottom: bottom, Right: right, Top: top}, nil
}

// bandWindow maps the world extent onto a band's own pixel grid, which may
// have a different resolution than the reference band.
func bandWindow(src raster.Source, extent raster.Bounds) (raster.Window, bool) {
	w, h := src.Size()
	t := src.Transform()
	c0f, r0f := t.Pixel(extent.Left, extent.Top)
	c1f, r1f := t.Pixel(extent.Right, extent.Bottom)
	c0 := max(int(math.Round(c0f)), 0)
	r0 := max(int(math.Round(r0f)), 0)
	c1 := min(int(math.Round(c1f)), w)
	r1 := min(int(math.Round(r1f)), h)
	if c1 <= c0 || r1 <= r0 {
		return raster.Window{}, false
	}
	return raster.Window{Col: c0, Row: r0, Width: c1 - c0, Height: r1 - r0}, true
}
