package classify

import (
	"sort"
	"strconv"

	"github.com/terralab/landcover-cli/internal/model"
	"github.com/terralab/landcover-cli/internal/raster"
)

// productPalette is the fixed color table for classes 1 through 10; index 0
// is the nodata black. Labels are user-defined, so the colors carry no
// land-cover meaning. Labels beyond the palette render black but keep their
// value in the band.
var productPalette = [][3]uint8{
	{0, 0, 0},
	{230, 25, 75},
	{60, 180, 75},
	{255, 225, 25},
	{67, 99, 216},
	{245, 130, 49},
	{145, 30, 180},
	{66, 212, 244},
	{240, 50, 230},
	{191, 239, 69},
	{250, 190, 212},
}

// WriteProduct writes the classified grid to path as a paletted GeoTIFF.
func WriteProduct(path string, g *Grid) error {
	return raster.WriteGeoTIFF(path, raster.GeoTIFFProduct{
		Width:     g.Width,
		Height:    g.Height,
		Data:      g.Labels,
		Transform: g.Transform,
		EPSG:      g.EPSG,
		Palette:   productPalette,
		NoData:    0,
	})
}

// ClassesPresent lists the distinct non-zero labels in the grid, ascending.
func ClassesPresent(g *Grid) []int {
	var seen [256]bool
	for _, l := range g.Labels {
		seen[l] = true
	}
	var out []int
	for l := 1; l < 256; l++ {
		if seen[l] {
			out = append(out, l)
		}
	}
	return out
}

// BuildResult assembles the run summary from the written product.
func BuildResult(outputPath string, g *Grid, m *Model, names map[int]string) *model.Result {
	classNames := make(map[string]string, len(names))
	for label, name := range names {
		classNames[strconv.Itoa(label)] = name
	}
	classes := ClassesPresent(g)
	sort.Ints(classes)

	return &model.Result{
		Success:          true,
		OutputPath:       outputPath,
		Width:            g.Width,
		Height:           g.Height,
		TrainingAccuracy: m.Accuracy,
		TrainingSamples:  m.Samples,
		ClassesInOutput:  classes,
		ClassesSampled:   m.Classes,
		ClassNames:       classNames,
		CRS:              raster.CRSString(g.EPSG),
		Bounds:           g.Bounds(),
	}
}
