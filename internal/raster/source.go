// Package raster reads cloud-optimized GeoTIFFs over HTTP or from disk and
// writes single-band classified GeoTIFF products. Reads are windowed and may
// be served from overview levels; no dataset is cached across operations.
package raster

import (
	"context"
	"fmt"
	"math"
)

// Affine maps pixel coordinates to world coordinates for north-up rasters.
// PixelW and PixelH are both positive; Y decreases by PixelH per row.
type Affine struct {
	OriginX float64
	OriginY float64
	PixelW  float64
	PixelH  float64
}

// World returns the world coordinate of the top-left corner of pixel (col, row).
func (a Affine) World(col, row float64) (x, y float64) {
	return a.OriginX + col*a.PixelW, a.OriginY - row*a.PixelH
}

// Pixel returns the fractional pixel location containing world point (x, y).
func (a Affine) Pixel(x, y float64) (col, row float64) {
	return (x - a.OriginX) / a.PixelW, (a.OriginY - y) / a.PixelH
}

// Bounds is a spatial extent in a raster's coordinate system.
type Bounds struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

// Contains reports whether the point lies within the bounds (inclusive).
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.Left && x <= b.Right && y >= b.Bottom && y <= b.Top
}

// Intersect returns the intersection of two bounds.
func (b Bounds) Intersect(o Bounds) Bounds {
	return Bounds{
		Left:   math.Max(b.Left, o.Left),
		Bottom: math.Max(b.Bottom, o.Bottom),
		Right:  math.Min(b.Right, o.Right),
		Top:    math.Min(b.Top, o.Top),
	}
}

// Empty reports whether the bounds enclose no area.
func (b Bounds) Empty() bool {
	return b.Right <= b.Left || b.Top <= b.Bottom
}

// Window is a rectangular pixel region at a raster's full resolution.
type Window struct {
	Col    int
	Row    int
	Width  int
	Height int
}

// Source is a read-only raster band. Implemented by Dataset; tests substitute
// in-memory fakes.
type Source interface {
	// Size returns the full-resolution dimensions.
	Size() (width, height int)
	// EPSG returns the coordinate system code.
	EPSG() int
	// CRS returns the coordinate system identifier, e.g. "EPSG:32633".
	CRS() string
	// Transform returns the full-resolution geotransform.
	Transform() Affine
	// Bounds returns the spatial extent in the raster's CRS.
	Bounds() Bounds
	// Sample reads the single pixel containing (x, y). ok is false when the
	// point falls outside the raster.
	Sample(ctx context.Context, x, y float64) (value float64, ok bool, err error)
	// ReadWindow reads the window resampled to outW x outH using bilinear
	// interpolation, preferring the overview level closest above the
	// requested resolution. The result is row-major, one float per pixel.
	ReadWindow(ctx context.Context, win Window, outW, outH int) ([]float64, error)
	Close() error
}

// Opener opens a raster band by URL or path. The pipeline injects an HTTP
// opener; tests inject fakes.
type Opener func(ctx context.Context, ref string) (Source, error)

// CRSString formats an EPSG code the way downstream tooling expects it.
func CRSString(epsg int) string {
	return fmt.Sprintf("EPSG:%d", epsg)
}
