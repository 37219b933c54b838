package raster

import (
	"encoding/binary"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
)

// GeoTIFFProduct describes a single-band paletted uint8 raster to be written
// as an LZW-compressed GeoTIFF.
type GeoTIFFProduct struct {
	Width  int
	Height int
	// Data is row-major, one byte per pixel.
	Data []byte

	Transform Affine
	EPSG      int

	// Palette holds up to 256 RGB entries; missing entries are black.
	Palette [][3]uint8
	NoData  uint8
}

type tagWriter struct {
	buf []byte
}

func (w *tagWriter) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *tagWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *tagWriter) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// entry appends one little-endian IFD entry with an inline or offset value.
func (w *tagWriter) entry(tag, typ uint16, count, value uint32) {
	w.u16(tag)
	w.u16(typ)
	w.u32(count)
	w.u32(value)
}

const (
	fieldShort  = 3
	fieldLong   = 4
	fieldASCII  = 2
	fieldDouble = 12
)

// WriteGeoTIFF writes the product to path as a classic little-endian GeoTIFF:
// one LZW-compressed strip, a 256-entry palette, GeoTIFF CRS keys and a
// GDAL-style nodata marker.
func WriteGeoTIFF(path string, p GeoTIFFProduct) error {
	if p.Width <= 0 || p.Height <= 0 {
		return eris.New("raster: product has no pixels")
	}
	if len(p.Data) != p.Width*p.Height {
		return eris.Errorf("raster: product data is %d bytes, want %d", len(p.Data), p.Width*p.Height)
	}
	if len(p.Palette) > 256 {
		return eris.Errorf("raster: palette has %d entries, max 256", len(p.Palette))
	}

	compressed := lzwEncode(p.Data)
	if len(compressed)%2 == 1 {
		compressed = append(compressed, 0)
	}

	const headerSize = 8
	dataOff := uint32(headerSize)
	colorMapOff := dataOff + uint32(len(compressed))
	pixelScaleOff := colorMapOff + 256*3*2
	tiepointOff := pixelScaleOff + 3*8
	geoKeysOff := tiepointOff + 6*8
	geoKeys := buildGeoKeys(p.EPSG)
	ifdOff := geoKeysOff + uint32(len(geoKeys)*2)

	nodata := strconv.Itoa(int(p.NoData))
	nodataBytes := append([]byte(nodata), 0)
	if len(nodataBytes) > 4 {
		return eris.New("raster: nodata marker too long")
	}
	var nodataInline uint32
	for i, b := range nodataBytes {
		nodataInline |= uint32(b) << (8 * i)
	}

	w := &tagWriter{buf: make([]byte, 0, int(ifdOff)+2+15*12+4)}

	// Header.
	w.buf = append(w.buf, 'I', 'I')
	w.u16(42)
	w.u32(ifdOff)

	w.buf = append(w.buf, compressed...)

	// ColorMap: red plane, green plane, blue plane, 16-bit entries.
	for plane := 0; plane < 3; plane++ {
		for i := 0; i < 256; i++ {
			var v uint8
			if i < len(p.Palette) {
				v = p.Palette[i][plane]
			}
			w.u16(uint16(v) * 257)
		}
	}

	w.f64(p.Transform.PixelW)
	w.f64(p.Transform.PixelH)
	w.f64(0)

	// Tiepoint: raster (0,0,0) maps to the transform origin.
	w.f64(0)
	w.f64(0)
	w.f64(0)
	w.f64(p.Transform.OriginX)
	w.f64(p.Transform.OriginY)
	w.f64(0)

	for _, k := range geoKeys {
		w.u16(k)
	}

	// IFD, tags ascending.
	w.u16(15)
	w.entry(tagImageWidth, fieldLong, 1, uint32(p.Width))
	w.entry(tagImageLength, fieldLong, 1, uint32(p.Height))
	w.entry(tagBitsPerSample, fieldShort, 1, 8)
	w.entry(tagCompression, fieldShort, 1, compressionLZW)
	w.entry(tagPhotometric, fieldShort, 1, 3) // palette color
	w.entry(tagStripOffsets, fieldLong, 1, dataOff)
	w.entry(tagSamplesPerPixel, fieldShort, 1, 1)
	w.entry(tagRowsPerStrip, fieldLong, 1, uint32(p.Height))
	w.entry(tagStripByteCounts, fieldLong, 1, uint32(len(compressed)))
	w.entry(tagPlanarConfig, fieldShort, 1, 1)
	w.entry(tagColorMap, fieldShort, 256*3, colorMapOff)
	w.entry(tagPixelScale, fieldDouble, 3, pixelScaleOff)
	w.entry(tagTiepoint, fieldDouble, 6, tiepointOff)
	w.entry(tagGeoKeys, fieldShort, uint32(len(geoKeys)), geoKeysOff)
	w.entry(tagGDALNoData, fieldASCII, uint32(len(nodataBytes)), nodataInline)
	w.u32(0) // no next IFD

	if err := os.WriteFile(path, w.buf, 0o644); err != nil {
		return eris.Wrapf(err, "raster: write %s", path)
	}
	return nil
}

// buildGeoKeys assembles the GeoKeyDirectory shorts for an EPSG code.
func buildGeoKeys(epsg int) []uint16 {
	keys := []uint16{1, 1, 0, 3}
	if epsg == 4326 {
		keys = append(keys,
			geoKeyModelType, 0, 1, geoModelGeographic,
			geoKeyRasterType, 0, 1, geoRasterPixelIsArea,
			geoKeyGeographicCS, 0, 1, uint16(epsg),
		)
	} else {
		keys = append(keys,
			geoKeyModelType, 0, 1, geoModelProjected,
			geoKeyRasterType, 0, 1, geoRasterPixelIsArea,
			geoKeyProjectedCS, 0, 1, uint16(epsg),
		)
	}
	return keys
}
