package raster

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TIFF tags used by this reader.
const (
	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagColorMap        = 320
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagPixelScale      = 33550
	tagTiepoint        = 33922
	tagGeoKeys         = 34735
	tagGDALNoData      = 42113
)

const (
	compressionNone    = 1
	compressionLZW     = 5
	compressionDeflate = 8
	// Old-style deflate code written by some producers.
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	subfileReducedImage = 0x1
)

// GeoTIFF keys.
const (
	geoKeyModelType      = 1024
	geoKeyRasterType     = 1025
	geoKeyGeographicCS   = 2048
	geoKeyProjectedCS    = 3072
	geoModelProjected    = 1
	geoModelGeographic   = 2
	geoRasterPixelIsArea = 1
)

// ifdEntry is one 12-byte classic-TIFF directory entry.
type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	raw   [4]byte
}

type ifd map[uint16]ifdEntry

// level is one image in the IFD chain: the full-resolution band or one of its
// overviews.
type level struct {
	width       int
	height      int
	compression uint16
	predictor   uint16
	bits        uint16
	format      uint16

	tiled      bool
	blockW     int
	blockH     int
	offsets    []uint64
	byteCounts []uint64
}

func (l *level) blocksAcross() int { return (l.width + l.blockW - 1) / l.blockW }
func (l *level) blocksDown() int   { return (l.height + l.blockH - 1) / l.blockH }

// Dataset is a single-band GeoTIFF opened for windowed reads. Overview levels
// are used transparently by ReadWindow.
type Dataset struct {
	r     io.ReaderAt
	order binary.ByteOrder

	levels    []*level
	epsg      int
	transform Affine
	nodata    float64
	hasNoData bool

	closer io.Closer
}

// OpenReader parses the TIFF structure from r. closer, if non-nil, is invoked
// by Close.
func OpenReader(r io.ReaderAt, closer io.Closer) (*Dataset, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, eris.Wrap(err, "raster: read TIFF header")
	}

	var order binary.ByteOrder
	switch {
	case hdr[0] == 'I' && hdr[1] == 'I':
		order = binary.LittleEndian
	case hdr[0] == 'M' && hdr[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, eris.New("raster: not a TIFF file")
	}
	switch order.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		return nil, eris.New("raster: BigTIFF is not supported")
	default:
		return nil, eris.New("raster: not a TIFF file")
	}

	ds := &Dataset{r: r, order: order, epsg: 0, closer: closer}

	offset := int64(order.Uint32(hdr[4:8]))
	first := true
	for offset != 0 {
		dir, next, err := ds.readIFD(offset)
		if err != nil {
			return nil, err
		}
		lv, reduced, err := ds.parseLevel(dir)
		if err != nil {
			return nil, err
		}
		if lv != nil {
			if first && !reduced {
				if err := ds.parseGeo(dir); err != nil {
					return nil, err
				}
				ds.levels = append(ds.levels, lv)
				first = false
			} else if !first && reduced {
				ds.levels = append(ds.levels, lv)
			}
		}
		offset = next
	}
	if len(ds.levels) == 0 {
		return nil, eris.New("raster: no usable image directory")
	}
	if ds.epsg == 0 {
		return nil, eris.New("raster: missing or unsupported GeoTIFF CRS keys")
	}
	return ds, nil
}

func (d *Dataset) readIFD(offset int64) (ifd, int64, error) {
	var cntBuf [2]byte
	if _, err := d.r.ReadAt(cntBuf[:], offset); err != nil {
		return nil, 0, eris.Wrap(err, "raster: read IFD entry count")
	}
	count := int(d.order.Uint16(cntBuf[:]))

	buf := make([]byte, count*12+4)
	if _, err := d.r.ReadAt(buf, offset+2); err != nil {
		return nil, 0, eris.Wrap(err, "raster: read IFD entries")
	}

	dir := make(ifd, count)
	for i := 0; i < count; i++ {
		e := ifdEntry{
			tag:   d.order.Uint16(buf[i*12:]),
			typ:   d.order.Uint16(buf[i*12+2:]),
			count: d.order.Uint32(buf[i*12+4:]),
		}
		copy(e.raw[:], buf[i*12+8:i*12+12])
		dir[e.tag] = e
	}
	next := int64(d.order.Uint32(buf[count*12:]))
	return dir, next, nil
}

func typeSize(typ uint16) int {
	switch typ {
	case 1, 2, 6, 7: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	case 3, 8: // SHORT, SSHORT
		return 2
	case 4, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default:
		return 0
	}
}

// entryBytes returns the raw value bytes for an entry, following the value
// offset when the payload does not fit inline.
func (d *Dataset) entryBytes(e ifdEntry) ([]byte, error) {
	size := typeSize(e.typ)
	if size == 0 {
		return nil, eris.Errorf("raster: tag %d has unknown field type %d", e.tag, e.typ)
	}
	total := size * int(e.count)
	if total <= 4 {
		return e.raw[:total], nil
	}
	buf := make([]byte, total)
	if _, err := d.r.ReadAt(buf, int64(d.order.Uint32(e.raw[:]))); err != nil {
		return nil, eris.Wrapf(err, "raster: read value of tag %d", e.tag)
	}
	return buf, nil
}

func (d *Dataset) entryInts(e ifdEntry) ([]uint64, error) {
	buf, err := d.entryBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case 1:
			out[i] = uint64(buf[i])
		case 3:
			out[i] = uint64(d.order.Uint16(buf[i*2:]))
		case 4:
			out[i] = uint64(d.order.Uint32(buf[i*4:]))
		default:
			return nil, eris.Errorf("raster: tag %d has non-integer type %d", e.tag, e.typ)
		}
	}
	return out, nil
}

func (d *Dataset) entryDoubles(e ifdEntry) ([]float64, error) {
	if e.typ != 12 {
		return nil, eris.Errorf("raster: tag %d expected DOUBLE, got type %d", e.tag, e.typ)
	}
	buf, err := d.entryBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(buf[i*8:]))
	}
	return out, nil
}

func (d *Dataset) tagInt(dir ifd, tag uint16, def uint64) (uint64, error) {
	e, ok := dir[tag]
	if !ok {
		return def, nil
	}
	vals, err := d.entryInts(e)
	if err != nil || len(vals) == 0 {
		return def, err
	}
	return vals[0], nil
}

// parseLevel extracts block layout from one IFD. A nil level with nil error
// means the directory holds an image this reader does not handle (for example
// a multi-sample preview).
func (d *Dataset) parseLevel(dir ifd) (*level, bool, error) {
	subfile, err := d.tagInt(dir, tagNewSubfileType, 0)
	if err != nil {
		return nil, false, err
	}
	reduced := subfile&subfileReducedImage != 0

	samples, err := d.tagInt(dir, tagSamplesPerPixel, 1)
	if err != nil {
		return nil, false, err
	}
	if samples != 1 {
		if reduced {
			return nil, reduced, nil
		}
		return nil, false, eris.Errorf("raster: expected a single-band image, got %d samples per pixel", samples)
	}
	planar, err := d.tagInt(dir, tagPlanarConfig, 1)
	if err != nil {
		return nil, false, err
	}
	if planar != 1 {
		return nil, false, eris.New("raster: planar configuration 2 is not supported")
	}

	lv := &level{}
	w, err := d.tagInt(dir, tagImageWidth, 0)
	if err != nil {
		return nil, false, err
	}
	h, err := d.tagInt(dir, tagImageLength, 0)
	if err != nil {
		return nil, false, err
	}
	lv.width, lv.height = int(w), int(h)
	if lv.width <= 0 || lv.height <= 0 {
		return nil, false, eris.New("raster: image directory missing dimensions")
	}

	bits, err := d.tagInt(dir, tagBitsPerSample, 1)
	if err != nil {
		return nil, false, err
	}
	lv.bits = uint16(bits)
	switch lv.bits {
	case 8, 16, 32, 64:
	default:
		return nil, false, eris.Errorf("raster: unsupported bit depth %d", lv.bits)
	}

	format, err := d.tagInt(dir, tagSampleFormat, 1)
	if err != nil {
		return nil, false, err
	}
	lv.format = uint16(format)

	comp, err := d.tagInt(dir, tagCompression, compressionNone)
	if err != nil {
		return nil, false, err
	}
	lv.compression = uint16(comp)
	switch lv.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, false, eris.Errorf("raster: unsupported compression %d", lv.compression)
	}

	pred, err := d.tagInt(dir, tagPredictor, predictorNone)
	if err != nil {
		return nil, false, err
	}
	lv.predictor = uint16(pred)
	if lv.predictor != predictorNone && lv.predictor != predictorHorizontal {
		return nil, false, eris.Errorf("raster: unsupported predictor %d", lv.predictor)
	}

	if e, ok := dir[tagTileOffsets]; ok {
		lv.tiled = true
		tw, err := d.tagInt(dir, tagTileWidth, 0)
		if err != nil {
			return nil, false, err
		}
		th, err := d.tagInt(dir, tagTileLength, 0)
		if err != nil {
			return nil, false, err
		}
		lv.blockW, lv.blockH = int(tw), int(th)
		if lv.offsets, err = d.entryInts(e); err != nil {
			return nil, false, err
		}
		if lv.byteCounts, err = d.entryInts(dir[tagTileByteCounts]); err != nil {
			return nil, false, err
		}
	} else if e, ok := dir[tagStripOffsets]; ok {
		rows, err := d.tagInt(dir, tagRowsPerStrip, uint64(lv.height))
		if err != nil {
			return nil, false, err
		}
		lv.blockW = lv.width
		lv.blockH = int(rows)
		if lv.offsets, err = d.entryInts(e); err != nil {
			return nil, false, err
		}
		if lv.byteCounts, err = d.entryInts(dir[tagStripByteCounts]); err != nil {
			return nil, false, err
		}
	} else {
		return nil, false, eris.New("raster: image directory has neither tiles nor strips")
	}

	want := lv.blocksAcross() * lv.blocksDown()
	if len(lv.offsets) < want || len(lv.byteCounts) < want {
		return nil, false, eris.Errorf("raster: block index truncated: have %d of %d blocks", len(lv.offsets), want)
	}
	return lv, reduced, nil
}

// parseGeo extracts the geotransform, CRS and nodata from the full-resolution
// directory.
func (d *Dataset) parseGeo(dir ifd) error {
	scaleEntry, ok := dir[tagPixelScale]
	if !ok {
		return eris.New("raster: missing ModelPixelScale tag")
	}
	scale, err := d.entryDoubles(scaleEntry)
	if err != nil {
		return err
	}
	tieEntry, ok := dir[tagTiepoint]
	if !ok {
		return eris.New("raster: missing ModelTiepoint tag")
	}
	tie, err := d.entryDoubles(tieEntry)
	if err != nil {
		return err
	}
	if len(scale) < 2 || len(tie) < 6 {
		return eris.New("raster: malformed georeferencing tags")
	}
	// Tiepoint (i, j) -> (x, y) plus the pixel scale give the origin.
	d.transform = Affine{
		OriginX: tie[3] - tie[0]*scale[0],
		OriginY: tie[4] + tie[1]*scale[1],
		PixelW:  scale[0],
		PixelH:  scale[1],
	}
	if d.transform.PixelW <= 0 || d.transform.PixelH <= 0 {
		return eris.New("raster: non-positive pixel scale")
	}

	keysEntry, ok := dir[tagGeoKeys]
	if !ok {
		return eris.New("raster: missing GeoKeyDirectory tag")
	}
	keys, err := d.entryInts(keysEntry)
	if err != nil {
		return err
	}
	if len(keys) < 4 {
		return eris.New("raster: malformed GeoKeyDirectory")
	}
	modelType := 0
	for i := 4; i+3 < len(keys); i += 4 {
		keyID, location, count, value := keys[i], keys[i+1], keys[i+2], keys[i+3]
		if location != 0 || count != 1 {
			continue
		}
		switch keyID {
		case geoKeyModelType:
			modelType = int(value)
		case geoKeyProjectedCS:
			d.epsg = int(value)
		case geoKeyGeographicCS:
			if d.epsg == 0 {
				d.epsg = int(value)
			}
		}
	}
	if modelType == geoModelGeographic && d.epsg == 0 {
		d.epsg = 4326
	}

	if e, ok := dir[tagGDALNoData]; ok {
		buf, err := d.entryBytes(e)
		if err != nil {
			return err
		}
		s := strings.TrimRight(string(buf), "\x00")
		s = strings.TrimSpace(s)
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			d.nodata = v
			d.hasNoData = true
		}
	}
	return nil
}

// Size returns the full-resolution dimensions.
func (d *Dataset) Size() (int, int) {
	return d.levels[0].width, d.levels[0].height
}

// EPSG returns the dataset CRS code.
func (d *Dataset) EPSG() int { return d.epsg }

// CRS returns the dataset CRS identifier.
func (d *Dataset) CRS() string { return CRSString(d.epsg) }

// Transform returns the full-resolution geotransform.
func (d *Dataset) Transform() Affine { return d.transform }

// Bounds returns the dataset extent in its CRS.
func (d *Dataset) Bounds() Bounds {
	w, h := d.Size()
	left, top := d.transform.World(0, 0)
	right, bottom := d.transform.World(float64(w), float64(h))
	return Bounds{Left: left, Bottom: bottom, Right: right, Top: top}
}

// NoData returns the declared nodata value, if any.
func (d *Dataset) NoData() (float64, bool) { return d.nodata, d.hasNoData }

// Close releases the underlying reader.
func (d *Dataset) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

var _ Source = (*Dataset)(nil)

// context assertion helper shared by read paths.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "raster: read canceled")
	default:
		return nil
	}
}
