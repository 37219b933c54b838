package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
)

const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

// blockCache keys decoded blocks by (level index, block index). It lives for
// the duration of a single ReadWindow or Sample call.
type blockCache map[[2]int][]byte

// readBlock fetches and decodes one tile or strip of a level.
func (d *Dataset) readBlock(lv *level, levelIdx, block int, cache blockCache) ([]byte, error) {
	key := [2]int{levelIdx, block}
	if data, ok := cache[key]; ok {
		return data, nil
	}

	raw := make([]byte, lv.byteCounts[block])
	if _, err := d.r.ReadAt(raw, int64(lv.offsets[block])); err != nil {
		return nil, eris.Wrapf(err, "raster: read block %d", block)
	}

	rows := lv.blockH
	if !lv.tiled {
		// The last strip may be short.
		if remain := lv.height - block*lv.blockH; remain < rows {
			rows = remain
		}
	}
	expect := lv.blockW * rows * int(lv.bits) / 8

	var data []byte
	switch lv.compression {
	case compressionNone:
		data = raw
	case compressionLZW:
		var err error
		if data, err = lzwDecode(raw, expect); err != nil {
			return nil, err
		}
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, eris.Wrap(err, "raster: open deflate block")
		}
		data, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, eris.Wrap(err, "raster: inflate block")
		}
	}
	if len(data) < expect {
		return nil, eris.Errorf("raster: block %d decoded to %d bytes, want %d", block, len(data), expect)
	}

	if lv.predictor == predictorHorizontal {
		undoHorizontalPredictor(data, lv.blockW, rows, int(lv.bits)/8, d.order == binary.BigEndian)
	}
	cache[key] = data
	return data, nil
}

// undoHorizontalPredictor reverses per-row horizontal differencing in place.
func undoHorizontalPredictor(data []byte, width, rows, size int, bigEndian bool) {
	for r := 0; r < rows; r++ {
		row := data[r*width*size:]
		switch size {
		case 1:
			for c := 1; c < width; c++ {
				row[c] += row[c-1]
			}
		case 2:
			for c := 1; c < width; c++ {
				var prev, cur uint16
				if bigEndian {
					prev = uint16(row[(c-1)*2])<<8 | uint16(row[(c-1)*2+1])
					cur = uint16(row[c*2])<<8 | uint16(row[c*2+1])
					cur += prev
					row[c*2] = byte(cur >> 8)
					row[c*2+1] = byte(cur)
				} else {
					prev = uint16(row[(c-1)*2]) | uint16(row[(c-1)*2+1])<<8
					cur = uint16(row[c*2]) | uint16(row[c*2+1])<<8
					cur += prev
					row[c*2] = byte(cur)
					row[c*2+1] = byte(cur >> 8)
				}
			}
		default:
			// Horizontal differencing on wider samples is byte-wise per the
			// TIFF spec extension GDAL applies; treat each byte lane
			// independently.
			for c := size; c < width*size; c++ {
				row[c] += row[c-size]
			}
		}
	}
}

// pixelValue decodes one sample from a decoded block.
func (d *Dataset) pixelValue(lv *level, data []byte, x, y int) float64 {
	off := (y*lv.blockW + x) * int(lv.bits) / 8
	switch lv.bits {
	case 8:
		if lv.format == sampleFormatInt {
			return float64(int8(data[off]))
		}
		return float64(data[off])
	case 16:
		v := d.order.Uint16(data[off:])
		if lv.format == sampleFormatInt {
			return float64(int16(v))
		}
		return float64(v)
	case 32:
		v := d.order.Uint32(data[off:])
		switch lv.format {
		case sampleFormatFloat:
			return float64(math.Float32frombits(v))
		case sampleFormatInt:
			return float64(int32(v))
		default:
			return float64(v)
		}
	case 64:
		v := d.order.Uint64(data[off:])
		switch lv.format {
		case sampleFormatFloat:
			return math.Float64frombits(v)
		case sampleFormatInt:
			return float64(int64(v))
		default:
			return float64(v)
		}
	}
	return 0
}

// pixelAt reads one pixel from a level, clamping coordinates to its extent.
func (d *Dataset) pixelAt(lv *level, levelIdx, x, y int, cache blockCache) (float64, error) {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= lv.width {
		x = lv.width - 1
	}
	if y >= lv.height {
		y = lv.height - 1
	}
	block := (y/lv.blockH)*lv.blocksAcross() + x/lv.blockW
	data, err := d.readBlock(lv, levelIdx, block, cache)
	if err != nil {
		return 0, err
	}
	return d.pixelValue(lv, data, x%lv.blockW, y%lv.blockH), nil
}

// Sample reads the full-resolution pixel containing world point (x, y).
func (d *Dataset) Sample(ctx context.Context, x, y float64) (float64, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, false, err
	}
	colF, rowF := d.transform.Pixel(x, y)
	col, row := int(math.Floor(colF)), int(math.Floor(rowF))
	lv := d.levels[0]
	if col < 0 || row < 0 || col >= lv.width || row >= lv.height {
		return 0, false, nil
	}
	v, err := d.pixelAt(lv, 0, col, row, make(blockCache))
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// selectLevel picks the coarsest overview that still resolves the requested
// output, returning its index and downscale factor.
func (d *Dataset) selectLevel(win Window, outW, outH int) (int, float64) {
	need := math.Min(float64(win.Width)/float64(outW), float64(win.Height)/float64(outH))
	best, bestFactor := 0, 1.0
	for i, lv := range d.levels[1:] {
		factor := float64(d.levels[0].width) / float64(lv.width)
		if factor <= need && factor > bestFactor {
			best, bestFactor = i+1, factor
		}
	}
	return best, bestFactor
}

// ReadWindow reads a full-resolution window resampled to outW x outH with
// bilinear interpolation.
func (d *Dataset) ReadWindow(ctx context.Context, win Window, outW, outH int) ([]float64, error) {
	if win.Width <= 0 || win.Height <= 0 || outW <= 0 || outH <= 0 {
		return nil, eris.New("raster: empty read window")
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	levelIdx, factor := d.selectLevel(win, outW, outH)
	lv := d.levels[levelIdx]
	cache := make(blockCache)

	// Window coordinates at the chosen level.
	col0 := float64(win.Col) / factor
	row0 := float64(win.Row) / factor
	spanW := float64(win.Width) / factor
	spanH := float64(win.Height) / factor

	out := make([]float64, outW*outH)
	for j := 0; j < outH; j++ {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		srcY := row0 + (float64(j)+0.5)*spanH/float64(outH) - 0.5
		y0 := int(math.Floor(srcY))
		fy := srcY - float64(y0)
		for i := 0; i < outW; i++ {
			srcX := col0 + (float64(i)+0.5)*spanW/float64(outW) - 0.5
			x0 := int(math.Floor(srcX))
			fx := srcX - float64(x0)

			v00, err := d.pixelAt(lv, levelIdx, x0, y0, cache)
			if err != nil {
				return nil, err
			}
			v10, err := d.pixelAt(lv, levelIdx, x0+1, y0, cache)
			if err != nil {
				return nil, err
			}
			v01, err := d.pixelAt(lv, levelIdx, x0, y0+1, cache)
			if err != nil {
				return nil, err
			}
			v11, err := d.pixelAt(lv, levelIdx, x0+1, y0+1, cache)
			if err != nil {
				return nil, err
			}

			top := v00*(1-fx) + v10*fx
			bot := v01*(1-fx) + v11*fx
			out[j*outW+i] = top*(1-fy) + bot*fy
		}
	}
	return out, nil
}
