package raster

import (
	"github.com/rotisserie/eris"
)

// TIFF-variant LZW: MSB-first bit packing with the code width increasing one
// code earlier than in the classic (GIF) variant.
const (
	lzwClearCode = 256
	lzwEOICode   = 257
	lzwFirstCode = 258
	lzwTableSize = 4096
	lzwMaxWidth  = 12
	// Encoder emits a clear code once this entry would be assigned.
	lzwResetAt = 4094
)

type bitWriter struct {
	out []byte
	acc uint32
	n   uint
}

func (w *bitWriter) write(code uint16, width uint) {
	w.acc = w.acc<<width | uint32(code)
	w.n += width
	for w.n >= 8 {
		w.n -= 8
		w.out = append(w.out, byte(w.acc>>w.n))
	}
}

func (w *bitWriter) flush() []byte {
	if w.n > 0 {
		w.out = append(w.out, byte(w.acc<<(8-w.n)))
		w.n = 0
	}
	return w.out
}

type bitReader struct {
	data []byte
	pos  int
	acc  uint32
	n    uint
}

func (r *bitReader) read(width uint) (int, bool) {
	for r.n < width {
		if r.pos >= len(r.data) {
			return 0, false
		}
		r.acc = r.acc<<8 | uint32(r.data[r.pos])
		r.pos++
		r.n += 8
	}
	r.n -= width
	return int(r.acc>>r.n) & (1<<width - 1), true
}

// lzwEncode compresses src with TIFF LZW.
func lzwEncode(src []byte) []byte {
	var bw bitWriter
	table := make(map[uint32]uint16, lzwTableSize)
	next := uint16(lzwFirstCode)
	width := uint(9)

	bw.write(lzwClearCode, width)
	if len(src) == 0 {
		bw.write(lzwEOICode, width)
		return bw.flush()
	}

	cur := uint32(src[0])
	for _, b := range src[1:] {
		key := cur<<8 | uint32(b)
		if code, ok := table[key]; ok {
			cur = uint32(code)
			continue
		}
		bw.write(uint16(cur), width)
		table[key] = next
		next++
		if uint(next) == 1<<width && width < lzwMaxWidth {
			width++
		}
		if next >= lzwResetAt {
			bw.write(lzwClearCode, width)
			table = make(map[uint32]uint16, lzwTableSize)
			next = lzwFirstCode
			width = 9
		}
		cur = uint32(b)
	}
	bw.write(uint16(cur), width)
	bw.write(lzwEOICode, width)
	return bw.flush()
}

// lzwDecode decompresses a TIFF LZW stream. sizeHint preallocates the output.
func lzwDecode(src []byte, sizeHint int) ([]byte, error) {
	br := bitReader{data: src}
	out := make([]byte, 0, sizeHint)

	prefix := make([]uint16, lzwTableSize)
	suffix := make([]byte, lzwTableSize)
	var scratch [lzwTableSize + 1]byte

	// expand walks the prefix chain of code into scratch and returns the
	// decoded string front to back.
	expand := func(code int) []byte {
		n := 0
		for code >= 256 {
			scratch[n] = suffix[code]
			n++
			code = int(prefix[code])
		}
		scratch[n] = byte(code)
		n++
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			scratch[i], scratch[j] = scratch[j], scratch[i]
		}
		return scratch[:n]
	}

	width := uint(9)
	next := lzwFirstCode
	last := -1

	for {
		code, ok := br.read(width)
		if !ok {
			// Stream ended without an EOI marker; tolerate it.
			return out, nil
		}
		if code == lzwClearCode {
			width, next, last = 9, lzwFirstCode, -1
			continue
		}
		if code == lzwEOICode {
			return out, nil
		}

		var entry []byte
		switch {
		case code < 256:
			scratch[0] = byte(code)
			entry = scratch[:1]
		case code < next:
			entry = expand(code)
		case code == next && last >= 0:
			entry = expand(last)
			entry = append(entry, entry[0])
		default:
			return nil, eris.Errorf("raster: corrupt LZW stream: code %d with table size %d", code, next)
		}

		out = append(out, entry...)
		if last >= 0 && next < lzwTableSize {
			prefix[next] = uint16(last)
			suffix[next] = entry[0]
			next++
			if uint(next) == 1<<width-1 && width < lzwMaxWidth {
				width++
			}
		}
		last = code
	}
}
