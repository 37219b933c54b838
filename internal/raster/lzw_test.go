package raster

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lzwRoundtrip(t *testing.T, src []byte) {
	t.Helper()
	enc := lzwEncode(src)
	dec, err := lzwDecode(enc, len(src))
	require.NoError(t, err)
	assert.Equal(t, src, dec)
}

func TestLZW_Roundtrip(t *testing.T) {
	lzwRoundtrip(t, []byte{})
	lzwRoundtrip(t, []byte{7})
	lzwRoundtrip(t, []byte("TOBEORNOTTOBEORTOBEORNOT"))
	lzwRoundtrip(t, bytes.Repeat([]byte{0}, 10000))
	lzwRoundtrip(t, bytes.Repeat([]byte{1, 2, 3, 4, 5}, 3000))
}

func TestLZW_RoundtripRandom(t *testing.T) {
	// Incompressible input forces table growth through every code width and
	// past the reset threshold.
	rng := rand.New(rand.NewPCG(11, 17))
	src := make([]byte, 200000)
	for i := range src {
		src[i] = byte(rng.UintN(256))
	}
	lzwRoundtrip(t, src)
}

func TestLZW_RoundtripSkewed(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))
	src := make([]byte, 150000)
	for i := range src {
		// Few symbols with long runs exercises the KwKwK case repeatedly.
		src[i] = byte(rng.UintN(3))
	}
	lzwRoundtrip(t, src)
}

func TestLZW_DecodeCorrupt(t *testing.T) {
	// A code far beyond the table size right after the clear code.
	var bw bitWriter
	bw.write(lzwClearCode, 9)
	bw.write(400, 9)
	_, err := lzwDecode(bw.flush(), 16)
	assert.Error(t, err)
}

func TestLZW_DecodeTruncated(t *testing.T) {
	enc := lzwEncode([]byte("abcabcabc"))
	dec, err := lzwDecode(enc[:len(enc)-1], 9)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte("abcabcabc"), dec))
}
