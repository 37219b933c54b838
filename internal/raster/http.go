package raster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/terralab/landcover-cli/internal/resilience"
)

// prefixSize is how much of the file head is fetched and cached up front.
// Cloud-optimized GeoTIFFs keep the header, all IFDs and the geo tags inside
// this region.
const prefixSize = 64 * 1024

// HTTPReaderAt serves ReadAt over HTTP range requests. The first prefixSize
// bytes are fetched once and kept; later reads outside the prefix each issue
// one ranged GET.
type HTTPReaderAt struct {
	client  *http.Client
	limiter *rate.Limiter
	url     string
	ctx     context.Context

	prefix []byte
	size   int64
}

// NewHTTPReaderAt opens url, fetching the prefix and total size. limiter may
// be nil.
func NewHTTPReaderAt(ctx context.Context, client *http.Client, limiter *rate.Limiter, rawURL string) (*HTTPReaderAt, error) {
	h := &HTTPReaderAt{client: client, limiter: limiter, url: rawURL, ctx: ctx, size: -1}

	body, contentRange, status, err := h.get(ctx, 0, prefixSize-1)
	if err != nil {
		return nil, err
	}
	h.prefix = body

	switch status {
	case http.StatusPartialContent:
		// Content-Range: bytes 0-65535/123456
		if i := strings.LastIndexByte(contentRange, '/'); i >= 0 {
			if n, err := strconv.ParseInt(contentRange[i+1:], 10, 64); err == nil {
				h.size = n
			}
		}
	case http.StatusOK:
		// Server ignored the range header and returned everything.
		h.size = int64(len(body))
	}
	if h.size < 0 {
		return nil, eris.Errorf("raster: %s: could not determine remote size", rawURL)
	}
	return h, nil
}

func (h *HTTPReaderAt) get(ctx context.Context, from, to int64) (body []byte, contentRange string, status int, err error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, "", 0, eris.Wrap(err, "raster: rate limit wait")
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, "", 0, eris.Wrap(err, "raster: build range request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", from, to))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", 0, resilience.Transient("raster: range request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		err := eris.Errorf("raster: %s: unexpected status %d", h.url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, "", 0, resilience.Transient("raster: range request", err)
		}
		return nil, "", 0, err
	}
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, resilience.Transient("raster: read range body", err)
	}
	return body, resp.Header.Get("Content-Range"), resp.StatusCode, nil
}

// Size returns the remote object size.
func (h *HTTPReaderAt) Size() int64 { return h.size }

// ReadAt implements io.ReaderAt.
func (h *HTTPReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, eris.New("raster: negative read offset")
	}
	if off >= h.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if off+want > h.size {
		want = h.size - off
	}

	// Serve from the cached prefix when the whole read fits inside it.
	if off+want <= int64(len(h.prefix)) {
		n := copy(p, h.prefix[off:off+want])
		if int64(n) < int64(len(p)) {
			return n, io.EOF
		}
		return n, nil
	}

	body, _, status, err := h.get(h.ctx, off, off+want-1)
	if err != nil {
		return 0, err
	}
	if status == http.StatusOK {
		// Full-body response; slice out the requested region.
		if int64(len(body)) < off {
			return 0, io.EOF
		}
		body = body[off:]
	}
	n := copy(p, body)
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Close is a no-op; HTTPReaderAt holds no persistent connection.
func (h *HTTPReaderAt) Close() error { return nil }

// NewHTTPOpener builds an Opener that reads cloud-optimized GeoTIFFs over
// ranged HTTP. ratePerHost caps request rate per opened asset; zero disables
// limiting. Local file paths are handled too, which keeps tests and offline
// runs on the same code path.
func NewHTTPOpener(timeout time.Duration, ratePerHost float64) Opener {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, ref string) (Source, error) {
		u, err := url.Parse(ref)
		if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			var limiter *rate.Limiter
			if ratePerHost > 0 {
				limiter = rate.NewLimiter(rate.Limit(ratePerHost), int(ratePerHost)+1)
			}
			zap.L().Debug("opening remote raster", zap.String("url", ref))
			ra, err := NewHTTPReaderAt(ctx, client, limiter, ref)
			if err != nil {
				return nil, err
			}
			return OpenReader(ra, ra)
		}
		return OpenFile(ref)
	}
}

// OpenFile opens a GeoTIFF from the local filesystem.
func OpenFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	ds, err := OpenReader(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return ds, nil
}
