package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/config"
	"github.com/terralab/landcover-cli/internal/resilience"
)

// Client talks to a STAC API: item fetch by URL plus spatial search against
// the configured catalog.
type Client struct {
	http        *http.Client
	catalogURL  string
	maxCloud    float64
	searchDelta float64
}

// NewClient builds a catalog client from configuration.
func NewClient(cfg config.CatalogConfig) *Client {
	return &Client{
		http:        &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		catalogURL:  strings.TrimRight(cfg.URL, "/"),
		maxCloud:    cfg.MaxCloud,
		searchDelta: cfg.SearchDelta,
	}
}

// FetchItem retrieves and decodes the item document at url.
func (c *Client) FetchItem(ctx context.Context, url string) (*Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "stac: build item request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.Transient("stac: fetch item", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("stac: fetch %s: status %d", url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.Transient("stac: fetch item", err)
		}
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient("stac: read item body", err)
	}
	return ParseItem(body)
}

// SearchPoint finds one low-cloud item covering (lon, lat) in the collection.
// Search failures are logged and reported as a nil item so callers can simply
// move on to the next candidate point.
func (c *Client) SearchPoint(ctx context.Context, collection string, lon, lat float64) *Item {
	reqBody := searchRequest{
		Collections: []string{collection},
		BBox: []float64{
			lon - c.searchDelta, lat - c.searchDelta,
			lon + c.searchDelta, lat + c.searchDelta,
		},
		Limit: 1,
		Query: map[string]any{
			"eo:cloud_cover": map[string]any{"lt": c.maxCloud},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		zap.L().Warn("encoding STAC search request failed", zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.catalogURL+"/search", bytes.NewReader(payload))
	if err != nil {
		zap.L().Warn("building STAC search request failed", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		zap.L().Warn("STAC search failed",
			zap.String("collection", collection),
			zap.Float64("lon", lon), zap.Float64("lat", lat),
			zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("STAC search returned non-OK status",
			zap.String("collection", collection),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		zap.L().Warn("decoding STAC search response failed", zap.Error(err))
		return nil
	}
	if len(sr.Features) == 0 {
		return nil
	}
	item, err := ParseItem(sr.Features[0])
	if err != nil {
		zap.L().Warn("STAC search returned an unusable item", zap.Error(err))
		return nil
	}
	return item
}
