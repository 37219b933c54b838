package stac

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/terralab/landcover-cli/internal/feature"
)

// MinBands is the smallest usable band set; with fewer the scene cannot
// support classification.
const MinBands = 4

// bandAliases maps canonical band names to the asset keys catalogs use for
// them. Earth Search uses the canonical names; other catalogs expose the raw
// Sentinel-2 band codes.
var bandAliases = map[string][]string{
	"red":    {"red", "B04", "b04"},
	"green":  {"green", "B03", "b03"},
	"blue":   {"blue", "B02", "b02"},
	"nir":    {"nir", "B08", "b08"},
	"swir16": {"swir16", "B11", "b11"},
	"swir22": {"swir22", "B12", "b12"},
}

// BandSet maps canonical band names to fetchable asset URLs.
type BandSet map[string]string

// Names returns the resolved band names in a stable order.
func (b BandSet) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsufficientBandsError reports a scene whose asset set cannot support
// classification.
type InsufficientBandsError struct {
	ItemID string
	Found  []string
}

func (e *InsufficientBandsError) Error() string {
	return fmt.Sprintf("stac: item %s resolves only %d of %d bands (%v), need at least %d",
		e.ItemID, len(e.Found), len(feature.BandOrder), e.Found, MinBands)
}

// Resolver matches item assets to canonical bands and signs their hrefs.
type Resolver struct {
	signer Signer
}

// NewResolver builds a resolver using signer for protected hrefs.
func NewResolver(signer Signer) *Resolver {
	return &Resolver{signer: signer}
}

// ResolveBands maps the item's assets onto the canonical band set. Hrefs that
// need signing are signed; a failed signature falls back to the unsigned href
// with a warning rather than dropping the band. Fewer than MinBands resolved
// bands is an error.
func (r *Resolver) ResolveBands(ctx context.Context, item *Item) (BandSet, error) {
	bands := make(BandSet, len(feature.BandOrder))
	for _, name := range feature.BandOrder {
		asset, ok := r.assetFor(item, name)
		if !ok {
			continue
		}
		href := asset.Href
		if r.signer.Needs(href) {
			signed, err := r.signer.Sign(ctx, href)
			if err != nil {
				zap.L().Warn("asset signing failed, using unsigned href",
					zap.String("item", item.ID),
					zap.String("band", name),
					zap.Error(err))
			} else {
				href = signed
			}
		}
		bands[name] = href
	}

	if len(bands) < MinBands {
		return nil, &InsufficientBandsError{ItemID: item.ID, Found: bands.Names()}
	}
	return bands, nil
}

func (r *Resolver) assetFor(item *Item, band string) (Asset, bool) {
	for _, key := range bandAliases[band] {
		if asset, ok := item.Assets[key]; ok && asset.Href != "" {
			return asset, true
		}
	}
	return Asset{}, false
}
