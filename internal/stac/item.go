// Package stac fetches catalog items, resolves their spectral band assets and
// signs asset hrefs when the hosting blob store requires it.
package stac

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Asset is one downloadable file attached to an item.
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Item is a STAC item: one satellite scene with its assets and properties.
type Item struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection,omitempty"`
	BBox       []float64        `json:"bbox,omitempty"`
	Properties map[string]any   `json:"properties,omitempty"`
	Assets     map[string]Asset `json:"assets"`
	Links      []Link           `json:"links,omitempty"`
}

// Link is a STAC hypermedia link.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// CloudCover returns the eo:cloud_cover property, if present.
func (it *Item) CloudCover() (float64, bool) {
	v, ok := it.Properties["eo:cloud_cover"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Datetime returns the item acquisition timestamp property, if present.
func (it *Item) Datetime() (string, bool) {
	v, ok := it.Properties["datetime"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ParseItem decodes a STAC item document.
func ParseItem(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, eris.Wrap(err, "stac: decode item")
	}
	if it.ID == "" {
		return nil, eris.New("stac: item has no id")
	}
	if len(it.Assets) == 0 {
		return nil, eris.Errorf("stac: item %s has no assets", it.ID)
	}
	return &it, nil
}

// searchRequest is the POST body for the /search endpoint.
type searchRequest struct {
	Collections []string       `json:"collections"`
	BBox        []float64      `json:"bbox"`
	Limit       int            `json:"limit"`
	Query       map[string]any `json:"query,omitempty"`
	Datetime    string         `json:"datetime,omitempty"`
}

// searchResponse is a STAC FeatureCollection of items.
type searchResponse struct {
	Features []json.RawMessage `json:"features"`
}
