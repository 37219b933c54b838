package stac

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terralab/landcover-cli/internal/config"
	"github.com/terralab/landcover-cli/internal/resilience"
)

// Signer grants read access to asset hrefs that require it.
type Signer interface {
	// Needs reports whether href must be signed before use.
	Needs(href string) bool
	// Sign exchanges href for a fetchable URL.
	Sign(ctx context.Context, href string) (string, error)
}

// NoopSigner passes every href through unchanged.
type NoopSigner struct{}

func (NoopSigner) Needs(string) bool { return false }

func (NoopSigner) Sign(_ context.Context, href string) (string, error) { return href, nil }

// SASSigner signs Azure blob hrefs through a token service such as the
// Planetary Computer SAS endpoint.
type SASSigner struct {
	http       *http.Client
	endpoint   string
	hostSuffix string
}

// NewSASSigner builds a signer that exchanges hrefs at endpoint and only
// signs hosts ending in hostSuffix.
func NewSASSigner(endpoint, hostSuffix string, timeout time.Duration) *SASSigner {
	return &SASSigner{
		http:       &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		hostSuffix: hostSuffix,
	}
}

func (s *SASSigner) Needs(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	// An href that already carries a SAS token does not need another.
	if u.Query().Has("sig") {
		return false
	}
	return strings.HasSuffix(u.Host, s.hostSuffix)
}

func (s *SASSigner) Sign(ctx context.Context, href string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.endpoint+"?href="+url.QueryEscape(href), nil)
	if err != nil {
		return "", eris.Wrap(err, "stac: build sign request")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", resilience.Transient("stac: sign asset", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("stac: sign %s: status %d", href, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.Transient("stac: sign asset", err)
		}
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.Transient("stac: read sign response", err)
	}

	var signed struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(body, &signed); err != nil {
		return "", eris.Wrap(err, "stac: decode sign response")
	}
	if signed.Href == "" {
		return "", eris.New("stac: sign response has no href")
	}
	return signed.Href, nil
}

// NewSigner builds the signer the configuration asks for: a SAS signer when
// an endpoint is set, otherwise a no-op.
func NewSigner(cfg config.SigningConfig) Signer {
	if cfg.Endpoint == "" {
		return NoopSigner{}
	}
	return NewSASSigner(cfg.Endpoint, cfg.HostSuffix, time.Duration(cfg.TimeoutSecs)*time.Second)
}
