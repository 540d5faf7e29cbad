// Package source manages the registry of external knowledge sources and the
// HTTP fetch adapters behind it. Sources are seeded from configuration and
// managed at runtime over the API; a background monitor probes availability.
// Only trusted, available sources feed agent domain tasks.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lvlup-dev/ascent/pkg/models"
)

var (
	// ErrNotRegistered is returned when an operation names an unknown source.
	ErrNotRegistered = errors.New("source not registered")
	// ErrHostNotAllowed is returned when a URL's host is outside the
	// configured allow-list.
	ErrHostNotAllowed = errors.New("source host not allowed")
)

// Source fetches documents for a query from one upstream endpoint.
type Source interface {
	URL() string
	Fetch(ctx context.Context, query string) ([]models.Document, error)
}

// Prober is implemented by sources that support a cheap reachability check.
// The health monitor prefers it over a full fetch.
type Prober interface {
	Probe(ctx context.Context) error
}

// maxFetchBody caps how much of an upstream response body is read.
const maxFetchBody = 1 << 20

// HTTPSource fetches documents from a JSON search endpoint. The query is
// passed as the q parameter; the endpoint may answer with either a bare
// document array or an object with a results field.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	cache   *Cache
}

var _ Source = (*HTTPSource)(nil)
var _ Prober = (*HTTPSource)(nil)

// NewHTTPSource creates a fetch adapter for the given endpoint. The cache
// is shared between sources and may be nil to disable caching.
func NewHTTPSource(baseURL string, timeout time.Duration, cache *Cache) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
	}
}

// URL returns the endpoint this adapter fetches from.
func (s *HTTPSource) URL() string {
	return s.baseURL
}

// Fetch queries the endpoint and returns its documents. Successful results
// are cached by (endpoint, query) until the cache TTL expires.
func (s *HTTPSource) Fetch(ctx context.Context, query string) ([]models.Document, error) {
	cacheKey := s.baseURL + "?q=" + query
	if s.cache != nil {
		if docs, ok := s.cache.Get(cacheKey); ok {
			return docs, nil
		}
	}

	reqURL, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing source URL %s: %w", s.baseURL, err)
	}
	q := reqURL.Query()
	q.Set("q", query)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", s.baseURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", s.baseURL, err)
	}

	docs, err := decodeDocuments(body)
	if err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", s.baseURL, err)
	}

	if s.cache != nil {
		s.cache.Set(cacheKey, docs)
	}
	return docs, nil
}

// Probe checks reachability with a HEAD request. Any answer below 500
// counts as reachable; endpoints that reject HEAD still prove the host
// is up.
func (s *HTTPSource) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probing %s: status %d", s.baseURL, resp.StatusCode)
	}
	return nil
}

// decodeDocuments accepts either a bare JSON array of documents or an
// object wrapping them in a results field.
func decodeDocuments(body []byte) ([]models.Document, error) {
	trimmed := strings.TrimLeftFunc(string(body), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if strings.HasPrefix(trimmed, "[") {
		var docs []models.Document
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	var wrapped struct {
		Results []models.Document `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Results, nil
}

// validateSourceURL checks scheme and host against the allow-list. An empty
// allow-list accepts any host.
func validateSourceURL(raw string, allowedHosts []string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: only http and https allowed", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	if len(allowedHosts) == 0 {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range allowedHosts {
		if host == allowed || host == "www."+allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}
