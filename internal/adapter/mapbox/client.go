package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/observability"
	"github.com/couchcryptid/geocode-backfill/internal/retry"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// errMalformedCenter marks a feature whose center is not a [lon, lat] pair.
var errMalformedCenter = errors.New("malformed feature center")

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	country    string
	httpClient *http.Client
	baseURL    string
	retry      retry.Policy
	limiter    *retry.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options tune a Client. Zero values fall back to production defaults.
type Options struct {
	Country string // ISO 3166 alpha-2 filter, e.g. "au"
	Timeout time.Duration
	BaseURL string
	Retry   retry.Policy
	Limiter *retry.Limiter
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = retry.NewLimiter(0)
	}
	return &Client{
		token:   token,
		country: opts.Country,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL: opts.BaseURL,
		retry:   opts.Retry,
		limiter: opts.Limiter,
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode forward-geocodes a free-text query. Transport errors and non-2xx
// responses are retried under the client's policy; every attempt first waits
// on the shared limiter. Failures come back as an absent Resolution whose
// raw payload records the final error.
func (c *Client) Geocode(ctx context.Context, query string) domain.Resolution {
	if c.token == "" {
		return domain.Absent("error", "GEOCODE_API_KEY not set for Mapbox", domain.ErrNotConfigured)
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}
	fullURL := u + "?" + params.Encode()

	var res domain.Resolution
	err := c.retry.Do(ctx, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		res, err = c.doRequest(ctx, fullURL)
		if err != nil {
			c.logger.Warn("mapbox request failed", "attempt", attempt, "query", query, "error", err)
		}
		return err
	})
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Absent("error", err.Error(), err)
	}

	if res.Found() {
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	} else {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	}
	return res
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Resolution, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Resolution{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.Unmarshal(body, &mapboxResp); err != nil {
		return domain.Resolution{}, fmt.Errorf("decode response: %w", err)
	}

	res := domain.Resolution{Raw: json.RawMessage(body)}
	if len(mapboxResp.Features) == 0 {
		return res, nil
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		res.Err = fmt.Errorf("%w: %d components", errMalformedCenter, len(f.Center))
		return res, nil
	}
	res.Coords = &domain.Coordinates{Lat: f.Center[1], Lon: f.Center[0]}
	return res, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
