package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/station-globe/internal/domain"
	"github.com/couchcryptid/station-globe/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode converts a "<state>, <country>" address to coordinates. Station
// places are countries and regions, so the query is restricted to those types
// plus places for city-states.
func (c *Client) Geocode(ctx context.Context, address string) (domain.GeoCoordinate, error) {
	query := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(address), ","))
	if query == "" {
		return domain.GeoCoordinate{}, fmt.Errorf("empty address: %w", domain.ErrGeocodeNotFound)
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"country,region,place"},
	}

	start := time.Now()
	coord, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("mapbox geocode failed", "query", query, "error", err)
	}
	return coord, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeoCoordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeoCoordinate{}, fmt.Errorf("%w: create request: %w", domain.ErrGeocodeService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeoCoordinate{}, fmt.Errorf("%w: forward geocode request: %w", domain.ErrGeocodeService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeoCoordinate{}, fmt.Errorf("%w: mapbox API error: status %d: %s", domain.ErrGeocodeService, resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeoCoordinate{}, fmt.Errorf("%w: decode response: %w", domain.ErrGeocodeService, err)
	}

	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		return domain.GeoCoordinate{}, domain.ErrGeocodeNotFound
	}

	// Mapbox uses lon,lat order.
	f := mapboxResp.Features[0]
	return domain.GeoCoordinate{Latitude: f.Center[1], Longitude: f.Center[0]}, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
