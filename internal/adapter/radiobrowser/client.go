// Package radiobrowser reads station lists from a Radio Browser API mirror.
package radiobrowser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/station-globe/internal/domain"
)

const (
	// DefaultBaseURL is the mirror used when RADIO_BROWSER_URL is unset.
	DefaultBaseURL = "https://de2.api.radio-browser.info"

	userAgent = "station-globe/1.0"
)

// Client fetches station records over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Radio Browser client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// TopStations returns the limit most clicked stations.
func (c *Client) TopStations(ctx context.Context, limit int) ([]domain.StationRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("station limit %d: %w", limit, domain.ErrInvalidInput)
	}
	return c.fetch(ctx, "/json/stations/topclick/"+strconv.Itoa(limit))
}

// StationsByCountry returns every station whose country code equals code.
func (c *Client) StationsByCountry(ctx context.Context, code string) ([]domain.StationRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("empty country code: %w", domain.ErrInvalidInput)
	}
	return c.fetch(ctx, "/json/stations/bycountrycodeexact/"+url.PathEscape(code))
}

func (c *Client) fetch(ctx context.Context, path string) ([]domain.StationRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("station request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("radio browser API error: status %d: %s", resp.StatusCode, body)
	}

	var wire []station
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}

	records := make([]domain.StationRecord, len(wire))
	for i := range wire {
		records[i] = wire[i].record()
	}
	c.logger.Debug("stations fetched", "path", path, "count", len(records))
	return records, nil
}

// Radio Browser API response types.

type station struct {
	StationUUID string  `json:"stationuuid"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Favicon     string  `json:"favicon"`
	Tags        string  `json:"tags"`
	CountryCode string  `json:"countrycode"`
	Country     string  `json:"country"`
	State       *string `json:"state"`
	Language    *string `json:"language"`
}

// record maps the wire shape onto the domain type. The API sends "" and null
// interchangeably for unknown states; both become an absent state.
func (s station) record() domain.StationRecord {
	r := domain.StationRecord{
		ID:          s.StationUUID,
		Name:        s.Name,
		URL:         s.URL,
		Favicon:     s.Favicon,
		Tags:        s.Tags,
		CountryCode: s.CountryCode,
		Country:     s.Country,
	}
	if s.State != nil {
		r.State = strings.TrimSpace(*s.State)
	}
	if s.Language != nil {
		r.Language = *s.Language
	}
	return r
}
