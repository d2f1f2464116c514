// Package geocode resolves installation addresses to coordinates through a
// Nominatim search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smukkama/solar-watch/pkg/config"
)

const DefaultURL = "https://nominatim.openstreetmap.org"

// ErrNotFound is returned when the address has no match
var ErrNotFound = errors.New("address not found")

// Client queries Nominatim. Its usage policy allows one request per second
// and requires an identifying User-Agent.
type Client struct {
	baseURL   string
	userAgent string
	interval  time.Duration
	http      *http.Client
}

func NewClient(baseURL, userAgent string, interval time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		interval:  interval,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup returns the coordinates of the best match for address
func (c *Client) Lookup(ctx context.Context, address string) (lat, lon float64, err error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return 0, 0, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(places) == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotFound, address)
	}

	lat, err = strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q: %w", places[0].Lat, err)
	}
	lon, err = strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q: %w", places[0].Lon, err)
	}
	return lat, lon, nil
}

// FillRoster looks up every POD with an address but no coordinates and sets
// them in place. Lookup failures are logged and leave the POD unchanged.
// It returns how many PODs were resolved.
func (c *Client) FillRoster(ctx context.Context, roster *config.Roster, logger *slog.Logger) (int, error) {
	resolved := 0
	first := true
	for i := range roster.Pods {
		pod := &roster.Pods[i]
		if pod.HasLocation() || pod.Address == "" {
			continue
		}

		if !first && c.interval > 0 {
			select {
			case <-ctx.Done():
				return resolved, ctx.Err()
			case <-time.After(c.interval):
			}
		}
		first = false

		lat, lon, err := c.Lookup(ctx, pod.Address)
		if err != nil {
			if ctx.Err() != nil {
				return resolved, ctx.Err()
			}
			logger.Warn("geocoding failed", "pod_code", pod.ID, "address", pod.Address, "error", err)
			continue
		}

		pod.Latitude, pod.Longitude = &lat, &lon
		resolved++
		logger.Info("geocoded POD", "pod_code", pod.ID, "latitude", lat, "longitude", lon)
	}
	return resolved, nil
}
