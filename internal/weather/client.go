// Package weather retrieves historical daily sunshine and irradiance from
// the Open-Meteo archive API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smukkama/solar-watch/internal/performance"
	"github.com/smukkama/solar-watch/pkg/config"
)

const (
	secondsPerHour = 3600.0
	// MJPerM2ToKWhPerM2 converts daily shortwave radiation sums
	MJPerM2ToKWhPerM2 = 0.2778
)

// ErrNoData is returned when the archive has no daily block for the request
var ErrNoData = errors.New("no weather data available")

// Source returns the daily weather for a location
type Source interface {
	Daily(ctx context.Context, lat, lon float64, date string) (*performance.Weather, error)
}

// Client queries the Open-Meteo archive
type Client struct {
	config config.WeatherConfig
	client *http.Client
}

// NewClient creates a weather client
func NewClient(cfg config.WeatherConfig) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type archiveResponse struct {
	Daily *struct {
		Time               []string   `json:"time"`
		SunshineDuration   []*float64 `json:"sunshine_duration"`
		ShortwaveRadiation []*float64 `json:"shortwave_radiation_sum"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Daily returns sun hours and irradiance in kWh/m² for one day. Null values
// in the archive read as zero.
func (c *Client) Daily(ctx context.Context, lat, lon float64, date string) (*performance.Weather, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("start_date", date)
	params.Set("end_date", date)
	params.Set("daily", "sunshine_duration,shortwave_radiation_sum")
	params.Set("timezone", c.config.Timezone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request for %v,%v: %w", lat, lon, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var failure archiveResponse
		reason := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &failure) == nil && failure.Reason != "" {
			reason = failure.Reason
		}
		return nil, fmt.Errorf("weather http status %d: %s", resp.StatusCode, reason)
	}

	var parsed archiveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse weather response: %w", err)
	}
	if parsed.Daily == nil {
		return nil, fmt.Errorf("%w for %v,%v on %s", ErrNoData, lat, lon, date)
	}

	return &performance.Weather{
		SunHours:        first(parsed.Daily.SunshineDuration) / secondsPerHour,
		IrradianceKWhM2: first(parsed.Daily.ShortwaveRadiation) * MJPerM2ToKWhPerM2,
	}, nil
}

func first(values []*float64) float64 {
	if len(values) == 0 || values[0] == nil {
		return 0
	}
	return *values[0]
}
