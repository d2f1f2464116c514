// Package metering fetches daily aggregated energy readings from the Leneda
// metering API.
package metering

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

	"golang.org/x/sync/semaphore"

	"github.com/smukkama/solar-watch/pkg/config"
)

// ErrStatus wraps non-2xx responses
var ErrStatus = errors.New("unexpected response status")

// Point is one aggregated value
type Point struct {
	Value      float64    `json:"value"`
	StartedAt  *time.Time `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt"`
	Calculated bool       `json:"calculated"`
}

// TimeSeries is the aggregated response for one POD and metric
type TimeSeries struct {
	Unit   string  `json:"unit"`
	Points []Point `json:"aggregatedTimeSeries"`
}

// First returns the single daily aggregate, false when the series is empty
func (ts *TimeSeries) First() (Point, bool) {
	if ts == nil || len(ts.Points) == 0 {
		return Point{}, false
	}
	return ts.Points[0], true
}

// Client queries the metering API
type Client struct {
	config config.LenedaConfig
	client *http.Client
	sem    *semaphore.Weighted
}

// NewClient creates a metering client
func NewClient(cfg config.LenedaConfig) *Client {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		sem: semaphore.NewWeighted(cfg.MaxConcurrency),
	}
}

// FetchDaily returns the accumulated value for podCode and obisCode between
// start and end (YYYY-MM-DD, inclusive). An empty series is not an error.
func (c *Client) FetchDaily(ctx context.Context, podCode, obisCode, start, end string) (*TimeSeries, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("semaphore acquire: %w", err)
	}
	defer c.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		ts, err := c.fetch(ctx, podCode, obisCode, start, end)
		if err == nil {
			return ts, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return nil, fmt.Errorf("metering request for %s/%s failed: %w", podCode, obisCode, lastErr)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrStatus }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, errMalformed)
}

var errMalformed = errors.New("malformed response")

func (c *Client) fetch(ctx context.Context, podCode, obisCode, start, end string) (*TimeSeries, error) {
	params := url.Values{}
	params.Set("obisCode", obisCode)
	params.Set("startDate", start)
	params.Set("endDate", end)
	params.Set("aggregationLevel", "Infinite")
	params.Set("transformationMode", "Accumulation")

	fullURL := fmt.Sprintf("%s/api/metering-points/%s/time-series/aggregated?%s",
		strings.TrimSuffix(c.config.URL, "/"), url.PathEscape(podCode), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.config.APIKey)
	req.Header.Set("X-ENERGY-ID", c.config.EnergyID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
	}

	var ts TimeSeries
	if err := json.Unmarshal(body, &ts); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ts.Unit == "" {
		ts.Unit = "kWh"
	}
	return &ts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
