package weather

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smukkama/solar-watch/pkg/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.WeatherConfig{URL: url, Timezone: "Europe/Luxembourg", Timeout: 2 * time.Second})
}

func TestDaily_Conversions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("daily") != "sunshine_duration,shortwave_radiation_sum" {
			t.Errorf("Unexpected daily parameter: %s", q.Get("daily"))
		}
		if q.Get("start_date") != "2024-06-01" || q.Get("end_date") != "2024-06-01" {
			t.Errorf("Unexpected date range: %s..%s", q.Get("start_date"), q.Get("end_date"))
		}
		if q.Get("timezone") != "Europe/Luxembourg" {
			t.Errorf("Unexpected timezone: %s", q.Get("timezone"))
		}
		if q.Get("latitude") != "49.61" || q.Get("longitude") != "6.13" {
			t.Errorf("Unexpected coordinates: %s,%s", q.Get("latitude"), q.Get("longitude"))
		}
		w.Write([]byte(`{"daily":{"time":["2024-06-01"],"sunshine_duration":[36000],"shortwave_radiation_sum":[20.0]}}`))
	}))
	defer server.Close()

	w, err := newTestClient(server.URL).Daily(context.Background(), 49.61, 6.13, "2024-06-01")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if w.SunHours != 10 {
		t.Errorf("Expected 10 sun hours, got %v", w.SunHours)
	}
	if math.Abs(w.IrradianceKWhM2-5.556) > 1e-9 {
		t.Errorf("Expected 5.556 kWh/m², got %v", w.IrradianceKWhM2)
	}
}

func TestDaily_NullValuesReadAsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"daily":{"time":["2024-06-01"],"sunshine_duration":[null],"shortwave_radiation_sum":[null]}}`))
	}))
	defer server.Close()

	w, err := newTestClient(server.URL).Daily(context.Background(), 1, 2, "2024-06-01")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if w.SunHours != 0 || w.IrradianceKWhM2 != 0 {
		t.Errorf("Expected zero weather, got %+v", w)
	}
}

func TestDaily_NoDailyBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"latitude":1}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Daily(context.Background(), 1, 2, "2024-06-01")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestDaily_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"reason":"Parameter 'start_date' is out of range"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Daily(context.Background(), 1, 2, "1900-01-01")
	if err == nil {
		t.Fatal("Expected error for bad request")
	}
	if got := err.Error(); got != "weather http status 400: Parameter 'start_date' is out of range" {
		t.Errorf("Unexpected error: %s", got)
	}
}
