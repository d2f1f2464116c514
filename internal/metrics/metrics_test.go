package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObservationStored(true)
	m.FetchFailed("weather")
	m.Notification(false)
	m.Transition("reset", 3)
	m.SetAlerts(1, 2, 3)
	m.CacheHit()
	m.CacheMiss()

	h := m.WrapHandler("/x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected wrapped handler to run, got %d", rec.Code)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObservationStored(true)
	m.ObservationStored(false)
	m.Transition("acknowledged", 4)
	m.Notification(true)
	m.Notification(false)
	m.Notification(false)
	m.SetAlerts(2, 1, 0)

	body := scrape(t, m)
	for _, want := range []string{
		"solarwatch_observations_stored_total 2",
		"solarwatch_underperforming_days_total 1",
		`solarwatch_alert_transitions_total{transition="acknowledged"} 4`,
		`solarwatch_notifications_total{result="failed"} 2`,
		`solarwatch_notifications_total{result="sent"} 1`,
		`solarwatch_alerts{state="pending"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Exposition missing %q", want)
		}
	}
}

func TestWrapHandler(t *testing.T) {
	m := New()
	h := m.WrapHandler("/api/alerts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/alerts", nil))

	body := scrape(t, m)
	if !strings.Contains(body, `solarwatch_http_requests_total{route="/api/alerts",status="400"} 1`) {
		t.Error("Exposition missing request counter")
	}
}
