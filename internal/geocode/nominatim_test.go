package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smukkama/solar-watch/internal/logging"
	"github.com/smukkama/solar-watch/pkg/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") != "solar-watch-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Query().Get("q") {
		case "1 Rue de la Gare, Luxembourg":
			w.Write([]byte(`[{"lat":"49.6000","lon":"6.1333","display_name":"Gare"}]`))
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "solar-watch-test", 0)

	lat, lon, err := c.Lookup(context.Background(), "1 Rue de la Gare, Luxembourg")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if lat != 49.6 || lon != 6.1333 {
		t.Errorf("unexpected coordinates %v,%v", lat, lon)
	}

	if _, _, err := c.Lookup(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := c.Lookup(context.Background(), "broken"); err == nil {
		t.Error("expected error for upstream failure")
	}
}

func TestFillRoster(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "solar-watch-test", 0)

	known := 1.0
	roster := &config.Roster{Pods: []config.Pod{
		{ID: "A", Address: "1 Rue de la Gare, Luxembourg"},
		{ID: "B", Address: "nowhere"},
		{ID: "C", Address: "broken"},
		{ID: "D", Address: "1 Rue de la Gare, Luxembourg", Latitude: &known, Longitude: &known},
		{ID: "E"},
	}}

	n, err := c.FillRoster(context.Background(), roster, logging.Discard())
	if err != nil {
		t.Fatalf("FillRoster failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 resolved POD, got %d", n)
	}
	if !roster.Pods[0].HasLocation() || *roster.Pods[0].Latitude != 49.6 {
		t.Errorf("POD A not geocoded: %+v", roster.Pods[0])
	}
	if roster.Pods[1].HasLocation() || roster.Pods[2].HasLocation() {
		t.Error("failed lookups should leave PODs unchanged")
	}
	if *roster.Pods[3].Latitude != 1.0 {
		t.Error("existing coordinates should not be replaced")
	}
}

func TestFillRoster_Cancelled(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, "solar-watch-test", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	roster := &config.Roster{Pods: []config.Pod{{ID: "A", Address: "1 Rue de la Gare, Luxembourg"}}}
	if _, err := c.FillRoster(ctx, roster, logging.Discard()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
