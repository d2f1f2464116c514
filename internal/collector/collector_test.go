package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/metering"
	"github.com/smukkama/solar-watch/internal/notification"
	"github.com/smukkama/solar-watch/internal/performance"
	"github.com/smukkama/solar-watch/internal/weather"
	"github.com/smukkama/solar-watch/pkg/config"
)

const (
	obisProd = "1-1:2.29.0"
	obisCons = "1-1:1.29.0"
)

type fakeMeter struct {
	values map[string]float64 // pod/obis -> value
	errs   map[string]error
}

func (m *fakeMeter) FetchDaily(ctx context.Context, pod, obis, start, end string) (*metering.TimeSeries, error) {
	key := pod + "/" + obis
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	v, ok := m.values[key]
	if !ok {
		return &metering.TimeSeries{Unit: "kWh"}, nil
	}
	started := time.Date(2024, 5, 31, 22, 0, 0, 0, time.UTC)
	return &metering.TimeSeries{Unit: "kWh", Points: []metering.Point{{Value: v, StartedAt: &started}}}, nil
}

type fakeWeather struct {
	w   *performance.Weather
	err error
}

func (f *fakeWeather) Daily(ctx context.Context, lat, lon float64, date string) (*performance.Weather, error) {
	if f.w == nil && f.err == nil {
		return nil, weather.ErrNoData
	}
	return f.w, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	rows     map[database.Identity]*database.Observation
	acked    map[database.Identity]bool
	failFor  string
	upserted int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[database.Identity]*database.Observation{}, acked: map[database.Identity]bool{}}
}

func (s *fakeStore) UpsertObservation(ctx context.Context, obs *database.Observation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obs.PodCode == s.failFor {
		return false, errors.New("disk full")
	}
	s.upserted++
	carried := s.acked[obs.Identity()]
	obs.AlertAcknowledged = carried
	s.rows[obs.Identity()] = obs
	return carried, nil
}

func (s *fakeStore) get(pod, obis, date string) *database.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[database.Identity{PodCode: pod, OBISCode: obis, Date: date}]
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *fakePublisher) Publish(ctx context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func coords(v float64) *float64 { return &v }

func testRoster() *config.Roster {
	return &config.Roster{
		Pods: []config.Pod{
			{ID: "POD1", Address: "Roof One", PricePerKWh: 0.12, PeakPowerKW: 10, Latitude: coords(49.6), Longitude: coords(6.1)},
			{ID: "POD2", Address: "Barn", PricePerKWh: 0.10, PeakPowerKW: 5, Latitude: coords(49.7), Longitude: coords(6.2)},
		},
		OBISCodes: []string{obisProd},
	}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestCollector(roster *config.Roster, meter Meter, wx *fakeWeather, store Store) *Collector {
	return New(roster, meter, wx, store, performance.NewEvaluator(0.8, 0.5), discardLogger())
}

func TestRun_StoresAndClassifies(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{
		"POD1/" + obisProd: 1.0, // expected 10*0.4*0.8 = 3.2
		"POD2/" + obisProd: 1.5, // expected 5*0.4*0.8 = 1.6
	}}
	wx := &fakeWeather{w: &performance.Weather{SunHours: 1.5, IrradianceKWhM2: 0.4}}
	store := newFakeStore()
	pub := &fakePublisher{}

	c := newTestCollector(testRoster(), meter, wx, store).WithPublisher(pub)
	report, err := c.Run(context.Background(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, &Report{Date: "2024-06-01", Stored: 2, Underperforming: 1}, report)

	pod1 := store.get("POD1", obisProd, "2024-06-01")
	require.NotNil(t, pod1)
	assert.Equal(t, "Roof One", pod1.PodName)
	assert.Equal(t, "OBIS "+obisProd, pod1.OBISDescription)
	assert.InDelta(t, 0.12, pod1.Earnings, 1e-9)
	require.NotNil(t, pod1.ExpectedKWh)
	assert.InDelta(t, 3.2, *pod1.ExpectedKWh, 1e-9)
	require.NotNil(t, pod1.PerformanceRatio)
	assert.InDelta(t, 0.3125, *pod1.PerformanceRatio, 1e-9)
	assert.True(t, pod1.IsUnderperforming)
	assert.NotNil(t, pod1.StartedAt)

	pod2 := store.get("POD2", obisProd, "2024-06-01")
	require.NotNil(t, pod2)
	assert.False(t, pod2.IsUnderperforming)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeCollected, pub.events[0].Type)
	assert.EqualValues(t, 2, pub.events[0].Affected)
}

func TestRun_WeatherFailureStoresWithoutPerformance(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{"POD1/" + obisProd: 0}}
	wx := &fakeWeather{err: errors.New("timeout")}
	store := newFakeStore()

	roster := testRoster()
	roster.Pods = roster.Pods[:1]

	report, err := newTestCollector(roster, meter, wx, store).Run(context.Background(), "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)
	assert.Zero(t, report.Underperforming)

	obs := store.get("POD1", obisProd, "2024-06-01")
	require.NotNil(t, obs)
	assert.Nil(t, obs.ExpectedKWh)
	assert.Nil(t, obs.PerformanceRatio)
	assert.Nil(t, obs.SunHours)
	require.NotNil(t, obs.PeakPowerKW)
	assert.Equal(t, 10.0, *obs.PeakPowerKW)
	assert.False(t, obs.IsUnderperforming)
}

func TestRun_MissingCoordinates(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{"POD1/" + obisProd: 0}}
	store := newFakeStore()
	roster := &config.Roster{
		Pods:      []config.Pod{{ID: "POD1", PeakPowerKW: 10}},
		OBISCodes: []string{obisProd},
	}

	report, err := newTestCollector(roster, meter, &fakeWeather{}, store).Run(context.Background(), "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stored)

	obs := store.get("POD1", obisProd, "2024-06-01")
	require.NotNil(t, obs)
	assert.Equal(t, "POD1", obs.PodName)
	assert.False(t, obs.IsUnderperforming)
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	roster := testRoster()
	roster.OBISCodes = []string{obisProd, obisCons}

	meter := &fakeMeter{
		values: map[string]float64{
			"POD1/" + obisProd: 5,
			"POD2/" + obisProd: 5,
			"POD2/" + obisCons: 2,
		},
		errs: map[string]error{"POD1/" + obisCons: errors.New("502 bad gateway")},
	}
	wx := &fakeWeather{w: &performance.Weather{IrradianceKWhM2: 1}}
	store := newFakeStore()
	store.failFor = "POD2"

	report, err := newTestCollector(roster, meter, wx, store).WithConcurrency(2).Run(context.Background(), "2024-06-01")
	require.NoError(t, err)

	// POD1: one stored, one fetch failure; POD2: both store failures
	assert.Equal(t, 1, report.Stored)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, report.Skipped)
}

func TestRun_EmptySeriesSkipped(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{}}
	store := newFakeStore()

	report, err := newTestCollector(testRoster(), meter, &fakeWeather{w: &performance.Weather{}}, store).Run(context.Background(), "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Stored)
	assert.Zero(t, store.upserted)
}

func TestRun_CarriedAcknowledgement(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{"POD1/" + obisProd: 1, "POD2/" + obisProd: 1}}
	store := newFakeStore()
	store.acked[database.Identity{PodCode: "POD1", OBISCode: obisProd, Date: "2024-06-01"}] = true

	report, err := newTestCollector(testRoster(), meter, &fakeWeather{w: &performance.Weather{IrradianceKWhM2: 1}}, store).Run(context.Background(), "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Carried)
}

func TestRun_InvalidDate(t *testing.T) {
	_, err := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore()).Run(context.Background(), "yesterday")
	assert.ErrorIs(t, err, database.ErrInvalidDate)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore()).Run(ctx, "2024-06-01")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPreviousDay(t *testing.T) {
	lux, err := time.LoadLocation("Europe/Luxembourg")
	if err != nil {
		lux = time.FixedZone("CEST", 2*3600)
	}

	// 23:30 UTC on June 1 is already June 2 in Luxembourg
	now := time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-06-01", PreviousDay(now, lux))
	assert.Equal(t, "2024-05-31", PreviousDay(now, time.UTC))
	assert.Equal(t, "2024-02-29", PreviousDay(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), time.UTC))
}

type fakeDispatcher struct {
	result *alerting.DispatchResult
	err    error
	calls  int
}

func (d *fakeDispatcher) DispatchPending(ctx context.Context) (*alerting.DispatchResult, error) {
	d.calls++
	return d.result, d.err
}

type fakeGuard struct {
	names []string
	err   error
}

func (g *fakeGuard) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	g.names = append(g.names, name)
	if g.err != nil {
		return g.err
	}
	return fn(ctx)
}

func TestJob_CollectsThenDispatches(t *testing.T) {
	meter := &fakeMeter{values: map[string]float64{"POD1/" + obisProd: 1}}
	c := newTestCollector(testRoster(), meter, &fakeWeather{w: &performance.Weather{IrradianceKWhM2: 0.4}}, newFakeStore())
	d := &fakeDispatcher{result: &alerting.DispatchResult{Pending: 1, Sent: 1}}
	g := &fakeGuard{}

	out, err := NewJob(c, d, g, discardLogger()).Run(context.Background(), "2024-06-01", true)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Report.Stored)
	assert.EqualValues(t, 1, out.Dispatch.Sent)
	assert.Equal(t, []string{"collect:2024-06-01"}, g.names)
}

func TestJob_NoNotify(t *testing.T) {
	c := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore())
	d := &fakeDispatcher{}

	out, err := NewJob(c, d, nil, discardLogger()).Run(context.Background(), "2024-06-01", false)
	require.NoError(t, err)
	assert.Nil(t, out.Dispatch)
	assert.Zero(t, d.calls)
}

func TestJob_NotifierNotConfigured(t *testing.T) {
	c := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore())
	d := &fakeDispatcher{
		result: &alerting.DispatchResult{Pending: 3},
		err:    fmt.Errorf("failed to send alert digest: %w", notification.ErrNotConfigured),
	}

	_, err := NewJob(c, d, nil, discardLogger()).Run(context.Background(), "2024-06-01", true)
	assert.NoError(t, err)
}

func TestJob_DeliveryFailure(t *testing.T) {
	c := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore())
	boom := errors.New("smtp down")
	d := &fakeDispatcher{result: &alerting.DispatchResult{Pending: 1}, err: boom}

	_, err := NewJob(c, d, nil, discardLogger()).Run(context.Background(), "2024-06-01", true)
	assert.ErrorIs(t, err, boom)
}

func TestJob_LockHeld(t *testing.T) {
	held := errors.New("lock held")
	c := newTestCollector(testRoster(), &fakeMeter{}, &fakeWeather{}, newFakeStore())

	out, err := NewJob(c, nil, &fakeGuard{err: held}, discardLogger()).Run(context.Background(), "2024-06-01", true)
	assert.ErrorIs(t, err, held)
	assert.Nil(t, out.Report)
}
