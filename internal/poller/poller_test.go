package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agresearch/field-dashboard/internal/series"
	"github.com/agresearch/field-dashboard/internal/store"
)

type countingSensors struct {
	fetches atomic.Int64
}

func (s *countingSensors) Name() string { return "counting" }

func (s *countingSensors) FetchReadings(ctx context.Context, deviceSN string, span time.Duration) (series.SensorData, error) {
	s.fetches.Add(1)
	return series.SensorData{}, nil
}

func (s *countingSensors) FetchETO(ctx context.Context, deviceSN string) ([]series.ETOReading, error) {
	return nil, nil
}

type countingClimate struct {
	fetches atomic.Int64
}

func (c *countingClimate) Name() string { return "counting" }

func (c *countingClimate) FetchHistorical(ctx context.Context, site series.Site, v series.ClimateVariable, start, end time.Time) (map[string]float64, error) {
	c.fetches.Add(1)
	return map[string]float64{}, nil
}

func (c *countingClimate) FetchForecast(ctx context.Context, site series.Site, v series.ClimateVariable) (map[string]float64, error) {
	c.fetches.Add(1)
	return map[string]float64{}, nil
}

type nopBackfill struct{}

func (nopBackfill) Get(string) (series.BackfillEntry, bool) { return series.BackfillEntry{}, false }
func (nopBackfill) Put(string, series.BackfillEntry)        {}

func newPollerFixture(snapshotTTL time.Duration) (*Poller, *countingSensors, *countingClimate) {
	sensors := &countingSensors{}
	climate := &countingClimate{}
	site := series.Site{Lat: 40.8176, Lon: -96.6917}
	devices := []string{"z6-32396"}

	svc := series.NewService(sensors, climate, store.NewSnapshotCache(snapshotTTL), nopBackfill{}, site, devices, time.Hour)
	return New(svc, devices, 50*time.Millisecond, 50*time.Millisecond), sensors, climate
}

func TestPollerRunsCyclesImmediately(t *testing.T) {
	p, sensors, climate := newPollerFixture(0)
	require.NoError(t, p.Start())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sensors.fetches.Load() > 0 && climate.fetches.Load() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("cycles never ran: sensors=%d climate=%d", sensors.fetches.Load(), climate.fetches.Load())
}

func TestPollerStopSuppressesCycles(t *testing.T) {
	p, sensors, _ := newPollerFixture(0)
	require.NoError(t, p.Start())

	deadline := time.Now().Add(2 * time.Second)
	for sensors.fetches.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Greater(t, sensors.fetches.Load(), int64(0))

	p.Stop()
	// Let any cycle already past the context check drain before sampling.
	time.Sleep(100 * time.Millisecond)
	after := sensors.fetches.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, after, sensors.fetches.Load())
}

func TestPollerNoDevicesSchedulesClimateOnly(t *testing.T) {
	sensors := &countingSensors{}
	climate := &countingClimate{}
	site := series.Site{Lat: 40.8176, Lon: -96.6917}
	svc := series.NewService(sensors, climate, store.NewSnapshotCache(time.Minute), nopBackfill{}, site, nil, time.Hour)

	p := New(svc, nil, 50*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, p.Start())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for climate.fetches.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Greater(t, climate.fetches.Load(), int64(0))
	assert.Equal(t, int64(0), sensors.fetches.Load())
}
