package series

import (
	"context"
	"time"
)

// ClimateVariable names an upstream climate timeseries variable.
type ClimateVariable string

const (
	VarETO     ClimateVariable = "eto"  // reference evapotranspiration, mm
	VarPrecip  ClimateVariable = "pr"   // precipitation, mm
	VarTempMax ClimateVariable = "tmmx" // daily max temperature, C
	VarTempMin ClimateVariable = "tmmn" // daily min temperature, C
)

// SensorProvider abstracts the datalogger readings source (Zentra Cloud).
type SensorProvider interface {
	Name() string
	FetchReadings(ctx context.Context, deviceSN string, span time.Duration) (SensorData, error)
	FetchETO(ctx context.Context, deviceSN string) ([]ETOReading, error)
}

// ClimateProvider abstracts the per-day climate source (Climate Engine).
// FetchHistorical serves observed values, FetchForecast predicted ones; both
// key results by calendar date.
type ClimateProvider interface {
	Name() string
	FetchHistorical(ctx context.Context, site Site, v ClimateVariable, start, end time.Time) (map[string]float64, error)
	FetchForecast(ctx context.Context, site Site, v ClimateVariable) (map[string]float64, error)
}

// BackfillEntry holds the forecast values observed for one calendar date, in
// upstream units. Fields are pointers so a variable never forecast for that
// date stays absent.
type BackfillEntry struct {
	EtoMm    *float64 `json:"etoMm,omitempty"`
	PrecipMm *float64 `json:"precipMm,omitempty"`
	TempMaxC *float64 `json:"tempMaxC,omitempty"`
	TempMinC *float64 `json:"tempMinC,omitempty"`
}

// BackfillStore is the contract for the persisted forecast→history cache.
type BackfillStore interface {
	Get(date string) (BackfillEntry, bool)
	Put(date string, e BackfillEntry)
}

// SnapshotStore is the contract for the TTL sensor-data cache. Get returns
// stale entries with fresh=false so callers can degrade gracefully.
type SnapshotStore interface {
	Put(key string, data SensorData)
	Get(key string) (data SensorData, fresh bool, err error)
}
