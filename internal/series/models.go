package series

import (
	"fmt"
	"time"
)

// Provenance records where a time-series value came from.
type Provenance string

const (
	// ProvenanceHistorical marks values observed in the past, including
	// forecast values promoted to history by the backfill store.
	ProvenanceHistorical Provenance = "historical"
	// ProvenanceForecast marks values predicted for today or later.
	ProvenanceForecast Provenance = "forecast"
	// ProvenanceFallback marks synthesized values substituted when no real
	// data was available for a slot.
	ProvenanceFallback Provenance = "fallback"
)

// Site is the field location climate data is requested for.
// Lat/Lon must be provided (directly or via geocoding at config time).
type Site struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key returns a canonical string key for indexing this site in caches.
func (s Site) Key() string {
	return fmt.Sprintf("%.4f:%.4f", s.Lat, s.Lon)
}

// TimePoint is the canonical per-slot record served to the chart layer.
// Fields are pointers because absence is meaningful: a nil field means no
// data for that variable at that time, which is not the same as zero.
type TimePoint struct {
	Date       string     `json:"date"` // calendar date, 2006-01-02
	TempMaxF   *float64   `json:"tempMaxF,omitempty"`
	TempMinF   *float64   `json:"tempMinF,omitempty"`
	PrecipIn   *float64   `json:"precipIn,omitempty"`
	EtoIn      *float64   `json:"etoIn,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// SeriesWindow is the chronological concatenation of a trailing historical
// segment and a leading forecast segment. Every slot carries exactly one
// provenance tag; the window length is always PastDays+1+FutureDays.
type SeriesWindow struct {
	Site        Site        `json:"site"`
	PastDays    int         `json:"pastDays"`
	FutureDays  int         `json:"futureDays"`
	Points      []TimePoint `json:"points"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// Degraded reports whether any slot had to be synthesized, so the dashboard
// can show a fallback indicator.
func (w SeriesWindow) Degraded() bool {
	for _, p := range w.Points {
		if p.Provenance == ProvenanceFallback {
			return true
		}
	}
	return false
}

// Reading is a single timestamped sensor value. Value is nil when the
// datalogger reported the slot without a usable number.
type Reading struct {
	Time  string   `json:"time"`
	Value *float64 `json:"value"`
}

// SensorData maps a normalized sensor label to its readings, oldest first.
// Labels follow the datalogger conventions, e.g. "Air Temperature" or
// "TEROS 12 Soil VWC @ 10cm".
type SensorData map[string][]Reading

// TableRow is one dashboard table line with display units applied.
type TableRow struct {
	Time      string   `json:"time"`
	TempF     *float64 `json:"temp_f"`
	PrecipIn  *float64 `json:"precip_in"`
	SolarWM2  *float64 `json:"solar_w_m2"`
	VPDKPa    *float64 `json:"vpd_kpa"`
	Soil10Pct *float64 `json:"soil10_pct"`
	Soil20Pct *float64 `json:"soil20_pct"`
}

// TableUnits is served alongside table rows so the UI can label columns.
var TableUnits = map[string]string{
	"temp_f":     "°F",
	"precip_in":  "in",
	"solar_w_m2": "W/m²",
	"vpd_kpa":    "kPa",
	"soil10_pct": "%",
	"soil20_pct": "%",
}

// ETOReading is a single evapotranspiration observation with its source label.
type ETOReading struct {
	Time  string   `json:"time"`
	Value *float64 `json:"value"`
	Label string   `json:"label"`
	Units string   `json:"units"`
}
