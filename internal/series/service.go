package series

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Sensor fetch spans. Tables want 24h of coverage; fetching 30h absorbs
// upstream reporting lag. ETO series span a week.
const (
	tableFetchSpan = 30 * time.Hour
	etoFetchSpan   = 7 * 24 * time.Hour
)

// DefaultClimateWindow is the 11-slot chart window: 5 past days, today, and
// 5 forecast days.
var DefaultClimateWindow = Window{PastDays: 5, FutureDays: 5}

// Service orchestrates providers, caches, and the normalizer. Sensor lookups
// degrade to stale cache on upstream failure; the climate window never fails
// outward at all.
type Service struct {
	sensors    SensorProvider
	climate    ClimateProvider
	snapshots  SnapshotStore
	normalizer *Normalizer
	site       Site
	devices    []string

	climateTTL time.Duration

	mu          sync.Mutex
	etoCache    map[string]etoEntry
	windowCache map[string]windowEntry
}

type etoEntry struct {
	readings  []ETOReading
	fetchedAt time.Time
}

type windowEntry struct {
	window    SeriesWindow
	fetchedAt time.Time
}

// NewService creates a Service. climateTTL bounds how often the climate API
// is hit for the same window; sensor freshness is the snapshot store's TTL.
func NewService(sensors SensorProvider, climate ClimateProvider, snapshots SnapshotStore, backfill BackfillStore, site Site, devices []string, climateTTL time.Duration) *Service {
	return &Service{
		sensors:     sensors,
		climate:     climate,
		snapshots:   snapshots,
		normalizer:  NewNormalizer(backfill),
		site:        site,
		devices:     devices,
		climateTTL:  climateTTL,
		etoCache:    make(map[string]etoEntry),
		windowCache: make(map[string]windowEntry),
	}
}

// Site returns the configured field site.
func (s *Service) Site() Site { return s.site }

// Devices returns the configured datalogger serials.
func (s *Service) Devices() []string { return s.devices }

// ValidDevice reports whether deviceSN is one of the configured dataloggers.
func (s *Service) ValidDevice(deviceSN string) bool {
	for _, sn := range s.devices {
		if sn == deviceSN {
			return true
		}
	}
	return false
}

// SensorData returns normalized readings for a device, serving the cache
// while fresh and falling back to stale cache when the upstream fetch fails.
// The returned error is non-nil only when no data at all could be served.
func (s *Service) SensorData(ctx context.Context, deviceSN string) (SensorData, error) {
	if cached, fresh, err := s.snapshots.Get(deviceSN); err == nil && fresh {
		return cached, nil
	}

	data, err := s.sensors.FetchReadings(ctx, deviceSN, tableFetchSpan)
	if err == nil {
		s.snapshots.Put(deviceSN, data)
		return data, nil
	}

	log.Printf("sensor fetch failed for %s: %v", deviceSN, err)
	if cached, _, cacheErr := s.snapshots.Get(deviceSN); cacheErr == nil {
		log.Printf("serving stale sensor data for %s", deviceSN)
		return cached, nil
	}
	return nil, fmt.Errorf("no sensor data available for %s: %w", deviceSN, err)
}

// TableRows returns the dashboard table for a device.
func (s *Service) TableRows(ctx context.Context, deviceSN string) ([]TableRow, error) {
	data, err := s.SensorData(ctx, deviceSN)
	if err != nil {
		return nil, err
	}
	return BuildTableRows(data), nil
}

// ETOReadings returns the trailing week of evapotranspiration observations
// for a device, cached with the climate TTL and degrading to stale cache.
func (s *Service) ETOReadings(ctx context.Context, deviceSN string) ([]ETOReading, error) {
	s.mu.Lock()
	cached, ok := s.etoCache[deviceSN]
	s.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < s.climateTTL {
		return cached.readings, nil
	}

	readings, err := s.sensors.FetchETO(ctx, deviceSN)
	if err != nil {
		log.Printf("eto fetch failed for %s: %v", deviceSN, err)
		if ok {
			return cached.readings, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.etoCache[deviceSN] = etoEntry{readings: readings, fetchedAt: time.Now()}
	s.mu.Unlock()
	return readings, nil
}

// ClimateWindow returns the normalized chart window for the configured site.
// It never returns an error: failed upstream calls leave their payload maps
// empty and the normalizer degrades slot by slot through the backfill store
// down to synthesized fallback values.
func (s *Service) ClimateWindow(ctx context.Context) SeriesWindow {
	return s.ClimateWindowAt(ctx, s.site)
}

// ClimateWindowAt is ClimateWindow for an explicit site, used when the caller
// overrides the configured coordinates.
func (s *Service) ClimateWindowAt(ctx context.Context, site Site) SeriesWindow {
	return s.window(ctx, site, DefaultClimateWindow, false)
}

// TemperatureForecast returns the leading week of daily min/max temperatures,
// with the same degradation guarantees as ClimateWindow.
func (s *Service) TemperatureForecast(ctx context.Context) SeriesWindow {
	return s.TemperatureForecastAt(ctx, s.site)
}

// TemperatureForecastAt is TemperatureForecast for an explicit site.
func (s *Service) TemperatureForecastAt(ctx context.Context, site Site) SeriesWindow {
	return s.window(ctx, site, Window{PastDays: 0, FutureDays: 6}, true)
}

func (s *Service) window(ctx context.Context, site Site, w Window, tempsOnly bool) SeriesWindow {
	key := fmt.Sprintf("%s:%d:%d:%t", site.Key(), w.PastDays, w.FutureDays, tempsOnly)

	s.mu.Lock()
	cached, ok := s.windowCache[key]
	s.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < s.climateTTL {
		return cached.window
	}

	now := time.Now().UTC()
	raw := s.fetchClimate(ctx, site, w, now, tempsOnly)
	window := s.normalizer.Normalize(site, raw, w, now)

	s.mu.Lock()
	s.windowCache[key] = windowEntry{window: window, fetchedAt: time.Now()}
	s.mu.Unlock()
	return window
}

// fetchClimate fans the per-variable calls out concurrently. Each failed
// call is logged and leaves its map nil for the normalizer to degrade around.
func (s *Service) fetchClimate(ctx context.Context, site Site, w Window, now time.Time, tempsOnly bool) ClimatePayloads {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		raw ClimatePayloads
	)

	fetch := func(assign func(p *ClimatePayloads, m map[string]float64), call func() (map[string]float64, error), what string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := call()
			if err != nil {
				log.Printf("climate fetch failed for %s %s: %v", site.Key(), what, err)
				return
			}
			mu.Lock()
			assign(&raw, m)
			mu.Unlock()
		}()
	}

	if !tempsOnly && w.PastDays > 0 {
		start := now.AddDate(0, 0, -w.PastDays)
		fetch(func(p *ClimatePayloads, m map[string]float64) { p.HistoricalEto = m },
			func() (map[string]float64, error) { return s.climate.FetchHistorical(ctx, site, VarETO, start, now) },
			"historical eto")
		fetch(func(p *ClimatePayloads, m map[string]float64) { p.HistoricalPrecip = m },
			func() (map[string]float64, error) { return s.climate.FetchHistorical(ctx, site, VarPrecip, start, now) },
			"historical precipitation")
	}
	if !tempsOnly {
		fetch(func(p *ClimatePayloads, m map[string]float64) { p.ForecastEto = m },
			func() (map[string]float64, error) { return s.climate.FetchForecast(ctx, site, VarETO) },
			"forecast eto")
		fetch(func(p *ClimatePayloads, m map[string]float64) { p.ForecastPrecip = m },
			func() (map[string]float64, error) { return s.climate.FetchForecast(ctx, site, VarPrecip) },
			"forecast precipitation")
	}
	fetch(func(p *ClimatePayloads, m map[string]float64) { p.ForecastTempMax = m },
		func() (map[string]float64, error) { return s.climate.FetchForecast(ctx, site, VarTempMax) },
		"forecast tmax")
	fetch(func(p *ClimatePayloads, m map[string]float64) { p.ForecastTempMin = m },
		func() (map[string]float64, error) { return s.climate.FetchForecast(ctx, site, VarTempMin) },
		"forecast tmin")

	wg.Wait()
	return raw
}

// SoilSummary is the latest soil-moisture aggregate for a device.
type SoilSummary struct {
	Time      string   `json:"time,omitempty"`
	Soil10Pct *float64 `json:"soil10_pct"`
	Soil20Pct *float64 `json:"soil20_pct"`
	AvgPct    *float64 `json:"avg_pct"`
}

// DeviceSummary is the combined latest view for one datalogger.
type DeviceSummary struct {
	DeviceSN string      `json:"device_sn"`
	Latest   *TableRow   `json:"latest,omitempty"`
	Soil     SoilSummary `json:"soil"`
	Error    string      `json:"error,omitempty"`
}

// CombinedSummary returns the latest values for every configured device. A
// device whose data cannot be served is reported with an error string rather
// than failing the whole call.
func (s *Service) CombinedSummary(ctx context.Context) []DeviceSummary {
	summaries := make([]DeviceSummary, 0, len(s.devices))
	for _, sn := range s.devices {
		data, err := s.SensorData(ctx, sn)
		if err != nil {
			summaries = append(summaries, DeviceSummary{DeviceSN: sn, Error: err.Error()})
			continue
		}

		summary := DeviceSummary{DeviceSN: sn, Soil: soilSummary(data)}
		if rows := BuildTableRows(data); len(rows) > 0 {
			latest := rows[len(rows)-1]
			summary.Latest = &latest
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// soilSummary picks the latest soil readings and their average.
func soilSummary(data SensorData) SoilSummary {
	s10 := data[LabelSoil10]
	if len(s10) == 0 {
		s10 = data[LabelWaterGen]
	}
	s20 := data[LabelSoil20]

	var out SoilSummary
	if len(s10) > 0 {
		last := s10[len(s10)-1]
		out.Time = last.Time
		out.Soil10Pct = convertPtr(last.Value, ToPercent)
	}
	if len(s20) > 0 {
		last := s20[len(s20)-1]
		if out.Time == "" {
			out.Time = last.Time
		}
		out.Soil20Pct = convertPtr(last.Value, ToPercent)
	}

	switch {
	case out.Soil10Pct != nil && out.Soil20Pct != nil:
		out.AvgPct = ptr(round1((*out.Soil10Pct + *out.Soil20Pct) / 2))
	case out.Soil10Pct != nil:
		out.AvgPct = out.Soil10Pct
	case out.Soil20Pct != nil:
		out.AvgPct = out.Soil20Pct
	}
	return out
}
