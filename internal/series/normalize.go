package series

import (
	"math/rand"
	"time"
)

// ClimatePayloads collects the raw per-variable maps fetched for one cycle,
// keyed by calendar date. Maps may be nil or partially populated when calls
// failed; the normalizer treats missing data as a condition to degrade
// around, never as an error.
type ClimatePayloads struct {
	HistoricalEto    map[string]float64
	HistoricalPrecip map[string]float64
	ForecastEto      map[string]float64
	ForecastPrecip   map[string]float64
	ForecastTempMax  map[string]float64
	ForecastTempMin  map[string]float64
}

// Window describes a requested slot range around today: PastDays trailing
// dates, today, and FutureDays leading dates.
type Window struct {
	PastDays   int
	FutureDays int
}

// Len returns the number of slots the window spans.
func (w Window) Len() int { return w.PastDays + 1 + w.FutureDays }

// Normalizer maps heterogeneous upstream payloads into a SeriesWindow. It
// owns the forecast→history backfill: forecast values are cached by date, and
// once a date has moved into the past the cached value is promoted to serve
// as the historical observation rather than re-synthesized.
type Normalizer struct {
	backfill BackfillStore
}

// NewNormalizer creates a Normalizer over the given backfill store.
func NewNormalizer(backfill BackfillStore) *Normalizer {
	return &Normalizer{backfill: backfill}
}

// Normalize builds the window for the given payloads. It always returns
// exactly w.Len() points in chronological order, each carrying exactly one
// provenance tag; slots with no real or backfilled data are synthesized and
// tagged fallback. Output values are in display units (°F, inches).
func (n *Normalizer) Normalize(site Site, raw ClimatePayloads, w Window, now time.Time) SeriesWindow {
	today := now.UTC().Truncate(24 * time.Hour)
	points := make([]TimePoint, 0, w.Len())

	for off := -w.PastDays; off <= w.FutureDays; off++ {
		day := today.AddDate(0, 0, off)
		date := day.Format("2006-01-02")

		var p TimePoint
		if off < 0 {
			p = n.historicalPoint(date, raw)
		} else {
			p = n.forecastPoint(date, raw)
		}

		if p.Provenance == "" {
			p = n.fallbackPoint(date, day)
		}
		p.Date = date
		points = append(points, p)
	}

	return SeriesWindow{
		Site:        site,
		PastDays:    w.PastDays,
		FutureDays:  w.FutureDays,
		Points:      points,
		GeneratedAt: now.UTC(),
	}
}

// historicalPoint assembles a past slot from observed values, backfilling
// absent variables from previously cached forecasts for that date. The
// provenance stays empty when nothing at all was found.
func (n *Normalizer) historicalPoint(date string, raw ClimatePayloads) TimePoint {
	var p TimePoint

	cached, hasCached := n.backfill.Get(date)

	if v, ok := raw.HistoricalEto[date]; ok {
		p.EtoIn = ptr(MmToIn(v))
	} else if hasCached && cached.EtoMm != nil {
		p.EtoIn = ptr(MmToIn(*cached.EtoMm))
	}

	if v, ok := raw.HistoricalPrecip[date]; ok {
		p.PrecipIn = ptr(MmToIn(v))
	} else if hasCached && cached.PrecipMm != nil {
		p.PrecipIn = ptr(MmToIn(*cached.PrecipMm))
	}

	// No historical temperature source exists; promoted forecasts are the
	// only way a past slot gets temperatures.
	if hasCached && cached.TempMaxC != nil {
		p.TempMaxF = ptr(CToF(*cached.TempMaxC))
	}
	if hasCached && cached.TempMinC != nil {
		p.TempMinF = ptr(CToF(*cached.TempMinC))
	}

	if p.EtoIn != nil || p.PrecipIn != nil || p.TempMaxF != nil || p.TempMinF != nil {
		p.Provenance = ProvenanceHistorical
	}
	return p
}

// forecastPoint assembles today or a future slot from forecast values and
// records them in the backfill store for later promotion. Today falls back to
// the historical payload when the forecast has no row for it yet.
func (n *Normalizer) forecastPoint(date string, raw ClimatePayloads) TimePoint {
	var p TimePoint
	var entry BackfillEntry

	if v, ok := raw.ForecastEto[date]; ok {
		p.EtoIn = ptr(MmToIn(v))
		entry.EtoMm = ptr(v)
	} else if v, ok := raw.HistoricalEto[date]; ok {
		p.EtoIn = ptr(MmToIn(v))
		entry.EtoMm = ptr(v)
	}

	if v, ok := raw.ForecastPrecip[date]; ok {
		p.PrecipIn = ptr(MmToIn(v))
		entry.PrecipMm = ptr(v)
	} else if v, ok := raw.HistoricalPrecip[date]; ok {
		p.PrecipIn = ptr(MmToIn(v))
		entry.PrecipMm = ptr(v)
	}

	if v, ok := raw.ForecastTempMax[date]; ok {
		p.TempMaxF = ptr(CToF(v))
		entry.TempMaxC = ptr(v)
	}
	if v, ok := raw.ForecastTempMin[date]; ok {
		p.TempMinF = ptr(CToF(v))
		entry.TempMinC = ptr(v)
	}

	if p.EtoIn != nil || p.PrecipIn != nil || p.TempMaxF != nil || p.TempMinF != nil {
		p.Provenance = ProvenanceForecast
		n.backfill.Put(date, entry)
	}
	return p
}

// fallbackPoint synthesizes a full slot from the seasonal model, seeded by
// the date so repeated polls produce identical values.
func (n *Normalizer) fallbackPoint(date string, day time.Time) TimePoint {
	rng := rand.New(rand.NewSource(fallbackSeed(date)))
	v := Synthesize(day.YearDay(), rng)

	return TimePoint{
		TempMaxF:   ptr(CToF(v.TempMaxC)),
		TempMinF:   ptr(CToF(v.TempMinC)),
		PrecipIn:   ptr(MmToIn(v.PrecipMm)),
		EtoIn:      ptr(MmToIn(v.EtoMm)),
		Provenance: ProvenanceFallback,
	}
}
