package series

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// FallbackValues are synthesized daily values substituted when neither a real
// nor a backfilled observation exists for a slot.
type FallbackValues struct {
	TempMaxC float64
	TempMinC float64
	PrecipMm float64
	EtoMm    float64
}

// Mid-latitude seasonal baselines. Day 196 (mid-July) is the warm peak for a
// northern-hemisphere field site.
const (
	seasonalPeakDay = 196

	tempMaxMeanC  = 16.0
	tempMaxSwingC = 13.0
	tempSpreadC   = 10.0

	etoMeanMm  = 3.2
	etoSwingMm = 2.2

	precipChance = 0.3
	precipMaxMm  = 14.0
)

// Synthesize generates plausible daily values from a sinusoidal seasonal
// baseline plus a bounded perturbation drawn from rng. It is a pure function
// of its arguments: the same (dayOfYear, rng seed) pair always produces the
// same values, so fallback windows are reproducible.
func Synthesize(dayOfYear int, rng *rand.Rand) FallbackValues {
	phase := 2 * math.Pi * float64(dayOfYear-seasonalPeakDay) / 365.0
	season := math.Cos(phase)

	tmax := tempMaxMeanC + tempMaxSwingC*season + boundedNoise(rng, 3.0)
	tmin := tmax - tempSpreadC + boundedNoise(rng, 2.0)

	eto := etoMeanMm + etoSwingMm*season + boundedNoise(rng, 0.6)
	if eto < 0 {
		eto = 0
	}

	// Most days are dry; wet days get a bounded random amount.
	var precip float64
	if rng.Float64() < precipChance {
		precip = rng.Float64() * precipMaxMm
	}

	return FallbackValues{
		TempMaxC: round1(tmax),
		TempMinC: round1(tmin),
		PrecipMm: round1(precip),
		EtoMm:    round1(eto),
	}
}

// boundedNoise returns a value uniformly distributed in [-bound, bound].
func boundedNoise(rng *rand.Rand, bound float64) float64 {
	return (rng.Float64()*2 - 1) * bound
}

// fallbackSeed derives a stable per-date seed so repeated polls synthesize
// identical values for the same calendar date.
func fallbackSeed(date string) int64 {
	h := fnv.New64a()
	h.Write([]byte(date))
	return int64(h.Sum64())
}
