package series

import "math"

// CToF converts Celsius to Fahrenheit, rounded to one decimal.
func CToF(c float64) float64 {
	return round1(c*9/5 + 32)
}

// MmToIn converts millimeters to inches, rounded to three decimals.
func MmToIn(mm float64) float64 {
	return round3(mm / 25.4)
}

// ToPercent normalizes a water-content value to a percentage. The datalogger
// reports volumetric water content as a fraction (0-1); values already above 1
// are assumed to be percentages and pass through unscaled.
func ToPercent(v float64) float64 {
	if v <= 1 {
		return round1(v * 100)
	}
	return round1(v)
}

// convertPtr applies f to v when v is non-nil and finite, else returns nil.
func convertPtr(v *float64, f func(float64) float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	out := f(*v)
	return &out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func ptr(v float64) *float64 { return &v }
