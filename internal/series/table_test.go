package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readings(times []string, values []float64) []Reading {
	out := make([]Reading, len(times))
	for i, tm := range times {
		v := values[i]
		out[i] = Reading{Time: tm, Value: &v}
	}
	return out
}

func TestBuildTableRowsConvertsUnits(t *testing.T) {
	times := []string{"2025-06-15 10:00", "2025-06-15 10:05"}
	data := SensorData{
		LabelAirTemp: readings(times, []float64{25.0, 26.5}),
		LabelPrecip:  readings(times, []float64{0.0, 25.4}),
		LabelSolar:   readings(times, []float64{640.0, 655.0}),
		LabelVPD:     readings(times, []float64{1.2, 1.3}),
		LabelSoil10:  readings(times, []float64{0.31, 0.32}),
		LabelSoil20:  readings(times, []float64{0.28, 0.29}),
	}

	rows := BuildTableRows(data)
	require.Len(t, rows, 2)

	assert.Equal(t, "2025-06-15 10:00", rows[0].Time)
	assert.Equal(t, 77.0, *rows[0].TempF)
	assert.Equal(t, 0.0, *rows[0].PrecipIn)
	assert.Equal(t, 1.0, *rows[1].PrecipIn)
	assert.Equal(t, 640.0, *rows[0].SolarWM2) // W/m² passes through
	assert.Equal(t, 1.2, *rows[0].VPDKPa)
	assert.Equal(t, 31.0, *rows[0].Soil10Pct)
	assert.Equal(t, 28.0, *rows[0].Soil20Pct)
}

func TestBuildTableRowsWaterContentFallback(t *testing.T) {
	times := []string{"2025-06-15 10:00"}
	data := SensorData{
		LabelAirTemp:  readings(times, []float64{20.0}),
		LabelWaterGen: readings(times, []float64{0.4}),
	}

	rows := BuildTableRows(data)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Soil10Pct)
	assert.Equal(t, 40.0, *rows[0].Soil10Pct)
	assert.Nil(t, rows[0].Soil20Pct)
}

func TestBuildTableRowsShortestSeriesWins(t *testing.T) {
	data := SensorData{
		LabelAirTemp: readings([]string{"a", "b", "c"}, []float64{20, 21, 22}),
		LabelVPD:     readings([]string{"a", "b"}, []float64{1.0, 1.1}),
	}

	rows := BuildTableRows(data)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].PrecipIn)
	assert.Nil(t, rows[0].Soil10Pct)
}

func TestBuildTableRowsEmpty(t *testing.T) {
	assert.Nil(t, BuildTableRows(SensorData{}))
	assert.Nil(t, BuildTableRows(nil))
}

func TestBuildTableRowsNilValuePreserved(t *testing.T) {
	data := SensorData{
		LabelAirTemp: {
			{Time: "a", Value: ptr(20.0)},
			{Time: "b", Value: nil},
		},
	}

	rows := BuildTableRows(data)
	require.Len(t, rows, 2)
	assert.NotNil(t, rows[0].TempF)
	assert.Nil(t, rows[1].TempF)
}
