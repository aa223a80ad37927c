package series

// Canonical sensor labels consumed by the dashboard table.
const (
	LabelAirTemp  = "Air Temperature"
	LabelPrecip   = "Precipitation"
	LabelSolar    = "Solar Radiation"
	LabelVPD      = "VPD"
	LabelSoil10   = "TEROS 12 Soil VWC @ 10cm"
	LabelSoil20   = "TEROS 12 Soil VWC @ 20cm"
	LabelWaterGen = "Water Content"
)

// BuildTableRows aligns the sensor series into dashboard table rows with
// display units applied. Rows are aligned on the air-temperature series when
// present, otherwise on the first non-empty series; the row count is the
// shortest non-empty series so every row is fully backed by data positions.
func BuildTableRows(data SensorData) []TableRow {
	temp := data[LabelAirTemp]
	precip := data[LabelPrecip]
	solar := data[LabelSolar]
	vpd := data[LabelVPD]
	soil10 := data[LabelSoil10]
	soil20 := data[LabelSoil20]

	// Stations without port-tagged probes report a single generic series.
	if len(soil10) == 0 && len(soil20) == 0 {
		soil10 = data[LabelWaterGen]
	}

	all := [][]Reading{temp, precip, solar, vpd, soil10, soil20}

	var base []Reading
	for _, s := range all {
		if len(s) > 0 {
			base = s
			break
		}
	}
	if base == nil {
		return nil
	}

	minLen := len(base)
	for _, s := range all {
		if len(s) > 0 && len(s) < minLen {
			minLen = len(s)
		}
	}

	rows := make([]TableRow, 0, minLen)
	for i := 0; i < minLen; i++ {
		rows = append(rows, TableRow{
			Time:      base[i].Time,
			TempF:     convertPtr(at(temp, i), CToF),
			PrecipIn:  convertPtr(at(precip, i), MmToIn),
			SolarWM2:  passthrough(at(solar, i)),
			VPDKPa:    passthrough(at(vpd, i)),
			Soil10Pct: convertPtr(at(soil10, i), ToPercent),
			Soil20Pct: convertPtr(at(soil20, i), ToPercent),
		})
	}
	return rows
}

func at(s []Reading, i int) *float64 {
	if i >= len(s) {
		return nil
	}
	return s[i].Value
}

func passthrough(v *float64) *float64 {
	return convertPtr(v, func(f float64) float64 { return f })
}
