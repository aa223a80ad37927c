package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/agresearch/field-dashboard/internal/common"
	"github.com/agresearch/field-dashboard/internal/series"
)

// ZentraProvider fetches datalogger readings from the Zentra Cloud API.
// The API serves one station per device serial and rate-limits to one call
// per minute, which is why callers cache aggressively.
type ZentraProvider struct {
	name    string
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewZentraProvider creates a provider. baseURL may be empty to use the
// production endpoint; tests point it at a local server.
func NewZentraProvider(client *http.Client, token, baseURL string) *ZentraProvider {
	if baseURL == "" {
		baseURL = "https://zentracloud.com/api/v3/get_readings/"
	}
	return &ZentraProvider{
		name:    "zentra",
		token:   token,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newCircuit("zentra"),
	}
}

func (p *ZentraProvider) Name() string { return p.name }

type zentraReading struct {
	Datetime string      `json:"datetime"`
	Value    interface{} `json:"value"`
}

type zentraSeries struct {
	Port       interface{} `json:"port"`
	PortNum    interface{} `json:"port_num"`
	SourcePort interface{} `json:"source_port"`
	Channel    interface{} `json:"channel"`
	PortNumber interface{} `json:"port_number"`

	SeriesLabel string `json:"series_label"`
	Label       string `json:"label"`
	SensorName  string `json:"sensor_name"`
	SeriesName  string `json:"series_name"`

	Metadata struct {
		Units string `json:"units"`
	} `json:"metadata"`

	Readings []zentraReading `json:"readings"`
}

// FetchReadings returns normalized sensor data covering the trailing span.
// The Zentra timestamp format and the port-aware TEROS label mapping follow
// the station's wiring: ports 1/4 carry 10cm probes, 2/5 carry 20cm probes,
// 3/6 carry matric potential sensors.
func (p *ZentraProvider) FetchReadings(ctx context.Context, deviceSN string, span time.Duration) (series.SensorData, error) {
	data, err := p.fetchRaw(ctx, deviceSN, span)
	if err != nil {
		return nil, err
	}
	return normalizeZentraPayload(data), nil
}

// FetchETO scans a week of readings for evapotranspiration series.
func (p *ZentraProvider) FetchETO(ctx context.Context, deviceSN string) ([]series.ETOReading, error) {
	data, err := p.fetchRaw(ctx, deviceSN, 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	var out []series.ETOReading
	for label, seriesList := range data {
		if !common.HasAnyFold(label, "eto", "evapotranspiration", "reference et") {
			continue
		}
		for _, s := range seriesList {
			units := s.Metadata.Units
			if units == "" {
				units = "mm"
			}
			for _, r := range s.Readings {
				out = append(out, series.ETOReading{
					Time:  r.Datetime,
					Value: asFloat(r.Value),
					Label: label,
					Units: units,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// fetchRaw returns the undecoded series map for callers that need metadata.
func (p *ZentraProvider) fetchRaw(ctx context.Context, deviceSN string, span time.Duration) (map[string][]zentraSeries, error) {
	if p.token == "" {
		return nil, &FetchError{Provider: p.name, Err: fmt.Errorf("api token is not configured")}
	}

	buildRequest := func() (*http.Request, error) {
		now := time.Now().UTC()
		values := url.Values{}
		values.Set("device_sn", deviceSN)
		values.Set("start_date", now.Add(-span).Format("2006-01-02 15:04"))
		values.Set("end_date", now.Format("2006-01-02 15:04"))
		values.Set("output_format", "json")
		values.Set("per_page", "1000")

		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", p.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, &FetchError{Provider: p.name, Status: statusOf(err), Err: err}
	}
	defer resp.Body.Close()

	var payload struct {
		Data map[string][]zentraSeries `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FetchError{Provider: p.name, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return payload.Data, nil
}

// normalizeZentraPayload flattens the label→series map into SensorData,
// splitting port-tagged TEROS series into depth-specific labels.
func normalizeZentraPayload(data map[string][]zentraSeries) series.SensorData {
	sensors := make(series.SensorData)

	appendReadings := func(label string, s zentraSeries) {
		for _, r := range s.Readings {
			sensors[label] = append(sensors[label], series.Reading{
				Time:  r.Datetime,
				Value: asFloat(r.Value),
			})
		}
	}

	for label, seriesList := range data {
		switch {
		case common.HasAnyFold(label, "water content", "volumetric water content", "soil vwc", "vwc"):
			for _, s := range seriesList {
				switch port(s) {
				case 1, 4:
					appendReadings("TEROS 12 Soil VWC @ 10cm", s)
				case 2, 5:
					appendReadings("TEROS 12 Soil VWC @ 20cm", s)
				default:
					appendReadings("Water Content", s)
				}
			}

		case common.HasAnyFold(label, "soil temperature"):
			for _, s := range seriesList {
				switch port(s) {
				case 1, 4:
					appendReadings("TEROS 12 Soil Temperature @ 10cm", s)
				case 2, 5:
					appendReadings("TEROS 12 Soil Temperature @ 20cm", s)
				default:
					appendReadings("Soil Temperature", s)
				}
			}

		case common.HasAnyFold(label, "electrical conductivity", "saturation extract ec"):
			for _, s := range seriesList {
				switch port(s) {
				case 1, 4:
					appendReadings("TEROS 12 Electrical Conductivity @ 10cm", s)
				case 2, 5:
					appendReadings("TEROS 12 Electrical Conductivity @ 20cm", s)
				default:
					appendReadings("Electrical Conductivity", s)
				}
			}

		case common.HasAnyFold(label, "matric potential", "water potential"):
			for _, s := range seriesList {
				appendReadings("TEROS 21 Matric Potential", s)
			}

		default:
			for _, s := range seriesList {
				appendReadings(label, s)
			}
		}
	}

	return sensors
}

var portPattern = regexp.MustCompile(`(?i)(?:port|p)\s*[:#]?\s*(\d+)`)

// port extracts the datalogger port from series metadata: direct numeric
// fields first, then "Port 1"/"(P2)" style markers in label fields.
// Returns 0 when no port can be determined.
func port(s zentraSeries) int {
	for _, v := range []interface{}{s.Port, s.PortNum, s.SourcePort, s.Channel, s.PortNumber} {
		if n, ok := asInt(v); ok {
			return n
		}
	}
	for _, label := range []string{s.SeriesLabel, s.Label, s.SensorName, s.SeriesName} {
		if m := portPattern.FindStringSubmatch(label); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	return 0
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// asFloat coerces a reading value to a float pointer; non-numeric values
// (nulls, sensor error strings) stay nil rather than becoming zero.
func asFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
