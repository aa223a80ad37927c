package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/agresearch/field-dashboard/internal/series"
)

// Climate Engine datasets: GRIDMET serves observed history, CFS_GRIDMET
// serves the bias-corrected forecast.
const (
	datasetHistorical = "GRIDMET"
	datasetForecast   = "CFS_GRIDMET"
)

// ClimateEngineProvider fetches per-day aggregated climate values for a
// coordinate from the Climate Engine API. All requests carry bearer-token
// authentication.
type ClimateEngineProvider struct {
	name    string
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClimateEngineProvider creates a provider. baseURL may be empty to use
// the production endpoint; tests point it at a local server.
func NewClimateEngineProvider(client *http.Client, token, baseURL string) *ClimateEngineProvider {
	if baseURL == "" {
		baseURL = "https://api.climateengine.org"
	}
	return &ClimateEngineProvider{
		name:    "climate-engine",
		token:   token,
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newCircuit("climate-engine"),
	}
}

func (p *ClimateEngineProvider) Name() string { return p.name }

// FetchHistorical returns observed daily values for variable between start
// and end (inclusive), keyed by date string.
func (p *ClimateEngineProvider) FetchHistorical(ctx context.Context, site series.Site, v series.ClimateVariable, start, end time.Time) (map[string]float64, error) {
	params := url.Values{}
	params.Set("coordinates", coordinateParam(site))
	params.Set("area_reducer", "mean")
	params.Set("dataset", datasetHistorical)
	params.Set("variable", string(v))
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))

	return p.fetchTimeseries(ctx, "/timeseries/native/coordinates", params)
}

// FetchForecast returns forecast daily values for variable, keyed by date
// string. The forecast endpoint chooses its own horizon.
func (p *ClimateEngineProvider) FetchForecast(ctx context.Context, site series.Site, v series.ClimateVariable) (map[string]float64, error) {
	params := url.Values{}
	params.Set("coordinates", coordinateParam(site))
	params.Set("area_reducer", "mean")
	params.Set("dataset", datasetForecast)
	params.Set("variable", string(v))
	params.Set("export_format", "json")

	return p.fetchTimeseries(ctx, "/timeseries/native/forecasts/coordinates", params)
}

func (p *ClimateEngineProvider) fetchTimeseries(ctx context.Context, path string, params url.Values) (map[string]float64, error) {
	if p.token == "" {
		return nil, &FetchError{Provider: p.name, Err: fmt.Errorf("api token is not configured")}
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s%s?%s", p.baseURL, path, params.Encode()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+p.token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, &FetchError{Provider: p.name, Status: statusOf(err), Err: err}
	}
	defer resp.Body.Close()

	// The payload is a list of per-coordinate results, each holding Data rows
	// of the form {"Date": "2024-10-01", "eto (mm)": 3.2}. The value key name
	// embeds the variable and units, so rows are decoded generically.
	var payload []struct {
		Data []map[string]interface{} `json:"Data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FetchError{Provider: p.name, Err: fmt.Errorf("decode payload: %w", err)}
	}

	out := make(map[string]float64)
	for _, coord := range payload {
		for _, row := range coord.Data {
			date, _ := row["Date"].(string)
			if date == "" {
				continue
			}
			for key, raw := range row {
				if key == "Date" {
					continue
				}
				if f := asFloat(raw); f != nil {
					out[date] = *f
					break
				}
			}
		}
	}
	return out, nil
}

// coordinateParam renders the [[lon, lat]] coordinate array the API expects.
func coordinateParam(site series.Site) string {
	return fmt.Sprintf("[[%g, %g]]", site.Lon, site.Lat)
}
