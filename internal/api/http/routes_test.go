package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/agresearch/field-dashboard/internal/overlay"
	"github.com/agresearch/field-dashboard/internal/raster"
	"github.com/agresearch/field-dashboard/internal/series"
	"github.com/agresearch/field-dashboard/internal/store"
)

type stubSensors struct {
	data series.SensorData
	err  error
}

func (s *stubSensors) Name() string { return "stub" }

func (s *stubSensors) FetchReadings(ctx context.Context, deviceSN string, span time.Duration) (series.SensorData, error) {
	return s.data, s.err
}

func (s *stubSensors) FetchETO(ctx context.Context, deviceSN string) ([]series.ETOReading, error) {
	return nil, s.err
}

type stubClimate struct{}

func (stubClimate) Name() string { return "stub" }

func (stubClimate) FetchHistorical(ctx context.Context, site series.Site, v series.ClimateVariable, start, end time.Time) (map[string]float64, error) {
	return nil, errors.New("unavailable")
}

func (stubClimate) FetchForecast(ctx context.Context, site series.Site, v series.ClimateVariable) (map[string]float64, error) {
	return nil, errors.New("unavailable")
}

type memBackfill map[string]series.BackfillEntry

func (m memBackfill) Get(date string) (series.BackfillEntry, bool) {
	e, ok := m[date]
	return e, ok
}

func (m memBackfill) Put(date string, e series.BackfillEntry) { m[date] = e }

func newTestApp(sensors series.SensorProvider, presenter *overlay.Presenter) *fiber.App {
	app := fiber.New()
	site := series.Site{Lat: 40.8176, Lon: -96.6917}
	svc := series.NewService(sensors, stubClimate{}, store.NewSnapshotCache(time.Minute), memBackfill{}, site, []string{"z6-32396"}, time.Hour)
	RegisterRoutes(app, svc, presenter)
	return app
}

func bandServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < 4; i++ {
		img.Set(i%2, i/2, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testPresenter(t *testing.T) *overlay.Presenter {
	srv := bandServer(t)
	bounds := overlay.GeoBounds{
		SouthWest: overlay.LatLon{Lat: 40.8156, Lon: -96.6947},
		NorthEast: overlay.LatLon{Lat: 40.8196, Lon: -96.6887},
	}
	sources := []raster.BandSource{
		{Name: "red", URL: srv.URL + "/red"},
		{Name: "green", URL: srv.URL + "/green"},
		{Name: "blue", URL: srv.URL + "/blue"},
	}
	return overlay.New(raster.NewLoader(srv.Client()), bounds, sources, raster.Enhancement{})
}

// TestUnknownDeviceRejected verifies that data endpoints 404 for serials
// outside the configured fleet.
func TestUnknownDeviceRejected(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	for _, path := range []string{
		"/api/v1/table/z6-99999",
		"/api/v1/eto/z6-99999",
		"/api/v1/combined/z6-99999",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusNotFound, resp.StatusCode)
		}
	}
}

func TestTableEndpoint(t *testing.T) {
	sensors := &stubSensors{data: series.SensorData{
		series.LabelAirTemp: {{Time: "2025-06-15 10:00", Value: ptrF(25.0)}},
	}}
	app := newTestApp(sensors, testPresenter(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/table/z6-32396", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		DeviceSN string            `json:"device_sn"`
		Count    int               `json:"count"`
		Rows     []series.TableRow `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Rows) != 1 {
		t.Fatalf("expected 1 row, got count=%d rows=%d", body.Count, len(body.Rows))
	}
	if body.Rows[0].TempF == nil || *body.Rows[0].TempF != 77.0 {
		t.Fatalf("expected 77.0 °F, got %v", body.Rows[0].TempF)
	}
}

func TestTableUpstreamFailure(t *testing.T) {
	app := newTestApp(&stubSensors{err: errors.New("rate limited")}, testPresenter(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/table/z6-32396", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, resp.StatusCode)
	}
}

// TestClimateSeriesDegradesInsteadOfFailing verifies the chart endpoint stays
// 200 with a full window even when every upstream call fails.
func TestClimateSeriesDegradesInsteadOfFailing(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/series/climate", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Window   series.SeriesWindow `json:"window"`
		Degraded bool                `json:"degraded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Window.Points) != 11 {
		t.Fatalf("expected 11 points, got %d", len(body.Window.Points))
	}
	if !body.Degraded {
		t.Fatal("expected a degraded window")
	}
}

// TestClimateSeriesCoordinateValidation verifies the lat/lon query override
// is validated: partial pairs and out-of-range values return 400.
func TestClimateSeriesCoordinateValidation(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	// lat without lon should return 400.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/series/climate?lat=40.8", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Out-of-range latitude should also return 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/series/climate?lat=100&lon=-96.7", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// A valid pair is accepted.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/series/climate?lat=41.25&lon=-95.93", nil)
	resp, err = app.Test(req, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestOverlayVisibilityBeforeLoad(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overlay/visibility", bytes.NewBufferString(`{"visible":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, resp.StatusCode)
	}
}

func TestOverlayVisibilityRequiresBody(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overlay/visibility", bytes.NewBufferString(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestOverlayLoadAndComposite(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overlay/load", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var status overlay.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.State != overlay.StateVisible {
		t.Fatalf("expected state %q, got %q", overlay.StateVisible, status.State)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/overlay/composite.png", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get(fiber.HeaderContentType); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("composite is not a valid PNG: %v", err)
	}
}

func TestOverlayBandVisibility(t *testing.T) {
	app := newTestApp(&stubSensors{}, testPresenter(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/overlay/bands/red/visibility", bytes.NewBufferString(`{"visible":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/overlay/bands/nir/visibility", bytes.NewBufferString(`{"visible":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func ptrF(v float64) *float64 { return &v }
