package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelvins/geocoder"

	"github.com/agresearch/field-dashboard/internal/overlay"
	"github.com/agresearch/field-dashboard/internal/raster"
	"github.com/agresearch/field-dashboard/internal/series"
)

type AppConfig struct {
	ZentraToken   string
	ZentraBaseURL string // empty = production

	ClimateEngineToken   string
	ClimateEngineBaseURL string // empty = production

	// Dataloggers to track.
	DeviceSNs []string

	// Field site for climate series and the overlay rectangle.
	Site   series.Site
	Bounds overlay.GeoBounds

	// Band images in red, green, blue order.
	BandSources []raster.BandSource

	// Overlay enhancement; the zero value means no post-processing.
	Enhancement raster.Enhancement

	// Poll intervals per data category.
	SensorInterval  time.Duration
	ClimateInterval time.Duration

	// Cache freshness.
	SensorCacheTTL  time.Duration
	ClimateCacheTTL time.Duration

	// Forecast backfill persistence.
	BackfillPath          string
	BackfillRetentionDays int

	HTTPTimeout time.Duration
	Port        string
}

// Default dataloggers: the four field stations, front/back on each side.
var defaultDeviceSNs = []string{"z6-32396", "z6-20881", "z6-27574", "z6-27573"}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.ZentraToken = os.Getenv("ZENTRA_API_TOKEN")
	cfg.ZentraBaseURL = os.Getenv("ZENTRA_BASE_URL")
	cfg.ClimateEngineToken = os.Getenv("CLIMATE_ENGINE_API_TOKEN")
	cfg.ClimateEngineBaseURL = os.Getenv("CLIMATE_ENGINE_BASE_URL")

	cfg.DeviceSNs = defaultDeviceSNs
	if v := os.Getenv("ZENTRA_DEVICE_SNS"); v != "" {
		cfg.DeviceSNs = splitTrim(v)
	}

	site, err := loadSite()
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	bounds, err := loadBounds(site)
	if err != nil {
		return nil, err
	}
	cfg.Bounds = bounds

	cfg.BandSources = []raster.BandSource{
		{Name: "red", URL: os.Getenv("BAND_RED_URL")},
		{Name: "green", URL: os.Getenv("BAND_GREEN_URL")},
		{Name: "blue", URL: os.Getenv("BAND_BLUE_URL")},
	}

	cfg.Enhancement = raster.Enhancement{
		Gamma:    getenvFloat("OVERLAY_GAMMA", 0),
		Contrast: getenvFloat("OVERLAY_CONTRAST", 0),
	}

	cfg.SensorInterval, err = getenvDuration("SENSOR_POLL_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	cfg.ClimateInterval, err = getenvDuration("CLIMATE_POLL_INTERVAL", "2h")
	if err != nil {
		return nil, err
	}

	// Sensor TTL matches the upstream rate limit of one call per minute.
	cfg.SensorCacheTTL, err = getenvDuration("SENSOR_CACHE_TTL", "1m")
	if err != nil {
		return nil, err
	}
	cfg.ClimateCacheTTL, err = getenvDuration("CLIMATE_CACHE_TTL", "2h")
	if err != nil {
		return nil, err
	}

	cfg.BackfillPath = getenvDefault("BACKFILL_CACHE_FILE", "data/forecast_backfill.json")
	cfg.BackfillRetentionDays = getenvInt("BACKFILL_RETENTION_DAYS", 30)

	cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// loadSite resolves the field coordinates: explicit SITE_LAT/SITE_LON first,
// then a geocoder lookup when only a place is configured.
func loadSite() (series.Site, error) {
	site := series.Site{
		Name: getenvDefault("SITE_NAME", "research field"),
	}

	latStr, lonStr := os.Getenv("SITE_LAT"), os.Getenv("SITE_LON")
	if latStr != "" && lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return site, fmt.Errorf("invalid SITE_LAT: %w", err)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return site, fmt.Errorf("invalid SITE_LON: %w", err)
		}
		site.Lat, site.Lon = lat, lon
		return site, nil
	}

	city := os.Getenv("SITE_CITY")
	if city != "" && os.Getenv("GEOCODER_API_KEY") != "" {
		geocoder.ApiKey = os.Getenv("GEOCODER_API_KEY")
		location, err := geocoder.Geocoding(geocoder.Address{
			City:    city,
			State:   os.Getenv("SITE_STATE"),
			Country: os.Getenv("SITE_COUNTRY"),
		})
		if err != nil {
			return site, fmt.Errorf("geocoding %q failed: %w", city, err)
		}
		site.Lat, site.Lon = location.Latitude, location.Longitude
		return site, nil
	}

	// Lincoln, NE research plot.
	site.Lat, site.Lon = 40.8176, -96.6917
	return site, nil
}

// loadBounds reads the overlay rectangle, defaulting to a small rectangle
// around the site.
func loadBounds(site series.Site) (overlay.GeoBounds, error) {
	sw, err := parseLatLon(os.Getenv("FIELD_BOUNDS_SW"), overlay.LatLon{Lat: site.Lat - 0.002, Lon: site.Lon - 0.003})
	if err != nil {
		return overlay.GeoBounds{}, fmt.Errorf("invalid FIELD_BOUNDS_SW: %w", err)
	}
	ne, err := parseLatLon(os.Getenv("FIELD_BOUNDS_NE"), overlay.LatLon{Lat: site.Lat + 0.002, Lon: site.Lon + 0.003})
	if err != nil {
		return overlay.GeoBounds{}, fmt.Errorf("invalid FIELD_BOUNDS_NE: %w", err)
	}
	return overlay.GeoBounds{SouthWest: sw, NorthEast: ne}, nil
}

func parseLatLon(s string, def overlay.LatLon) (overlay.LatLon, error) {
	if s == "" {
		return def, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return overlay.LatLon{}, fmt.Errorf("want \"lat,lon\", got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return overlay.LatLon{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return overlay.LatLon{}, err
	}
	return overlay.LatLon{Lat: lat, Lon: lon}, nil
}

func splitTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
