package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/agresearch/field-dashboard/internal/api/http"
	"github.com/agresearch/field-dashboard/internal/config"
	"github.com/agresearch/field-dashboard/internal/overlay"
	"github.com/agresearch/field-dashboard/internal/poller"
	"github.com/agresearch/field-dashboard/internal/raster"
	"github.com/agresearch/field-dashboard/internal/series"
	"github.com/agresearch/field-dashboard/internal/series/providers"
	"github.com/agresearch/field-dashboard/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Caches: TTL-bounded sensor snapshots and the persisted forecast
	// backfill store.
	snapshots := store.NewSnapshotCache(cfg.SensorCacheTTL)
	backfill := store.NewBackfillStore(cfg.BackfillPath, cfg.BackfillRetentionDays)

	// Providers with resilience (backoff + circuit breaker).
	sensors := providers.NewZentraProvider(httpClient, cfg.ZentraToken, cfg.ZentraBaseURL)
	climate := providers.NewClimateEngineProvider(httpClient, cfg.ClimateEngineToken, cfg.ClimateEngineBaseURL)

	// Core service orchestrating providers, caches, and normalization.
	service := series.NewService(sensors, climate, snapshots, backfill, cfg.Site, cfg.DeviceSNs, cfg.ClimateCacheTTL)

	// Overlay presenter bound to the field rectangle.
	presenter := overlay.New(raster.NewLoader(httpClient), cfg.Bounds, cfg.BandSources, cfg.Enhancement)
	defer presenter.Close()

	// Poller keeping the caches warm per data category.
	p := poller.New(service, cfg.DeviceSNs, cfg.SensorInterval, cfg.ClimateInterval)
	if err := p.Start(); err != nil {
		log.Fatalf("failed to start poller: %v", err)
	}
	defer p.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "field-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "field-dashboard",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, presenter)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
