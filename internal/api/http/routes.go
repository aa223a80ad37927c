package httpapi

import (
	"bytes"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/agresearch/field-dashboard/internal/overlay"
	"github.com/agresearch/field-dashboard/internal/raster"
	"github.com/agresearch/field-dashboard/internal/series"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *series.Service, presenter *overlay.Presenter) {
	v1 := app.Group("/api/v1")

	v1.Get("/table/:device_sn", func(c *fiber.Ctx) error {
		deviceSN := c.Params("device_sn")
		if !service.ValidDevice(deviceSN) {
			return fiber.NewError(fiber.StatusNotFound, "device not supported")
		}

		rows, err := service.TableRows(c.Context(), deviceSN)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}

		return c.JSON(fiber.Map{
			"device_sn": deviceSN,
			"count":     len(rows),
			"units":     series.TableUnits,
			"rows":      rows,
		})
	})

	v1.Get("/eto/:device_sn", func(c *fiber.Ctx) error {
		deviceSN := c.Params("device_sn")
		if !service.ValidDevice(deviceSN) {
			return fiber.NewError(fiber.StatusNotFound, "device not supported")
		}

		readings, err := service.ETOReadings(c.Context(), deviceSN)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}

		return c.JSON(fiber.Map{
			"device_sn": deviceSN,
			"count":     len(readings),
			"data":      readings,
		})
	})

	// The climate window never fails; at worst every slot is tagged
	// fallback and the degraded flag tells the UI to show an indicator.
	v1.Get("/series/climate", func(c *fiber.Ctx) error {
		site, err := resolveSite(c, service)
		if err != nil {
			return err
		}
		window := service.ClimateWindowAt(c.Context(), site)
		return c.JSON(fiber.Map{
			"window":   window,
			"degraded": window.Degraded(),
		})
	})

	v1.Get("/forecast/temperature", func(c *fiber.Ctx) error {
		site, err := resolveSite(c, service)
		if err != nil {
			return err
		}
		window := service.TemperatureForecastAt(c.Context(), site)
		return c.JSON(fiber.Map{
			"window":   window,
			"degraded": window.Degraded(),
		})
	})

	v1.Get("/combined/:device_sn", func(c *fiber.Ctx) error {
		deviceSN := c.Params("device_sn")
		if !service.ValidDevice(deviceSN) {
			return fiber.NewError(fiber.StatusNotFound, "device not supported")
		}

		data, err := service.SensorData(c.Context(), deviceSN)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		rows := series.BuildTableRows(data)
		eto, _ := service.ETOReadings(c.Context(), deviceSN)

		return c.JSON(fiber.Map{
			"device_sn":   deviceSN,
			"sensor_data": data,
			"eto_data":    eto,
			"climate":     service.ClimateWindow(c.Context()),
			"table_data": fiber.Map{
				"count": len(rows),
				"units": series.TableUnits,
				"rows":  rows,
			},
		})
	})

	v1.Get("/devices/summary", func(c *fiber.Ctx) error {
		summaries := service.CombinedSummary(c.Context())
		return c.JSON(fiber.Map{
			"count":   len(summaries),
			"devices": summaries,
		})
	})

	registerOverlayRoutes(v1, presenter)
}

// siteQuery is the optional coordinate override on climate endpoints. Both
// values must be given together; omitting both uses the configured site.
type siteQuery struct {
	Lat *float64 `query:"lat" validate:"omitempty,latitude"`
	Lon *float64 `query:"lon" validate:"omitempty,longitude"`
}

func resolveSite(c *fiber.Ctx, service *series.Service) (series.Site, error) {
	var q siteQuery
	if err := c.QueryParser(&q); err != nil {
		return series.Site{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return series.Site{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if q.Lat == nil && q.Lon == nil {
		return service.Site(), nil
	}
	if q.Lat == nil || q.Lon == nil {
		return series.Site{}, fiber.NewError(fiber.StatusBadRequest, "lat and lon must be provided together")
	}
	return series.Site{Lat: *q.Lat, Lon: *q.Lon}, nil
}

// visibilityBody is the toggle payload for overlay and band visibility.
type visibilityBody struct {
	Visible *bool `json:"visible" validate:"required"`
}

func registerOverlayRoutes(v1 fiber.Router, presenter *overlay.Presenter) {
	v1.Get("/overlay", func(c *fiber.Ctx) error {
		return c.JSON(presenter.Status())
	})

	v1.Post("/overlay/load", func(c *fiber.Ctx) error {
		if err := presenter.Load(c.Context()); err != nil {
			var loadErr *raster.LoadError
			var compErr *raster.CompositeError
			if errors.As(err, &loadErr) || errors.As(err, &compErr) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(presenter.Status())
	})

	v1.Post("/overlay/visibility", func(c *fiber.Ctx) error {
		var body visibilityBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := presenter.SetVisible(*body.Visible); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return c.JSON(presenter.Status())
	})

	v1.Post("/overlay/bands/:band/visibility", func(c *fiber.Ctx) error {
		var body visibilityBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := presenter.SetBandVisible(c.Params("band"), *body.Visible); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(presenter.Status())
	})

	v1.Get("/overlay/composite.png", func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := presenter.WriteComposite(&buf); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(buf.Bytes())
	})
}
