// Package poller drives the periodic fetch+normalize cycles that keep the
// dashboard caches warm.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/agresearch/field-dashboard/internal/series"
)

// Poller re-runs the sensor and climate pipelines on fixed per-category
// intervals: a short one for the near-real-time tables and a long one for
// forecast data. The first cycle of each category runs immediately on Start.
type Poller struct {
	scheduler *gocron.Scheduler
	service   *series.Service
	devices   []string

	sensorInterval  time.Duration
	climateInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Poller over the given service.
func New(service *series.Service, devices []string, sensorInterval, climateInterval time.Duration) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		scheduler:       gocron.NewScheduler(time.UTC),
		service:         service,
		devices:         devices,
		sensorInterval:  sensorInterval,
		climateInterval: climateInterval,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start schedules both categories and starts the underlying scheduler. Each
// job checks the poller context first so nothing runs after Stop.
func (p *Poller) Start() error {
	if len(p.devices) == 0 {
		log.Println("poller: no devices configured; scheduling climate only")
	}

	if len(p.devices) > 0 {
		_, err := p.scheduler.Every(p.sensorInterval).StartImmediately().Do(p.sensorCycle)
		if err != nil {
			return err
		}
	}

	_, err := p.scheduler.Every(p.climateInterval).StartImmediately().Do(p.climateCycle)
	if err != nil {
		return err
	}

	p.scheduler.StartAsync()
	return nil
}

func (p *Poller) sensorCycle() {
	if p.ctx.Err() != nil {
		return
	}
	log.Println("poller: running sensor cycle")

	var wg sync.WaitGroup
	for _, sn := range p.devices {
		sn := sn
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
			defer cancel()

			if _, err := p.service.SensorData(ctx, sn); err != nil {
				log.Printf("poller: sensor cycle failed for %s: %v", sn, err)
			}
		}()
	}
	wg.Wait()
}

func (p *Poller) climateCycle() {
	if p.ctx.Err() != nil {
		return
	}
	log.Println("poller: running climate cycle")

	ctx, cancel := context.WithTimeout(p.ctx, 2*time.Minute)
	defer cancel()

	window := p.service.ClimateWindow(ctx)
	if window.Degraded() {
		log.Printf("poller: climate window degraded, %d slots", len(window.Points))
	}
	p.service.TemperatureForecast(ctx)
}

// Stop cancels in-flight cycles and stops the scheduler. No further state
// updates occur after Stop returns.
func (p *Poller) Stop() {
	p.cancel()
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}
