// Package overlay manages the field map overlay: the lifecycle of the
// composited band raster and its binding to the field's geographic bounds.
package overlay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/agresearch/field-dashboard/internal/raster"
)

// LatLon is a geographic coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoBounds is the rectangle the composite and bands are displayed against.
// It is static configuration, not derived from image metadata.
type GeoBounds struct {
	SouthWest LatLon `json:"southWest"`
	NorthEast LatLon `json:"northEast"`
}

// State is the overlay lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateVisible State = "visible"
	StateHidden  State = "hidden"
)

// Status is a snapshot of the presenter for the UI.
type Status struct {
	State       State           `json:"state"`
	Bounds      GeoBounds       `json:"bounds"`
	Bands       []string        `json:"bands"`
	BandVisible map[string]bool `json:"bandVisible"`
	LastError   string          `json:"lastError,omitempty"`
}

// Presenter owns the composite raster and the overlay state machine:
//
//	Idle → Load() → Loading → success → Visible
//	Loading → failure → Idle (error retained, retryable)
//	Visible ⇄ Hidden via SetVisible, no recomputation
//
// A successful load is cached for the session: further Load calls are no-ops.
type Presenter struct {
	loader  *raster.Loader
	bounds  GeoBounds
	sources []raster.BandSource
	enh     raster.Enhancement

	mu          sync.Mutex
	state       State
	composite   *raster.Composite
	bandVisible map[string]bool
	lastErr     error
	closed      bool
}

// New creates a Presenter in the Idle state. sources must be ordered
// red, green, blue.
func New(loader *raster.Loader, bounds GeoBounds, sources []raster.BandSource, enh raster.Enhancement) *Presenter {
	bandVisible := make(map[string]bool, len(sources))
	for _, s := range sources {
		bandVisible[s.Name] = false
	}
	return &Presenter{
		loader:      loader,
		bounds:      bounds,
		sources:     sources,
		enh:         enh,
		state:       StateIdle,
		bandVisible: bandVisible,
	}
}

// Load fetches the bands and composites them. It is idempotent once the
// composite exists and a no-op while another load is in flight. On failure
// the presenter returns to Idle with the error surfaced, ready for a retry.
// A presenter closed mid-load discards the finished composite.
func (p *Presenter) Load(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return fmt.Errorf("overlay presenter is closed")
	case p.state == StateVisible || p.state == StateHidden:
		p.mu.Unlock()
		return nil
	case p.state == StateLoading:
		p.mu.Unlock()
		return nil
	}
	if len(p.sources) != 3 {
		p.mu.Unlock()
		return fmt.Errorf("overlay needs exactly 3 band sources, have %d", len(p.sources))
	}
	p.state = StateLoading
	p.lastErr = nil
	p.mu.Unlock()

	composite, err := p.buildComposite(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		// Torn down while the load was in flight; drop the result.
		return nil
	}
	if err != nil {
		p.state = StateIdle
		p.lastErr = err
		return err
	}
	p.composite = composite
	p.state = StateVisible
	return nil
}

func (p *Presenter) buildComposite(ctx context.Context) (*raster.Composite, error) {
	buffers, err := p.loader.LoadBands(ctx, p.sources)
	if err != nil {
		return nil, err
	}
	// Buffers are not retained past this call; the composite is the only
	// pixel data kept for the session.
	return raster.CompositeBands(ctx, [3]*raster.Buffer{buffers[0], buffers[1], buffers[2]}, p.enh)
}

// SetVisible toggles between Visible and Hidden. It fails when no composite
// has been produced yet.
func (p *Presenter) SetVisible(visible bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.composite == nil {
		return fmt.Errorf("overlay is not loaded")
	}
	if visible {
		p.state = StateVisible
	} else {
		p.state = StateHidden
	}
	return nil
}

// SetBandVisible toggles an individual band's visibility.
func (p *Presenter) SetBandVisible(name string, visible bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.bandVisible[name]; !ok {
		return fmt.Errorf("unknown band %q", name)
	}
	p.bandVisible[name] = visible
	return nil
}

// Status returns a snapshot of the presenter.
func (p *Presenter) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	bands := make([]string, 0, len(p.sources))
	visible := make(map[string]bool, len(p.bandVisible))
	for _, s := range p.sources {
		bands = append(bands, s.Name)
		visible[s.Name] = p.bandVisible[s.Name]
	}

	st := Status{
		State:       p.state,
		Bounds:      p.bounds,
		Bands:       bands,
		BandVisible: visible,
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

// WriteComposite encodes the composite as PNG. It fails when no composite
// has been produced.
func (p *Presenter) WriteComposite(w io.Writer) error {
	p.mu.Lock()
	composite := p.composite
	p.mu.Unlock()

	if composite == nil {
		return fmt.Errorf("overlay is not loaded")
	}
	return composite.EncodePNG(w)
}

// Close tears the presenter down. In-flight loads finish but their results
// are discarded; no state updates happen after Close returns.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.composite = nil
	p.state = StateIdle
}
