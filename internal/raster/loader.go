package raster

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff" // register TIFF decoder for survey exports
	"golang.org/x/sync/errgroup"
)

// LoadError reports a failed band fetch or decode, identifying which band.
type LoadError struct {
	Band   string
	URL    string
	Status int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("band %s: load failed with status %d (%s)", e.Band, e.Status, e.URL)
	}
	return fmt.Sprintf("band %s: load failed (%s): %v", e.Band, e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// BandSource names one band image to load. Order matters to the compositor:
// index 0 feeds the red output channel, 1 green, 2 blue.
type BandSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Loader fetches and decodes band images.
type Loader struct {
	client *http.Client
}

// NewLoader creates a Loader. A nil client gets a default with a bounded
// timeout.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{client: client}
}

// LoadBands fetches and decodes every source concurrently. All bands must
// load; the first failure cancels the rest and is returned as a LoadError
// naming the band. Decoded buffers can be large, so callers should hand them
// to the compositor and drop them.
func (l *Loader) LoadBands(ctx context.Context, sources []BandSource) ([]*Buffer, error) {
	buffers := make([]*Buffer, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			buf, err := l.loadOne(ctx, src)
			if err != nil {
				return err
			}
			buffers[i] = buf
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

func (l *Loader) loadOne(ctx context.Context, src BandSource) (*Buffer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &LoadError{Band: src.Name, URL: src.URL, Err: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &LoadError{Band: src.Name, URL: src.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Band: src.Name, URL: src.URL, Status: resp.StatusCode}
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, &LoadError{Band: src.Name, URL: src.URL, Err: fmt.Errorf("decode: %w", err)}
	}

	return bufferFromImage(img), nil
}

// bufferFromImage extracts the single-channel intensity plane. Band images
// carry the intensity in the red channel (grayscale images report it on all
// three), so the red channel is read directly.
func bufferFromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	buf := &Buffer{
		Width:  w,
		Height: h,
		Pix:    make([]uint8, w*h),
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			buf.Pix[i] = uint8(r >> 8)
			i++
		}
	}
	return buf
}
