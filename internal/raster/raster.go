// Package raster implements the multispectral band pipeline: loading
// single-channel band images and stacking three of them into a false-color
// RGBA composite for the field overlay.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
)

// Buffer is a decoded single-channel raster: one intensity byte per pixel,
// row-major.
type Buffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// At returns the intensity at (x, y). Callers must stay in bounds.
func (b *Buffer) At(x, y int) uint8 {
	return b.Pix[y*b.Width+x]
}

// Composite is an interleaved RGBA raster produced by stacking three bands.
// It is read-only once produced.
type Composite struct {
	Width  int
	Height int
	Pix    []uint8 // 4 bytes per pixel
}

// CompositeError reports why compositing failed. No partial output is ever
// produced alongside one.
type CompositeError struct {
	Reason string
}

func (e *CompositeError) Error() string {
	return "composite: " + e.Reason
}

// Enhancement is an optional per-pixel transform applied after the channel
// stack. The zero value is the identity. Gain scales each output channel,
// Gamma applies a power curve, Contrast stretches around mid-gray.
type Enhancement struct {
	Gamma    float64
	Contrast float64
	Gain     [3]float64
}

func (e Enhancement) isZero() bool {
	return e.Gamma == 0 && e.Contrast == 0 && e.Gain == [3]float64{}
}

// apply transforms one channel value.
func (e Enhancement) apply(channel int, v uint8) uint8 {
	f := float64(v) / 255

	if g := e.Gain[channel]; g != 0 {
		f *= g
	}
	if e.Gamma != 0 {
		f = math.Pow(f, 1/e.Gamma)
	}
	if e.Contrast != 0 {
		f = (f-0.5)*e.Contrast + 0.5
	}

	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return uint8(math.Round(f * 255))
}

// Rows composited per chunk before yielding to the context. Keeps large
// rasters from monopolizing the scheduler in one uninterrupted block.
const compositeChunkRows = 256

// CompositeBands stacks three equal-sized bands into an RGBA composite:
// band 0 becomes the red channel, band 1 green, band 2 blue, alpha fully
// opaque. This is a direct channel stack, not a blend. The work is chunked
// by rows with a cancellation check between chunks; a cancelled context
// aborts with no output.
func CompositeBands(ctx context.Context, bands [3]*Buffer, enh Enhancement) (*Composite, error) {
	for i, b := range bands {
		if b == nil {
			return nil, &CompositeError{Reason: fmt.Sprintf("band %d is missing", i)}
		}
	}

	w, h := bands[0].Width, bands[0].Height
	for i, b := range bands {
		if b.Width != w || b.Height != h {
			return nil, &CompositeError{Reason: fmt.Sprintf(
				"band %d is %dx%d, want %dx%d", i, b.Width, b.Height, w, h)}
		}
		if len(b.Pix) != w*h {
			return nil, &CompositeError{Reason: fmt.Sprintf(
				"band %d has %d pixels, want %d", i, len(b.Pix), w*h)}
		}
	}
	if w <= 0 || h <= 0 {
		return nil, &CompositeError{Reason: "bands are empty"}
	}

	out := make([]uint8, 4*w*h)
	identity := enh.isZero()

	for row := 0; row < h; row += compositeChunkRows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := row + compositeChunkRows
		if end > h {
			end = h
		}

		for i := row * w; i < end*w; i++ {
			r := bands[0].Pix[i]
			g := bands[1].Pix[i]
			b := bands[2].Pix[i]
			if !identity {
				r = enh.apply(0, r)
				g = enh.apply(1, g)
				b = enh.apply(2, b)
			}
			j := i * 4
			out[j+0] = r
			out[j+1] = g
			out[j+2] = b
			out[j+3] = 0xff
		}
	}

	return &Composite{Width: w, Height: h, Pix: out}, nil
}

// Image wraps the composite in an image.RGBA without copying.
func (c *Composite) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    c.Pix,
		Stride: 4 * c.Width,
		Rect:   image.Rect(0, 0, c.Width, c.Height),
	}
}

// EncodePNG writes the composite as a PNG.
func (c *Composite) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, c.Image()); err != nil {
		return &CompositeError{Reason: "encode: " + err.Error()}
	}
	return nil
}
