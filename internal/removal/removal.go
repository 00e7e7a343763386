// Package removal defines the background-removal collaborator used by the
// photo editor, plus two implementations.
//
// A Remover takes a full-resolution image and returns the same image with the
// background stripped: an alpha channel where the subject is opaque and
// everything else transparent. How it decides that is opaque to the editor.
//
// The call blocks until the result is ready. Progress is reported through an
// optional callback with fractions in [0, 1]. The context passed in carries a
// deadline only; the editor never cancels a removal on a user's behalf.
package removal

import (
	"context"
	"errors"
	"image"
)

// ProgressFunc receives completion fractions in [0, 1], zero or more times.
type ProgressFunc func(fraction float64)

// Remover isolates the foreground of an image.
type Remover interface {
	Remove(ctx context.Context, src image.Image, progress ProgressFunc) (image.Image, error)
}

// Func adapts a plain function to the Remover interface.
type Func func(ctx context.Context, src image.Image, progress ProgressFunc) (image.Image, error)

// Remove calls f.
func (f Func) Remove(ctx context.Context, src image.Image, progress ProgressFunc) (image.Image, error) {
	return f(ctx, src, progress)
}

// ErrNoAlpha is returned when a result carries no alpha channel, or no pixel
// that is not fully opaque, and therefore does not isolate a subject.
var ErrNoAlpha = errors.New("removal result has no transparency")

// report forwards a clamped fraction to p if p is set.
func report(p ProgressFunc, fraction float64) {
	if p == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	p(fraction)
}

// HasAlpha reports whether img carries transparency: its color model has an
// alpha channel and at least one pixel is not fully opaque. A result that is
// opaque everywhere has isolated nothing.
func HasAlpha(img image.Image) bool {
	switch p := img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64, *image.Alpha, *image.Alpha16:
	case *image.Paletted:
		translucent := false
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				translucent = true
				break
			}
		}
		if !translucent {
			return false
		}
	default:
		return false
	}
	o, ok := img.(interface{ Opaque() bool })
	return ok && !o.Opaque()
}
