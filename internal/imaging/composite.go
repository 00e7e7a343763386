package imaging

import (
	"errors"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// Composite paints background, shadow and foreground, in that order, onto a
// new canvas the size of the foreground.
//
// background and shadow may be nil. A layer whose size differs from the
// foreground is resized to match before blending. Each layer is painted with
// source-over alpha blending, so a fully opaque foreground pixel replaces
// whatever lies beneath it.
func Composite(background, shadow, foreground *image.NRGBA) (*image.NRGBA, error) {
	if foreground == nil {
		return nil, errors.New("composite: foreground is required")
	}
	width, height := foreground.Bounds().Dx(), foreground.Bounds().Dy()
	dst, err := NewSurface(width, height)
	if err != nil {
		return nil, err
	}

	for _, layer := range []*image.NRGBA{
		fitLayer(background, width, height),
		fitLayer(shadow, width, height),
		foreground,
	} {
		if layer != nil {
			blendOver(dst, layer)
		}
	}
	return dst, nil
}

func fitLayer(layer *image.NRGBA, width, height int) *image.NRGBA {
	if layer == nil {
		return nil
	}
	if layer.Bounds().Dx() == width && layer.Bounds().Dy() == height {
		return layer
	}
	return imaging.Resize(layer, width, height, imaging.Linear)
}

// blendOver paints src over dst in place. Both must have the same size;
// dst is anchored at (0,0).
func blendOver(dst, src *image.NRGBA) {
	width := dst.Bounds().Dx()
	parallel.Line(dst.Bounds().Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			drow := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
			so := src.PixOffset(src.Rect.Min.X, src.Rect.Min.Y+y)
			srow := src.Pix[so : so+width*4]
			for i := 0; i < len(drow); i += 4 {
				over(drow[i:i+4:i+4], srow[i:i+4:i+4])
			}
		}
	})
}

// over blends one straight-alpha source pixel onto a destination pixel.
func over(d, s []uint8) {
	switch s[3] {
	case 0:
		return
	case 255:
		copy(d, s)
		return
	}

	sa := float64(s[3]) / 255
	da := float64(d[3]) / 255
	outA := sa + da*(1-sa)
	for c := 0; c < 3; c++ {
		v := (float64(s[c])*sa + float64(d[c])*da*(1-sa)) / outA
		d[c] = clampChannel(v)
	}
	d[3] = uint8(math.Round(outA * 255))
}
