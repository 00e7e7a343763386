package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// MaxSurfacePixels is the largest canvas (width*height) any stage will allocate.
// Larger requests fail with a *SurfaceError instead of exhausting memory.
const MaxSurfacePixels = 100_000_000

// SurfaceError reports that a rendering surface could not be obtained.
//
// Every pipeline stage allocates its output through NewSurface, so a bad
// dimension or an oversized request surfaces here as an error the caller can
// recover from rather than an empty or partially drawn result.
type SurfaceError struct {
	Width  int
	Height int
	Reason string
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("cannot acquire %dx%d surface: %s", e.Width, e.Height, e.Reason)
}

// NewSurface allocates a fully transparent width x height surface.
//
// Surfaces are *image.NRGBA with bounds anchored at (0,0); channel values are
// straight (non-premultiplied) 8-bit R,G,B,A.
func NewSurface(width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, &SurfaceError{Width: width, Height: height, Reason: "dimensions must be positive"}
	}
	if int64(width)*int64(height) > MaxSurfacePixels {
		return nil, &SurfaceError{Width: width, Height: height, Reason: "exceeds pixel limit"}
	}
	return image.NewNRGBA(image.Rect(0, 0, width, height)), nil
}

// newFilledSurface allocates a surface and fills every pixel with c.
func newFilledSurface(width, height int, c color.NRGBA) (*image.NRGBA, error) {
	if _, err := NewSurface(width, height); err != nil {
		return nil, err
	}
	return imaging.New(width, height, c), nil
}

// ToSurface copies any decoded image into a new surface anchored at (0,0).
// The result never shares pixel memory with img.
func ToSurface(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// Equal reports whether two surfaces have identical size and pixel bytes.
func Equal(a, b *image.NRGBA) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return false
	}
	w := a.Bounds().Dx() * 4
	for y := 0; y < a.Bounds().Dy(); y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):][:w]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):][:w]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}
