package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// Adjustments holds the six tone controls of the photo editor.
//
// Each value lies in [-100, 100] and zero means "no change". The struct is a
// comparable value type: callers replace it wholesale on every change.
type Adjustments struct {
	Exposure   int `json:"exposure"`
	Contrast   int `json:"contrast"`
	Highlights int `json:"highlights"`
	Shadows    int `json:"shadows"`
	Whites     int `json:"whites"`
	Blacks     int `json:"blacks"`
}

// IsZero reports whether all six controls are zero (the identity transform).
func (a Adjustments) IsZero() bool {
	return a == Adjustments{}
}

// Validate checks that every control is within [-100, 100].
func (a Adjustments) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"exposure", a.Exposure},
		{"contrast", a.Contrast},
		{"highlights", a.Highlights},
		{"shadows", a.Shadows},
		{"whites", a.Whites},
		{"blacks", a.Blacks},
	}
	for _, f := range fields {
		if f.value < -100 || f.value > 100 {
			return fmt.Errorf("%s %d out of range [-100, 100]", f.name, f.value)
		}
	}
	return nil
}

// toneCurve is Adjustments pre-scaled into the factors used per pixel.
type toneCurve struct {
	exposure   float64
	contrast   float64
	highlights float64
	shadows    float64
	whites     float64
	blacks     float64
}

func newToneCurve(a Adjustments) toneCurve {
	return toneCurve{
		exposure:   math.Pow(2, float64(a.Exposure)/100),
		contrast:   float64(100+a.Contrast) / 100,
		highlights: float64(a.Highlights) / 100,
		shadows:    float64(a.Shadows) / 100,
		whites:     float64(a.Whites) / 100,
		blacks:     float64(a.Blacks) / 100,
	}
}

// apply runs the tone steps on one pixel. Order matters: exposure, contrast,
// then the luminance-gated steps which all read the same luminance value.
func (c toneCurve) apply(rgb *[3]float64) {
	for i, v := range rgb {
		v *= c.exposure
		v = ((v/255-0.5)*c.contrast + 0.5) * 255
		rgb[i] = v
	}

	// Plain mean of R, G, B. This is not a perceptual luma and must stay that
	// way; the auto-contrast background uses its own weighted formula.
	lum := (rgb[0] + rgb[1] + rgb[2]) / 3

	var delta float64
	if lum > 128 {
		delta += ((lum - 128) / 127) * c.highlights * 50
	}
	if lum < 128 {
		delta += ((128 - lum) / 128) * c.shadows * 50
	}
	if lum > 200 {
		delta += c.whites * 30
	}
	if lum < 55 {
		delta -= c.blacks * 30
	}
	for i := range rgb {
		rgb[i] += delta
	}
}

// ApplyTone returns a new surface with the tone adjustments applied to the
// R, G and B channels of src. Alpha is copied unchanged.
//
// All-zero adjustments short-circuit to an exact copy of src. Otherwise each
// pixel is processed independently, so rows are dispatched in parallel. Values
// are kept in float64 through every step and rounded (half to even) and
// clamped to [0,255] only once at the end, matching an 8-bit clamped canvas
// store.
func ApplyTone(src *image.NRGBA, adj Adjustments) *image.NRGBA {
	dst := imaging.Clone(src)
	if adj.IsZero() {
		return dst
	}

	curve := newToneCurve(adj)
	width := dst.Bounds().Dx()
	parallel.Line(dst.Bounds().Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
			for i := 0; i < len(row); i += 4 {
				px := row[i : i+3 : i+3]
				rgb := [3]float64{float64(px[0]), float64(px[1]), float64(px[2])}
				curve.apply(&rgb)
				px[0] = clampChannel(rgb[0])
				px[1] = clampChannel(rgb[1])
				px[2] = clampChannel(rgb[2])
			}
		}
	})
	return dst
}

// clampChannel rounds half to even and clamps to the 8-bit range.
func clampChannel(v float64) uint8 {
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
