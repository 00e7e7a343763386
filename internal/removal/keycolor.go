package removal

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultKeyTolerance is the CIE76 distance (on go-colorful's 0..1 Lab scale)
// under which a pixel counts as background.
const DefaultKeyTolerance = 0.12

// KeyColorRemover is an in-process remover for studio shots on a plain
// backdrop. The backdrop color is the mean of the image border; every pixel
// within Tolerance of it in Lab space becomes fully transparent.
type KeyColorRemover struct {
	Tolerance float64
}

// NewKeyColorRemover returns a KeyColorRemover. A non-positive tolerance
// selects DefaultKeyTolerance.
func NewKeyColorRemover(tolerance float64) *KeyColorRemover {
	if tolerance <= 0 {
		tolerance = DefaultKeyTolerance
	}
	return &KeyColorRemover{Tolerance: tolerance}
}

// Remove implements Remover. It checks ctx between row bands.
func (k *KeyColorRemover) Remove(ctx context.Context, src image.Image, progress ProgressFunc) (image.Image, error) {
	report(progress, 0)
	dst := imaging.Clone(src)
	width, height := dst.Bounds().Dx(), dst.Bounds().Dy()
	key := borderColor(dst)

	const band = 32
	for y := 0; y < height; y++ {
		if y%band == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report(progress, float64(y)/float64(height))
		}
		row := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for i := 0; i < len(row); i += 4 {
			if toColorful(row[i:i+3]).DistanceLab(key) <= k.Tolerance {
				row[i+3] = 0
			}
		}
	}
	report(progress, 1)
	return dst, nil
}

// borderColor averages the outermost ring of pixels.
func borderColor(img *image.NRGBA) colorful.Color {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	var r, g, b, n float64
	add := func(x, y int) {
		i := img.PixOffset(x, y)
		r += float64(img.Pix[i])
		g += float64(img.Pix[i+1])
		b += float64(img.Pix[i+2])
		n++
	}
	for x := 0; x < width; x++ {
		add(x, 0)
		if height > 1 {
			add(x, height-1)
		}
	}
	for y := 1; y < height-1; y++ {
		add(0, y)
		if width > 1 {
			add(width-1, y)
		}
	}
	if n == 0 {
		return colorful.Color{}
	}
	return colorful.Color{R: r / n / 255, G: g / n / 255, B: b / n / 255}
}

func toColorful(px []uint8) colorful.Color {
	return colorful.Color{R: float64(px[0]) / 255, G: float64(px[1]) / 255, B: float64(px[2]) / 255}
}
