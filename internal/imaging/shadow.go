package imaging

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// ShadowKind selects the synthetic shadow cast by an isolated subject.
type ShadowKind int

const (
	ShadowNone ShadowKind = iota
	// ShadowBase is concentrated below the subject.
	ShadowBase
	// ShadowAround is an ambient shadow with no offset.
	ShadowAround
)

func (k ShadowKind) String() string {
	switch k {
	case ShadowNone:
		return "none"
	case ShadowBase:
		return "base"
	case ShadowAround:
		return "around"
	default:
		return fmt.Sprintf("ShadowKind(%d)", int(k))
	}
}

// ParseShadow converts "none", "base" or "around" into a ShadowKind.
func ParseShadow(s string) (ShadowKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ShadowNone, nil
	case "base":
		return ShadowBase, nil
	case "around":
		return ShadowAround, nil
	default:
		return ShadowNone, fmt.Errorf("unknown shadow kind: %q", s)
	}
}

// shadowStyle mirrors the canvas shadow parameters: blur is the shadowBlur
// radius, which corresponds to a Gaussian with sigma = blur/2.
type shadowStyle struct {
	blur    float64
	dx, dy  int
	opacity float64
}

var shadowStyles = map[ShadowKind]shadowStyle{
	ShadowBase:   {blur: 20, dx: 0, dy: 10, opacity: 0.3},
	ShadowAround: {blur: 30, dx: 0, dy: 0, opacity: 0.2},
}

// SynthesizeShadow builds the shadow layer for a foreground.
//
// The layer has the foreground's size. Each foreground pixel casts a black
// pixel whose alpha is the foreground alpha times the style opacity, moved by
// the style offset and then Gaussian blurred. ShadowNone returns a fully
// transparent layer.
func SynthesizeShadow(fg *image.NRGBA, kind ShadowKind) (*image.NRGBA, error) {
	b := fg.Bounds()
	width, height := b.Dx(), b.Dy()
	layer, err := NewSurface(width, height)
	if err != nil {
		return nil, err
	}
	if kind == ShadowNone {
		return layer, nil
	}
	style, ok := shadowStyles[kind]
	if !ok {
		return nil, fmt.Errorf("unknown shadow kind: %v", kind)
	}

	for y := 0; y < height; y++ {
		ty := y + style.dy
		if ty < 0 || ty >= height {
			continue
		}
		for x := 0; x < width; x++ {
			tx := x + style.dx
			if tx < 0 || tx >= width {
				continue
			}
			a := fg.Pix[fg.PixOffset(b.Min.X+x, b.Min.Y+y)+3]
			if a == 0 {
				continue
			}
			layer.Pix[layer.PixOffset(tx, ty)+3] = uint8(math.Round(float64(a) * style.opacity))
		}
	}
	return imaging.Blur(layer, style.blur/2), nil
}
