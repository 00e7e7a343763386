package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/stat"
)

// BackgroundKind selects how the area behind an isolated subject is filled.
type BackgroundKind int

const (
	// BackgroundOriginal keeps the photo as loaded; nothing is composited.
	BackgroundOriginal BackgroundKind = iota
	// BackgroundTransparent shows a checkerboard in previews and exports alpha 0.
	BackgroundTransparent
	// BackgroundSolid fills with a single color.
	BackgroundSolid
	// BackgroundProcedural renders one of the built-in patterns.
	BackgroundProcedural
	// BackgroundAutoContrast picks a near-black or near-white fill from the
	// subject's average brightness.
	BackgroundAutoContrast
)

var backgroundKindNames = map[BackgroundKind]string{
	BackgroundOriginal:     "original",
	BackgroundTransparent:  "transparent",
	BackgroundSolid:        "solid",
	BackgroundProcedural:   "procedural",
	BackgroundAutoContrast: "auto-contrast",
}

func (k BackgroundKind) String() string {
	if name, ok := backgroundKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("BackgroundKind(%d)", int(k))
}

// Pattern names a procedural background.
type Pattern string

const (
	PatternWood       Pattern = "wood"
	PatternMarble     Pattern = "marble"
	PatternNeutral    Pattern = "neutral"
	PatternLightNoise Pattern = "light-noise"
)

// Patterns lists the procedural backgrounds in display order.
var Patterns = []Pattern{PatternWood, PatternMarble, PatternNeutral, PatternLightNoise}

func (p Pattern) valid() bool {
	for _, known := range Patterns {
		if p == known {
			return true
		}
	}
	return false
}

// Background is the background selection for an edit. The zero value is
// BackgroundOriginal. Color is only meaningful for BackgroundSolid and Pattern
// only for BackgroundProcedural.
type Background struct {
	Kind    BackgroundKind
	Color   color.NRGBA
	Pattern Pattern
}

// SolidBackground returns a solid fill background.
func SolidBackground(c color.NRGBA) Background {
	c.A = 255
	return Background{Kind: BackgroundSolid, Color: c}
}

// ProceduralBackground returns a pattern background.
func ProceduralBackground(p Pattern) Background {
	return Background{Kind: BackgroundProcedural, Pattern: p}
}

func (b Background) String() string {
	switch b.Kind {
	case BackgroundSolid:
		return fmt.Sprintf("solid(#%02X%02X%02X)", b.Color.R, b.Color.G, b.Color.B)
	case BackgroundProcedural:
		return fmt.Sprintf("procedural(%s)", b.Pattern)
	default:
		return b.Kind.String()
	}
}

// ParseBackground builds a Background from its textual form, as received
// from tool arguments. hexColor is required for "solid" and pattern for
// "procedural"; both are ignored otherwise.
func ParseBackground(kind, hexColor, pattern string) (Background, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "original":
		return Background{}, nil
	case "transparent":
		return Background{Kind: BackgroundTransparent}, nil
	case "auto-contrast", "auto_contrast", "auto":
		return Background{Kind: BackgroundAutoContrast}, nil
	case "solid":
		c, err := ParseHexColor(hexColor)
		if err != nil {
			return Background{}, fmt.Errorf("solid background: %w", err)
		}
		return SolidBackground(c), nil
	case "procedural", "pattern":
		p := Pattern(strings.ToLower(strings.TrimSpace(pattern)))
		if !p.valid() {
			return Background{}, fmt.Errorf("unknown pattern: %q", pattern)
		}
		return ProceduralBackground(p), nil
	default:
		return Background{}, fmt.Errorf("unknown background kind: %q", kind)
	}
}

// Mode tells the synthesizer whether it renders for the screen or for export.
type Mode int

const (
	ModePreview Mode = iota
	ModeExport
)

// Rand is the random source used by the marble and light-noise patterns.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// BackgroundOptions carries the inputs some backgrounds need besides size.
type BackgroundOptions struct {
	Mode Mode
	// Foreground is required for BackgroundAutoContrast.
	Foreground *image.NRGBA
	// Rand is required for the marble and light-noise patterns.
	Rand Rand
}

// Fixed palette.
var (
	checkerLight      = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	checkerDark       = color.NRGBA{R: 229, G: 229, B: 229, A: 255}
	autoContrastDark  = color.NRGBA{R: 26, G: 26, B: 26, A: 255}
	autoContrastLight = color.NRGBA{R: 245, G: 245, B: 245, A: 255}
	neutralFill       = color.NRGBA{R: 232, G: 230, B: 225, A: 255}
	marbleFill        = color.NRGBA{R: 244, G: 243, B: 240, A: 255}
	marbleVein        = color.NRGBA{R: 160, G: 160, B: 165, A: 77}
	lightNoiseFill    = color.NRGBA{R: 245, G: 245, B: 245, A: 255}
	woodStops         = []color.NRGBA{
		{R: 139, G: 90, B: 43, A: 255},
		{R: 160, G: 105, B: 58, A: 255},
		{R: 122, G: 74, B: 34, A: 255},
		{R: 176, G: 122, B: 69, A: 255},
	}
)

const (
	checkerTile  = 10
	marbleVeins  = 5
	noiseSpread  = 5
	opaqueCutoff = 128
)

// ErrNoRandSource is returned when a random pattern is requested without a
// random source.
var ErrNoRandSource = errors.New("pattern requires a random source")

// SynthesizeBackground renders the background layer for bg at the given size.
//
// Every result is fully opaque except BackgroundOriginal (an empty layer,
// nothing to composite) and BackgroundTransparent, which is a checkerboard of
// 10x10 tiles in ModePreview and fully transparent in ModeExport.
func SynthesizeBackground(bg Background, width, height int, opts BackgroundOptions) (*image.NRGBA, error) {
	switch bg.Kind {
	case BackgroundOriginal:
		return NewSurface(width, height)
	case BackgroundTransparent:
		if opts.Mode == ModeExport {
			return NewSurface(width, height)
		}
		return checkerboard(width, height)
	case BackgroundSolid:
		return newFilledSurface(width, height, bg.Color)
	case BackgroundAutoContrast:
		if opts.Foreground == nil {
			return nil, errors.New("auto-contrast background requires a foreground")
		}
		return newFilledSurface(width, height, AutoContrastColor(opts.Foreground))
	case BackgroundProcedural:
		return synthesizePattern(bg.Pattern, width, height, opts.Rand)
	default:
		return nil, fmt.Errorf("unknown background kind: %v", bg.Kind)
	}
}

func checkerboard(width, height int) (*image.NRGBA, error) {
	dst, err := NewSurface(width, height)
	if err != nil {
		return nil, err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := checkerLight
			if (x/checkerTile+y/checkerTile)%2 == 1 {
				c = checkerDark
			}
			dst.SetNRGBA(x, y, c)
		}
	}
	return dst, nil
}

func synthesizePattern(p Pattern, width, height int, rng Rand) (*image.NRGBA, error) {
	if _, err := NewSurface(width, height); err != nil {
		return nil, err
	}
	switch p {
	case PatternNeutral:
		return imaging.New(width, height, neutralFill), nil
	case PatternWood:
		return renderWood(width, height)
	case PatternMarble:
		if rng == nil {
			return nil, ErrNoRandSource
		}
		return renderMarble(width, height, rng)
	case PatternLightNoise:
		if rng == nil {
			return nil, ErrNoRandSource
		}
		return renderLightNoise(width, height, rng), nil
	default:
		return nil, fmt.Errorf("unknown pattern: %q", p)
	}
}

// renderWood fills the canvas with a four-stop gradient running corner to
// corner.
func renderWood(width, height int) (*image.NRGBA, error) {
	dc := gg.NewContext(width, height)
	defer dc.Close()

	grad := gg.NewLinearGradientBrush(0, 0, float64(width), float64(height))
	for i, stop := range woodStops {
		grad.AddColorStop(float64(i)/float64(len(woodStops)-1), toGG(stop))
	}
	dc.SetFillBrush(grad)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("render wood: %w", err)
	}
	return opaque(imaging.Clone(dc.Image())), nil
}

// renderMarble draws translucent bezier veins over a near-white fill.
func renderMarble(width, height int, rng Rand) (*image.NRGBA, error) {
	dc := gg.NewContext(width, height)
	defer dc.Close()

	dc.ClearWithColor(toGG(marbleFill))
	w, h := float64(width), float64(height)
	for i := 0; i < marbleVeins; i++ {
		dc.SetStrokeBrush(gg.Solid(toGG(marbleVein)))
		dc.SetLineWidth(1 + rng.Float64()*2)
		dc.MoveTo(rng.Float64()*w, rng.Float64()*h)
		dc.CubicTo(
			rng.Float64()*w, rng.Float64()*h,
			rng.Float64()*w, rng.Float64()*h,
			rng.Float64()*w, rng.Float64()*h,
		)
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("render marble vein: %w", err)
		}
	}
	return opaque(imaging.Clone(dc.Image())), nil
}

// renderLightNoise adds the same random offset in [-5, 5] to R, G and B of
// every pixel of a near-white fill.
func renderLightNoise(width, height int, rng Rand) *image.NRGBA {
	dst := imaging.New(width, height, lightNoiseFill)
	for i := 0; i < len(dst.Pix); i += 4 {
		n := rng.IntN(2*noiseSpread+1) - noiseSpread
		px := dst.Pix[i : i+3 : i+3]
		for c := range px {
			px[c] = clampChannel(float64(px[c]) + float64(n))
		}
	}
	return dst
}

// AutoContrastColor picks the fill for BackgroundAutoContrast.
//
// The mean R, G, B is taken over pixels whose alpha is above 128; translucent
// and transparent pixels do not count. Brightness is the broadcast-weighted
// luminance 0.299R + 0.587G + 0.114B on a [0,1] scale, which differs from the
// plain mean used by the tone engine. A bright subject (> 0.5) gets a dark
// fill, anything else a light one, including a subject with no opaque pixels.
func AutoContrastColor(fg *image.NRGBA) color.NRGBA {
	b := fg.Bounds()
	if b.Empty() {
		return autoContrastLight
	}

	// Per-row channel means weighted by each row's opaque count give the
	// overall mean without holding a value per pixel.
	rowR := make([]float64, 0, b.Dy())
	rowG := make([]float64, 0, b.Dy())
	rowB := make([]float64, 0, b.Dy())
	counts := make([]float64, 0, b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var r, g, bl, n float64
		row := fg.Pix[fg.PixOffset(b.Min.X, y):fg.PixOffset(b.Max.X-1, y)+4]
		for i := 0; i < len(row); i += 4 {
			if row[i+3] <= opaqueCutoff {
				continue
			}
			r += float64(row[i])
			g += float64(row[i+1])
			bl += float64(row[i+2])
			n++
		}
		if n == 0 {
			continue
		}
		rowR = append(rowR, r/n)
		rowG = append(rowG, g/n)
		rowB = append(rowB, bl/n)
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		return autoContrastLight
	}

	lum := (0.299*stat.Mean(rowR, counts) + 0.587*stat.Mean(rowG, counts) + 0.114*stat.Mean(rowB, counts)) / 255
	if lum > 0.5 {
		return autoContrastDark
	}
	return autoContrastLight
}

func toGG(c color.NRGBA) gg.RGBA {
	return gg.RGBA{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
		A: float64(c.A) / 255,
	}
}

// opaque forces alpha to 255. Anti-aliased edges from the rasterizer can
// leave a sub-255 alpha on the border row.
func opaque(img *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}
