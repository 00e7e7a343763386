package editor

import (
	"fmt"
	"image"

	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
)

// Composed runs the full pipeline for s without rotation.
//
// Before background removal, only the tone engine runs, directly over the
// original. Afterwards the background and shadow are synthesized at the
// foreground's size, composited under it, and the tone engine runs over the
// composite. Nothing is reused between calls.
func Composed(s Session, mode imaging.Mode, rng imaging.Rand) (*image.NRGBA, error) {
	if s.original == nil {
		return nil, fmt.Errorf("session %s has no image", s.ID)
	}
	fg, ok := s.Foreground()
	if !ok {
		return imaging.ApplyTone(s.original, s.Adjustments), nil
	}

	b := fg.Bounds()
	bg, err := imaging.SynthesizeBackground(s.Background, b.Dx(), b.Dy(), imaging.BackgroundOptions{
		Mode:       mode,
		Foreground: fg,
		Rand:       rng,
	})
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	shadow, err := imaging.SynthesizeShadow(fg, s.Shadow)
	if err != nil {
		return nil, fmt.Errorf("shadow: %w", err)
	}
	composite, err := imaging.Composite(bg, shadow, fg)
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	return imaging.ApplyTone(composite, s.Adjustments), nil
}

// View runs the full pipeline for s and applies its rotation.
func View(s Session, mode imaging.Mode, rng imaging.Rand) (*image.NRGBA, error) {
	composed, err := Composed(s, mode, rng)
	if err != nil {
		return nil, err
	}
	return imaging.Rotate(composed, s.Rotation)
}
