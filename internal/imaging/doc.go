// Package imaging provides the pixel-level stages of the product photo editor.
//
// Every stage takes and returns *image.NRGBA surfaces: 8-bit, straight
// (non-premultiplied) RGBA with bounds anchored at (0,0). Stages never modify
// their inputs; each call allocates a new surface.
//
// # Stages
//
//   - ApplyTone: exposure, contrast, highlights, shadows, whites and blacks
//   - SynthesizeBackground: original, transparent, solid, procedural and
//     auto-contrast backgrounds
//   - SynthesizeShadow: blurred silhouette shadows under or around a subject
//   - Composite: background, shadow and foreground, source-over
//   - Rotate: clockwise quarter turns
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// # Color Representation
//
// SampleColor reports colors in multiple formats:
//   - Hex: 6-character format "#RRGGBB" (alpha excluded)
//   - RGB: 8-bit components (0-255)
//   - RGBA: 8-bit components with alpha (0-255)
//   - HSL: Hue (0-360), Saturation (0-100), Lightness (0-100)
//
// # Loading
//
// Loader resolves URLs, data URLs, base64 payloads and file paths into
// surfaces. Remote and file sources are kept in a small least-recently-used
// cache; Evict drops one early. It is safe for concurrent use.
//
// # Randomness
//
// The marble and light-noise patterns draw from a caller-supplied Rand, so a
// seeded source reproduces a background exactly.
package imaging
