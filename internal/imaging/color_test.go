package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates an in-memory test surface filled with c
func createInMemoryImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// createPatternImage creates a surface with different colors in each quadrant
func createPatternImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			if x < width/2 && y < height/2 {
				c = color.NRGBA{255, 0, 0, 255} // Red top-left
			} else if x >= width/2 && y < height/2 {
				c = color.NRGBA{0, 255, 0, 255} // Green top-right
			} else if x < width/2 && y >= height/2 {
				c = color.NRGBA{0, 0, 255, 255} // Blue bottom-left
			} else {
				c = color.NRGBA{255, 255, 255, 255} // White bottom-right
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestSampleColor(t *testing.T) {
	img := createInMemoryImage(100, 100, color.NRGBA{255, 128, 64, 255})

	result, err := SampleColor(img, 50, 50)
	if err != nil {
		t.Fatalf("SampleColor failed: %v", err)
	}

	if result.Hex != "#FF8040" {
		t.Errorf("Hex: got %s, want #FF8040", result.Hex)
	}
	if result.RGB.R != 255 || result.RGB.G != 128 || result.RGB.B != 64 {
		t.Errorf("RGB: got (%d,%d,%d), want (255,128,64)", result.RGB.R, result.RGB.G, result.RGB.B)
	}
	if result.RGBA.A != 255 {
		t.Errorf("RGBA.A: got %d, want 255", result.RGBA.A)
	}
}

func TestSampleColor_KnownColors(t *testing.T) {
	tests := []struct {
		name    string
		color   color.NRGBA
		wantHex string
		wantHue int
		wantL   int
	}{
		{"pure red", color.NRGBA{255, 0, 0, 255}, "#FF0000", 0, 50},
		{"pure green", color.NRGBA{0, 255, 0, 255}, "#00FF00", 120, 50},
		{"pure blue", color.NRGBA{0, 0, 255, 255}, "#0000FF", 240, 50},
		{"white", color.NRGBA{255, 255, 255, 255}, "#FFFFFF", 0, 100},
		{"black", color.NRGBA{0, 0, 0, 255}, "#000000", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := createInMemoryImage(10, 10, tt.color)
			result, err := SampleColor(img, 5, 5)
			if err != nil {
				t.Fatalf("SampleColor failed: %v", err)
			}
			if result.Hex != tt.wantHex {
				t.Errorf("Hex: got %s, want %s", result.Hex, tt.wantHex)
			}
			if abs(result.HSL.H-tt.wantHue) > 1 {
				t.Errorf("HSL.H: got %d, want %d", result.HSL.H, tt.wantHue)
			}
			if abs(result.HSL.L-tt.wantL) > 1 {
				t.Errorf("HSL.L: got %d, want %d", result.HSL.L, tt.wantL)
			}
		})
	}
}

func TestSampleColor_StraightAlpha(t *testing.T) {
	img := createInMemoryImage(4, 4, color.NRGBA{255, 0, 0, 128})

	result, err := SampleColor(img, 1, 1)
	if err != nil {
		t.Fatalf("SampleColor failed: %v", err)
	}
	if result.RGBA.R != 255 || result.RGBA.A != 128 {
		t.Errorf("RGBA: got (%d,_,_,%d), want (255,_,_,128)", result.RGBA.R, result.RGBA.A)
	}
}

func TestSampleColor_OutOfBounds(t *testing.T) {
	img := createInMemoryImage(100, 100, color.NRGBA{255, 0, 0, 255})

	tests := []struct {
		name string
		x, y int
	}{
		{"negative x", -1, 50},
		{"negative y", 50, -1},
		{"x too large", 100, 50},
		{"y too large", 50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SampleColor(img, tt.x, tt.y); err == nil {
				t.Errorf("expected error for coordinates (%d,%d)", tt.x, tt.y)
			}
		})
	}
}

func TestSampleColor_Quadrants(t *testing.T) {
	img := createPatternImage(100, 100)

	tests := []struct {
		name    string
		x, y    int
		wantHex string
	}{
		{"top-left", 0, 0, "#FF0000"},
		{"top-right", 99, 0, "#00FF00"},
		{"bottom-left", 0, 99, "#0000FF"},
		{"bottom-right", 99, 99, "#FFFFFF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SampleColor(img, tt.x, tt.y)
			if err != nil {
				t.Fatalf("SampleColor failed: %v", err)
			}
			if result.Hex != tt.wantHex {
				t.Errorf("got %s, want %s", result.Hex, tt.wantHex)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF8040", color.NRGBA{255, 128, 64, 255}, false},
		{"ff8040", color.NRGBA{255, 128, 64, 255}, false},
		{"#F80", color.NRGBA{255, 136, 0, 255}, false},
		{" #000000 ", color.NRGBA{0, 0, 0, 255}, false},
		{"", color.NRGBA{}, true},
		{"#GG0000", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
		{"#FF804080", color.NRGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHexColor(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
