package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// NormalizeAngle maps any angle in degrees into [0, 360).
func NormalizeAngle(degrees int) int {
	return ((degrees % 360) + 360) % 360
}

// Rotate returns src turned clockwise by degrees, which must be a multiple
// of 90. The angle is normalized first, so 450 and -270 both mean 90.
// Quarter and three-quarter turns swap width and height.
func Rotate(src *image.NRGBA, degrees int) (*image.NRGBA, error) {
	// imaging rotates counter-clockwise.
	switch NormalizeAngle(degrees) {
	case 0:
		return imaging.Clone(src), nil
	case 90:
		return imaging.Rotate270(src), nil
	case 180:
		return imaging.Rotate180(src), nil
	case 270:
		return imaging.Rotate90(src), nil
	default:
		return nil, fmt.Errorf("rotation of %d degrees is not a quarter turn", degrees)
	}
}
