package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// EncodedImage is a rendered surface ready to hand back to a client.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG serializes img as PNG. PNG keeps the alpha channel, which a
// transparent background export depends on.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// NewEncodedImage wraps PNG bytes for a width x height image.
func NewEncodedImage(png []byte, width, height int) *EncodedImage {
	return &EncodedImage{
		Width:       width,
		Height:      height,
		ImageBase64: base64.StdEncoding.EncodeToString(png),
		MimeType:    "image/png",
	}
}

// Thumbnail scales img down so neither side exceeds maxSize, keeping the
// aspect ratio. Images already within the limit, or a maxSize <= 0, come back
// unchanged.
func Thumbnail(img *image.NRGBA, maxSize int) *image.NRGBA {
	b := img.Bounds()
	if maxSize <= 0 || (b.Dx() <= maxSize && b.Dy() <= maxSize) {
		return img
	}
	return imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
}
