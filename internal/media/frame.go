package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"
)

type FacingMode string

const (
	// FacingUser is the front camera. Frames from it are mirrored so
	// the stored image matches what the user saw on screen.
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

const jpegQuality = 85

// NormalizeFrame decodes a captured still frame from its data URI,
// mirrors it horizontally when it came from the front camera, and
// re-encodes it as a JPEG data URI.
func NormalizeFrame(dataURI string, facing FacingMode) (string, error) {
	_, raw, err := ParseDataURI(dataURI)
	if err != nil {
		return "", fmt.Errorf("parse frame: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode frame: %w", err)
	}

	if facing == FacingUser {
		img = Mirror(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return EncodeDataURI("image/jpeg", buf.Bytes()), nil
}

// Mirror flips an image horizontally.
func Mirror(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Dx()-1-(x-b.Min.X), y-b.Min.Y, src.At(x, y))
		}
	}
	return dst
}
