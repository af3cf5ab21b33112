package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
)

// EncodeJPEG downscales img so its longer side does not exceed maxSide
// (never upscaling) and encodes it as JPEG at the given quality in
// [0, 1].
func EncodeJPEG(img image.Image, maxSide int, quality float64) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("degenerate image bounds %dx%d", b.Dx(), b.Dy())
	}

	longer := b.Dx()
	if b.Dy() > longer {
		longer = b.Dy()
	}
	if longer > maxSide {
		scale := float64(maxSide) / float64(longer)
		w := int(math.Round(float64(b.Dx()) * scale))
		h := int(math.Round(float64(b.Dy()) * scale))
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: int(math.Round(quality * 100))}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
