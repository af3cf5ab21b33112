package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
)

// Recognizer converts a single page image into raw text.
//
// Implementations are best-effort: a failed recognition returns an error
// and the caller decides how to degrade (the Extractor substitutes empty
// text for the page). Recognition should be accuracy-biased with no
// language auto-correction, and must pick up text regions as small as
// about 1% of the image height.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
	// Close closes the recognizer and releases resources
	Close() error
}

// encodeRecognizerPNG encodes a page image for providers that accept
// encoded bytes rather than an image.Image.
func encodeRecognizerPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
