package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Recognizer interface using a local Tesseract
// installation. It is free and fully offline, which makes it the default
// provider.
type Tesseract struct {
	language string
}

// NewTesseract creates a new Tesseract Recognizer instance.
func NewTesseract(language string) (*Tesseract, error) {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}, nil
}

// Recognize runs Tesseract over a single page image.
//
// A fresh client is created per call: gosseract clients are not safe for
// concurrent use and the Extractor fans pages out across goroutines.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := encodeRecognizerPNG(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("setting language: %w", err)
	}
	// Bias for verbatim accuracy: lab values and units are not dictionary
	// words, so dictionary-based correction hurts more than it helps.
	if err := client.SetVariable("load_system_dawg", "F"); err != nil {
		return "", fmt.Errorf("disabling system dictionary: %w", err)
	}
	if err := client.SetVariable("load_freq_dawg", "F"); err != nil {
		return "", fmt.Errorf("disabling frequency dictionary: %w", err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}

// Close closes the Tesseract recognizer (clients are per-call, so no-op).
func (t *Tesseract) Close() error {
	return nil
}
