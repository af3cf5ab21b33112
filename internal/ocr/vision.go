package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	vision "cloud.google.com/go/vision/apiv1"
	"google.golang.org/api/option"
)

// Vision implements the Recognizer interface using the Google Cloud
// Vision document text detection API.
type Vision struct {
	client *vision.ImageAnnotatorClient
}

// NewVision creates a new Vision Recognizer. Credentials come from
// GOOGLE_CREDENTIALS (inline JSON), GOOGLE_APPLICATION_CREDENTIALS (file
// path), or application default credentials, in that order.
func NewVision(ctx context.Context) (*Vision, error) {
	var opts []option.ClientOption
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating vision client: %w", err)
	}
	return &Vision{client: client}, nil
}

// Recognize runs document text detection over a single page image.
func (v *Vision) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodeRecognizerPNG(img)
	if err != nil {
		return "", err
	}

	visionImg, err := vision.NewImageFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("preparing vision image: %w", err)
	}

	annotation, err := v.client.DetectDocumentText(ctx, visionImg, nil)
	if err != nil {
		return "", fmt.Errorf("detecting document text: %w", err)
	}
	if annotation == nil {
		return "", nil
	}
	return annotation.GetText(), nil
}

// Close closes the Vision client
func (v *Vision) Close() error {
	return v.client.Close()
}
