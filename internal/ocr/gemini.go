package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// transcriptionPrompt asks the model for a verbatim text layer, not an
// interpretation of the page.
const transcriptionPrompt = `Transcribe ALL text visible in this image exactly as written.

Rules:
- Preserve the reading order: top to bottom, left to right.
- Keep numbers, units and reference ranges exactly as printed. Do not correct or normalize them.
- Keep table rows on a single line, separating columns with spaces.
- Do not describe the image, do not summarize, do not add headers of your own.
- If a region is unreadable, write [unreadable] in its place.
- Return plain text only, no markdown.`

// Gemini implements the Recognizer interface using a Google Gemini vision
// model as the OCR engine. Slower and paid, but far better than local OCR
// on photographed pages with skew or uneven lighting.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini Recognizer instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Recognize transcribes a single page image.
func (g *Gemini) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodeRecognizerPNG(img)
	if err != nil {
		return "", err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not
	// the full MIME type.
	parts := []genai.Part{
		genai.ImageData("png", data),
		genai.Text(transcriptionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	return geminiResponseText(resp)
}

// geminiResponseText flattens a generation response into plain text. A
// safety-blocked candidate arrives with a nil Content, so every level is
// checked before descending.
func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini (finish reason: %v)", candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return strings.TrimSpace(text.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
