package ocr

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lablens/lablens/internal/ingest"
)

// DefaultWorkers bounds concurrent recognitions so OCR does not starve
// the rest of the pipeline.
const DefaultWorkers = 2

// Extractor runs per-page OCR over a rendered page sequence. OCR always
// runs against the original unstitched pages for maximum fidelity.
type Extractor struct {
	recognizer Recognizer
	workers    int
}

// NewExtractor creates an Extractor. workers <= 0 selects DefaultWorkers.
func NewExtractor(recognizer Recognizer, workers int) *Extractor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Extractor{recognizer: recognizer, workers: workers}
}

// ExtractAll recognizes every page and returns raw text aligned 1:1 by
// position with the input pages. A page whose recognition fails yields an
// empty string rather than aborting the batch. The only error returned is
// cancellation.
func (e *Extractor) ExtractAll(ctx context.Context, pages []ingest.Page) ([]string, error) {
	texts := make([]string, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, page := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := e.recognizer.Recognize(ctx, page.Image)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Page recognition failed", "page", page.Index, "error", err)
				return nil
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}
