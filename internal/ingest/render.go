package ingest

import (
	"context"
	"image"
	"log/slog"

	"github.com/gen2brain/go-fitz"
)

// DefaultMaxRenderSide caps the longer side of a rendered page.
const DefaultMaxRenderSide = 1200

// baseDPI is the PDF native resolution; page bounds are expressed in
// points at this density.
const baseDPI = 72.0

// Page is one rendered document page. Pages are immutable after creation
// and keyed by their 1-based position in the source document.
type Page struct {
	Index  int // 1-based position in the source document
	Image  image.Image
	Width  int
	Height int
}

// ProgressFunc receives incremental render progress after each page.
type ProgressFunc func(rendered, total int)

// Renderer rasterizes paginated documents into capped-resolution page images.
type Renderer struct {
	maxSide int
}

// NewRenderer creates a Renderer. maxSide <= 0 selects DefaultMaxRenderSide.
func NewRenderer(maxSide int) *Renderer {
	if maxSide <= 0 {
		maxSide = DefaultMaxRenderSide
	}
	return &Renderer{maxSide: maxSide}
}

// RenderAll renders every page of a paginated document in ascending page
// order. Each page is scaled so neither dimension exceeds the configured
// maximum side, preserving aspect ratio and never upscaling. Pages with
// zero-area bounds are skipped; the Index field of the remaining pages
// still reflects their source position.
//
// A document that cannot be opened or has no pages yields an empty slice
// and no error: the caller treats that as a "document unavailable"
// outcome. Cancellation is checked between pages and returns ctx.Err();
// callers discard any partial output.
func (r *Renderer) RenderAll(ctx context.Context, document []byte, progress ProgressFunc) ([]Page, error) {
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		slog.Warn("Failed to open document", "error", err)
		return []Page{}, nil
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return []Page{}, nil
	}

	pages := make([]Page, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bounds, err := doc.Bound(i)
		if err != nil || bounds.Dx() <= 0 || bounds.Dy() <= 0 {
			slog.Warn("Skipping unreadable page", "page", i+1, "error", err)
			if progress != nil {
				progress(len(pages), total)
			}
			continue
		}

		scale := renderScale(bounds.Dx(), bounds.Dy(), r.maxSide)
		img, err := doc.ImageDPI(i, baseDPI*scale)
		if err != nil {
			slog.Warn("Skipping page that failed to render", "page", i+1, "error", err)
			if progress != nil {
				progress(len(pages), total)
			}
			continue
		}

		b := img.Bounds()
		pages = append(pages, Page{
			Index:  i + 1,
			Image:  img,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
		if progress != nil {
			progress(len(pages), total)
		}
	}

	return pages, nil
}

// renderScale returns min(maxSide/w, maxSide/h, 1.0).
func renderScale(w, h, maxSide int) float64 {
	scale := 1.0
	if sw := float64(maxSide) / float64(w); sw < scale {
		scale = sw
	}
	if sh := float64(maxSide) / float64(h); sh < scale {
		scale = sh
	}
	return scale
}
