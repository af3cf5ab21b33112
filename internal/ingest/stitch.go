package ingest

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Stitching defaults. Overlapping one page between consecutive groups
// keeps context that straddles a page boundary (a field label on one
// page, its value on the next).
const (
	DefaultPagesPerGroup = 3
	DefaultOverlapPages  = 1

	stitchPadding   = 16 // gap around and between member pages
	labelBandHeight = 24 // reserved band above each member for its page label
)

// stitchFill is the neutral canvas background.
var stitchFill = color.RGBA{R: 0xf0, G: 0xf0, B: 0xf0, A: 0xff}

// StitchGroup is one or more consecutive pages composited into a single
// image for transmission. MemberPages holds the 1-based source page
// indices covered by Image, in ascending order.
type StitchGroup struct {
	MemberPages []int
	Image       image.Image
}

// Stitch groups consecutive pages into composite images.
//
// totalPages is the source document's page count, used for the
// "Page n/total" labels; it is raised to the last page's index when the
// caller passes less than that (e.g. zero when the count is unknown).
// overlapPages is clamped to [0, pagesPerGroup-1]. When pagesPerGroup <= 1
// or pages is empty the transform is the identity: one single-member group
// per page with the page image unchanged. Otherwise groups advance through
// the sequence with stride = max(1, pagesPerGroup-overlapPages); the loop
// stops once a group's end reaches the final page, so every page is
// covered exactly once outside the overlap and overlap pages appear in
// exactly two consecutive groups.
func Stitch(pages []Page, pagesPerGroup, overlapPages, totalPages int) []StitchGroup {
	if pagesPerGroup <= 1 || len(pages) == 0 {
		groups := make([]StitchGroup, 0, len(pages))
		for _, p := range pages {
			groups = append(groups, StitchGroup{MemberPages: []int{p.Index}, Image: p.Image})
		}
		return groups
	}

	if overlapPages < 0 {
		overlapPages = 0
	}
	if overlapPages > pagesPerGroup-1 {
		overlapPages = pagesPerGroup - 1
	}
	stride := pagesPerGroup - overlapPages
	if stride < 1 {
		stride = 1
	}

	if last := pages[len(pages)-1].Index; totalPages < last {
		totalPages = last
	}

	var groups []StitchGroup
	for start := 0; start < len(pages); start += stride {
		end := start + pagesPerGroup
		if end > len(pages) {
			end = len(pages)
		}
		groups = append(groups, stitchGroup(pages[start:end], totalPages)...)
		if end >= len(pages) {
			break
		}
	}
	return groups
}

// stitchGroup composites one group of member pages. A single-member group
// passes through unchanged. If compositing fails the members pass through
// individually so the pipeline never loses a page.
func stitchGroup(members []Page, totalPages int) []StitchGroup {
	if len(members) == 1 {
		return []StitchGroup{{MemberPages: []int{members[0].Index}, Image: members[0].Image}}
	}

	indices := make([]int, len(members))
	for i, m := range members {
		indices[i] = m.Index
	}

	img, err := composite(members, totalPages)
	if err != nil {
		slog.Warn("Compositing failed, passing pages through individually", "pages", indices, "error", err)
		groups := make([]StitchGroup, 0, len(members))
		for _, m := range members {
			groups = append(groups, StitchGroup{MemberPages: []int{m.Index}, Image: m.Image})
		}
		return groups
	}
	return []StitchGroup{{MemberPages: indices, Image: img}}
}

// composite lays the member pages out left to right, normalized to the
// tallest member's height, each under a "Page n/total" label.
func composite(members []Page, totalPages int) (image.Image, error) {
	targetHeight := 0
	for _, m := range members {
		if m.Height > targetHeight {
			targetHeight = m.Height
		}
	}
	if targetHeight <= 0 {
		return nil, fmt.Errorf("degenerate group height")
	}

	widths := make([]int, len(members))
	canvasWidth := stitchPadding
	for i, m := range members {
		if m.Height <= 0 || m.Width <= 0 {
			return nil, fmt.Errorf("degenerate page %d bounds %dx%d", m.Index, m.Width, m.Height)
		}
		widths[i] = int(math.Round(float64(m.Width) * float64(targetHeight) / float64(m.Height)))
		canvasWidth += widths[i] + stitchPadding
	}
	canvasHeight := stitchPadding + labelBandHeight + targetHeight + stitchPadding

	canvas := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(stitchFill), image.Point{}, draw.Src)

	x := stitchPadding
	for i, m := range members {
		drawLabel(canvas, x, stitchPadding, pageLabel(m.Index, totalPages))

		dst := image.Rect(x, stitchPadding+labelBandHeight, x+widths[i], stitchPadding+labelBandHeight+targetHeight)
		xdraw.ApproxBiLinear.Scale(canvas, dst, m.Image, m.Image.Bounds(), draw.Over, nil)
		x += widths[i] + stitchPadding
	}
	return canvas, nil
}

// pageLabel is the text drawn above a member page.
func pageLabel(index, totalPages int) string {
	return fmt.Sprintf("Page %d/%d", index, totalPages)
}

// drawLabel renders text into the label band at (x, y).
func drawLabel(dst draw.Image, x, y int, text string) {
	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent+(labelBandHeight-face.Height)/2),
	}
	d.DrawString(text)
}
