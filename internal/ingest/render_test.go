package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// minimalPDF builds a valid PDF with the given number of empty US Letter
// pages, computing the xref offsets as objects are written.
func minimalPDF(pageCount int) []byte {
	var buf bytes.Buffer
	var offsets []int
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, pageCount)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), pageCount))
	for i := 0; i < pageCount; i++ {
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", i+3))
	}

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefPos)
	return buf.Bytes()
}

var _ = Describe("Renderer", func() {
	Describe("RenderAll", func() {
		When("the document is not a PDF", func() {
			It("returns an empty sequence and no error", func() {
				pages, err := NewRenderer(0).RenderAll(context.Background(), []byte("this is not a pdf"), nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(BeEmpty())
			})
		})

		When("the document is empty", func() {
			It("returns an empty sequence and no error", func() {
				pages, err := NewRenderer(0).RenderAll(context.Background(), nil, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(pages).To(BeEmpty())
			})
		})

		When("the context is already cancelled", func() {
			It("returns the context error", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				pages, err := NewRenderer(0).RenderAll(ctx, minimalPDF(2), nil)
				Expect(err).To(MatchError(context.Canceled))
				Expect(pages).To(BeNil())
			})
		})

		When("rendering a multi-page document", func() {
			var pages []Page
			var progressCalls [][2]int

			BeforeEach(func() {
				progressCalls = nil
				var err error
				pages, err = NewRenderer(120).RenderAll(context.Background(), minimalPDF(3),
					func(rendered, total int) {
						progressCalls = append(progressCalls, [2]int{rendered, total})
					})
				Expect(err).NotTo(HaveOccurred())
			})

			It("renders every page", func() {
				Expect(pages).To(HaveLen(3))
			})

			It("assigns strictly ascending source positions", func() {
				for i, p := range pages {
					Expect(p.Index).To(Equal(i + 1))
				}
			})

			It("caps both dimensions at the configured side", func() {
				for _, p := range pages {
					Expect(p.Width).To(BeNumerically("<=", 120))
					Expect(p.Height).To(BeNumerically("<=", 120))
					Expect(p.Width).To(BeNumerically(">", 0))
					Expect(p.Height).To(BeNumerically(">", 0))
					b := p.Image.Bounds()
					Expect(b.Dx()).To(Equal(p.Width))
					Expect(b.Dy()).To(Equal(p.Height))
				}
			})

			It("reports progress after each page up to the total", func() {
				Expect(progressCalls).To(HaveLen(3))
				Expect(progressCalls[len(progressCalls)-1]).To(Equal([2]int{3, 3}))
			})
		})
	})
})
