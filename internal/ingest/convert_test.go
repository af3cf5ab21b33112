package ingest

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("DecodePhoto", func() {
	var src *image.RGBA

	BeforeEach(func() {
		src = image.NewRGBA(image.Rect(0, 0, 40, 30))
	})

	It("decodes PNG data", func() {
		img, err := DecodePhoto(encodePNG(src), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(40))
		Expect(img.Bounds().Dy()).To(Equal(30))
	})

	It("decodes JPEG data regardless of the declared MIME type", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, src, nil)).To(Succeed())

		img, err := DecodePhoto(buf.Bytes(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(40))
	})

	It("rejects unknown formats with a helpful error", func() {
		_, err := DecodePhoto([]byte("definitely not an image"), "image/jpeg")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Supported formats"))
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects the ftyp box with a HEIC brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		data = append(data, make([]byte, 16)...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("ignores short or unrelated data", func() {
		Expect(isHEICFormat([]byte("tiny"))).To(BeFalse())
		Expect(isHEICFormat(encodePNG(image.NewRGBA(image.Rect(0, 0, 4, 4))))).To(BeFalse())
	})
})

var _ = Describe("IsPDF", func() {
	It("matches the content type", func() {
		Expect(IsPDF([]byte("anything"), "application/pdf")).To(BeTrue())
	})

	It("matches the PDF header", func() {
		Expect(IsPDF([]byte("%PDF-1.7 ..."), "application/octet-stream")).To(BeTrue())
	})

	It("rejects plain images", func() {
		Expect(IsPDF([]byte{0xff, 0xd8, 0xff}, "image/jpeg")).To(BeFalse())
	})
})
