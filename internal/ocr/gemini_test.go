package ocr

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("geminiResponseText", func() {
	When("the response carries text parts", func() {
		It("joins and trims them", func() {
			resp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []genai.Part{
						genai.Text("Hemoglobin 13.8 g/dL\n"),
						genai.Text("Ferritin 85 ng/mL\n"),
					}},
				}},
			}

			text, err := geminiResponseText(resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Hemoglobin 13.8 g/dL\nFerritin 85 ng/mL"))
		})
	})

	When("the response has no candidates", func() {
		It("returns an error", func() {
			_, err := geminiResponseText(&genai.GenerateContentResponse{})
			Expect(err).To(MatchError(ContainSubstring("no response")))
		})
	})

	When("the candidate was blocked and has nil content", func() {
		It("returns an error instead of panicking", func() {
			resp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content:      nil,
					FinishReason: genai.FinishReasonSafety,
				}},
			}

			_, err := geminiResponseText(resp)
			Expect(err).To(MatchError(ContainSubstring("empty response")))
		})
	})

	When("the candidate content has no parts", func() {
		It("returns an error", func() {
			resp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{}}},
			}

			_, err := geminiResponseText(resp)
			Expect(err).To(MatchError(ContainSubstring("empty response")))
		})
	})
})
