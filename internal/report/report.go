package report

import (
	"time"

	"github.com/lablens/lablens/internal/analysis"
)

// Report is one persisted analysis outcome with its source document.
type Report struct {
	ID              string                    `json:"id"`
	Title           string                    `json:"title"`
	Kind            analysis.ResultKind       `json:"kind"`
	Code            analysis.FailureCode      `json:"code,omitempty"`
	Summary         string                    `json:"summary"`
	Remediation     string                    `json:"remediation,omitempty"` // populated for diagnostic outcomes
	Biomarkers      []analysis.Biomarker      `json:"biomarkers"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
	Disclaimer      string                    `json:"disclaimer,omitempty"`
	Filename        string                    `json:"filename"` // storage path of the uploaded original; empty for retries
	ContentType     string                    `json:"content_type"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}
