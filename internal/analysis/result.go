package analysis

// ResultKind discriminates real analyses from synthetic diagnostic
// results. Transport, auth and protocol failures are folded into the
// normal result shape so the caller always has a displayable terminal
// outcome; Kind is the machine-checkable way to tell the two apart.
type ResultKind string

const (
	// KindAnalyzed marks a result produced by the analysis backend.
	KindAnalyzed ResultKind = "analyzed"
	// KindDiagnostic marks a synthetic result describing a local failure.
	KindDiagnostic ResultKind = "diagnostic"
)

// FailureCode identifies why a diagnostic result was produced. Remediation
// hints key off the code, never off the summary text.
type FailureCode string

const (
	FailureUnauthorized FailureCode = "unauthorized"
	FailureForbidden    FailureCode = "forbidden"
	FailureTimeout      FailureCode = "timeout"
	FailureNoNetwork    FailureCode = "no_network"
	FailureUnreachable  FailureCode = "unreachable"
	FailureInvalidURL   FailureCode = "invalid_url"
	FailureBadResponse  FailureCode = "bad_response"
	FailureHTTP         FailureCode = "http_error"
)

// Biomarker is one extracted lab value.
type Biomarker struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Status      string `json:"status"`
	Explanation string `json:"explanation"`
}

// Recommendation is one suggested intervention.
type Recommendation struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Reason   string `json:"reason"`
}

// Result is the uniform outcome of an analysis submission.
type Result struct {
	Kind            ResultKind       `json:"kind"`
	Code            FailureCode      `json:"code,omitempty"`
	Biomarkers      []Biomarker      `json:"biomarkers"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
	Disclaimer      string           `json:"disclaimer,omitempty"`
}

// Diagnostic builds a synthetic result carrying a human-readable summary
// for a failure that occurred before any analysis could run.
func Diagnostic(code FailureCode, summary string) *Result {
	return &Result{
		Kind:            KindDiagnostic,
		Code:            code,
		Biomarkers:      []Biomarker{},
		Recommendations: []Recommendation{},
		Summary:         summary,
	}
}

// Remediation returns a user-facing hint for a diagnostic result, and an
// empty string for a real analysis.
func (r *Result) Remediation() string {
	if r.Kind != KindDiagnostic {
		return ""
	}
	switch r.Code {
	case FailureUnauthorized:
		return "Check the analysis auth token configuration and sign in again."
	case FailureForbidden:
		return "The auth token was rejected. Verify the configured token."
	case FailureTimeout:
		return "The request timed out. Retry the submission."
	case FailureNoNetwork:
		return "No network connection. Check connectivity and retry."
	case FailureUnreachable:
		return "The analysis backend is not reachable. Start the backend and retry."
	case FailureInvalidURL:
		return "The configured backend URL is invalid. Fix the URL setting."
	default:
		return "The analysis could not be completed. Try again later."
	}
}

// Retryable reports whether a low-friction retry of the same submission
// could plausibly succeed.
func (r *Result) Retryable() bool {
	if r.Kind != KindDiagnostic {
		return false
	}
	return r.Code != FailureInvalidURL
}
