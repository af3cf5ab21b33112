package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// Configuration defaults and clamp ranges for the analysis backend
// client. The JPEG quality default is deliberately low: lab report pages
// compress well and the payload must stay bounded regardless of document
// length.
const (
	DefaultTimeout      = 180 * time.Second
	DefaultMaxImageSide = 900
	MinImageSide        = 300
	DefaultJPEGQuality  = 0.38
	MinJPEGQuality      = 0.2
	MaxJPEGQuality      = 0.95
)

// Config controls the analysis backend client. The zero value of every
// field selects its documented default.
type Config struct {
	BaseURL      string        // analysis backend base URL, e.g. http://localhost:8080
	AuthToken    string        // bearer token; empty sends no Authorization header
	Timeout      time.Duration // per-request timeout; default 180s
	MaxImageSide int           // longer side of submitted images; default 900, floor 300
	JPEGQuality  float64       // default 0.38, clamped to [0.2, 0.95]
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxImageSide <= 0 {
		c.MaxImageSide = DefaultMaxImageSide
	}
	if c.MaxImageSide < MinImageSide {
		c.MaxImageSide = MinImageSide
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.JPEGQuality < MinJPEGQuality {
		c.JPEGQuality = MinJPEGQuality
	}
	if c.JPEGQuality > MaxJPEGQuality {
		c.JPEGQuality = MaxJPEGQuality
	}
	return c
}

// Profile is the optional user context attached to a submission. Every
// field is optional; unset fields serialize as null.
type Profile struct {
	Gender     *string `json:"gender"`
	AgeBand    *string `json:"ageBand"`
	WeightBand *string `json:"weightBand"`
}

// Request is one analysis submission: the ordered images plus the
// optional textual context and profile.
type Request struct {
	Images  []image.Image
	Context *ReportContext
	Profile *Profile
}

// Client submits assembled report contexts to the analysis backend.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client with a default HTTP client.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewClientWithHTTP creates a Client with a custom HTTP client for testing.
func NewClientWithHTTP(cfg Config, httpClient *http.Client) *Client {
	return &Client{cfg: cfg.withDefaults(), http: httpClient}
}

// analyzeRequest is the wire shape of POST /v1/analyze-report.
type analyzeRequest struct {
	Images             []string   `json:"images"`
	ReportText         *string    `json:"reportText"`
	ReportTextByPage   []PageText `json:"reportTextByPage"`
	StitchedPageGroups [][]int    `json:"stitchedPageGroups"`
	Profile            *Profile   `json:"profile"`
}

type analyzeResponse struct {
	Biomarkers      []Biomarker      `json:"biomarkers"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         string           `json:"summary"`
	Disclaimer      string           `json:"disclaimer"`
}

// AnalyzeReport submits a report for analysis.
//
// It never returns an error: every transport, auth, and protocol failure
// is folded into a diagnostic Result so the caller always receives a
// uniform, displayable outcome. Nothing propagates as a raw fault.
func (c *Client) AnalyzeReport(ctx context.Context, req Request) *Result {
	endpoint, diag := c.endpoint()
	if diag != nil {
		return diag
	}

	body := analyzeRequest{
		Images:  make([]string, 0, len(req.Images)),
		Profile: req.Profile,
	}
	for i, img := range req.Images {
		data, err := EncodeJPEG(img, c.cfg.MaxImageSide, c.cfg.JPEGQuality)
		if err != nil {
			slog.Warn("Skipping image that failed to encode", "position", i+1, "error", err)
			continue
		}
		body.Images = append(body.Images, base64.StdEncoding.EncodeToString(data))
	}
	if req.Context != nil {
		reportText := req.Context.ReportText
		body.ReportText = &reportText
		body.ReportTextByPage = req.Context.ReportTextByPage
		body.StitchedPageGroups = req.Context.StitchedPageGroups
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Diagnostic(FailureBadResponse, "The analysis could not be completed: the request could not be encoded.")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Diagnostic(FailureInvalidURL, "The analysis backend URL is invalid or unsupported.")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Diagnostic(FailureUnauthorized, "The analysis request was rejected as unauthorized. The auth token is missing or not accepted.")
	case resp.StatusCode == http.StatusForbidden:
		return Diagnostic(FailureForbidden, "The analysis request was forbidden: the auth token was rejected.")
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Diagnostic(FailureHTTP, fmt.Sprintf("The analysis could not be completed (backend returned HTTP %d).", resp.StatusCode))
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Diagnostic(FailureBadResponse, "The analysis could not be completed: the backend response could not be parsed.")
	}

	result := &Result{
		Kind:            KindAnalyzed,
		Biomarkers:      parsed.Biomarkers,
		Recommendations: parsed.Recommendations,
		Summary:         parsed.Summary,
		Disclaimer:      parsed.Disclaimer,
	}
	if result.Biomarkers == nil {
		result.Biomarkers = []Biomarker{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []Recommendation{}
	}
	return result
}

// endpoint validates the configured base URL and builds the analyze URL.
func (c *Client) endpoint() (string, *Result) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", Diagnostic(FailureInvalidURL, "The analysis backend URL is invalid or unsupported.")
	}
	return strings.TrimRight(u.String(), "/") + "/v1/analyze-report", nil
}

// classifyTransportError maps transport failures onto distinct diagnostic
// kinds so the remediation hint can be specific.
func classifyTransportError(err error) *Result {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return Diagnostic(FailureTimeout, "The analysis request timed out.")
	case isDNSError(err):
		return Diagnostic(FailureNoNetwork, "The analysis backend host could not be resolved. The network may be unavailable.")
	case errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.EHOSTUNREACH):
		return Diagnostic(FailureNoNetwork, "No network route to the analysis backend.")
	case errors.Is(err, syscall.ECONNREFUSED):
		return Diagnostic(FailureUnreachable, "Could not connect to the analysis backend: connection refused.")
	default:
		return Diagnostic(FailureUnreachable, fmt.Sprintf("Could not reach the analysis backend: %v.", err))
	}
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
