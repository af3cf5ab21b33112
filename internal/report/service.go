package report

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lablens/lablens/internal/analysis"
	"github.com/lablens/lablens/internal/ingest"
	"github.com/lablens/lablens/internal/scan"
)

// IDGenerator generates unique IDs for reports
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline is the scan pipeline consumed by the service. One run is
// active at a time; a new upload supersedes any in-flight run.
type Pipeline interface {
	ScanDocument(ctx context.Context, document []byte, profile *analysis.Profile) (*analysis.Result, error)
	ScanImages(ctx context.Context, photos []image.Image, profile *analysis.Profile) (*analysis.Result, error)
	Retry(ctx context.Context) (*analysis.Result, error)
	ClearRetryInput()
	Cancel()
	Snapshot() scan.Snapshot
}

// Service handles report operations
type Service struct {
	db          DB
	pipeline    Pipeline
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, pipeline Pipeline, storage Storage) *Service {
	return &Service{
		db:          db,
		pipeline:    pipeline,
		storage:     storage,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, pipeline Pipeline, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		pipeline:    pipeline,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "report"
	}

	return base + ext
}

// ProcessUpload stores an uploaded document or photo, runs the scan
// pipeline over it, and persists the analysis outcome. Diagnostic
// outcomes (backend unreachable, auth rejected, ...) are persisted like
// real analyses; only input failures return an error.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte, contentType string) (*Report, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	// Sanitize filename to clean up phone-generated long filenames
	cleanFilename := sanitizeFilename(filename)

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, cleanFilename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	profile, err := s.db.GetProfile()
	if err != nil {
		slog.Warn("Failed to load profile, continuing without it", "error", err)
		profile = nil
	}

	var result *analysis.Result
	if ingest.IsPDF(data, contentType) {
		result, err = s.pipeline.ScanDocument(ctx, data, profile)
	} else {
		var img image.Image
		img, err = ingest.DecodePhoto(data, contentType)
		if err == nil {
			result, err = s.pipeline.ScanImages(ctx, []image.Image{img}, profile)
		}
	}
	if err != nil {
		slog.Error("Failed to scan upload",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		// Clean up the saved file since scanning produced no outcome
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("scanning upload: %w", err)
	}

	report := s.buildReport(id, cleanFilename, savedPath, contentType, result, now)
	if err := s.db.SaveReport(report); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving report to database: %w", err)
	}

	return report, nil
}

// RetryLast resubmits the cached input set without re-rendering or
// re-running OCR and persists the fresh outcome as a new report.
func (s *Service) RetryLast(ctx context.Context) (*Report, error) {
	result, err := s.pipeline.Retry(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrying analysis: %w", err)
	}

	now := s.timeSource.Now()
	report := s.buildReport(s.idGenerator.Generate(), "Reanalysis", "", "", result, now)
	if err := s.db.SaveReport(report); err != nil {
		return nil, fmt.Errorf("saving report to database: %w", err)
	}
	return report, nil
}

func (s *Service) buildReport(id, title, savedPath, contentType string, result *analysis.Result, now time.Time) *Report {
	return &Report{
		ID:              id,
		Title:           title,
		Kind:            result.Kind,
		Code:            result.Code,
		Summary:         result.Summary,
		Remediation:     result.Remediation(),
		Biomarkers:      result.Biomarkers,
		Recommendations: result.Recommendations,
		Disclaimer:      result.Disclaimer,
		Filename:        savedPath,
		ContentType:     contentType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ScanStatus returns an immutable snapshot of the pipeline state.
func (s *Service) ScanStatus() scan.Snapshot {
	return s.pipeline.Snapshot()
}

// CancelScan cancels any in-flight scan run.
func (s *Service) CancelScan() {
	s.pipeline.Cancel()
}

// ClearRetryInput drops the cached submission.
func (s *Service) ClearRetryInput() {
	s.pipeline.ClearRetryInput()
}

// GetReport retrieves a report by ID
func (s *Service) GetReport(id string) (*Report, error) {
	report, err := s.db.GetReport(id)
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return report, nil
}

// ListReports returns all reports
func (s *Service) ListReports() ([]*Report, error) {
	reports, err := s.db.ListReports()
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return reports, nil
}

// DeleteReport removes a report and its stored file
func (s *Service) DeleteReport(id string) error {
	report, err := s.db.GetReport(id)
	if err != nil {
		return fmt.Errorf("getting report for deletion: %w", err)
	}

	if report.Filename != "" {
		if err := s.storage.Delete(report.Filename); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "filename", report.Filename, "error", err)
		}
	}

	if err := s.db.DeleteReport(id); err != nil {
		return fmt.Errorf("deleting report from database: %w", err)
	}
	return nil
}

// GetReportFile retrieves the original uploaded file for a report
func (s *Service) GetReportFile(id string) ([]byte, string, error) {
	report, err := s.db.GetReport(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting report: %w", err)
	}
	if report.Filename == "" {
		return nil, "", fmt.Errorf("report has no stored file: %s", id)
	}

	data, err := s.storage.Get(report.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting report file: %w", err)
	}

	return data, report.ContentType, nil
}

// GetProfile returns the stored user profile, or nil when none is set
func (s *Service) GetProfile() (*analysis.Profile, error) {
	profile, err := s.db.GetProfile()
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return profile, nil
}

// SaveProfile stores the user profile used for subsequent submissions
func (s *Service) SaveProfile(profile *analysis.Profile) error {
	if err := s.db.SaveProfile(profile); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}
