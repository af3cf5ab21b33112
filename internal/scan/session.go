package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lablens/lablens/internal/analysis"
	"github.com/lablens/lablens/internal/ingest"
)

// Phase is the observable state of a scan run.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseRenderingDocument Phase = "rendering_document"
	PhaseExtractingText    Phase = "extracting_text"
	PhaseAwaitingAnalysis  Phase = "awaiting_analysis"
	PhaseCompleted         Phase = "completed"
	PhaseCancelled         Phase = "cancelled"
	PhaseFailed            Phase = "failed"
)

var (
	// ErrDocumentUnavailable is returned when the document cannot be
	// opened or yields no pages. It is a distinct outcome, not a fault:
	// no network call is made and the retry cache is untouched.
	ErrDocumentUnavailable = errors.New("document unavailable")
	// ErrNoInput is returned when a photo scan is started with no images.
	ErrNoInput = errors.New("no input images")
	// ErrNoRetryInput is returned by Retry when nothing has been submitted.
	ErrNoRetryInput = errors.New("no cached submission to retry")
)

// Renderer renders a paginated document into page images.
type Renderer interface {
	RenderAll(ctx context.Context, document []byte, progress ingest.ProgressFunc) ([]ingest.Page, error)
}

// Extractor runs per-page OCR aligned 1:1 with the input pages.
type Extractor interface {
	ExtractAll(ctx context.Context, pages []ingest.Page) ([]string, error)
}

// Analyzer submits an assembled context for analysis. It never fails:
// failures come back as diagnostic results.
type Analyzer interface {
	AnalyzeReport(ctx context.Context, req analysis.Request) *analysis.Result
}

// Config controls the stitching applied to rendered documents.
type Config struct {
	PagesPerGroup int // default 3
	OverlapPages  int // default 1, clamped by the stitcher
}

func (c Config) withDefaults() Config {
	if c.PagesPerGroup == 0 {
		c.PagesPerGroup = ingest.DefaultPagesPerGroup
		c.OverlapPages = ingest.DefaultOverlapPages
	}
	return c
}

// Snapshot is an immutable view of the session exposed to observers.
type Snapshot struct {
	RunID         string      `json:"run_id"`
	Phase         Phase       `json:"phase"`
	StatusMessage string      `json:"status_message"`
	PagesRendered int         `json:"pages_rendered"`
	PagesTotal    int         `json:"pages_total"`
	HasRetryInput bool        `json:"has_retry_input"`
	RetryUseCount int         `json:"retry_use_count"`
	Preview       image.Image `json:"-"`
}

// retryCache is the last submitted input set, retained for a
// no-recompute retry. Exclusively owned by the session.
type retryCache struct {
	images   []image.Image
	context  *analysis.ReportContext
	profile  *analysis.Profile
	useCount int
}

// Session drives the scan pipeline: render, stitch plus OCR, assemble,
// analyze. One run is active at a time; starting a new run cancels and
// discards any in-flight run first.
type Session struct {
	renderer  Renderer
	extractor Extractor
	analyzer  Analyzer
	cfg       Config

	mu       sync.Mutex
	runID    string
	phase    Phase
	status   string
	preview  image.Image
	rendered int
	total    int
	cancel   context.CancelFunc
	cache    *retryCache
}

// NewSession creates an idle Session.
func NewSession(renderer Renderer, extractor Extractor, analyzer Analyzer, cfg Config) *Session {
	return &Session{
		renderer:  renderer,
		extractor: extractor,
		analyzer:  analyzer,
		cfg:       cfg.withDefaults(),
		phase:     PhaseIdle,
	}
}

// Snapshot returns an immutable view of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:         s.runID,
		Phase:         s.phase,
		StatusMessage: s.status,
		PagesRendered: s.rendered,
		PagesTotal:    s.total,
		Preview:       s.preview,
	}
	if s.cache != nil {
		snap.HasRetryInput = true
		snap.RetryUseCount = s.cache.useCount
	}
	return snap
}

// Cancel cancels any in-flight run.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ClearRetryInput drops the cached submission.
func (s *Session) ClearRetryInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
}

// ScanDocument runs the full pipeline over a paginated document: render
// every page, stitch groups and extract text concurrently, assemble the
// context, and submit it for analysis. The retry cache keeps the
// submission for a later no-recompute Retry; it is only replaced at
// submission time, so a run that fails or is cancelled earlier leaves
// the previous cached submission intact.
func (s *Session) ScanDocument(ctx context.Context, document []byte, profile *analysis.Profile) (*analysis.Result, error) {
	runCtx, runID := s.beginRun(ctx, PhaseRenderingDocument, "Rendering document pages")
	defer s.endRun(runID)

	var docTotal int
	pages, err := s.renderer.RenderAll(runCtx, document, func(rendered, total int) {
		docTotal = total
		s.setProgress(runID, rendered, total)
	})
	if err != nil {
		// Cancelled mid-render: partial output is discarded.
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	if err := runCtx.Err(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	if len(pages) == 0 {
		s.setPhase(runID, PhaseFailed, "Document unavailable")
		return nil, ErrDocumentUnavailable
	}
	s.setPreview(runID, pages[0].Image)

	s.setPhase(runID, PhaseExtractingText, "Reading text from pages")

	// Stitching and OCR share the immutable page sequence and have no
	// dependency on each other; assembly waits for both.
	var (
		groups []ingest.StitchGroup
		texts  []string
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		groups = ingest.Stitch(pages, s.cfg.PagesPerGroup, s.cfg.OverlapPages, docTotal)
		return nil
	})
	g.Go(func() error {
		var err error
		texts, err = s.extractor.ExtractAll(gctx, pages)
		return err
	})
	if err := g.Wait(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	if err := runCtx.Err(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}

	pageTexts := make([]analysis.PageText, len(pages))
	for i, p := range pages {
		pageTexts[i] = analysis.PageText{Page: p.Index, Text: texts[i]}
	}
	images := make([]image.Image, len(groups))
	memberLists := make([][]int, len(groups))
	for i, group := range groups {
		images[i] = group.Image
		memberLists[i] = group.MemberPages
	}

	return s.analyze(runCtx, runID, images, analysis.AssembleContext(pageTexts, memberLists), profile)
}

// ScanImages runs the pipeline over standalone photos (entry point
// without a paginated document): no rendering, each image is its own
// page and is OCRed directly.
func (s *Session) ScanImages(ctx context.Context, photos []image.Image, profile *analysis.Profile) (*analysis.Result, error) {
	runCtx, runID := s.beginRun(ctx, PhaseExtractingText, "Reading text from images")
	defer s.endRun(runID)

	if len(photos) == 0 {
		s.setPhase(runID, PhaseFailed, "No images provided")
		return nil, ErrNoInput
	}
	s.setPreview(runID, photos[0])

	pages := make([]ingest.Page, len(photos))
	for i, img := range photos {
		b := img.Bounds()
		pages[i] = ingest.Page{Index: i + 1, Image: img, Width: b.Dx(), Height: b.Dy()}
	}

	texts, err := s.extractor.ExtractAll(runCtx, pages)
	if err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	if err := runCtx.Err(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}

	pageTexts := make([]analysis.PageText, len(pages))
	for i, p := range pages {
		pageTexts[i] = analysis.PageText{Page: p.Index, Text: texts[i]}
	}

	return s.analyze(runCtx, runID, photos, analysis.AssembleContext(pageTexts, analysis.SinglePageGroups(len(photos))), profile)
}

// Retry resubmits the cached input set verbatim: no re-render, no
// re-stitch, no re-OCR. The use count increases monotonically from the
// first retry.
func (s *Session) Retry(ctx context.Context) (*analysis.Result, error) {
	s.mu.Lock()
	if s.cache == nil {
		s.mu.Unlock()
		return nil, ErrNoRetryInput
	}
	s.cache.useCount++
	images := s.cache.images
	rctx := s.cache.context
	profile := s.cache.profile
	s.mu.Unlock()

	runCtx, runID := s.beginRun(ctx, PhaseAwaitingAnalysis, "Retrying analysis")
	defer s.endRun(runID)

	result := s.analyzer.AnalyzeReport(runCtx, analysis.Request{Images: images, Context: rctx, Profile: profile})
	if err := runCtx.Err(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	s.complete(runID, result)
	return result, nil
}

// analyze snapshots the retry cache, invokes the analysis call, and
// completes the run. The cache mutation happens atomically here, after
// every pipeline phase has succeeded.
func (s *Session) analyze(runCtx context.Context, runID string, images []image.Image, rctx *analysis.ReportContext, profile *analysis.Profile) (*analysis.Result, error) {
	s.setPhase(runID, PhaseAwaitingAnalysis, "Analyzing report")
	s.setCache(runID, &retryCache{images: images, context: rctx, profile: profile})

	result := s.analyzer.AnalyzeReport(runCtx, analysis.Request{Images: images, Context: rctx, Profile: profile})
	if err := runCtx.Err(); err != nil {
		s.setPhase(runID, PhaseCancelled, "Scan cancelled")
		return nil, err
	}
	s.complete(runID, result)
	return result, nil
}

// beginRun cancels any in-flight run and installs a fresh one.
func (s *Session) beginRun(ctx context.Context, initial Phase, status string) (context.Context, string) {
	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.runID = runID
	s.phase = initial
	s.status = status
	s.preview = nil
	s.rendered = 0
	s.total = 0
	s.mu.Unlock()

	slog.Info("Scan run started", "run_id", runID, "phase", initial)
	return runCtx, runID
}

// endRun releases the run's cancel func if this run is still current.
func (s *Session) endRun(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID == runID && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// complete marks the run terminal. A diagnostic result still completes
// the run: the caller always gets a displayable outcome.
func (s *Session) complete(runID string, result *analysis.Result) {
	status := "Analysis complete"
	if result.Kind == analysis.KindDiagnostic {
		status = fmt.Sprintf("Analysis failed: %s", result.Summary)
	}
	s.setPhase(runID, PhaseCompleted, status)
}

// setPhase mutates phase/status only while runID is the active run, so a
// superseded run cannot clobber its successor's state.
func (s *Session) setPhase(runID string, phase Phase, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != runID {
		return
	}
	s.phase = phase
	s.status = status
}

func (s *Session) setProgress(runID string, rendered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != runID {
		return
	}
	s.rendered = rendered
	s.total = total
	s.status = fmt.Sprintf("Rendered %d of %d pages", rendered, total)
}

func (s *Session) setPreview(runID string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != runID {
		return
	}
	s.preview = img
}

// setCache installs the submission snapshot, but only for the active
// run: a superseded run must not clobber its successor's cache.
func (s *Session) setCache(runID string, cache *retryCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runID != runID {
		return
	}
	s.cache = cache
}
