package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/lablens/lablens/internal/analysis"
	"github.com/lablens/lablens/internal/ingest"
	"github.com/lablens/lablens/internal/ocr"
	"github.com/lablens/lablens/internal/report"
	"github.com/lablens/lablens/internal/scan"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Load .env if present; real environment variables win
	_ = godotenv.Load()

	fs := ff.NewFlagSet("lablens")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "lablens.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./uploads", "Storage directory path")
		backendURL    = fs.StringLong("backend-url", "http://localhost:8081", "Analysis backend base URL")
		backendToken  = fs.StringLong("backend-token", "", "Analysis backend bearer token (or set LABLENS_BACKEND_TOKEN env var)")
		backendWait   = fs.DurationLong("backend-timeout", 180*time.Second, "Analysis request timeout")
		ocrProvider   = fs.StringLong("ocr", "tesseract", "OCR provider: 'tesseract', 'gemini' or 'vision'")
		ocrLanguage   = fs.StringLong("ocr-language", "eng", "Tesseract language code")
		ocrWorkers    = fs.IntLong("ocr-workers", ocr.DefaultWorkers, "Concurrent OCR workers")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		maxRenderSide = fs.IntLong("max-render-side", ingest.DefaultMaxRenderSide, "Longer side limit for rendered pages in pixels")
		pagesPerGroup = fs.IntLong("pages-per-group", ingest.DefaultPagesPerGroup, "Pages stitched into one submitted image")
		overlapPages  = fs.IntLong("overlap-pages", ingest.DefaultOverlapPages, "Pages shared between consecutive groups")
		uploadMaxSide = fs.IntLong("upload-max-side", analysis.DefaultMaxImageSide, "Longer side limit for submitted images in pixels")
		jpegQuality   = fs.Float64Long("jpeg-quality", analysis.DefaultJPEGQuality, "JPEG quality for submitted images (0.2-0.95)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LABLENS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := report.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize OCR provider based on type
	var recognizer ocr.Recognizer
	switch *ocrProvider {
	case "tesseract":
		slog.Info("Initializing Tesseract OCR...", "language", *ocrLanguage)
		recognizer, err = ocr.NewTesseract(*ocrLanguage)
		if err != nil {
			slog.Error("Failed to initialize Tesseract", "error", err)
			os.Exit(1)
		}
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini OCR...", "model", *geminiModel)
		recognizer, err = ocr.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "vision":
		slog.Info("Initializing Cloud Vision OCR...")
		recognizer, err = ocr.NewVision(context.Background())
		if err != nil {
			slog.Error("Failed to initialize Cloud Vision", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid OCR provider", "provider", *ocrProvider, "valid", "tesseract, gemini or vision")
		os.Exit(1)
	}
	defer recognizer.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := report.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Assemble the scan pipeline
	renderer := ingest.NewRenderer(*maxRenderSide)
	extractor := ocr.NewExtractor(recognizer, *ocrWorkers)
	analyzer := analysis.NewClient(analysis.Config{
		BaseURL:      *backendURL,
		AuthToken:    *backendToken,
		Timeout:      *backendWait,
		MaxImageSide: *uploadMaxSide,
		JPEGQuality:  *jpegQuality,
	})
	session := scan.NewSession(renderer, extractor, analyzer, scan.Config{
		PagesPerGroup: *pagesPerGroup,
		OverlapPages:  *overlapPages,
	})

	// Initialize service
	reportService := report.NewService(db, session, store)

	// Initialize server
	basicAuth := report.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := report.NewServer(reportService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "backend", *backendURL)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
