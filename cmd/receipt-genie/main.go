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

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-genie/internal/ingest"
	"github.com/zombor/receipt-genie/internal/ledger"
	"github.com/zombor/receipt-genie/internal/receipt"
	"github.com/zombor/receipt-genie/internal/scanning"
	"github.com/zombor/receipt-genie/internal/telemetry"
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

	// A missing .env file is fine
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receipt-genie")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		dbPath            = fs.StringLong("db", "receipt-genie.db", "Database file path")
		storagePath       = fs.StringLong("storage", "./receipts", "Storage directory for uploaded images")
		ledgerType        = fs.StringLong("ledger", "csv", "Usage ledger backend: 'csv' or 'sqlite'")
		ledgerPath        = fs.StringLong("ledger-path", "", "Usage ledger file path (default usage_log.csv or usage_log.db)")
		scannerType       = fs.StringLong("scanner", "openai", "Scanner type: 'openai', 'gemini' or 'ollama'")
		openaiKey         = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiURL         = fs.StringLong("openai-base-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
		openaiModel       = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL         = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel       = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, bakllava, qwen2-vl)")
		inputRate         = fs.Float64Long("input-rate", ledger.DefaultRates.InputPer1K, "Cost per 1000 input tokens")
		outputRate        = fs.Float64Long("output-rate", ledger.DefaultRates.OutputPer1K, "Cost per 1000 output tokens")
		timeout           = fs.DurationLong("timeout", scanning.DefaultTimeout, "Extraction request timeout")
		maxTokens         = fs.IntLong("max-tokens", scanning.DefaultMaxOutputTokens, "Maximum output tokens per extraction")
		temperature       = fs.Float64Long("temperature", scanning.DefaultTemperature, "Sampling temperature")
		allowRegistration = fs.BoolLong("allow-registration", "Expose POST /api/register")
		enableMetrics     = fs.BoolLong("metrics", "Serve Prometheus metrics on /metrics")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_GENIE"),
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

	rates := ledger.Rates{InputPer1K: *inputRate, OutputPer1K: *outputRate}
	if err := rates.Validate(); err != nil {
		slog.Error("Invalid token rates", "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	opts := scanning.Options{
		Timeout:         *timeout,
		MaxOutputTokens: *maxTokens,
		Temperature:     float32(*temperature),
	}
	scanner, err := newScanner(*scannerType, opts, scannerConfig{
		openaiKey:   *openaiKey,
		openaiURL:   *openaiURL,
		openaiModel: *openaiModel,
		geminiKey:   *geminiKey,
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize usage ledger
	if *ledgerPath == "" {
		*ledgerPath = defaultLedgerPath(*ledgerType)
	}
	slog.Info("Initializing usage ledger...", "type", *ledgerType, "path", *ledgerPath)
	usage, err := newLedger(*ledgerType, *ledgerPath)
	if err != nil {
		slog.Error("Failed to initialize usage ledger", "error", err)
		os.Exit(1)
	}
	defer usage.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var metrics *telemetry.Metrics
	if *enableMetrics {
		metrics = telemetry.NewMetrics()
	}

	// Initialize service and pipeline
	receiptService := receipt.NewService(db, store)
	pipeline := ingest.NewPipeline(scanner, ledger.NewCachedLedger(usage), store, receiptService, rates, metrics)

	server := receipt.NewServer(receiptService, pipeline, receipt.Options{
		AllowRegistration: *allowRegistration,
		Metrics:           metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "scanner", *scannerType)
	if *allowRegistration {
		slog.Info("Registration enabled")
	}

	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutting down...")
}

type scannerConfig struct {
	openaiKey, openaiURL, openaiModel string
	geminiKey, geminiModel            string
	ollamaURL, ollamaModel            string
}

// newScanner builds the extraction backend named by scannerType
func newScanner(scannerType string, opts scanning.Options, cfg scannerConfig) (scanning.Scanner, error) {
	switch scannerType {
	case "openai":
		apiKey := cfg.openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai api key is required: set --openai-key or OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "url", cfg.openaiURL, "model", cfg.openaiModel)
		return scanning.NewOpenAI(apiKey, cfg.openaiURL, cfg.openaiModel, opts)
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini api key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel, opts)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, opts)
	default:
		return nil, fmt.Errorf("invalid scanner type %q: want openai, gemini or ollama", scannerType)
	}
}

// defaultLedgerPath names the ledger file after its backend
func defaultLedgerPath(ledgerType string) string {
	if ledgerType == "sqlite" {
		return "usage_log.db"
	}
	return "usage_log.csv"
}

// newLedger opens the usage ledger backend named by ledgerType
func newLedger(ledgerType, path string) (ledger.Ledger, error) {
	switch ledgerType {
	case "csv":
		return ledger.NewCSVLedger(path)
	case "sqlite":
		return ledger.NewSQLiteLedger(path)
	default:
		return nil, fmt.Errorf("invalid ledger type %q: want csv or sqlite", ledgerType)
	}
}
