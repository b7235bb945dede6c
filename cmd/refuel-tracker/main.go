package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/refuel-tracker/internal/refuel"
	"github.com/zombor/refuel-tracker/internal/scanning"
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

	fs := ff.NewFlagSet("refuel-tracker")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "refuel-tracker.db", "Database file path")
		storagePath = fs.StringLong("storage", "./tickets", "Ticket photo directory")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'none'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		_           = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("REFUEL_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := refuel.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	scanner, err := newScanner(*scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := refuel.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := refuel.NewService(db, scanner, store)
	server := refuel.NewServer(service, refuel.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

// newScanner returns nil for the "none" type
func newScanner(kind, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Scanner, error) {
	switch kind {
	case "gemini":
		if geminiKey == "" {
			geminiKey = os.Getenv("GEMINI_API_KEY")
		}
		if geminiKey == "" {
			return nil, fmt.Errorf("gemini api key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		return scanning.NewGemini(geminiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel)
	case "none":
		slog.Warn("Ticket scanning disabled")
		return nil, nil
	}
	return nil, fmt.Errorf("invalid scanner type %q (valid: gemini, ollama, none)", kind)
}
