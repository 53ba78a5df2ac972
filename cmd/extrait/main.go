// CLAUDE:SUMMARY Entry point for the extrait service: HTTP serve, stdio worker, and MCP modes plus child sentinel.
// Command extrait extracts text and metadata from documents.
//
// Usage:
//
//	extrait                           # HTTP service (default :8090)
//	extrait -config extrait.yaml      # HTTP service with config file
//	extrait worker                    # line-oriented loop on stdin/stdout
//	extrait worker -timeout 60s       # loop with per-file deadline
//	extrait mcp                       # MCP server on stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/extrait/config"
	"github.com/hazyhaar/extrait/dbopen"
	"github.com/hazyhaar/extrait/extract"
	"github.com/hazyhaar/extrait/httpapi"
	"github.com/hazyhaar/extrait/isolate"
	"github.com/hazyhaar/extrait/journal"
	"github.com/hazyhaar/extrait/worker"
)

func main() {
	// The envelope re-executes this binary with a sentinel argument. That
	// path must run before flag parsing and never touch config files.
	if len(os.Args) > 1 && os.Args[1] == isolate.ChildArg {
		childMain()
		return
	}

	mode := "serve"
	args := os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		mode = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("extrait "+mode, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("EXTRAIT_CONFIG"), "path to extrait.yaml config file")
	timeout := fs.Duration("timeout", 0, "per-extraction deadline (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// Envelope children resolve tool paths from the environment.
	os.Setenv("EXTRAIT_TESSERACT", cfg.Tesseract)
	os.Setenv("EXTRAIT_PANDOC", cfg.Pandoc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch mode {
	case "serve":
		runErr = runServe(ctx, cfg, logger)
	case "worker":
		runErr = runWorker(ctx, cfg, logger)
	case "mcp":
		runErr = runMCP(ctx, cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (serve | worker | mcp)\n", mode)
		os.Exit(2)
	}
	if runErr != nil {
		logger.Error("extrait: fatal", "mode", mode, "error", runErr)
		os.Exit(1)
	}
}

func childMain() {
	pipe := extract.New(extract.Options{
		TesseractBin: os.Getenv("EXTRAIT_TESSERACT"),
		PandocBin:    os.Getenv("EXTRAIT_PANDOC"),
	})
	isolate.ChildMain(isolate.PipelineHandler(pipe))
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Stderr keeps stdout free for the worker and MCP protocols.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newPipeline(cfg *config.Config, logger *slog.Logger) *extract.Pipeline {
	return extract.New(extract.Options{
		MaxFileSize:  cfg.MaxUploadBytes(),
		TesseractBin: cfg.Tesseract,
		PandocBin:    cfg.Pandoc,
		Logger:       logger,
	})
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pipe := newPipeline(cfg, logger)
	runner := isolate.New(isolate.PipelineHandler(pipe), isolate.Options{
		Timeout: cfg.Timeout,
		Logger:  logger,
	})

	db, err := dbopen.Open(cfg.JournalDB, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("journal db: %w", err)
	}
	defer db.Close()

	store := journal.NewStore(db)
	if err := store.Init(); err != nil {
		return fmt.Errorf("journal init: %w", err)
	}
	defer store.Close()

	api := httpapi.New(pipe, runner, httpapi.Options{
		Journal: store,
		Logger:  logger,
		MaxBody: cfg.MaxUploadBytes(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pipe := newPipeline(cfg, logger)
	runner := isolate.New(isolate.PipelineHandler(pipe), isolate.Options{
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	base, err := cfg.ExtractConfig()
	if err != nil {
		return err
	}

	loop := &worker.Loop{
		In:  os.Stdin,
		Out: os.Stdout,
		Exec: func(path string) isolate.Outcome {
			return runner.Run(ctx, isolate.Task{Path: path, Config: base})
		},
		Logger: logger,
	}
	return loop.Run()
}

func runMCP(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pipe := newPipeline(cfg, logger)
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "extrait",
		Version: "1.0.0",
	}, nil)
	pipe.RegisterMCP(srv)

	logger.Info("MCP server starting", "transport", "stdio")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
