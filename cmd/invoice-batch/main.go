package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/constants"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/async"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/document"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/enrich"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/export"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields/openai"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/ingest"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/ocr"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

var (
	flagDir     string
	flagOut     string
	flagWorkers int
	flagWatch   bool
	flagDBPath  string
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:   "invoice-batch",
		Short: "Process a directory of invoice documents through the extraction pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), logger)
		},
	}
	rootCmd.Flags().StringVar(&flagDir, "dir", "", "directory to process (required)")
	rootCmd.Flags().StringVar(&flagOut, "out", "", "output XLSX file path (defaults to <dir>/../invoices.xlsx)")
	rootCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "worker pool size")
	rootCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep watching the directory for new documents")
	rootCmd.Flags().StringVar(&flagDBPath, "db", "", "SQLite database path (defaults to DB_PATH)")
	_ = rootCmd.MarkFlagRequired("dir")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("batch run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := common.LoadConfig()
	if flagDBPath != "" {
		cfg.Database.Path = flagDBPath
	}
	if flagOut == "" {
		flagOut = filepath.Join(filepath.Dir(flagDir), "invoices.xlsx")
	}

	invoices, err := store.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := invoices.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	proc := buildProcessor(cfg, logger)
	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(flagWorkers),
		async.WithStore(invoices),
	)

	paths, stats, err := ingest.ScanDirectory(flagDir, nil)
	if err != nil {
		return fmt.Errorf("scan directory: %w", err)
	}
	logger.Info("directory scanned",
		"scanned", stats.Scanned, "matched", stats.Matched, "skipped", stats.Skipped)
	for _, p := range paths {
		_ = queue.Enqueue(ctx, async.Job{Path: p, SubmittedAt: time.Now()})
	}

	if flagWatch {
		if err := watchLoop(ctx, queue); err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	queue.Shutdown(shutdownCtx)

	exporter := export.NewService(invoices, logger)
	data, err := exporter.ExportInvoicesXLSX(context.Background())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(flagOut, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	logger.Info("export written", "path", flagOut)
	return nil
}

// watchLoop feeds documents appearing under the directory into the queue
// until the context is cancelled.
func watchLoop(ctx context.Context, queue async.Queue) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{flagDir},
		AllowedExts: constants.AllowedExtensions,
		Debounce:    500 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			_ = queue.Enqueue(ctx, async.Job{Path: p, SubmittedAt: time.Now()})
		case err, ok := <-errs:
			if ok && err != nil {
				slog.Warn("watcher error", "error", err)
			}
		}
	}
}

// buildProcessor mirrors the daemon's wiring; the AI and enrichment stages
// activate only when credentials are configured.
func buildProcessor(cfg *common.Config, logger *slog.Logger) *pipeline.Processor {
	loader := document.NewLoader(document.Config{
		Pdftoppm: cfg.OCR.Pdftoppm,
		DPI:      cfg.OCR.DPI,
		MaxPages: cfg.OCR.MaxPages,
	}, logger)
	recognizer := ocr.NewTesseractRecognizer(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
	}, logger)

	var opts []pipeline.Option
	if cfg.LLM.APIKey != "" {
		ai := openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		opts = append(opts, pipeline.WithAIExtractor(ai, cfg.LLM.Timeout))
	}
	if cfg.Enrich.APIToken != "" {
		ec := enrich.NewClient(enrich.Config{
			APIToken:        cfg.Enrich.APIToken,
			BaseURL:         cfg.Enrich.BaseURL,
			NERModel:        cfg.Enrich.NERModel,
			ClassifierModel: cfg.Enrich.ClassifierModel,
			Timeout:         cfg.Enrich.Timeout,
		}, logger)
		opts = append(opts, pipeline.WithEnrichment(ec, ec))
	}
	return pipeline.NewProcessor(logger, loader, recognizer, opts...)
}
