package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/document"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/enrich"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/export"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields/openai"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/ocr"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/server"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	invoices, err := store.Open(ctx, cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := invoices.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	proc := buildProcessor(cfg, logger)
	exporter := export.NewService(invoices, logger)
	srv := server.NewServer(proc, invoices, exporter, cfg.Server, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		logger.Error("http serve failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
}

// buildProcessor wires the pipeline from configuration. The AI and
// enrichment stages are enabled only when their credentials are present;
// the regex fallback carries the pipeline otherwise.
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
	} else {
		logger.Warn("OPENAI_API_KEY not set; using regex extraction only")
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
