package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
)

// Recognizer is the optical-recognition capability the pipeline depends on.
// Implementations return best-effort text, possibly empty, for any readable
// image; an error means the capability itself could not run.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Config for the tesseract-backed recognizer.
type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // e.g., 6 is good for a uniform block of text
	OEM           int // 1 = LSTM; leave 0 to use default
}

// TesseractRecognizer shells out to tesseract through a Runner.
type TesseractRecognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseractRecognizer(cfg Config, logger *slog.Logger) *TesseractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &TesseractRecognizer{cfg: cfg, runner: ExecRunner{}, logger: logger}
}

// WithRunner swaps the command runner; used by tests.
func (r *TesseractRecognizer) WithRunner(runner Runner) *TesseractRecognizer {
	r.runner = runner
	return r
}

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

// Recognize writes the page to a transient PNG and runs tesseract on it.
// The temp file is removed on every exit path.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	tmpDir, err := os.MkdirTemp("", "inv-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			r.logger.Warn("failed to remove ocr temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	pagePath := filepath.Join(tmpDir, "page.png")
	f, err := os.Create(pagePath)
	if err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode page: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close page: %w", err)
	}

	args := []string{pagePath, "stdout", "-l", r.cfg.TesseractLang}
	if r.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", r.cfg.PSM))
	}
	if r.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", r.cfg.OEM))
	}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %v: %s", common.ErrRecognitionUnavailable, err, truncate(string(errb), 512))
	}

	// minor cleanup of obvious line noise
	return reBoxNoise.ReplaceAllString(string(out), ""), nil
}
