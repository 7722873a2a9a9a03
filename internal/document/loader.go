package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/constants"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/ocr"
)

// Page is one rasterized page in document order.
type Page struct {
	Index int
	Image image.Image
}

// Document is the loader's output. For PDFs with a usable text layer, Text
// is set and Pages is empty: no OCR is needed. Otherwise Pages carries the
// rasterized page images in order.
type Document struct {
	Format constants.FileFormat
	Pages  []Page
	Text   string // text-layer content, when available
}

// Config for the loader.
type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI for PDF pages, default 300
	MaxPages int    // 0 = no limit
}

// minTextLayerChars is the threshold below which a PDF text layer is treated
// as absent (scanned PDFs often carry a few stray glyphs).
const minTextLayerChars = 32

// Loader normalizes an input file into either an ordered page-image sequence
// or, for text-layer PDFs, the text itself.
type Loader struct {
	cfg    Config
	runner ocr.Runner
	logger *slog.Logger
}

func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Loader{cfg: cfg, runner: ocr.ExecRunner{}, logger: logger}
}

// WithRunner swaps the command runner; used by tests.
func (l *Loader) WithRunner(runner ocr.Runner) *Loader {
	l.runner = runner
	return l
}

// Load picks a strategy based on the file extension.
func (l *Loader) Load(ctx context.Context, data []byte, filename string) (Document, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	l.logger.Debug("loading document", "filename", filename, "ext", ext, "bytes", len(data))

	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return l.loadPDF(ctx, data)
	case constants.IMAGE:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return Document{}, fmt.Errorf("decode image: %w", err)
		}
		return Document{
			Format: constants.IMAGE,
			Pages:  []Page{{Index: 0, Image: img}},
		}, nil
	default:
		l.logger.Error("unsupported document extension", "extension", ext)
		return Document{}, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, ext)
	}
}

// loadPDF probes the text layer first; scanned PDFs fall through to
// rasterization so OCR can run per page.
func (l *Loader) loadPDF(ctx context.Context, data []byte) (Document, error) {
	if text, err := pdfTextLayer(data); err == nil && len(strings.TrimSpace(text)) >= minTextLayerChars {
		l.logger.Debug("pdf text layer usable", "chars", len(text))
		return Document{Format: constants.PDF, Text: text}, nil
	}

	pages, err := l.rasterize(ctx, data)
	if err != nil {
		return Document{}, err
	}
	return Document{Format: constants.PDF, Pages: pages}, nil
}

// pdfTextLayer extracts embedded text page by page, joined with page breaks.
func pdfTextLayer(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		if buf.Len() > 0 {
			buf.WriteString(ocr.PageBreak)
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

// rasterize renders every PDF page to PNG at the configured DPI via pdftoppm
// and decodes them in page order. Temp files are removed on all exit paths.
func (l *Loader) rasterize(ctx context.Context, data []byte) ([]Page, error) {
	tmpDir, err := os.MkdirTemp("", "inv-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("pdf temp dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			l.logger.Warn("failed to remove pdf temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	inPath := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := l.runner.Run(ctx, l.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", l.cfg.DPI), "-png", inPath, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, string(errb))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if l.cfg.MaxPages > 0 && len(matches) > l.cfg.MaxPages {
		matches = matches[:l.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	pages := make([]Page, 0, len(matches))
	for i, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open page %d: %w", i+1, err)
		}
		img, _, err := image.Decode(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Index: i, Image: img})
	}
	return pages, nil
}
