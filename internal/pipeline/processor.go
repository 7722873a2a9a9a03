package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/constants"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/document"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/enrich"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/ocr"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/validate"
)

// Extraction strategy names recorded on the result.
const (
	MethodAI    = "ai"
	MethodRegex = "regex"
)

// Result is the only value crossing the pipeline boundary.
// Success=false implies Data==nil and a non-empty Error; Success=true
// implies Error=="".
type Result struct {
	Success       bool                   `json:"success"`
	Data          *fields.InvoiceFields  `json:"data"`
	Error         string                 `json:"error,omitempty"`
	Method        string                 `json:"method,omitempty"`
	Pages         int                    `json:"pages,omitempty"`
	OCRConfidence float32                `json:"ocr_confidence,omitempty"`
	DocumentType  *enrich.Classification `json:"document_type,omitempty"`
	Entities      *enrich.EntitySet      `json:"entities,omitempty"`
	Validation    *validate.Result       `json:"validation,omitempty"`
	Elapsed       time.Duration          `json:"-"`
}

// Processor coordinates load -> preprocess -> recognize -> extract ->
// enrich -> validate for one document. Stateless; safe for concurrent use.
type Processor struct {
	logger       *slog.Logger
	loader       *document.Loader
	preprocessor *document.Preprocessor
	recognizer   ocr.Recognizer
	aiExtractor  fields.Extractor // nil when no generative capability is configured
	regex        fields.Extractor
	entities     enrich.EntityExtractor // nil disables NER enrichment
	classifier   enrich.Classifier      // nil disables classification
	aiTimeout    time.Duration
}

// Option configures optional processor collaborators.
type Option func(*Processor)

// WithAIExtractor enables the generative strategy. The timeout bounds the
// AI call on top of any caller deadline; on expiry the pipeline proceeds
// straight to the regex fallback.
func WithAIExtractor(e fields.Extractor, timeout time.Duration) Option {
	return func(p *Processor) {
		p.aiExtractor = e
		if timeout > 0 {
			p.aiTimeout = timeout
		}
	}
}

// WithEnrichment enables NER and/or zero-shot classification.
func WithEnrichment(entities enrich.EntityExtractor, classifier enrich.Classifier) Option {
	return func(p *Processor) {
		p.entities = entities
		p.classifier = classifier
	}
}

func NewProcessor(
	logger *slog.Logger,
	loader *document.Loader,
	recognizer ocr.Recognizer,
	opts ...Option,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:       logger,
		loader:       loader,
		preprocessor: document.NewPreprocessor(),
		recognizer:   recognizer,
		regex:        fields.NewRegexExtractor(logger),
		aiTimeout:    45 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessInvoice runs the full pipeline for one document. Loading,
// preprocessing, and recognition faults are fatal: without text there is
// nothing to extract. The AI strategy's faults are absorbed by the regex
// fallback, and enrichment faults are swallowed; neither ever fails the
// call.
func (p *Processor) ProcessInvoice(ctx context.Context, data []byte, filename string) Result {
	start := time.Now()

	// Loading
	doc, err := p.loader.Load(ctx, data, filename)
	if err != nil {
		p.logger.Error("pipeline.load.failed", "filename", filename, "err", err)
		return p.failure(err, start)
	}

	// Preprocessing + Recognizing
	text, err := p.recognizeDocument(ctx, doc)
	if err != nil {
		p.logger.Error("pipeline.recognize.failed", "filename", filename, "err", err)
		return p.failure(err, start)
	}
	text = ocr.Normalize(text)
	conf := ocr.HeuristicConfidence(text)
	p.logger.Debug("pipeline.recognize.ok",
		"filename", filename, "pages", pageCount(doc), "chars", len(text), "confidence", conf,
	)

	// Extracting: AI first, regex on any AI fault
	rec, method := p.extract(ctx, text)

	// Enriching (best-effort)
	entities, classification := p.enrich(ctx, text, &rec)

	// Validating
	validation := validate.Evaluate(rec, classification)

	res := Result{
		Success:       true,
		Data:          &rec,
		Method:        method,
		Pages:         pageCount(doc),
		OCRConfidence: conf,
		DocumentType:  classification,
		Entities:      entities,
		Validation:    &validation,
		Elapsed:       time.Since(start),
	}
	p.logger.Info("pipeline.done",
		"filename", filename, "method", method,
		"is_valid", validation.IsValid, "missing", validation.MissingFields,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res
}

// recognizeDocument produces the concatenated per-page text. A usable PDF
// text layer short-circuits OCR entirely.
func (p *Processor) recognizeDocument(ctx context.Context, doc document.Document) (string, error) {
	if doc.Text != "" {
		return doc.Text, nil
	}
	var b strings.Builder
	for _, page := range doc.Pages {
		cleaned := p.preprocessor.Apply(page.Image)
		txt, err := p.recognizer.Recognize(ctx, cleaned)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page.Index+1, err)
		}
		if b.Len() > 0 {
			b.WriteString(ocr.PageBreak)
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

// extract applies the fallback policy: any AI fault, including a deadline
// hit, silently hands off to the deterministic regex strategy.
func (p *Processor) extract(ctx context.Context, text string) (fields.InvoiceFields, string) {
	if p.aiExtractor != nil {
		aiCtx, cancel := context.WithTimeout(ctx, p.aiTimeout)
		rec, _, err := p.aiExtractor.ExtractFields(aiCtx, text)
		cancel()
		if err == nil {
			return rec, MethodAI
		}
		p.logger.Warn("pipeline.extract.fallback", "err", err)
	}
	rec, _, _ := p.regex.ExtractFields(ctx, text) // never errors
	return rec, MethodRegex
}

// enrich runs the optional NER and classification passes. Failures here are
// logged and swallowed; the record gains a vendor name from the first
// organization entity when field extraction left it empty.
func (p *Processor) enrich(ctx context.Context, text string, rec *fields.InvoiceFields) (*enrich.EntitySet, *enrich.Classification) {
	var entitySet *enrich.EntitySet
	if p.entities != nil {
		es, err := p.entities.ExtractEntities(ctx, text)
		if err != nil {
			p.logger.Warn("pipeline.enrich.entities_failed", "err", err)
		} else {
			entitySet = &es
			if rec.VendorInfo.Name == nil && len(es.Organizations) > 0 {
				rec.VendorInfo.Name = fields.Str(es.Organizations[0])
			}
		}
	}

	var classification *enrich.Classification
	if p.classifier != nil {
		cls, err := p.classifier.Classify(ctx, text, constants.DocumentTypeLabels())
		if err != nil {
			p.logger.Warn("pipeline.enrich.classify_failed", "err", err)
		} else {
			classification = &cls
		}
	}
	return entitySet, classification
}

// failure maps a fatal stage error to a short, user-visible message.
func (p *Processor) failure(err error, start time.Time) Result {
	msg := err.Error()
	switch {
	case errors.Is(err, common.ErrUnsupportedFormat):
		msg = common.ErrUnsupportedFormat.Error()
	case errors.Is(err, common.ErrRecognitionUnavailable):
		msg = common.ErrRecognitionUnavailable.Error()
	}
	return Result{Success: false, Error: msg, Elapsed: time.Since(start)}
}

func pageCount(doc document.Document) int {
	if doc.Text != "" && len(doc.Pages) == 0 {
		return 1 + strings.Count(doc.Text, "\f")
	}
	return len(doc.Pages)
}
