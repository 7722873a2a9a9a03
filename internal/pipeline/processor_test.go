package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/document"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/enrich"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields"
)

// stubRecognizer returns canned text for every page without touching
// tesseract.
type stubRecognizer struct {
	text string
	err  error
}

func (s stubRecognizer) Recognize(_ context.Context, _ image.Image) (string, error) {
	return s.text, s.err
}

// failingExtractor simulates an unreachable AI backend.
type failingExtractor struct{}

func (failingExtractor) ExtractFields(_ context.Context, _ string) (fields.InvoiceFields, []byte, error) {
	return fields.InvoiceFields{}, nil, errors.New("connection refused")
}

// fixedExtractor returns a fixed record.
type fixedExtractor struct{ rec fields.InvoiceFields }

func (f fixedExtractor) ExtractFields(_ context.Context, _ string) (fields.InvoiceFields, []byte, error) {
	return f.rec, nil, nil
}

type stubEntities struct {
	set enrich.EntitySet
	err error
}

func (s stubEntities) ExtractEntities(_ context.Context, _ string) (enrich.EntitySet, error) {
	return s.set, s.err
}

type stubClassifier struct {
	cls enrich.Classification
	err error
}

func (s stubClassifier) Classify(_ context.Context, _ string, _ []string) (enrich.Classification, error) {
	return s.cls, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestProcessor(rec stubRecognizer, opts ...Option) *Processor {
	loader := document.NewLoader(document.Config{}, testLogger())
	return NewProcessor(testLogger(), loader, rec, opts...)
}

const sampleText = "Invoice #INV-100\nDate: 01/02/2024\nTotal: $150.00"

func TestProcessInvoiceRegexFallbackOnAIFault(t *testing.T) {
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithAIExtractor(failingExtractor{}, time.Second),
	)

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	require.True(t, res.Success, "AI faults must not fail the pipeline: %s", res.Error)
	assert.Empty(t, res.Error)
	assert.Equal(t, MethodRegex, res.Method)
	require.NotNil(t, res.Data)
	require.NotNil(t, res.Data.Date)
	assert.Equal(t, "2024-02-01", *res.Data.Date)
	require.NotNil(t, res.Data.Total)
	assert.Equal(t, 150.0, *res.Data.Total)
	assert.Nil(t, res.Data.InvoiceNumber, "regex strategy never guesses invoice numbers")
	assert.Equal(t, 1, res.Pages)
}

func TestProcessInvoiceFallbackMatchesDirectRegex(t *testing.T) {
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithAIExtractor(failingExtractor{}, time.Second),
	)
	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")
	require.True(t, res.Success)

	direct, _, err := fields.NewRegexExtractor(testLogger()).ExtractFields(context.Background(), sampleText)
	require.NoError(t, err)
	assert.Equal(t, direct, *res.Data)
}

func TestProcessInvoiceAIPreferred(t *testing.T) {
	want := fields.InvoiceFields{
		InvoiceNumber: fields.Str("INV-100"),
		Date:          fields.Str("2024-02-01"),
		Total:         fields.Num(150.0),
	}
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithAIExtractor(fixedExtractor{rec: want}, time.Second),
	)

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	require.True(t, res.Success)
	assert.Equal(t, MethodAI, res.Method)
	assert.Equal(t, want, *res.Data)
	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.IsValid)
	assert.Equal(t, 1.0, res.Validation.ConfidenceScore)
}

func TestProcessInvoiceUnsupportedFormat(t *testing.T) {
	p := newTestProcessor(stubRecognizer{text: sampleText})

	res := p.ProcessInvoice(context.Background(), []byte("hello"), "notes.txt")

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, "unsupported format", res.Error)
}

func TestProcessInvoiceRecognizerFailure(t *testing.T) {
	p := newTestProcessor(stubRecognizer{err: errors.New("tesseract: exit status 1")})

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Error)
}

func TestProcessInvoiceNoAIUsesRegex(t *testing.T) {
	p := newTestProcessor(stubRecognizer{text: sampleText})

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.jpg")

	require.True(t, res.Success)
	assert.Equal(t, MethodRegex, res.Method)
}

func TestProcessInvoiceEnrichmentFillsVendor(t *testing.T) {
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithEnrichment(
			stubEntities{set: enrich.EntitySet{Organizations: []string{"Acme Corp"}}},
			stubClassifier{cls: enrich.Classification{Label: "sales invoice", Confidence: 0.9}},
		),
	)

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	require.True(t, res.Success)
	require.NotNil(t, res.Data.VendorInfo.Name)
	assert.Equal(t, "Acme Corp", *res.Data.VendorInfo.Name)
	require.NotNil(t, res.DocumentType)
	assert.Equal(t, "sales invoice", res.DocumentType.Label)
	require.NotNil(t, res.Validation)
	assert.Equal(t, 0.9, res.Validation.ConfidenceScore)
}

func TestProcessInvoiceEnrichmentFaultsSwallowed(t *testing.T) {
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithEnrichment(
			stubEntities{err: errors.New("hf: 503")},
			stubClassifier{err: errors.New("hf: 503")},
		),
	)

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	require.True(t, res.Success)
	assert.Nil(t, res.Entities)
	assert.Nil(t, res.DocumentType)
}

func TestProcessInvoiceEnrichmentKeepsExtractedVendor(t *testing.T) {
	want := fields.InvoiceFields{
		InvoiceNumber: fields.Str("INV-1"),
		Date:          fields.Str("2024-01-01"),
		Total:         fields.Num(10.0),
		VendorInfo:    fields.Party{Name: fields.Str("Extracted Vendor")},
	}
	p := newTestProcessor(
		stubRecognizer{text: sampleText},
		WithAIExtractor(fixedExtractor{rec: want}, time.Second),
		WithEnrichment(stubEntities{set: enrich.EntitySet{Organizations: []string{"Other Org"}}}, nil),
	)

	res := p.ProcessInvoice(context.Background(), pngBytes(t), "invoice.png")

	require.True(t, res.Success)
	require.NotNil(t, res.Data.VendorInfo.Name)
	assert.Equal(t, "Extracted Vendor", *res.Data.VendorInfo.Name)
}
