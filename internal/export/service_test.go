package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/validate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "invoices.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExportInvoicesXLSX(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res := pipeline.Result{
		Success: true,
		Method:  pipeline.MethodRegex,
		Data: &fields.InvoiceFields{
			InvoiceNumber: fields.Str("INV-100"),
			Date:          fields.Str("2024-02-01"),
			Total:         fields.Num(150.0),
			VendorInfo:    fields.Party{Name: fields.Str("Acme Corp")},
		},
		Validation: &validate.Result{IsValid: true, ConfidenceScore: 1.0},
	}
	_, err := s.SaveResult(ctx, "invoice.pdf", res)
	require.NoError(t, err)

	data, err := NewService(s, testLogger()).ExportInvoicesXLSX(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Filename", rows[0][0])
	assert.Equal(t, "invoice.pdf", rows[1][0])
	assert.Equal(t, "COMPLETED", rows[1][1])
	assert.Equal(t, "INV-100", rows[1][2])
	assert.Equal(t, "2024-02-01", rows[1][3])
	assert.Equal(t, "150", rows[1][7])
	assert.Equal(t, "Acme Corp", rows[1][8])
}

func TestExportEmptyStore(t *testing.T) {
	s := openTestStore(t)

	data, err := NewService(s, testLogger()).ExportInvoicesXLSX(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
}
