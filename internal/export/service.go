package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

// Service is a tiny façade over the store that produces XLSX bytes for exports.
type Service struct {
	invoices *store.Store
	logger   *slog.Logger
}

func NewService(invoices *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) of all stored invoices.
func (s *Service) ExportInvoicesXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.invoices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Filename",
		"Status",
		"Invoice Number",
		"Date",
		"Due Date",
		"Amount",
		"Tax",
		"Total",
		"Vendor",
		"Vendor Email",
		"Client",
		"Client Email",
		"Document Type",
		"Confidence",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	for row, rec := range recs {
		values := []any{
			rec.Filename,
			string(rec.Status),
			strOrEmpty(rec.InvoiceNumber),
			strOrEmpty(rec.Date),
			strOrEmpty(rec.DueDate),
			numOrEmpty(rec.Amount),
			numOrEmpty(rec.Tax),
			numOrEmpty(rec.Total),
			strOrEmpty(rec.VendorName),
			strOrEmpty(rec.VendorEmail),
			strOrEmpty(rec.ClientName),
			strOrEmpty(rec.ClientEmail),
			strOrEmpty(rec.DocumentType),
			rec.Confidence,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.invoices.ok",
		"rows", len(recs), "bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func numOrEmpty(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
