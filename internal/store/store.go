package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/constants"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/common"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
)

// Invoice is a persisted pipeline result. Extracted fields are stored
// flattened into columns; absent fields stay NULL.
type Invoice struct {
	ID            uuid.UUID
	Filename      string
	Status        constants.InvoiceStatus
	Method        string
	DocumentType  *string
	Confidence    float64
	IsValid       bool
	MissingFields []string

	InvoiceNumber *string
	Date          *string // YYYY-MM-DD
	DueDate       *string // YYYY-MM-DD
	Amount        *float64
	Tax           *float64
	Total         *float64
	VendorName    *string
	VendorAddress *string
	VendorEmail   *string
	ClientName    *string
	ClientAddress *string
	ClientEmail   *string

	ErrorMessage *string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	filename       TEXT NOT NULL,
	status         TEXT NOT NULL,
	method         TEXT NOT NULL DEFAULT '',
	document_type  TEXT,
	confidence     REAL NOT NULL DEFAULT 0,
	is_valid       INTEGER NOT NULL DEFAULT 0,
	missing_fields TEXT NOT NULL DEFAULT '',
	invoice_number TEXT,
	date           TEXT,
	due_date       TEXT,
	amount         REAL,
	tax            REAL,
	total          REAL,
	vendor_name    TEXT,
	vendor_address TEXT,
	vendor_email   TEXT,
	client_name    TEXT,
	client_address TEXT,
	client_email   TEXT,
	error_message  TEXT,
	created_at     TIMESTAMP NOT NULL,
	processed_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);
`

// Store persists invoices in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening invoice store", "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection pool
	// without serialization; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	s.logger.Info("closing invoice store")
	return s.db.Close()
}

// SaveResult persists one pipeline result and returns the stored record.
func (s *Store) SaveResult(ctx context.Context, filename string, res pipeline.Result) (*Invoice, error) {
	now := time.Now().UTC()
	inv := &Invoice{
		ID:          uuid.New(),
		Filename:    filename,
		Method:      res.Method,
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if res.Success {
		inv.Status = constants.StatusCompleted
		if res.Data != nil {
			inv.InvoiceNumber = res.Data.InvoiceNumber
			inv.Date = res.Data.Date
			inv.DueDate = res.Data.DueDate
			inv.Amount = res.Data.Amount
			inv.Tax = res.Data.Tax
			inv.Total = res.Data.Total
			inv.VendorName = res.Data.VendorInfo.Name
			inv.VendorAddress = res.Data.VendorInfo.Address
			inv.VendorEmail = res.Data.VendorInfo.Email
			inv.ClientName = res.Data.ClientInfo.Name
			inv.ClientAddress = res.Data.ClientInfo.Address
			inv.ClientEmail = res.Data.ClientInfo.Email
		}
		if res.DocumentType != nil {
			label := res.DocumentType.Label
			if dt, ok := constants.CanonicalDocumentType(label); ok {
				label = string(dt)
			}
			inv.DocumentType = &label
		}
		if res.Validation != nil {
			inv.IsValid = res.Validation.IsValid
			inv.MissingFields = res.Validation.MissingFields
			inv.Confidence = res.Validation.ConfidenceScore
		}
	} else {
		inv.Status = constants.StatusError
		msg := res.Error
		inv.ErrorMessage = &msg
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, filename, status, method, document_type, confidence, is_valid,
			missing_fields, invoice_number, date, due_date, amount, tax, total,
			vendor_name, vendor_address, vendor_email,
			client_name, client_address, client_email,
			error_message, created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.Filename, string(inv.Status), inv.Method,
		inv.DocumentType, inv.Confidence, boolToInt(inv.IsValid),
		strings.Join(inv.MissingFields, ","),
		inv.InvoiceNumber, inv.Date, inv.DueDate, inv.Amount, inv.Tax, inv.Total,
		inv.VendorName, inv.VendorAddress, inv.VendorEmail,
		inv.ClientName, inv.ClientAddress, inv.ClientEmail,
		inv.ErrorMessage, inv.CreatedAt, inv.ProcessedAt,
	)
	if err != nil {
		s.logger.Error("failed to save invoice", "filename", filename, "error", err)
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	s.logger.Debug("invoice saved", "id", inv.ID, "filename", filename, "status", inv.Status)
	return inv, nil
}

// GetByID fetches one invoice.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.ErrNotFound
	}
	return scanInvoice(rows)
}

// List returns invoices newest first.
func (s *Store) List(ctx context.Context) ([]*Invoice, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const selectColumns = `
	SELECT id, filename, status, method, document_type, confidence, is_valid,
	       missing_fields, invoice_number, date, due_date, amount, tax, total,
	       vendor_name, vendor_address, vendor_email,
	       client_name, client_address, client_email,
	       error_message, created_at, processed_at
	FROM invoices`

func scanInvoice(rows *sql.Rows) (*Invoice, error) {
	var inv Invoice
	var id, missing string
	var isValid int
	if err := rows.Scan(
		&id, &inv.Filename, &inv.Status, &inv.Method, &inv.DocumentType,
		&inv.Confidence, &isValid, &missing,
		&inv.InvoiceNumber, &inv.Date, &inv.DueDate,
		&inv.Amount, &inv.Tax, &inv.Total,
		&inv.VendorName, &inv.VendorAddress, &inv.VendorEmail,
		&inv.ClientName, &inv.ClientAddress, &inv.ClientEmail,
		&inv.ErrorMessage, &inv.CreatedAt, &inv.ProcessedAt,
	); err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse invoice id: %w", err)
	}
	inv.ID = parsed
	inv.IsValid = isValid != 0
	if missing != "" {
		inv.MissingFields = strings.Split(missing, ",")
	}
	return &inv, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
