package fields

import "context"

// Party identifies one side of the invoice (vendor or client).
type Party struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Email   *string `json:"email"`
}

// InvoiceFields is the normalized record shape both extraction strategies
// produce. Every field is independently optional; a nil field means the
// strategy could not find it, which is a legitimate terminal state.
// Dates are ISO-8601 (YYYY-MM-DD); money fields are non-negative decimals.
type InvoiceFields struct {
	InvoiceNumber *string  `json:"invoice_number"`
	Date          *string  `json:"date"`     // YYYY-MM-DD
	DueDate       *string  `json:"due_date"` // YYYY-MM-DD
	Amount        *float64 `json:"amount"`
	Tax           *float64 `json:"tax"`
	Total         *float64 `json:"total"`
	VendorInfo    Party    `json:"vendor_info"`
	ClientInfo    Party    `json:"client_info"`
}

// Extractor is the interface the pipeline depends on. Both the generative
// strategy and the deterministic regex strategy implement it; the second
// return value carries the raw model JSON when one exists.
type Extractor interface {
	ExtractFields(ctx context.Context, ocrText string) (InvoiceFields, []byte /*rawJSON*/, error)
}

// Str returns a pointer to s, for building optional fields.
func Str(s string) *string { return &s }

// Num returns a pointer to f, for building optional fields.
func Num(f float64) *float64 { return &f }
