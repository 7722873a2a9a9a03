package validate

import (
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/enrich"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields"
)

// Result is the completeness verdict over an extracted record. An invalid
// record is not an error: extraction succeeded, some required fields are
// simply absent.
type Result struct {
	IsValid         bool     `json:"is_valid"`
	MissingFields   []string `json:"missing_fields"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Evaluate checks the required fields: invoice_number, date, and a grand
// total (total, or amount when total is absent). ConfidenceScore carries the
// classifier's confidence when a classification ran; without one there is no
// probabilistic signal, so a presence-only pass scores 1.0 and a failed
// check 0.0.
func Evaluate(rec fields.InvoiceFields, cls *enrich.Classification) Result {
	missing := make([]string, 0, 3)
	if rec.InvoiceNumber == nil {
		missing = append(missing, "invoice_number")
	}
	if rec.Date == nil {
		missing = append(missing, "date")
	}
	if rec.Total == nil && rec.Amount == nil {
		missing = append(missing, "total")
	}

	res := Result{
		IsValid:       len(missing) == 0,
		MissingFields: missing,
	}
	switch {
	case cls != nil:
		res.ConfidenceScore = cls.Confidence
	case res.IsValid:
		res.ConfidenceScore = 1.0
	}
	return res
}
