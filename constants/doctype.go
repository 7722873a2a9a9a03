package constants

import "strings"

// DocumentType is the label set used for zero-shot document classification.
type DocumentType string

const (
	PurchaseOrder DocumentType = "purchase order"
	SalesInvoice  DocumentType = "sales invoice"
	Receipt       DocumentType = "receipt"
	CreditNote    DocumentType = "credit note"
)

var allDocumentTypes = []DocumentType{
	PurchaseOrder,
	SalesInvoice,
	Receipt,
	CreditNote,
}

// DocumentTypeLabels returns the candidate labels passed to the classifier.
func DocumentTypeLabels() []string {
	result := make([]string, len(allDocumentTypes))
	for i, dt := range allDocumentTypes {
		result[i] = string(dt)
	}
	return result
}

// CanonicalDocumentType maps a classifier label back to a DocumentType.
func CanonicalDocumentType(label string) (DocumentType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, dt := range allDocumentTypes {
		if string(dt) == normalized {
			return dt, true
		}
	}
	return "", false
}
