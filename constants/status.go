package constants

// InvoiceStatus is the canonical status for stored invoice records.
type InvoiceStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    InvoiceStatus = "PENDING"    // uploaded, not yet processed
	StatusProcessing InvoiceStatus = "PROCESSING" // pipeline running
	StatusCompleted  InvoiceStatus = "COMPLETED"  // extraction finished
	StatusError      InvoiceStatus = "ERROR"      // terminal failure
)
