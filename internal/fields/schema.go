package fields

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We send it to the model as a structured-output constraint and
// also use it locally to validate the response before unmarshalling.
//
// No field is required: a key the model omits is simply a nil field in
// InvoiceFields. Unknown keys are stripped by the sanitize pass before
// validation, so additionalProperties stays false here.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string", "minLength": 1},
			"date":           dateProp(),
			"due_date":       dateProp(),
			"amount":         moneyProp(),
			"tax":            moneyProp(),
			"total":          moneyProp(),
			"vendor_info":    partyProp(),
			"client_info":    partyProp(),
		},
	}
}

func dateProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}
}

func moneyProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0}
}

func partyProp() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":    map[string]any{"type": "string", "minLength": 1},
			"address": map[string]any{"type": "string", "minLength": 1},
			"email":   map[string]any{"type": "string", "pattern": `^[^@\s]+@[^@\s]+\.[^@\s]+$`},
		},
	}
}
