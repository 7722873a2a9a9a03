package fields

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"
)

var moneyKeys = []string{"amount", "tax", "total"}
var dateKeys = []string{"date", "due_date"}
var partyKeys = []string{"vendor_info", "client_info"}

// acceptedDateLayouts are tried in order when the model returns a non-ISO date.
var acceptedDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizeAndSanitizeJSON reshapes a model response toward the invoice schema:
//   - Renames known flat-variant synonyms (total_amount -> total, vendor -> vendor_info.name)
//   - Drops null/empty values and unknown keys
//   - Coerces numeric strings to numbers for money fields
//   - Normalizes date strings to ISO-8601 where possible
//
// The output either validates against BuildInvoiceJSONSchema or the caller
// treats the response as malformed and falls back.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite an existing value if already present
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename flat-variant synonyms to the nested schema
	renamed("total_amount", "total")
	renamed("tax_amount", "tax")
	renamed("invoice_date", "date")
	renamed("invoice_no", "invoice_number")
	liftParty(m, "vendor", "vendor_info")
	liftParty(m, "vendor_name", "vendor_info")
	liftParty(m, "client", "client_info")
	liftParty(m, "client_name", "client_info")

	// 2) money fields: coerce to non-negative numbers, drop what cannot be
	for _, k := range moneyKeys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				if t < 0 {
					delete(m, k)
					dropped = append(dropped, k+"(negative)")
				}
			case string:
				f := ParseAmount(strings.TrimSpace(t))
				if f < 0 {
					delete(m, k)
					dropped = append(dropped, k+"(negative)")
				} else {
					m[k] = f
				}
			case nil:
				delete(m, k)
				dropped = append(dropped, k+"(null)")
			default:
				delete(m, k)
				dropped = append(dropped, k+"(type)")
			}
		}
	}

	// 3) date fields: ISO-8601 or best-effort reparse, else drop
	for _, k := range dateKeys {
		if v, ok := m[k]; ok {
			s, isStr := v.(string)
			if !isStr {
				delete(m, k)
				dropped = append(dropped, k+"(type)")
				continue
			}
			if iso, ok := normalizeDate(s); ok {
				m[k] = iso
			} else {
				delete(m, k)
				dropped = append(dropped, k+"(unparseable)")
			}
		}
	}

	// 4) party objects: keep only name/address/email, drop empties
	for _, k := range partyKeys {
		if v, ok := m[k]; ok {
			obj, isMap := v.(map[string]any)
			if !isMap {
				delete(m, k)
				dropped = append(dropped, k+"(type)")
				continue
			}
			for pk, pv := range maps.Clone(obj) {
				s, isStr := pv.(string)
				if !isStr || strings.TrimSpace(s) == "" {
					delete(obj, pk)
					dropped = append(dropped, k+"."+pk)
					continue
				}
				switch pk {
				case "name", "address", "email":
					obj[pk] = strings.TrimSpace(s)
				default:
					delete(obj, pk)
					dropped = append(dropped, k+"."+pk+"(unknown)")
				}
			}
			if len(obj) == 0 {
				delete(m, k)
			}
		}
	}

	// 5) trim invoice_number, drop unknown or empty top-level keys
	allowed := map[string]struct{}{
		"invoice_number": {}, "date": {}, "due_date": {},
		"amount": {}, "tax": {}, "total": {},
		"vendor_info": {}, "client_info": {},
	}
	for k, v := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
			continue
		}
		if s, isStr := v.(string); isStr {
			s = strings.TrimSpace(s)
			if s == "" {
				delete(m, k)
				dropped = append(dropped, k+"(empty)")
			} else {
				m[k] = s
			}
		}
		if v == nil {
			delete(m, k)
			dropped = append(dropped, k+"(null)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("fields.sanitize.adjusted", "dropped", dropped)
	}
	return out, dropped, nil
}

// liftParty moves a flat string field like "vendor" into the nested
// party object's name, preserving an existing nested value.
func liftParty(m map[string]any, from, to string) {
	v, ok := m[from]
	if !ok {
		return
	}
	delete(m, from)
	s, isStr := v.(string)
	if !isStr || strings.TrimSpace(s) == "" {
		return
	}
	obj, _ := m[to].(map[string]any)
	if obj == nil {
		obj = map[string]any{}
		m[to] = obj
	}
	if _, exists := obj["name"]; !exists {
		obj["name"] = strings.TrimSpace(s)
	}
}

func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
