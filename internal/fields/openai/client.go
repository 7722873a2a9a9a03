package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/fields"
)

// ExtractFields implements fields.Extractor using text-only chat/completions.
// The response content must be a single JSON object matching the invoice
// schema; it is sanitized and schema-validated before unmarshalling. Any
// failure here (transport, status, malformed JSON, schema mismatch) is
// returned to the caller, whose policy is to fall back to the regex strategy.
func (c *Client) ExtractFields(ctx context.Context, ocrText string) (fields.InvoiceFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(ocrText),
	)

	schema := fields.BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(ocrText)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.extract.no_choices",
			"req_id", rid, "elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, raw, fmt.Errorf("no choices in openai response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	// Sanitize first (renames flat-variant keys, drops unknowns), then
	// validate strictly. The content is only ever parsed as data.
	cleaned, dropped, sErr := fields.NormalizeAndSanitizeJSON(content, c.log)
	if sErr != nil {
		c.log.Error("llm.extract.sanitize_failed",
			"req_id", rid, "error", sErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, content, fmt.Errorf("sanitize: %w", sErr)
	}
	if len(dropped) > 0 {
		c.log.Warn("llm.extract.sanitize_applied", "req_id", rid, "dropped", dropped)
	}
	if err := fields.ValidateJSONAgainstSchema(schema, cleaned); err != nil {
		c.log.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, content, fmt.Errorf("schema validation failed: %w", err)
	}

	var out fields.InvoiceFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fields.InvoiceFields{}, content, fmt.Errorf("unmarshal fields: %w", err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"has_invoice_number", out.InvoiceNumber != nil,
		"has_date", out.Date != nil,
		"has_total", out.Total != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, cleaned, nil
}

// post sends the request, retrying once on a transport error or 5xx.
// Repeated retries are pointless here: the caller's fallback is immediate
// and deterministic. Context cancellation aborts the retry.
func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, retryable, err := c.doOnce(ctx, url, b)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.log.Warn("openai transient error, retrying once", "error", err, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte) (raw []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("openai response body close error", "error", cerr)
		}
	}()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode >= 500, fmt.Errorf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), false, nil
}

const systemPrompt = "You are an AI trained to extract information from invoices. " +
	"Return ONLY a JSON object that matches the JSON Schema provided. " +
	"Use ISO-8601 dates (YYYY-MM-DD). " +
	"Money fields (amount, tax, total) are plain decimal numbers without currency symbols. " +
	"Vendor and client details go under 'vendor_info' and 'client_info' objects with name, address, email. " +
	"Never output null. If a field is not present on the invoice, omit it."

func buildUserPrompt(ocr string) string {
	var b strings.Builder
	b.WriteString("Extract the following from this invoice text: invoice number, date, due date, ")
	b.WriteString("amount (subtotal), tax, total, vendor information, client information.\n")
	b.WriteString("\nInvoice text (first ~3k chars):\n")
	if len(ocr) > 3000 {
		b.WriteString(ocr[:3000])
	} else {
		b.WriteString(ocr)
	}
	return b.String()
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
