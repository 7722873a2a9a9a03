package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, nil)
}

func TestExtractFieldsOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(chatResponse(`{
			"invoice_number": "INV-100",
			"date": "2024-02-01",
			"total": 150.0,
			"vendor_info": {"name": "Acme Corp", "email": "billing@acme.com"}
		}`)))
	})

	rec, raw, err := c.ExtractFields(context.Background(), "Invoice #INV-100")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	require.NotNil(t, rec.InvoiceNumber)
	assert.Equal(t, "INV-100", *rec.InvoiceNumber)
	require.NotNil(t, rec.Date)
	assert.Equal(t, "2024-02-01", *rec.Date)
	require.NotNil(t, rec.Total)
	assert.Equal(t, 150.0, *rec.Total)
	require.NotNil(t, rec.VendorInfo.Name)
	assert.Equal(t, "Acme Corp", *rec.VendorInfo.Name)
}

func TestExtractFieldsFlatVariantReconciled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatResponse(`{
			"invoice_number": "INV-7",
			"invoice_date": "01/02/2024",
			"total_amount": "1,000.00",
			"vendor": "Initech"
		}`)))
	})

	rec, _, err := c.ExtractFields(context.Background(), "text")
	require.NoError(t, err)
	require.NotNil(t, rec.Date)
	assert.Equal(t, "2024-02-01", *rec.Date)
	require.NotNil(t, rec.Total)
	assert.Equal(t, 1000.0, *rec.Total)
	require.NotNil(t, rec.VendorInfo.Name)
	assert.Equal(t, "Initech", *rec.VendorInfo.Name)
}

func TestExtractFieldsMalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatResponse(`here is your data: {...`)))
	})
	_, _, err := c.ExtractFields(context.Background(), "text")
	require.Error(t, err)
}

func TestExtractFieldsNon2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, _, err := c.ExtractFields(context.Background(), "text")
	require.Error(t, err)
}

func TestExtractFieldsRetriesOnceOn5xx(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chatResponse(`{"total": 5.0}`)))
	})

	rec, _, err := c.ExtractFields(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.NotNil(t, rec.Total)
	assert.Equal(t, 5.0, *rec.Total)
}

func TestExtractFieldsGivesUpAfterSecond5xx(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, _, err := c.ExtractFields(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestExtractFieldsCancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatResponse(`{"total": 5.0}`)))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.ExtractFields(ctx, "text")
	require.Error(t, err)
}

func TestExtractFieldsNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})
	_, _, err := c.ExtractFields(context.Background(), "text")
	require.Error(t, err)
}
