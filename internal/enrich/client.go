package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Config for the inference-API client used by both enrichment capabilities.
type Config struct {
	APIToken        string
	BaseURL         string // default https://api-inference.huggingface.co
	NERModel        string // default dslim/bert-base-NER
	ClassifierModel string // default facebook/bart-large-mnli
	Timeout         time.Duration
}

// Client calls a hosted inference API for NER and zero-shot classification.
// Both calls are best-effort: the pipeline swallows their errors.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co"
	}
	if cfg.NERModel == "" {
		cfg.NERModel = "dslim/bert-base-NER"
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = "facebook/bart-large-mnli"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// ExtractEntities runs token classification and buckets the results.
func (c *Client) ExtractEntities(ctx context.Context, text string) (EntitySet, error) {
	body := map[string]any{
		"inputs":  clip(text, 2000),
		"options": map[string]any{"wait_for_model": true},
	}
	raw, err := c.post(ctx, c.cfg.NERModel, body)
	if err != nil {
		return EntitySet{}, err
	}

	var ents []struct {
		EntityGroup string  `json:"entity_group"`
		Word        string  `json:"word"`
		Score       float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &ents); err != nil {
		return EntitySet{}, fmt.Errorf("decode ner response: %w", err)
	}

	var out EntitySet
	for _, e := range ents {
		word := strings.TrimSpace(e.Word)
		if word == "" {
			continue
		}
		switch e.EntityGroup {
		case "ORG":
			out.Organizations = append(out.Organizations, word)
		case "PER":
			out.Persons = append(out.Persons, word)
		case "DATE":
			out.Dates = append(out.Dates, word)
		case "MONEY":
			out.Money = append(out.Money, word)
		}
	}
	c.log.Debug("enrich.entities.ok",
		"organizations", len(out.Organizations), "persons", len(out.Persons),
		"dates", len(out.Dates), "money", len(out.Money),
	)
	return out, nil
}

// Classify runs zero-shot classification over the candidate labels and
// returns the top label with its score.
func (c *Client) Classify(ctx context.Context, text string, labels []string) (Classification, error) {
	if len(labels) == 0 {
		return Classification{}, fmt.Errorf("no candidate labels")
	}
	body := map[string]any{
		"inputs": clip(text, 2000),
		"parameters": map[string]any{
			"candidate_labels": labels,
		},
		"options": map[string]any{"wait_for_model": true},
	}
	raw, err := c.post(ctx, c.cfg.ClassifierModel, body)
	if err != nil {
		return Classification{}, err
	}

	var resp struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Classification{}, fmt.Errorf("decode classification response: %w", err)
	}
	if len(resp.Labels) == 0 || len(resp.Scores) == 0 {
		return Classification{}, fmt.Errorf("empty classification response")
	}

	cls := Classification{Label: resp.Labels[0], Confidence: resp.Scores[0]}
	c.log.Debug("enrich.classify.ok", "label", cls.Label, "confidence", cls.Confidence)
	return cls, nil
}

func (c *Client) post(ctx context.Context, model string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warn("inference response body close error", "error", cerr)
		}
	}()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

// clip truncates to at most max bytes, backing up to a rune boundary so the
// tail never becomes a mangled partial character.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
