package enrich

import "context"

// EntitySet buckets named-entity recognition output. Purely informational;
// the pipeline never requires it.
type EntitySet struct {
	Organizations []string `json:"organizations"`
	Dates         []string `json:"dates"`
	Money         []string `json:"money"`
	Persons       []string `json:"persons"`
}

// Classification is the zero-shot document-type guess.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0..1
}

// EntityExtractor is the NER capability contract.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (EntitySet, error)
}

// Classifier is the zero-shot classification capability contract.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (Classification, error)
}
