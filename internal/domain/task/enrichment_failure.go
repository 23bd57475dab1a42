package task

import "time"

// EnrichmentFailureTask records a product whose detail page could not be
// fetched or parsed during a crawl run.
type EnrichmentFailureTask struct {
	RunID        string    `json:"run_id"`
	Page         int       `json:"page"`
	ProductURL   string    `json:"product_url"`
	Error        string    `json:"error"`
	FailureStage string    `json:"failure_stage"` // "fetch" or "parse"
	OccurredAt   time.Time `json:"occurred_at"`
}

func (t *EnrichmentFailureTask) TaskType() string {
	return "EnrichmentFailureTask"
}

func (t *EnrichmentFailureTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
