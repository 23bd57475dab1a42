package domain

import "time"

// RunResult is what a finished crawl hands back to its caller.
type RunResult struct {
	RunID              string        `json:"run_id"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	Pages              int           `json:"pages"`
	EnrichmentFailures int           `json:"enrichment_failures"`
	Products           []Product     `json:"products"`
}

// Checkpoint is the progress record written after every persisted page.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Page      int       `json:"page"`
	Products  int       `json:"products"`
	Failures  int       `json:"failures"`
	Finished  bool      `json:"finished"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
