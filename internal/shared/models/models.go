package models

import "time"

// Message is one role/content turn of a chat request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// BatchLog represents one dispatched batch in the run log
type BatchLog struct {
	ID           string
	RunID        string
	BatchIndex   int
	Model        string
	Tier         string
	Strategy     string
	Requests     int
	Skipped      int
	Failed       int
	CostTokens   int
	LatencyMs    int
	ErrorMessage *string
	CreatedAt    time.Time
}

// RunSummary aggregates the batch rows of one run
type RunSummary struct {
	RunID      string `json:"run_id"`
	Model      string `json:"model"`
	Batches    int    `json:"batches"`
	Requests   int    `json:"requests"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	CostTokens int    `json:"cost_tokens"`
}
