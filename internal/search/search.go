package search

import "context"

// Result is a single deal hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ContactName string `json:"contactName"`
	StageID     string `json:"stageId"`
	Value       string `json:"value"`
}

// Query describes a search request.
type Query struct {
	Text    string
	StageID string // empty = all stages
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a deal search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// DealRecord is the data we index for a deal.
type DealRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ContactName string `json:"contactName"`
	StageID     string `json:"stageId"`
	Value       string `json:"value"`
}
