package search

import (
	"context"

	"github.com/emanuelmabtis/meu-crm/internal/store"
)

type dealSearcher interface {
	SearchDeals(ctx context.Context, query store.DealQuery) ([]store.Deal, int, error)
}

// SQLSearch implements Searcher over the relational store as a fallback.
type SQLSearch struct {
	store dealSearcher
}

func NewSQLSearch(store dealSearcher) *SQLSearch {
	return &SQLSearch{store: store}
}

// Healthy always returns true; without the database nothing else works either.
func (s *SQLSearch) Healthy() bool {
	return true
}

func (s *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	deals, total, err := s.store.SearchDeals(ctx, store.DealQuery{
		Text:    q.Text,
		StageID: q.StageID,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(deals))
	for _, deal := range deals {
		results = append(results, Result{
			ID:          deal.ID,
			Title:       deal.Title,
			Snippet:     deal.Description,
			ContactName: deal.ContactName,
			StageID:     deal.StageID,
			Value:       deal.Value.String(),
		})
	}
	return results, total, nil
}

// Records loads every deal as an index record.
func Records(ctx context.Context, source dealSearcher) ([]DealRecord, error) {
	var records []DealRecord
	const page = 500
	for offset := 0; ; offset += page {
		deals, _, err := source.SearchDeals(ctx, store.DealQuery{Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, deal := range deals {
			records = append(records, RecordFor(deal))
		}
		if len(deals) < page {
			return records, nil
		}
	}
}

func RecordFor(deal store.Deal) DealRecord {
	return DealRecord{
		ID:          deal.ID,
		Title:       deal.Title,
		Description: deal.Description,
		ContactName: deal.ContactName,
		StageID:     deal.StageID,
		Value:       deal.Value.String(),
	}
}
