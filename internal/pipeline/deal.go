package pipeline

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type Deal struct {
	ID          string          `json:"id"`
	ContactID   string          `json:"contact_id"`
	ContactName string          `json:"contact_name"`
	Title       string          `json:"title"`
	Value       decimal.Decimal `json:"value"`
	StageID     string          `json:"stage_id"`
	Description string          `json:"description"`
}

// DealStore is the single writer of deal records for a mounted board.
// Column membership is kept as an ordered id list per stage and always
// mirrors each deal's StageID.
type DealStore struct {
	mu       sync.RWMutex
	registry *StageRegistry
	deals    map[string]*Deal
	columns  map[string][]string
}

func NewDealStore(registry *StageRegistry, deals []Deal) (*DealStore, error) {
	s := &DealStore{
		registry: registry,
		deals:    make(map[string]*Deal, len(deals)),
		columns:  make(map[string][]string, registry.Len()),
	}
	for _, deal := range deals {
		if _, exists := s.deals[deal.ID]; exists {
			return nil, fmt.Errorf("load deal %s: duplicate id", deal.ID)
		}
		if !registry.Contains(deal.StageID) {
			return nil, fmt.Errorf("load deal %s: stage %q: %w", deal.ID, deal.StageID, ErrInvalidStage)
		}
		record := deal
		s.deals[deal.ID] = &record
		s.columns[deal.StageID] = append(s.columns[deal.StageID], deal.ID)
	}
	return s, nil
}

func (s *DealStore) Deal(id string) (Deal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deal, ok := s.deals[id]
	if !ok {
		return Deal{}, false
	}
	return *deal, true
}

// DealsByStage returns the deals of a stage in display order.
func (s *DealStore) DealsByStage(stageID string) []Deal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.columns[stageID]
	out := make([]Deal, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.deals[id])
	}
	return out
}

func (s *DealStore) TotalValue() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, deal := range s.deals {
		total = total.Add(deal.Value)
	}
	return total
}

func (s *DealStore) StageTotal(stageID string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, id := range s.columns[stageID] {
		total = total.Add(s.deals[id].Value)
	}
	return total
}

// project builds all columns under one read lock so a concurrent rollback
// never shows a deal in two columns.
func (s *DealStore) project(stages []Stage) []Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	columns := make([]Column, 0, len(stages))
	for _, stage := range stages {
		column := Column{Stage: stage, Deals: make([]Deal, 0, len(s.columns[stage.ID])), Total: decimal.Zero}
		for _, id := range s.columns[stage.ID] {
			deal := *s.deals[id]
			column.Deals = append(column.Deals, deal)
			column.Total = column.Total.Add(deal.Value)
		}
		columns = append(columns, column)
	}
	return columns
}

func (s *DealStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals)
}

// MoveDeal sets the deal's stage and appends it to the end of the new
// column. It returns the stage the deal was in before the move.
func (s *DealStore) MoveDeal(dealID, newStageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deal, ok := s.deals[dealID]
	if !ok {
		return "", fmt.Errorf("move deal %s: %w", dealID, ErrNotFound)
	}
	if !s.registry.Contains(newStageID) {
		return "", fmt.Errorf("move deal %s to %q: %w", dealID, newStageID, ErrInvalidStage)
	}

	previous := deal.StageID
	s.columns[previous] = removeID(s.columns[previous], dealID)
	s.columns[newStageID] = append(s.columns[newStageID], dealID)
	deal.StageID = newStageID
	return previous, nil
}

func removeID(ids []string, id string) []string {
	for i, candidate := range ids {
		if candidate == id {
			out := make([]string, 0, len(ids)-1)
			out = append(out, ids[:i]...)
			return append(out, ids[i+1:]...)
		}
	}
	return ids
}
