package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func newSeededStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrations, err := Migrations("")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, DialectSQLite, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	s := NewSQLStore(db, DialectSQLite)
	seed, err := LoadSeed("")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	applied, err := s.ApplySeed(ctx, seed)
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	if !applied {
		t.Fatal("expected seed to be applied on an empty database")
	}
	return s
}

func TestSeededBoard(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	stages, err := s.ListStages(ctx)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	wantStages := []Stage{
		{ID: "lead", Name: "Lead", Position: 0},
		{ID: "contact", Name: "Contato Inicial", Position: 1},
		{ID: "negotiation", Name: "Negociação", Position: 2},
		{ID: "closed", Name: "Fechado", Position: 3},
	}
	if diff := cmp.Diff(wantStages, stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}

	deals, err := s.ListDeals(ctx)
	if err != nil {
		t.Fatalf("list deals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("expected 2 deals, got %d", len(deals))
	}
	d1, err := s.GetDeal(ctx, "d1")
	if err != nil {
		t.Fatalf("get deal: %v", err)
	}
	if d1.ContactName != "João Silva" || d1.StageID != "lead" || !d1.Value.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected d1: %+v", d1)
	}
}

func TestApplySeedIsIdempotent(t *testing.T) {
	s := newSeededStore(t)
	seed, err := LoadSeed("")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	applied, err := s.ApplySeed(context.Background(), seed)
	if err != nil {
		t.Fatalf("apply seed again: %v", err)
	}
	if applied {
		t.Fatal("seed must not be applied twice")
	}
}

func TestUpdateDealStage(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	if err := s.UpdateDealStage(ctx, "d1", "negotiation"); err != nil {
		t.Fatalf("update stage: %v", err)
	}
	deal, err := s.GetDeal(ctx, "d1")
	if err != nil {
		t.Fatalf("get deal: %v", err)
	}
	if deal.StageID != "negotiation" {
		t.Fatalf("expected negotiation, got %s", deal.StageID)
	}

	if err := s.UpdateDealStage(ctx, "missing", "lead"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown deal, got %v", err)
	}
	if err := s.UpdateDealStage(ctx, "d1", "nowhere"); err == nil {
		t.Fatal("expected foreign key violation for unknown stage")
	}
}

func TestInsertContactConflict(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	err := s.InsertContact(ctx, Contact{ID: "4", Name: "Ana", Phone: "5511999999999"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate phone, got %v", err)
	}
	if err := s.InsertContact(ctx, Contact{ID: "4", Name: "Ana", Phone: "5511777777777"}); err != nil {
		t.Fatalf("insert contact: %v", err)
	}
	contacts, err := s.ListContacts(ctx)
	if err != nil {
		t.Fatalf("list contacts: %v", err)
	}
	if len(contacts) != 4 {
		t.Fatalf("expected 4 contacts, got %d", len(contacts))
	}
}

func TestInsertDealAndSearch(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	deal := Deal{ID: "d3", ContactID: "3", Title: "Pacote Grupo", Value: decimal.RequireFromString("1200.50"), StageID: "contact"}
	if err := s.InsertDeal(ctx, deal); err != nil {
		t.Fatalf("insert deal: %v", err)
	}
	if err := s.InsertDeal(ctx, deal); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate deal, got %v", err)
	}

	results, total, err := s.SearchDeals(ctx, DealQuery{Text: "grupo"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(results) != 1 || results[0].ID != "d3" {
		t.Fatalf("unexpected search results total=%d %+v", total, results)
	}
	if !results[0].Value.Equal(decimal.RequireFromString("1200.5")) {
		t.Fatalf("unexpected value %s", results[0].Value)
	}

	results, total, err = s.SearchDeals(ctx, DealQuery{StageID: "negotiation"})
	if err != nil {
		t.Fatalf("search by stage: %v", err)
	}
	if total != 1 || results[0].ID != "d2" {
		t.Fatalf("unexpected stage search total=%d %+v", total, results)
	}

	results, total, err = s.SearchDeals(ctx, DealQuery{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("paged search: %v", err)
	}
	if total != 3 || len(results) != 1 {
		t.Fatalf("unexpected page total=%d len=%d", total, len(results))
	}
}

func TestSearchDealsMatchesWildcardsLiterally(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	for _, deal := range []Deal{
		{ID: "d3", ContactID: "1", Title: "Desconto 50% à vista", Value: decimal.NewFromInt(100), StageID: "lead"},
		{ID: "d4", ContactID: "2", Title: "plano_pro", Value: decimal.NewFromInt(200), StageID: "lead"},
		{ID: "d5", ContactID: "2", Title: `pasta C:\crm`, Value: decimal.NewFromInt(300), StageID: "lead"},
	} {
		if err := s.InsertDeal(ctx, deal); err != nil {
			t.Fatalf("insert deal %s: %v", deal.ID, err)
		}
	}

	tests := []struct {
		text string
		want []string
	}{
		{text: "%", want: []string{"d3"}},
		{text: "_", want: []string{"d4"}},
		{text: `\`, want: []string{"d5"}},
		{text: "50%", want: []string{"d3"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			results, total, err := s.SearchDeals(ctx, DealQuery{Text: tt.text})
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			got := make([]string, 0, len(results))
			for _, deal := range results {
				got = append(got, deal.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" || total != len(tt.want) {
				t.Fatalf("search %q total=%d (-want +got):\n%s", tt.text, total, diff)
			}
		})
	}
}

func TestSearchDealsCapsLimit(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	for i := 0; i < MaxSearchLimit+5; i++ {
		deal := Deal{ID: fmt.Sprintf("bulk-%03d", i), ContactID: "1", Title: "Lote", Value: decimal.NewFromInt(1), StageID: "lead"}
		if err := s.InsertDeal(ctx, deal); err != nil {
			t.Fatalf("insert deal %s: %v", deal.ID, err)
		}
	}

	results, total, err := s.SearchDeals(ctx, DealQuery{Text: "lote", Limit: 10000})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != MaxSearchLimit+5 || len(results) != MaxSearchLimit {
		t.Fatalf("expected %d of %d results, got %d of %d", MaxSearchLimit, MaxSearchLimit+5, len(results), total)
	}
}

func TestParseSeedRejectsUnknownStage(t *testing.T) {
	_, err := ParseSeed([]byte("stages:\n  - id: lead\n    name: Lead\ndeals:\n  - id: x\n    stage_id: gone\n"))
	if err == nil {
		t.Fatal("expected error for deal with unknown stage")
	}
}
