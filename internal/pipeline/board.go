package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Snapshot is the board as loaded from the backend.
type Snapshot struct {
	Stages []Stage `json:"stages"`
	Deals  []Deal  `json:"deals"`
}

// Loader is the read half of the persistence collaborator.
type Loader interface {
	LoadBoard(ctx context.Context) (Snapshot, error)
}

// Backend is everything the board needs from persistence.
type Backend interface {
	Loader
	Persister
}

// Board wires the registry, store, engine and drag controller of one
// mounted board.
type Board struct {
	registry   *StageRegistry
	deals      *DealStore
	engine     *Engine
	controller *DragController
}

// Mount loads the board once and returns it ready for dragging.
func Mount(ctx context.Context, backend Backend, opts ...Option) (*Board, error) {
	snapshot, err := backend.LoadBoard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}
	return NewBoard(snapshot, backend, opts...)
}

func NewBoard(snapshot Snapshot, persister Persister, opts ...Option) (*Board, error) {
	registry := NewStageRegistry(snapshot.Stages)
	deals, err := NewDealStore(registry, snapshot.Deals)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(registry, deals, persister, opts...)
	return &Board{
		registry:   registry,
		deals:      deals,
		engine:     engine,
		controller: NewDragController(deals, engine),
	}, nil
}

func (b *Board) Stages() *StageRegistry      { return b.registry }
func (b *Board) Deals() *DealStore           { return b.deals }
func (b *Board) Engine() *Engine             { return b.engine }
func (b *Board) Controller() *DragController { return b.controller }

// Wait blocks until all in-flight stage changes have settled.
func (b *Board) Wait() { b.engine.Wait() }

// Column is one projected board column.
type Column struct {
	Stage Stage
	Deals []Deal
	Total decimal.Decimal
}

// Columns projects the board into ordered columns for rendering.
func (b *Board) Columns() []Column {
	return Project(b.registry, b.deals)
}

func Project(registry *StageRegistry, deals *DealStore) []Column {
	return deals.project(registry.List())
}
