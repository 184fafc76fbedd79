package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/emanuelmabtis/meu-crm/internal/cache"
	"github.com/emanuelmabtis/meu-crm/internal/config"
	"github.com/emanuelmabtis/meu-crm/internal/export"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/emanuelmabtis/meu-crm/internal/search"
	"github.com/emanuelmabtis/meu-crm/internal/store"
	"github.com/emanuelmabtis/meu-crm/internal/util"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CreateContactInput struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Type  string `json:"type"`
}

type CreateDealInput struct {
	ID          string           `json:"id"`
	ContactID   string           `json:"contact_id"`
	Title       string           `json:"title"`
	Value       *decimal.Decimal `json:"value"`
	StageID     string           `json:"stage_id"`
	Description string           `json:"description"`
}

var allowedContactTypes = map[string]struct{}{
	"individual": {},
	"group":      {},
}

type dataStore interface {
	ListStages(context.Context) ([]store.Stage, error)
	ListDeals(context.Context) ([]store.Deal, error)
	GetDeal(context.Context, string) (store.Deal, error)
	StageExists(context.Context, string) (bool, error)
	UpdateDealStage(context.Context, string, string) error
	InsertDeal(context.Context, store.Deal) error
	SearchDeals(context.Context, store.DealQuery) ([]store.Deal, int, error)
	ListContacts(context.Context) ([]store.Contact, error)
	ContactExists(context.Context, string) (bool, error)
	InsertContact(context.Context, store.Contact) error
	ApplySeed(context.Context, store.Seed) (bool, error)
	Ping(ctx context.Context) error
}

type boardCache interface {
	Get(context.Context) (pipeline.Snapshot, int64, bool, error)
	Set(context.Context, int64, pipeline.Snapshot) error
	Invalidate(context.Context) error
	Ping(context.Context) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexDeal(search.DealRecord)
	ReindexAll([]search.DealRecord)
	Indexing() bool
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

// Deps are the optional backends. Nil fields disable the feature.
type Deps struct {
	Cache   *cache.BoardCache
	Meili   *search.Meili
	Archive *export.Archive
}

type Service struct {
	cfg      config.Config
	store    dataStore
	cache    boardCache
	search   searchService
	exporter exporter
	logger   *zap.Logger
}

func New(cfg config.Config, dataStore *store.SQLStore, logger *zap.Logger, deps Deps) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		cfg:    cfg,
		store:  dataStore,
		logger: logger,
		search: search.NewService(deps.Meili, search.NewSQLSearch(dataStore), logger.Named("search")),
	}
	if deps.Cache != nil {
		s.cache = deps.Cache
	}
	s.exporter = export.NewService(s, deps.Archive, logger.Named("export"))
	return s
}

// Bootstrap writes the seed board on first boot and fills the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	seed, err := store.LoadSeed(s.cfg.SeedFile)
	if err != nil {
		return err
	}
	applied, err := s.store.ApplySeed(ctx, seed)
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info("seeded board",
			zap.Int("stages", len(seed.Stages)),
			zap.Int("contacts", len(seed.Contacts)),
			zap.Int("deals", len(seed.Deals)),
		)
		s.invalidateBoard(ctx)
	}

	if s.search.Indexing() {
		records, err := search.Records(ctx, s.store)
		if err != nil {
			s.logger.Warn("load deals for reindex", zap.Error(err))
			return nil
		}
		s.search.ReindexAll(records)
	}
	return nil
}

// LoadBoard returns every stage ordered by position and every deal with
// its contact name.
func (s *Service) LoadBoard(ctx context.Context) (pipeline.Snapshot, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		snapshot, gen, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("read board cache", zap.Error(err))
		} else if ok {
			return snapshot, nil
		} else {
			generation, cacheable = gen, true
		}
	}

	var (
		stages []store.Stage
		deals  []store.Deal
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		stages, err = s.store.ListStages(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		deals, err = s.store.ListDeals(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return pipeline.Snapshot{}, err
	}

	snapshot := pipeline.Snapshot{
		Stages: make([]pipeline.Stage, 0, len(stages)),
		Deals:  make([]pipeline.Deal, 0, len(deals)),
	}
	for _, stage := range stages {
		snapshot.Stages = append(snapshot.Stages, pipeline.Stage{ID: stage.ID, Name: stage.Name, Position: stage.Position})
	}
	for _, deal := range deals {
		snapshot.Deals = append(snapshot.Deals, toPipelineDeal(deal))
	}

	if cacheable {
		if err := s.cache.Set(ctx, generation, snapshot); err != nil {
			s.logger.Warn("write board cache", zap.Error(err))
		}
	}
	return snapshot, nil
}

// MoveDealStage persists a stage change issued by a board client.
func (s *Service) MoveDealStage(ctx context.Context, dealID, stageID string) error {
	stageID = strings.TrimSpace(stageID)
	if stageID == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "stage_id is required", nil)
	}
	exists, err := s.store.StageExists(ctx, stageID)
	if err != nil {
		return err
	}
	if !exists {
		return domainError(http.StatusUnprocessableEntity, "INVALID_STAGE", "Unknown stage", map[string]any{"stage_id": stageID})
	}

	if err := s.store.UpdateDealStage(ctx, dealID, stageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Deal not found", map[string]any{"id": dealID})
		}
		return err
	}

	s.logger.Debug("deal stage changed", zap.String("deal_id", dealID), zap.String("stage_id", stageID))
	s.invalidateBoard(ctx)
	s.reindexDeal(ctx, dealID)
	return nil
}

func (s *Service) ListContacts(ctx context.Context) ([]map[string]any, error) {
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(contacts))
	for _, contact := range contacts {
		payload = append(payload, map[string]any{
			"id":           contact.ID,
			"name":         contact.Name,
			"phone":        contact.Phone,
			"type":         contact.Type,
			"status":       contact.Status,
			"last_message": contact.LastMessage,
		})
	}
	return payload, nil
}

func (s *Service) CreateContact(ctx context.Context, input CreateContactInput) (string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}
	contactType := strings.TrimSpace(input.Type)
	if contactType == "" {
		contactType = "individual"
	}
	if _, ok := allowedContactTypes[contactType]; !ok {
		return "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "type must be individual or group", nil)
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = util.NewID("")
	}

	err := s.store.InsertContact(ctx, store.Contact{
		ID:    id,
		Name:  name,
		Phone: strings.TrimSpace(input.Phone),
		Type:  contactType,
	})
	if errors.Is(err, store.ErrConflict) {
		return "", domainError(http.StatusBadRequest, "CONTACT_EXISTS", "Contact already exists or invalid data", nil)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) CreateDeal(ctx context.Context, input CreateDealInput) (string, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	value := decimal.Zero
	if input.Value != nil {
		value = *input.Value
	}
	if value.IsNegative() {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "value must not be negative", nil)
	}

	contactExists, err := s.store.ContactExists(ctx, input.ContactID)
	if err != nil {
		return "", err
	}
	if !contactExists {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown contact", map[string]any{"contact_id": input.ContactID})
	}
	stageExists, err := s.store.StageExists(ctx, input.StageID)
	if err != nil {
		return "", err
	}
	if !stageExists {
		return "", domainError(http.StatusUnprocessableEntity, "INVALID_STAGE", "Unknown stage", map[string]any{"stage_id": input.StageID})
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = util.NewID("deal")
	}
	err = s.store.InsertDeal(ctx, store.Deal{
		ID:          id,
		ContactID:   input.ContactID,
		Title:       title,
		Value:       value,
		StageID:     input.StageID,
		Description: strings.TrimSpace(input.Description),
	})
	if errors.Is(err, store.ErrConflict) {
		return "", domainError(http.StatusConflict, "DEAL_EXISTS", "Deal already exists", map[string]any{"id": id})
	}
	if err != nil {
		return "", err
	}

	s.invalidateBoard(ctx)
	s.reindexDeal(ctx, id)
	return id, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("export board: %w", err)
	}
	return result, nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache checks the board cache. configured is false when no cache is set up.
func (s *Service) PingCache(ctx context.Context) (configured bool, err error) {
	if s.cache == nil {
		return false, nil
	}
	return true, s.cache.Ping(ctx)
}

func (s *Service) invalidateBoard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate board cache", zap.Error(err))
	}
}

func (s *Service) reindexDeal(ctx context.Context, dealID string) {
	if !s.search.Indexing() {
		return
	}
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		s.logger.Warn("load deal for index", zap.String("deal_id", dealID), zap.Error(err))
		return
	}
	s.search.IndexDeal(search.RecordFor(deal))
}

func toPipelineDeal(deal store.Deal) pipeline.Deal {
	return pipeline.Deal{
		ID:          deal.ID,
		ContactID:   deal.ContactID,
		ContactName: deal.ContactName,
		Title:       deal.Title,
		Value:       deal.Value,
		StageID:     deal.StageID,
		Description: deal.Description,
	}
}
