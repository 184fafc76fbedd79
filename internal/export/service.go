package export

import (
	"context"
	"fmt"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"go.uber.org/zap"
)

const defaultTitle = "Pipeline de Vendas"

// Service provides board report export functionality
type Service struct {
	source  pipeline.Loader
	archive *Archive
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new export service. archive may be nil.
func NewService(source pipeline.Loader, archive *Archive, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, archive: archive, logger: logger, now: time.Now}
}

// Export generates a board report in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	snapshot, err := s.source.LoadBoard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load board: %w", err)
	}

	registry := pipeline.NewStageRegistry(snapshot.Stages)
	deals, err := pipeline.NewDealStore(registry, snapshot.Deals)
	if err != nil {
		return nil, fmt.Errorf("build board: %w", err)
	}

	title := req.Title
	if title == "" {
		title = defaultTitle
	}
	generatedAt := s.now()
	html, err := RenderBoardHTML(BoardTemplateData{
		Title:       title,
		GeneratedAt: generatedAt,
		Columns:     pipeline.Project(registry, deals),
		Total:       deals.TotalValue(),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		result, err = exportPDF(ctx, html, title)
	case FormatDOCX:
		result, err = exportDOCX(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		key, err := s.archive.Put(ctx, generatedAt, result)
		if err != nil {
			s.logger.Warn("archive report", zap.String("filename", result.Filename), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}
