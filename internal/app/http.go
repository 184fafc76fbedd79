package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emanuelmabtis/meu-crm/internal/export"
	"github.com/emanuelmabtis/meu-crm/internal/pipeline"
	"github.com/emanuelmabtis/meu-crm/internal/search"
	"github.com/emanuelmabtis/meu-crm/internal/store"
	"github.com/emanuelmabtis/meu-crm/internal/util"
	"go.uber.org/zap"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

type stagePayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type dealPayload struct {
	ID          string      `json:"id"`
	ContactID   string      `json:"contact_id"`
	ContactName string      `json:"contact_name"`
	Title       string      `json:"title"`
	Value       json.Number `json:"value"`
	StageID     string      `json:"stage_id"`
	Description string      `json:"description"`
}

func kanbanPayload(snapshot pipeline.Snapshot) map[string]any {
	stages := make([]stagePayload, 0, len(snapshot.Stages))
	for _, stage := range snapshot.Stages {
		stages = append(stages, stagePayload{ID: stage.ID, Name: stage.Name, Position: stage.Position})
	}
	deals := make([]dealPayload, 0, len(snapshot.Deals))
	for _, deal := range snapshot.Deals {
		deals = append(deals, dealPayload{
			ID:          deal.ID,
			ContactID:   deal.ContactID,
			ContactName: deal.ContactName,
			Title:       deal.Title,
			Value:       json.Number(deal.Value.String()),
			StageID:     deal.StageID,
			Description: deal.Description,
		})
	}
	return map[string]any{"stages": stages, "deals": deals}
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		// The board is served from the database when Redis is down.
		if configured, err := s.service.PingCache(ctx); configured {
			if err != nil {
				checks["cache"] = map[string]any{"status": "degraded", "error": err.Error()}
			} else {
				checks["cache"] = map[string]any{"status": "ok"}
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/kanban" {
		snapshot, err := s.service.LoadBoard(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, kanbanPayload(snapshot))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/kanban/export" {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'html', 'pdf' or 'docx'", nil)
			return
		}
		result, err := s.service.Export(r.Context(), export.Request{
			Format: format,
			Title:  strings.TrimSpace(r.URL.Query().Get("title")),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if result.ArchiveKey != "" {
			w.Header().Set("X-Archive-Key", result.ArchiveKey)
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/deals/search" {
		query := r.URL.Query()
		limit := store.DefaultSearchLimit
		if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = min(max(parsed, 1), store.MaxSearchLimit)
		}
		offset := 0
		if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return
			}
			offset = parsed
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
			Text:    strings.TrimSpace(query.Get("q")),
			StageID: strings.TrimSpace(query.Get("stageId")),
			Limit:   limit,
			Offset:  offset,
		}))
		return
	}

	if r.URL.Path == "/api/contacts" {
		switch r.Method {
		case http.MethodGet:
			contacts, err := s.service.ListContacts(r.Context())
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, contacts)
			return
		case http.MethodPost:
			var body CreateContactInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			id, err := s.service.CreateContact(r.Context(), body)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
			return
		}
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/deals" {
		var body CreateDealInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		id, err := s.service.CreateDeal(r.Context(), body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "deals" && r.Method == http.MethodPatch {
		var body struct {
			StageID string `json:"stage_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.MoveDealStage(r.Context(), parts[2], body.StageID); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

// fail maps err to a response and logs server errors.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Archive-Key, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency is not installed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
