package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrConflict reports an insert that collided with an existing row.
var ErrConflict = errors.New("conflict")

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) q(query string) string {
	return Rebind(s.dialect, query)
}

func (s *SQLStore) ListStages(ctx context.Context) ([]Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, position
		FROM kanban_stages
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	items := make([]Stage, 0)
	for rows.Next() {
		var item Stage
		if err := rows.Scan(&item.ID, &item.Name, &item.Position); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return items, nil
}

func (s *SQLStore) CountStages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kanban_stages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stages: %w", err)
	}
	return count, nil
}

func (s *SQLStore) InsertStage(ctx context.Context, item Stage) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO kanban_stages (id, name, position)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), item.ID, item.Name, item.Position)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

func (s *SQLStore) StageExists(ctx context.Context, stageID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM kanban_stages WHERE id=?`), stageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check stage: %w", err)
	}
	return count > 0, nil
}

const dealColumns = `
	d.id, d.contact_id, COALESCE(c.name, ''), d.title, d.value, d.stage_id, COALESCE(d.description, '')
`

func scanDeal(row interface{ Scan(...any) error }) (Deal, error) {
	var item Deal
	err := row.Scan(&item.ID, &item.ContactID, &item.ContactName, &item.Title, &item.Value, &item.StageID, &item.Description)
	return item, err
}

func (s *SQLStore) ListDeals(ctx context.Context) ([]Deal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+dealColumns+`
		FROM deals d
		LEFT JOIN contacts c ON c.id = d.contact_id
		ORDER BY d.created_at ASC, d.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	items := make([]Deal, 0)
	for rows.Next() {
		item, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deals: %w", err)
	}
	return items, nil
}

func (s *SQLStore) GetDeal(ctx context.Context, dealID string) (Deal, error) {
	item, err := scanDeal(s.db.QueryRowContext(ctx, s.q(`
		SELECT `+dealColumns+`
		FROM deals d
		LEFT JOIN contacts c ON c.id = d.contact_id
		WHERE d.id=?
	`), dealID))
	if err != nil {
		return Deal{}, err
	}
	return item, nil
}

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// likeEscaper makes user text match literally inside a LIKE ... ESCAPE '\' pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchDeals matches the query text against title, description and
// contact name. It is the fallback when no search index is configured.
func (s *SQLStore) SearchDeals(ctx context.Context, query DealQuery) ([]Deal, int, error) {
	var (
		where []string
		args  []any
	)
	if text := strings.TrimSpace(query.Text); text != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
		where = append(where, `(LOWER(d.title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(d.description, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(c.name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if query.StageID != "" {
		where = append(where, `d.stage_id = ?`)
		args = append(args, query.StageID)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM deals d LEFT JOIN contacts c ON c.id = d.contact_id ` + clause
	if err := s.db.QueryRowContext(ctx, s.q(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deal search: %w", err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+dealColumns+`
		FROM deals d
		LEFT JOIN contacts c ON c.id = d.contact_id
		`+clause+`
		ORDER BY d.created_at ASC, d.id ASC
		LIMIT ? OFFSET ?
	`), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("search deals: %w", err)
	}
	defer rows.Close()

	items := make([]Deal, 0)
	for rows.Next() {
		item, err := scanDeal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan deal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate deal search: %w", err)
	}
	return items, total, nil
}

func (s *SQLStore) InsertDeal(ctx context.Context, item Deal) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO deals (id, contact_id, title, value, stage_id, description)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), item.ID, item.ContactID, item.Title, item.Value, item.StageID, item.Description)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("insert deal %s: %w", item.ID, ErrConflict)
	}
	return nil
}

// UpdateDealStage returns sql.ErrNoRows when the deal does not exist.
func (s *SQLStore) UpdateDealStage(ctx context.Context, dealID, stageID string) error {
	result, err := s.db.ExecContext(ctx, s.q(`UPDATE deals SET stage_id=? WHERE id=?`), stageID, dealID)
	if err != nil {
		return fmt.Errorf("update deal stage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deal stage: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) ContactExists(ctx context.Context, contactID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM contacts WHERE id=?`), contactID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check contact: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) ListContacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), type, status, COALESCE(last_message, '')
		FROM contacts
		ORDER BY updated_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]Contact, 0)
	for rows.Next() {
		var item Contact
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.Type, &item.Status, &item.LastMessage); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

// InsertContact returns ErrConflict when the id or phone is taken.
func (s *SQLStore) InsertContact(ctx context.Context, item Contact) error {
	contactType := item.Type
	if contactType == "" {
		contactType = "individual"
	}
	status := item.Status
	if status == "" {
		status = "lead"
	}
	var phone any
	if item.Phone != "" {
		phone = item.Phone
	}
	result, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO contacts (id, name, phone, type, status, last_message)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), item.ID, item.Name, phone, contactType, status, item.LastMessage)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("insert contact %s: %w", item.ID, ErrConflict)
	}
	return nil
}
