package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"condorview/internal/domain"
)

// ViewStore implements persistence for saved views and their run logs.
type ViewStore struct {
	db *DB
}

// NewViewStore creates a new ViewStore.
func NewViewStore(db *DB) *ViewStore {
	return &ViewStore{db: db}
}

var _ domain.ViewStore = (*ViewStore)(nil)

// ── View CRUD ──────────────────────────────────────────────

const viewColumns = `id, name, query, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, last_rows, created_at, updated_at`

func scanView(r rowScanner) (*domain.View, error) {
	v := &domain.View{}
	var lastRun sql.NullTime
	err := r.Scan(
		&v.ID, &v.Name, &v.Query, &v.TriggerType, &v.TriggerConfig, &v.Enabled,
		&lastRun, &v.LastStatus, &v.LastError, &v.LastRows, &v.CreatedAt, &v.UpdatedAt,
	)
	if lastRun.Valid {
		v.LastRunAt = lastRun.Time
	}
	return v, err
}

func (s *ViewStore) CreateView(v *domain.View) error {
	if v.TriggerType == "" {
		v.TriggerType = domain.TriggerManual
	}
	if err := v.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.conn.Exec(
		`INSERT INTO views (id, name, query, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Query, v.TriggerType, v.TriggerConfig, v.Enabled, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create view %q: %w", v.Name, err)
	}
	return nil
}

func (s *ViewStore) GetView(id string) (*domain.View, error) {
	v, err := scanView(s.db.conn.QueryRow(`SELECT `+viewColumns+` FROM views WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %s: %w", id, ErrNotFound)
	}
	return v, err
}

func (s *ViewStore) GetViewByName(name string) (*domain.View, error) {
	v, err := scanView(s.db.conn.QueryRow(`SELECT `+viewColumns+` FROM views WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view %q: %w", name, ErrNotFound)
	}
	return v, err
}

// Resolve looks a view up by id, then by name.
func (s *ViewStore) Resolve(ref string) (*domain.View, error) {
	v, err := s.GetView(ref)
	if errors.Is(err, ErrNotFound) {
		return s.GetViewByName(ref)
	}
	return v, err
}

func (s *ViewStore) UpdateView(v *domain.View) error {
	if err := v.Validate(); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE views SET name=?, query=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=?
		 WHERE id=?`,
		v.Name, v.Query, v.TriggerType, v.TriggerConfig, v.Enabled, v.UpdatedAt, v.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "view", v.ID)
}

func (s *ViewStore) UpdateViewStatus(id string, status domain.RunStatus, rows int, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE views SET last_run_at=?, last_status=?, last_rows=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, rows, errMsg, now, id,
	)
	return err
}

func (s *ViewStore) DeleteView(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM run_logs WHERE view_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM views WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "view", id)
}

func (s *ViewStore) ListViews() ([]domain.View, error) {
	return s.listViews(`SELECT ` + viewColumns + ` FROM views ORDER BY name`)
}

// ListTriggeredViews returns enabled views with a schedule or file_watch trigger.
func (s *ViewStore) ListTriggeredViews() ([]domain.View, error) {
	return s.listViews(`SELECT ` + viewColumns + ` FROM views
		WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		ORDER BY created_at ASC`)
}

func (s *ViewStore) listViews(query string) ([]domain.View, error) {
	rows, err := s.db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []domain.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, rows.Err()
}

// ── Run Logs ───────────────────────────────────────────────

func (s *ViewStore) CreateRunLog(l *domain.RunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, view_id, triggered_by, started_at, finished_at, status, row_count, stages, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ViewID, l.Trigger, l.StartedAt, l.FinishedAt, l.Status, l.Rows, l.Stages, l.Error,
	)
	return err
}

func (s *ViewStore) ListRunLogs(viewID string, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(
		`SELECT id, view_id, triggered_by, started_at, finished_at, status, row_count, stages, error
		 FROM run_logs WHERE view_id = ? ORDER BY started_at DESC LIMIT ?`,
		viewID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(&l.ID, &l.ViewID, &l.Trigger, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Rows, &l.Stages, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
