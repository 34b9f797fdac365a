package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"condorview/internal/domain"
)

// ApprovalStore keeps pending tool approvals. The MCP server writes them and
// polls; the HTTP server or CLI resolves them.
type ApprovalStore struct {
	db *DB
}

// NewApprovalStore creates a new ApprovalStore.
func NewApprovalStore(db *DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

func (s *ApprovalStore) CreateApproval(a *domain.Approval) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Status = domain.ApprovalPending
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.conn.Exec(
		`INSERT INTO approvals (id, tool, description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Tool, a.Description, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (s *ApprovalStore) GetApproval(id string) (*domain.Approval, error) {
	a := &domain.Approval{}
	err := s.db.conn.QueryRow(
		`SELECT id, tool, description, status, created_at FROM approvals WHERE id = ?`, id,
	).Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ResolveApproval moves a pending approval to approved or rejected. Resolving
// an approval that is no longer pending reports ErrNotFound.
func (s *ApprovalStore) ResolveApproval(id string, approved bool) error {
	status := domain.ApprovalRejected
	if approved {
		status = domain.ApprovalApproved
	}
	res, err := s.db.conn.Exec(
		`UPDATE approvals SET status = ? WHERE id = ? AND status = ?`,
		status, id, domain.ApprovalPending,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "pending approval", id)
}

func (s *ApprovalStore) ListPendingApprovals() ([]domain.Approval, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, tool, description, status, created_at FROM approvals
		 WHERE status = ? ORDER BY created_at ASC`, domain.ApprovalPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Approval
	for rows.Next() {
		var a domain.Approval
		if err := rows.Scan(&a.ID, &a.Tool, &a.Description, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *ApprovalStore) DeleteApproval(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM approvals WHERE id = ?`, id)
	return err
}
