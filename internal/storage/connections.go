package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"condorview/internal/domain"
)

// ConnectionStore manages database connection records.
type ConnectionStore struct {
	db *DB
}

// NewConnectionStore creates a new ConnectionStore.
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const connectionColumns = `id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(r rowScanner) (*domain.DatabaseConnection, error) {
	c := &domain.DatabaseConnection{}
	err := r.Scan(&c.ID, &c.Name, &c.Driver, &c.Host, &c.Port, &c.Database, &c.Username, &c.SSLMode, &c.ExtraJSON, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *ConnectionStore) CreateConnection(c *domain.DatabaseConnection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.ExtraJSON == "" {
		c.ExtraJSON = "{}"
	}

	_, err := s.db.conn.Exec(
		`INSERT INTO db_connections (`+connectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create connection %q: %w", c.Name, err)
	}
	return nil
}

func (s *ConnectionStore) GetConnection(id string) (*domain.DatabaseConnection, error) {
	c, err := scanConnection(s.db.conn.QueryRow(
		`SELECT `+connectionColumns+` FROM db_connections WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("database connection %s: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *ConnectionStore) GetConnectionByName(name string) (*domain.DatabaseConnection, error) {
	c, err := scanConnection(s.db.conn.QueryRow(
		`SELECT `+connectionColumns+` FROM db_connections WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("database connection %q: %w", name, ErrNotFound)
	}
	return c, err
}

// Resolve looks a connection up by id, then by name.
func (s *ConnectionStore) Resolve(ref string) (*domain.DatabaseConnection, error) {
	c, err := s.GetConnection(ref)
	if errors.Is(err, ErrNotFound) {
		return s.GetConnectionByName(ref)
	}
	return c, err
}

func (s *ConnectionStore) ListConnections() ([]domain.DatabaseConnection, error) {
	rows, err := s.db.conn.Query(`SELECT ` + connectionColumns + ` FROM db_connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.DatabaseConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (s *ConnectionStore) UpdateConnection(c *domain.DatabaseConnection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE db_connections SET name=?, driver=?, host=?, port=?, database_name=?, username=?, ssl_mode=?, extra_json=?, updated_at=?
		 WHERE id=?`,
		c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "database connection", c.ID)
}

func (s *ConnectionStore) DeleteConnection(id string) error {
	res, err := s.db.conn.Exec(`DELETE FROM db_connections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "database connection", id)
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
