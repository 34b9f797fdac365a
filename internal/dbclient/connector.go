// Package dbclient runs read queries against external databases for the
// db:// data source.
package dbclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"condorview/internal/domain"
)

// DefaultMaxRows caps the rows a single query may return.
const DefaultMaxRows = 100_000

// ErrWriteQuery is returned for statements that would modify the database.
var ErrWriteQuery = errors.New("only read queries are allowed")

// Result is the outcome of one query. SQL connectors fill Columns and Rows;
// the document connector fills Documents with one *grid.Object per document.
type Result struct {
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	Documents []any    `json:"documents,omitempty"`
	Truncated bool     `json:"truncated"` // maxRows was reached
}

// Payload returns the result in a shape the grid adapters accept: a
// header-first 2-D table for SQL, a datacube for documents.
func (r *Result) Payload() any {
	if r.Documents != nil {
		return r.Documents
	}
	table := make([]any, 0, len(r.Rows)+1)
	header := make([]any, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	table = append(table, header)
	for _, row := range r.Rows {
		table = append(table, row)
	}
	return table
}

// Len returns the number of rows or documents.
func (r *Result) Len() int {
	if r.Documents != nil {
		return len(r.Documents)
	}
	return len(r.Rows)
}

// SchemaInfo contains the database schema, listed by `conn test`.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector abstracts interaction with an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Query runs a read query and returns at most maxRows rows.
	Query(ctx context.Context, query string, maxRows int) (*Result, error)

	// Introspect returns the database schema.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close closes the connection.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from the secret store).
func NewConnector(conn *domain.DatabaseConnection, password string, log *zap.Logger) (Connector, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("connection", conn.Name), zap.String("driver", string(conn.Driver)))
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password, log)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

func effectiveMaxRows(n int) int {
	if n <= 0 {
		return DefaultMaxRows
	}
	return n
}
