package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"condorview/internal/dbclient"
	"condorview/internal/domain"
	"condorview/internal/secret"
	"condorview/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Database Service: saved connections behind db:// data sources
// ─────────────────────────────────────────────────────────────

// CreateDBConnInput is the service-layer DTO for creating/updating connections.
type CreateDBConnInput struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

// DatabaseService manages external database connections and runs the read
// queries of db:// sources. It keeps one live connector per connection.
type DatabaseService struct {
	connStore *storage.ConnectionStore
	secrets   secret.SecretStore
	log       *zap.Logger
	maxRows   int

	mu               sync.Mutex
	activeConnectors map[string]*connEntry
}

type connEntry struct {
	connector dbclient.Connector
	createdAt time.Time
}

// NewDatabaseService creates a DatabaseService. maxRows <= 0 uses
// dbclient.DefaultMaxRows.
func NewDatabaseService(
	connStore *storage.ConnectionStore,
	secrets secret.SecretStore,
	log *zap.Logger,
	maxRows int,
) *DatabaseService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DatabaseService{
		connStore:        connStore,
		secrets:          secrets,
		log:              log,
		maxRows:          maxRows,
		activeConnectors: make(map[string]*connEntry),
	}
}

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

func (s *DatabaseService) CreateConnection(input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	conn := &domain.DatabaseConnection{
		Name:     input.Name,
		Driver:   domain.DatabaseDriver(input.Driver),
		Host:     input.Host,
		Port:     input.Port,
		Database: input.Database,
		Username: input.Username,
		SSLMode:  input.SSLMode,
	}
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secret.ConnectionKey(conn.ID), []byte(input.Password)); err != nil {
			return nil, fmt.Errorf("store password: %w", err)
		}
	}
	return conn, nil
}

func (s *DatabaseService) UpdateConnection(ref string, input CreateDBConnInput) error {
	conn, err := s.connStore.Resolve(ref)
	if err != nil {
		return err
	}
	conn.Name = input.Name
	conn.Driver = domain.DatabaseDriver(input.Driver)
	conn.Host = input.Host
	conn.Port = input.Port
	conn.Database = input.Database
	conn.Username = input.Username
	conn.SSLMode = input.SSLMode
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secret.ConnectionKey(conn.ID), []byte(input.Password)); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	// Next query re-connects with the new config.
	s.drop(conn.ID)
	return nil
}

func (s *DatabaseService) DeleteConnection(ref string) error {
	conn, err := s.connStore.Resolve(ref)
	if err != nil {
		return err
	}
	s.drop(conn.ID)
	if s.secrets != nil {
		_ = s.secrets.Delete(secret.ConnectionKey(conn.ID))
	}
	return s.connStore.DeleteConnection(conn.ID)
}

// ── Query Execution ────────────────────────────────────────

// Query runs a read query on the connection named or identified by ref.
func (s *DatabaseService) Query(ctx context.Context, ref, query string) (*dbclient.Result, error) {
	connector, err := s.getOrCreate(ref)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := connector.Query(ctx, query, s.maxRows)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ref, err)
	}
	s.log.Debug("db query",
		zap.String("connection", ref),
		zap.Int("rows", result.Len()),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))
	if result.Truncated {
		s.log.Warn("db query truncated", zap.String("connection", ref), zap.Int("rows", result.Len()))
	}
	return result, nil
}

// QueryPayload serves db:// sources.
func (s *DatabaseService) QueryPayload(ctx context.Context, connRef, query string) (any, error) {
	result, err := s.Query(ctx, connRef, query)
	if err != nil {
		return nil, err
	}
	return result.Payload(), nil
}

// ── Test + Introspect ──────────────────────────────────────

func (s *DatabaseService) TestConnection(ctx context.Context, ref string) error {
	connector, err := s.getOrCreate(ref)
	if err != nil {
		return err
	}
	return connector.TestConnection(ctx)
}

func (s *DatabaseService) Introspect(ctx context.Context, ref string) (*dbclient.SchemaInfo, error) {
	connector, err := s.getOrCreate(ref)
	if err != nil {
		return nil, err
	}
	return connector.Introspect(ctx)
}

// ── Connector Pool ─────────────────────────────────────────

func (s *DatabaseService) getOrCreate(ref string) (dbclient.Connector, error) {
	conn, err := s.connStore.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", ref, err)
	}

	s.mu.Lock()
	if e, ok := s.activeConnectors[conn.ID]; ok {
		s.mu.Unlock()
		return e.connector, nil
	}
	s.mu.Unlock()

	password, err := secret.LookupPassword(s.secrets, conn.ID, conn.Name)
	if err != nil {
		return nil, fmt.Errorf("read password for %s: %w", conn.Name, err)
	}

	connector, err := dbclient.NewConnector(conn, password, s.log)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have connected meanwhile; keep the first.
	if e, ok := s.activeConnectors[conn.ID]; ok {
		_ = connector.Close()
		return e.connector, nil
	}
	s.activeConnectors[conn.ID] = &connEntry{connector: connector, createdAt: time.Now()}
	return connector, nil
}

func (s *DatabaseService) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.activeConnectors[id]; ok {
		_ = e.connector.Close()
		delete(s.activeConnectors, id)
	}
}

// Close tears down all active database connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.activeConnectors {
		_ = entry.connector.Close()
		delete(s.activeConnectors, id)
	}
}
