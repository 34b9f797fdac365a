package sources

import (
	"context"
	"fmt"
	"sync"

	"condorview/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// db://<connection>?q=<query> runs a read query on a saved connection.
// The app layer owns the connectors and injects them through DBProvider.

// DBProvider runs a query on a saved connection and returns its payload:
// a header-first 2-D table for SQL drivers, a datacube for documents.
type DBProvider interface {
	QueryPayload(ctx context.Context, connRef, query string) (any, error)
}

var (
	dbProviderMu sync.RWMutex
	dbProvider   DBProvider
)

// SetDBProvider is called by the app at startup.
func SetDBProvider(p DBProvider) {
	dbProviderMu.Lock()
	dbProvider = p
	dbProviderMu.Unlock()
}

type databaseSource struct{}

func init() { etl.RegisterSource(&databaseSource{}) }

func (s *databaseSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "database",
		Label:   "Database Query",
		Schemes: []string{"db"},
		Example: "url=db://history?q=SELECT%20owner,%20count(*)%20FROM%20jobs%20GROUP%20BY%20owner",
		Help:    "Read query on a saved connection (SQL, or a JSON find/aggregate for mongodb)",
	}
}

func (s *databaseSource) Match(loc *etl.Location) bool {
	return loc.Scheme() == "db"
}

func (s *databaseSource) Fetch(ctx context.Context, loc *etl.Location) (any, error) {
	connRef := loc.URL.Host
	if connRef == "" {
		return nil, fmt.Errorf("db url needs a connection: db://<connection>?q=<query>")
	}
	query := loc.URL.Query().Get("q")
	if query == "" {
		return nil, fmt.Errorf("db url for %q has no q= query", connRef)
	}

	dbProviderMu.RLock()
	p := dbProvider
	dbProviderMu.RUnlock()
	if p == nil {
		return nil, fmt.Errorf("database provider not initialized")
	}
	return p.QueryPayload(ctx, connRef, query)
}
