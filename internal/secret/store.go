// Package secret keeps database passwords out of the view store.
package secret

import (
	"os"
	"strings"
	"sync"
)

// SecretStore provides a pluggable interface for storing sensitive data
// such as database passwords.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// ConnectionKey is the key a connection password is stored under.
func ConnectionKey(connectionID string) string {
	return "db:" + connectionID
}

// EnvKey is the environment variable that overrides the password of the
// named connection: CONDORVIEW_DB_PASSWORD_<NAME>, upper-cased, with
// anything but letters and digits turned into underscores.
func EnvKey(connectionName string) string {
	var b strings.Builder
	b.WriteString("CONDORVIEW_DB_PASSWORD_")
	for _, r := range strings.ToUpper(connectionName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// LookupPassword returns the env override for the connection, else the
// stored secret.
func LookupPassword(s SecretStore, connectionID, connectionName string) (string, error) {
	if v, ok := os.LookupEnv(EnvKey(connectionName)); ok {
		return v, nil
	}
	if s == nil {
		return "", nil
	}
	pw, err := s.Get(ConnectionKey(connectionID))
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// MemoryStore keeps secrets in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
