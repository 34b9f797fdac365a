package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"condorview/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter decouples services from whoever listens
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for announcing service events such as a
// finished view refresh.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes every event to a logger at debug level.
type LogEmitter struct {
	log *zap.Logger
}

// NewLogEmitter returns a LogEmitter.
func NewLogEmitter(log *zap.Logger) *LogEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, event string, data any) {
	e.log.Debug("event", zap.String("event", event), zap.Any("data", data))
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the recorded events.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
