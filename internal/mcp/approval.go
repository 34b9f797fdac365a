package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"condorview/internal/domain"
	"condorview/internal/storage"
)

// ErrRejected is returned when a human rejects a destructive action.
var ErrRejected = errors.New("action rejected")

// ApprovalQueue parks destructive tool calls until they are approved.
// The MCP server usually runs as a stdio child of an agent, so the queue is
// backed by the shared SQLite file: the pending row is written here and
// resolved by `condorview approve` or the HTTP API in another process.
type ApprovalQueue struct {
	store    *storage.ApprovalStore
	log      *zap.Logger
	auto     bool
	timeout  time.Duration
	interval time.Duration
}

// NewApprovalQueue creates a queue over store. With auto set every request
// is approved immediately.
func NewApprovalQueue(store *storage.ApprovalStore, log *zap.Logger, auto bool, timeout time.Duration) *ApprovalQueue {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ApprovalQueue{
		store:    store,
		log:      log,
		auto:     auto,
		timeout:  timeout,
		interval: 500 * time.Millisecond,
	}
}

// Request blocks until the action is approved, rejected, times out or ctx
// ends. It returns nil only on approval.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description string) error {
	if q.auto {
		return nil
	}
	if q.store == nil {
		return fmt.Errorf("%s needs approval but no approval store is configured", tool)
	}

	a := &domain.Approval{Tool: tool, Description: description}
	if err := q.store.CreateApproval(a); err != nil {
		return err
	}
	defer q.store.DeleteApproval(a.ID)
	q.log.Info("approval required",
		zap.String("id", a.ID), zap.String("tool", tool), zap.String("description", description))

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			got, err := q.store.GetApproval(a.ID)
			if err != nil {
				continue
			}
			switch got.Status {
			case domain.ApprovalApproved:
				return nil
			case domain.ApprovalRejected:
				return fmt.Errorf("%s: %w", tool, ErrRejected)
			}
		case <-deadline.C:
			return fmt.Errorf("%s: approval timed out after %s", tool, q.timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
