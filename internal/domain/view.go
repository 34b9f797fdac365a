package domain

import (
	"fmt"
	"time"
)

// TriggerType says what refreshes a saved view.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerSchedule  TriggerType = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch TriggerType = "file_watch" // TriggerConfig is the watched path
)

// RunStatus is the outcome of a view refresh.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
	RunStatusRunning RunStatus = "running"
)

// View is a saved query: its data sources, operators and chart options all
// live in Query, in the same key=value form the URL uses.
type View struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Query         string      `json:"query"`
	TriggerType   TriggerType `json:"triggerType"`
	TriggerConfig string      `json:"triggerConfig"`
	Enabled       bool        `json:"enabled"`
	LastRunAt     time.Time   `json:"lastRunAt"`
	LastStatus    RunStatus   `json:"lastStatus"`
	LastError     string      `json:"lastError"`
	LastRows      int         `json:"lastRows"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Validate checks the name, query and trigger fields.
func (v *View) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("view name is required")
	}
	if v.Query == "" {
		return fmt.Errorf("view %q has an empty query", v.Name)
	}
	switch v.TriggerType {
	case "", TriggerManual:
	case TriggerSchedule, TriggerFileWatch:
		if v.TriggerConfig == "" {
			return fmt.Errorf("view %q: %s trigger needs a config", v.Name, v.TriggerType)
		}
	default:
		return fmt.Errorf("view %q: unknown trigger type %q", v.Name, v.TriggerType)
	}
	return nil
}

// RunLog is a historical record of one view refresh.
type RunLog struct {
	ID         string    `json:"id"`
	ViewID     string    `json:"viewId"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     RunStatus `json:"status"`
	Rows       int       `json:"rows"`
	Stages     int       `json:"stages"`
	Error      string    `json:"error,omitempty"`
}

// ViewStore manages saved views and their run logs.
type ViewStore interface {
	CreateView(v *View) error
	GetView(id string) (*View, error)
	GetViewByName(name string) (*View, error)
	ListViews() ([]View, error)
	ListTriggeredViews() ([]View, error)
	UpdateView(v *View) error
	UpdateViewStatus(id string, status RunStatus, rows int, errMsg string) error
	DeleteView(id string) error

	CreateRunLog(l *RunLog) error
	ListRunLogs(viewID string, limit int) ([]RunLog, error)
}
