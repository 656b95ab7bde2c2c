package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/runbook/internal/model"
)

// ErrNotFound is returned when a run record does not exist.
var ErrNotFound = errors.New("run not found")

// RunStats holds aggregate run-history statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByState  map[string]int `json:"count_by_state"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for run history. Only execution
// metadata is recorded; script output lives exclusively in the engine's
// in-memory cache.
type Store interface {
	RecordStart(ctx context.Context, r *model.Run) error
	FinishRun(ctx context.Context, runID, state string, exitCode *int, finishedAt time.Time) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
