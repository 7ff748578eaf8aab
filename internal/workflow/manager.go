package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
)

// Ledger is the slice of the catalog the orchestrator writes to.
type Ledger interface {
	CreateRun(ctx context.Context, run catalog.Run) error
	FinishRun(ctx context.Context, run catalog.Run) error
	UsageForRun(ctx context.Context, runID string) (map[string]int64, error)
}

// Manager sequences the steps of a run mode.
type Manager struct {
	cfg      *config.Config
	ledger   Ledger
	executor Executor
	logger   *slog.Logger
	lock     *runLock
	now      func() time.Time
	newID    func() string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the ledger timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) ManagerOption {
	return func(m *Manager) {
		if next != nil {
			m.newID = next
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, ledger Ledger, executor Executor, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		ledger:   ledger,
		executor: executor,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		lock:     newRunLock(cfg.LockPath()),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOptions controls one orchestrator invocation.
type RunOptions struct {
	DryRun bool
	// StopOnFailure skips every step after the first failure.
	StopOnFailure bool
	// Limit overrides every step's limit when positive.
	Limit int
}
