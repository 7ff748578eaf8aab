package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const runColumns = "id, mode, started_at, finished_at, status, steps_completed, steps_failed, steps_skipped, provider_calls, steps, errors"

// CreateRun inserts a run in the running state.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	status := run.Status
	if status == "" {
		status = RunRunning
	}
	_, err := s.execWithRetry(ctx,
		"INSERT INTO pipeline_runs (id, mode, started_at, status) VALUES (?, ?, ?, ?)",
		run.ID, run.Mode, formatTime(run.StartedAt), string(status))
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun writes a run's terminal summary.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	calls, err := json.Marshal(nonNilCalls(run.ProviderCalls))
	if err != nil {
		return fmt.Errorf("encode provider calls: %w", err)
	}
	steps := run.Steps
	if steps == nil {
		steps = []RunStep{}
	}
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.execWithRetry(ctx, `UPDATE pipeline_runs SET
			finished_at = ?, status = ?, steps_completed = ?, steps_failed = ?, steps_skipped = ?,
			provider_calls = ?, steps = ?, errors = ?
		WHERE id = ?`,
		formatTime(finished), string(run.Status), run.StepsCompleted, run.StepsFailed, run.StepsSkipped,
		string(calls), string(stepsJSON), encodeStrings(run.Errors), run.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: not found", run.ID)
	}
	return nil
}

// GetRun returns a run by ID, or nil.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM pipeline_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM pipeline_runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		startedRaw string
		finished   sql.NullString
		status     string
		callsRaw   string
		stepsRaw   string
		errorsRaw  string
	)
	if err := scanner.Scan(&run.ID, &run.Mode, &startedRaw, &finished, &status,
		&run.StepsCompleted, &run.StepsFailed, &run.StepsSkipped, &callsRaw, &stepsRaw, &errorsRaw); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.StartedAt, _ = parseTimeString(startedRaw)
	run.FinishedAt = parseNullableTime(finished)
	run.ProviderCalls = map[string]int64{}
	if callsRaw != "" {
		if err := json.Unmarshal([]byte(callsRaw), &run.ProviderCalls); err != nil {
			return nil, fmt.Errorf("decode provider calls for run %s: %w", run.ID, err)
		}
	}
	if stepsRaw != "" {
		if err := json.Unmarshal([]byte(stepsRaw), &run.Steps); err != nil {
			return nil, fmt.Errorf("decode steps for run %s: %w", run.ID, err)
		}
	}
	run.Errors = decodeStrings(errorsRaw)
	return &run, nil
}

func nonNilCalls(calls map[string]int64) map[string]int64 {
	if calls == nil {
		return map[string]int64{}
	}
	return calls
}

// RecordUsage appends a provider-call ledger row. Zero-call rows are skipped.
func (s *Store) RecordUsage(ctx context.Context, usage Usage, at time.Time) error {
	if usage.Calls <= 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		"INSERT INTO api_usage (run_id, stage, provider, calls, day, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		nullableString(usage.RunID), usage.Stage, usage.Provider, usage.Calls, usageDay(at), formatTime(at))
	if err != nil {
		return fmt.Errorf("record %s usage: %w", usage.Provider, err)
	}
	return nil
}

// UsageForRun sums provider calls recorded under runID.
func (s *Store) UsageForRun(ctx context.Context, runID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT provider, SUM(calls) FROM api_usage WHERE run_id = ? GROUP BY provider ORDER BY provider", runID)
	if err != nil {
		return nil, fmt.Errorf("sum usage for run %s: %w", runID, err)
	}
	defer rows.Close()
	totals := make(map[string]int64)
	for rows.Next() {
		var (
			provider string
			calls    int64
		)
		if err := rows.Scan(&provider, &calls); err != nil {
			return nil, err
		}
		totals[provider] = calls
	}
	return totals, rows.Err()
}

// UsageOnDay returns the calls recorded for provider on the UTC day containing at.
func (s *Store) UsageOnDay(ctx context.Context, provider string, at time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT SUM(calls) FROM api_usage WHERE provider = ? AND day = ?", provider, usageDay(at)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum %s usage: %w", provider, err)
	}
	return total.Int64, nil
}

func usageDay(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}
