package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RetryBaseDelay is the first retry delay. Each further attempt doubles it.
const RetryBaseDelay = time.Hour

// RetryDelay returns the backoff before attempt number attempts+1.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16
	}
	return RetryBaseDelay << (attempts - 1)
}

// ScheduleRetry records a transient failure for (item, stage). Once the
// attempt count reaches maxAttempts the retry row is dropped and the item is
// moved to the error status; exhausted reports that case.
func (s *Store) ScheduleRetry(ctx context.Context, itemID int64, stage, lastError string, maxAttempts int, now time.Time) (attempts int, exhausted bool, err error) {
	if now.IsZero() {
		now = time.Now()
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		scanErr := tx.QueryRowContext(ctx, "SELECT attempts FROM retry_queue WHERE item_id = ? AND stage = ?", itemID, stage).Scan(&current)
		if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
			return scanErr
		}
		attempts = current + 1
		exhausted = maxAttempts > 0 && attempts >= maxAttempts
		if exhausted {
			if _, err := tx.ExecContext(ctx, "DELETE FROM retry_queue WHERE item_id = ? AND stage = ?", itemID, stage); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE catalog_items SET error_kind = ?, error_message = ?, updated_at = ? WHERE id = ?",
				ErrorKindRetriesExhausted, nullableString(stage+": "+lastError), formatTime(now), itemID)
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO retry_queue (item_id, stage, attempts, last_error, next_attempt_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id, stage) DO UPDATE SET
				attempts = excluded.attempts,
				last_error = excluded.last_error,
				next_attempt_at = excluded.next_attempt_at,
				updated_at = excluded.updated_at`,
			itemID, stage, attempts, nullableString(lastError), formatTime(now.Add(RetryDelay(attempts))), formatTime(now))
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("schedule retry for item %d: %w", itemID, err)
	}
	return attempts, exhausted, nil
}

// ClearRetry removes any retry row for (item, stage) after a success.
func (s *Store) ClearRetry(ctx context.Context, itemID int64, stage string) error {
	if _, err := s.execWithRetry(ctx, "DELETE FROM retry_queue WHERE item_id = ? AND stage = ?", itemID, stage); err != nil {
		return fmt.Errorf("clear retry for item %d: %w", itemID, err)
	}
	return nil
}

// RetryEntries lists queued retries, soonest first.
func (s *Store) RetryEntries(ctx context.Context) ([]RetryEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT item_id, stage, attempts, last_error, next_attempt_at FROM retry_queue ORDER BY next_attempt_at, item_id")
	if err != nil {
		return nil, fmt.Errorf("list retries: %w", err)
	}
	defer rows.Close()
	var entries []RetryEntry
	for rows.Next() {
		var (
			e       RetryEntry
			lastErr sql.NullString
			next    string
		)
		if err := rows.Scan(&e.ItemID, &e.Stage, &e.Attempts, &lastErr, &next); err != nil {
			return nil, err
		}
		e.LastError = lastErr.String
		e.NextAttemptAt, _ = parseTimeString(next)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
