package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReplaceCredits rewrites an item's stored cast and crew, records the primary
// director and raises has_credits. Empty credit lists still raise the flag so
// the item is not fetched again.
func (s *Store) ReplaceCredits(ctx context.Context, itemID int64, cast []CastCredit, crew []CrewCredit, director string, fetchedAt time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM cast_credits WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("clear cast: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM crew_credits WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("clear crew: %w", err)
		}
		for i, c := range cast {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cast_credits (item_id, billing_order, person_id, name, character, popularity)
				VALUES (?, ?, ?, ?, ?, ?)`,
				itemID, i, c.PersonID, strings.TrimSpace(c.Name), nullableString(c.Character), c.Popularity); err != nil {
				return fmt.Errorf("insert cast %q: %w", c.Name, err)
			}
		}
		for i, c := range crew {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO crew_credits (item_id, position, person_id, name, job, department)
				VALUES (?, ?, ?, ?, ?, ?)`,
				itemID, i, c.PersonID, strings.TrimSpace(c.Name), nullableString(c.Job), nullableString(c.Department)); err != nil {
				return fmt.Errorf("insert crew %q: %w", c.Name, err)
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE catalog_items SET
				director = COALESCE(?, director),
				credits_fetched_at = ?,
				has_credits = 1,
				updated_at = ?
			WHERE id = ?`,
			nullableString(director), formatTime(fetchedAt), nowString(), itemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("replace credits for item %d: %w", itemID, err)
	}
	return nil
}

// CastCredits returns an item's stored cast in billing order.
func (s *Store) CastCredits(ctx context.Context, itemID int64) ([]CastCredit, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT billing_order, person_id, name, character, popularity FROM cast_credits WHERE item_id = ? ORDER BY billing_order",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("load cast for item %d: %w", itemID, err)
	}
	defer rows.Close()
	var cast []CastCredit
	for rows.Next() {
		var (
			c         CastCredit
			character sql.NullString
		)
		if err := rows.Scan(&c.Order, &c.PersonID, &c.Name, &character, &c.Popularity); err != nil {
			return nil, err
		}
		c.Character = character.String
		cast = append(cast, c)
	}
	return cast, rows.Err()
}

// CrewCredits returns an item's stored crew in provider order.
func (s *Store) CrewCredits(ctx context.Context, itemID int64) ([]CrewCredit, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT person_id, name, job, department FROM crew_credits WHERE item_id = ? ORDER BY position",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("load crew for item %d: %w", itemID, err)
	}
	defer rows.Close()
	var crew []CrewCredit
	for rows.Next() {
		var (
			c          CrewCredit
			job        sql.NullString
			department sql.NullString
		)
		if err := rows.Scan(&c.PersonID, &c.Name, &job, &department); err != nil {
			return nil, err
		}
		c.Job = job.String
		c.Department = department.String
		crew = append(crew, c)
	}
	return crew, rows.Err()
}

// UpsertCastStats writes an item's cast aggregation.
func (s *Store) UpsertCastStats(ctx context.Context, stats CastStats) error {
	computed := stats.ComputedAt
	if computed.IsZero() {
		computed = time.Now()
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO cast_stats
			(item_id, cast_count, avg_popularity, max_popularity, min_popularity, top3_avg_popularity, star_power_tier, star_power_score, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			cast_count = excluded.cast_count,
			avg_popularity = excluded.avg_popularity,
			max_popularity = excluded.max_popularity,
			min_popularity = excluded.min_popularity,
			top3_avg_popularity = excluded.top3_avg_popularity,
			star_power_tier = excluded.star_power_tier,
			star_power_score = excluded.star_power_score,
			computed_at = excluded.computed_at`,
		stats.ItemID, stats.CastCount, stats.AvgPopularity, stats.MaxPopularity, stats.MinPopularity,
		stats.Top3AvgPopularity, stats.StarPowerTier, stats.StarPowerScore, formatTime(computed))
	if err != nil {
		return fmt.Errorf("upsert cast stats for item %d: %w", stats.ItemID, err)
	}
	return nil
}

// GetCastStats returns an item's cast aggregation, or nil when none exists.
func (s *Store) GetCastStats(ctx context.Context, itemID int64) (*CastStats, error) {
	var (
		stats    CastStats
		computed string
	)
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT item_id, cast_count, avg_popularity, max_popularity, min_popularity,
			top3_avg_popularity, star_power_tier, star_power_score, computed_at
		FROM cast_stats WHERE item_id = ?`, itemID).Scan(
		&stats.ItemID, &stats.CastCount, &stats.AvgPopularity, &stats.MaxPopularity, &stats.MinPopularity,
		&stats.Top3AvgPopularity, &stats.StarPowerTier, &stats.StarPowerScore, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cast stats for item %d: %w", itemID, err)
	}
	stats.ComputedAt, _ = parseTimeString(computed)
	return &stats, nil
}
