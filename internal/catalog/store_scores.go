package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveScoreSet upserts an item's score set and raises has_scores in the same
// transaction.
func (s *Store) SaveScoreSet(ctx context.Context, set ScoreSet) error {
	computed := set.ComputedAt
	if computed.IsZero() {
		computed = time.Now()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO score_sets
				(item_id, pacing, intensity, emotional_depth, dialogue_density, attention_demand, quality,
				 star_power_tier, star_power_score, vfx_category, vfx_score, cult_status, cult_score,
				 composite_rating, confidence, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET
				pacing = excluded.pacing,
				intensity = excluded.intensity,
				emotional_depth = excluded.emotional_depth,
				dialogue_density = excluded.dialogue_density,
				attention_demand = excluded.attention_demand,
				quality = excluded.quality,
				star_power_tier = excluded.star_power_tier,
				star_power_score = excluded.star_power_score,
				vfx_category = excluded.vfx_category,
				vfx_score = excluded.vfx_score,
				cult_status = excluded.cult_status,
				cult_score = excluded.cult_score,
				composite_rating = excluded.composite_rating,
				confidence = excluded.confidence,
				computed_at = excluded.computed_at`,
			set.ItemID, set.Pacing, set.Intensity, set.EmotionalDepth, set.DialogueDensity, set.AttentionDemand,
			set.Quality, set.StarPowerTier, set.StarPowerScore, set.VFXCategory, set.VFXScore,
			boolToInt(set.Cult), set.CultScore, nullableFloat(set.Composite), set.Confidence,
			formatTime(computed)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE catalog_items SET has_scores = 1, updated_at = ? WHERE id = ? AND has_scores = 0",
			nowString(), set.ItemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("save score set for item %d: %w", set.ItemID, err)
	}
	return nil
}

// GetScoreSet returns an item's score set, or nil.
func (s *Store) GetScoreSet(ctx context.Context, itemID int64) (*ScoreSet, error) {
	var (
		set       ScoreSet
		cult      int
		composite sql.NullFloat64
		computed  string
	)
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT item_id, pacing, intensity, emotional_depth, dialogue_density,
			attention_demand, quality, star_power_tier, star_power_score, vfx_category, vfx_score,
			cult_status, cult_score, composite_rating, confidence, computed_at
		FROM score_sets WHERE item_id = ?`, itemID).Scan(
		&set.ItemID, &set.Pacing, &set.Intensity, &set.EmotionalDepth, &set.DialogueDensity,
		&set.AttentionDemand, &set.Quality, &set.StarPowerTier, &set.StarPowerScore, &set.VFXCategory,
		&set.VFXScore, &cult, &set.CultScore, &composite, &set.Confidence, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get score set for item %d: %w", itemID, err)
	}
	set.Cult = cult != 0
	if composite.Valid {
		v := composite.Float64
		set.Composite = &v
	}
	set.ComputedAt, _ = parseTimeString(computed)
	return &set, nil
}
