package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"marquee/internal/textutil"
)

// Moods returns the curated mood catalog ordered by ID.
func (s *Store) Moods(ctx context.Context) ([]Mood, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, slug, name, description, pacing_preference,
			intensity_level, preferred_genres, avoided_genres
		FROM moods ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load moods: %w", err)
	}
	defer rows.Close()
	var moods []Mood
	for rows.Next() {
		var (
			m           Mood
			description sql.NullString
			preferred   string
			avoided     string
		)
		if err := rows.Scan(&m.ID, &m.Slug, &m.Name, &description, &m.PacingPreference,
			&m.IntensityLevel, &preferred, &avoided); err != nil {
			return nil, err
		}
		m.Description = description.String
		m.PreferredGenres = decodeStrings(preferred)
		m.AvoidedGenres = decodeStrings(avoided)
		moods = append(moods, m)
	}
	return moods, rows.Err()
}

// UpsertMood creates or updates a mood keyed by slug.
func (s *Store) UpsertMood(ctx context.Context, m Mood) (int64, error) {
	slug := strings.TrimSpace(m.Slug)
	if slug == "" {
		return 0, errors.New("mood slug is required")
	}
	if m.IntensityLevel < 1 || m.IntensityLevel > 10 {
		return 0, fmt.Errorf("mood %s: intensity level %d outside 1-10", slug, m.IntensityLevel)
	}
	var id int64
	err := s.db.QueryRowContext(ensureContext(ctx), `INSERT INTO moods
			(slug, name, description, pacing_preference, intensity_level, preferred_genres, avoided_genres)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			pacing_preference = excluded.pacing_preference,
			intensity_level = excluded.intensity_level,
			preferred_genres = excluded.preferred_genres,
			avoided_genres = excluded.avoided_genres
		RETURNING id`,
		slug, m.Name, nullableString(m.Description), m.PacingPreference, m.IntensityLevel,
		encodeStrings(m.PreferredGenres), encodeStrings(m.AvoidedGenres)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert mood %s: %w", slug, err)
	}
	return id, nil
}

// ItemsNeedingMoodScore returns IDs of scored, genre-linked items with no
// score for mood, or a score older than the item's score set or genre links.
func (s *Store) ItemsNeedingMoodScore(ctx context.Context, moodID int64, limit int) ([]int64, error) {
	query := `SELECT ci.id FROM catalog_items ci
		JOIN score_sets ss ON ss.item_id = ci.id
		WHERE ci.error_kind IS NULL AND ci.has_scores = 1 AND ci.links_synced_at IS NOT NULL
		AND NOT EXISTS (SELECT 1 FROM mood_scores ms
			WHERE ms.item_id = ci.id AND ms.mood_id = ?
			AND ms.computed_at >= ss.computed_at AND ms.computed_at >= ci.links_synced_at)
		ORDER BY ci.vote_count DESC, ci.id ASC`
	args := []any{moodID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select items for mood %d: %w", moodID, err)
	}
	return ids, nil
}

// GetMoodProfile loads what mood matching needs for one item, or nil when the
// item has no score set.
func (s *Store) GetMoodProfile(ctx context.Context, itemID int64) (*MoodProfile, error) {
	profile := MoodProfile{ItemID: itemID}
	var primary sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT ss.pacing, ss.intensity, ss.quality, ci.primary_genre
		FROM score_sets ss JOIN catalog_items ci ON ci.id = ss.item_id
		WHERE ss.item_id = ?`, itemID).
		Scan(&profile.Pacing, &profile.Intensity, &profile.Quality, &primary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mood profile for item %d: %w", itemID, err)
	}
	if name := textutil.Fold(primary.String); name != "" {
		// The provider's first genre may be unknown to the genre table, in
		// which case the item has no primary genre ID.
		err := s.db.QueryRowContext(ensureContext(ctx),
			`SELECT gl.genre_id FROM genre_links gl JOIN genres g ON g.id = gl.genre_id
			WHERE gl.item_id = ? AND g.name_folded = ? ORDER BY gl.genre_id LIMIT 1`, itemID, name).
			Scan(&profile.PrimaryGenreID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load primary genre for item %d: %w", itemID, err)
		}
	}
	genreIDs, err := s.GenreIDs(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load genres for item %d: %w", itemID, err)
	}
	profile.GenreIDs = genreIDs
	return &profile, nil
}

// UpsertMoodScores writes a batch of matrix cells in one transaction.
func (s *Store) UpsertMoodScores(ctx context.Context, scores []MoodScore) error {
	if len(scores) == 0 {
		return nil
	}
	now := nowString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO mood_scores (item_id, mood_id, score, computed_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(item_id, mood_id) DO UPDATE SET score = excluded.score, computed_at = excluded.computed_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, sc := range scores {
			if _, err := stmt.ExecContext(ctx, sc.ItemID, sc.MoodID, sc.Score, now); err != nil {
				return fmt.Errorf("item %d mood %d: %w", sc.ItemID, sc.MoodID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert mood scores: %w", err)
	}
	return nil
}

// MoodScores returns every stored score for an item keyed by mood ID.
func (s *Store) MoodScores(ctx context.Context, itemID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT mood_id, score FROM mood_scores WHERE item_id = ?", itemID)
	if err != nil {
		return nil, fmt.Errorf("load mood scores for item %d: %w", itemID, err)
	}
	defer rows.Close()
	scores := make(map[int64]int)
	for rows.Next() {
		var (
			moodID int64
			score  int
		)
		if err := rows.Scan(&moodID, &score); err != nil {
			return nil, err
		}
		scores[moodID] = score
	}
	return scores, rows.Err()
}
