package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertSecondaryRating writes the secondary-ratings row for an item. A row
// with Found=false records a provider miss so the item is not asked again.
func (s *Store) UpsertSecondaryRating(ctx context.Context, r SecondaryRating) error {
	fetched := r.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	_, err := s.execWithRetry(ctx, `INSERT INTO secondary_ratings
			(item_id, found, imdb_rating, imdb_votes, rotten_tomatoes, metacritic, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			found = excluded.found,
			imdb_rating = excluded.imdb_rating,
			imdb_votes = excluded.imdb_votes,
			rotten_tomatoes = excluded.rotten_tomatoes,
			metacritic = excluded.metacritic,
			fetched_at = excluded.fetched_at`,
		r.ItemID, boolToInt(r.Found), nullableFloat(r.IMDbRating), nullableInt(r.IMDbVotes),
		nullableInt(r.RottenTomatoes), nullableInt(r.Metacritic), formatTime(fetched))
	if err != nil {
		return fmt.Errorf("upsert secondary rating for item %d: %w", r.ItemID, err)
	}
	return nil
}

// GetSecondaryRating returns an item's secondary ratings, or nil.
func (s *Store) GetSecondaryRating(ctx context.Context, itemID int64) (*SecondaryRating, error) {
	var (
		r          SecondaryRating
		found      int
		imdbRating sql.NullFloat64
		imdbVotes  sql.NullInt64
		rotten     sql.NullInt64
		metacritic sql.NullInt64
		fetched    string
	)
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT item_id, found, imdb_rating, imdb_votes, rotten_tomatoes, metacritic, fetched_at
		FROM secondary_ratings WHERE item_id = ?`, itemID).Scan(
		&r.ItemID, &found, &imdbRating, &imdbVotes, &rotten, &metacritic, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secondary rating for item %d: %w", itemID, err)
	}
	r.Found = found != 0
	if imdbRating.Valid {
		v := imdbRating.Float64
		r.IMDbRating = &v
	}
	r.IMDbVotes = intPtr(imdbVotes)
	r.RottenTomatoes = intPtr(rotten)
	r.Metacritic = intPtr(metacritic)
	r.FetchedAt, _ = parseTimeString(fetched)
	return &r, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
