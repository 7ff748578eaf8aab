package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Selection bounds a stage's work query.
type Selection struct {
	Limit int
	// Stage, when set, excludes items whose retry for that stage is not yet due.
	Stage string
	// StaleBefore widens the query to items last fetched before the cutoff.
	StaleBefore *time.Time
	// Now is the reference time for retry eligibility. Zero means time.Now.
	Now time.Time
}

func (sel Selection) now() time.Time {
	if sel.Now.IsZero() {
		return time.Now()
	}
	return sel.Now
}

// GetItem returns the item with the given internal ID, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+itemColumns+" FROM catalog_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// GetItemByProviderID returns the item with the given provider ID, or nil.
func (s *Store) GetItemByProviderID(ctx context.Context, providerID int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+itemColumns+" FROM catalog_items WHERE provider_id = ?", providerID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by provider id %d: %w", providerID, err)
	}
	return item, nil
}

// ExistingProviderIDs returns the subset of ids already present. Callers are
// responsible for keeping ids within SQLite's variable limit.
func (s *Store) ExistingProviderIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	query := "SELECT provider_id FROM catalog_items WHERE provider_id IN (" + makePlaceholders(len(ids)) + ")"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("lookup provider ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertItems inserts new pending items in one transaction. Provider IDs that
// already exist are ignored. Returns the number of rows actually inserted.
func (s *Store) InsertItems(ctx context.Context, items []NewItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO catalog_items
			(provider_id, title, release_date, popularity, vote_average, vote_count, discovered_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(provider_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		now := nowString()
		for _, item := range items {
			res, err := stmt.ExecContext(ctx,
				item.ProviderID,
				strings.TrimSpace(item.Title),
				nullableString(item.ReleaseDate),
				item.Popularity,
				item.VoteAverage,
				item.VoteCount,
				nullableString(item.DiscoveredBy),
				now,
				now,
			)
			if err != nil {
				return fmt.Errorf("insert provider id %d: %w", item.ProviderID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert items: %w", err)
	}
	return inserted, nil
}

// UpdateMetadata writes a normalized provider detail record and stamps the
// metadata fetch time. Any earlier error state is cleared.
func (s *Store) UpdateMetadata(ctx context.Context, id int64, md Metadata, fetchedAt time.Time) error {
	_, err := s.execWithRetry(ctx, `UPDATE catalog_items SET
			title = ?, original_title = ?, overview = ?, release_date = ?, runtime = ?,
			original_language = ?, imdb_id = ?, poster_path = ?, popularity = ?,
			vote_average = ?, vote_count = ?, budget = ?, revenue = ?,
			genre_names = ?, primary_genre = ?, keyword_names = ?,
			lead_actor = ?, director = ?, trailer_key = ?,
			error_kind = NULL, error_message = NULL,
			metadata_fetched_at = ?, updated_at = ?
		WHERE id = ?`,
		strings.TrimSpace(md.Title),
		nullableString(md.OriginalTitle),
		nullableString(md.Overview),
		nullableString(md.ReleaseDate),
		md.Runtime,
		nullableString(md.OriginalLanguage),
		nullableString(md.IMDbID),
		nullableString(md.PosterPath),
		md.Popularity,
		md.VoteAverage,
		md.VoteCount,
		md.Budget,
		md.Revenue,
		encodeStrings(md.Genres),
		nullableString(md.PrimaryGenre()),
		encodeStrings(md.Keywords),
		nullableString(md.LeadActor),
		nullableString(md.Director),
		nullableString(md.TrailerKey),
		formatTime(fetchedAt),
		nowString(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update metadata for item %d: %w", id, err)
	}
	return nil
}

// MarkInvalid moves an item to the terminal error status.
func (s *Store) MarkInvalid(ctx context.Context, id int64, kind, message string) error {
	if strings.TrimSpace(kind) == "" {
		kind = "invalid"
	}
	_, err := s.execWithRetry(ctx,
		"UPDATE catalog_items SET error_kind = ?, error_message = ?, updated_at = ? WHERE id = ?",
		kind, nullableString(message), nowString(), id)
	if err != nil {
		return fmt.Errorf("mark item %d invalid: %w", id, err)
	}
	return nil
}

// SetFlag raises one completeness flag. There is deliberately no way to
// lower a flag through the Store.
func (s *Store) SetFlag(ctx context.Context, id int64, flag Flag) error {
	if !flag.valid() {
		return fmt.Errorf("unknown completeness flag %q", flag)
	}
	query := fmt.Sprintf("UPDATE catalog_items SET %s = 1, updated_at = ? WHERE id = ? AND %s = 0", flag, flag)
	if _, err := s.execWithRetry(ctx, query, nowString(), id); err != nil {
		return fmt.Errorf("set %s on item %d: %w", flag, id, err)
	}
	return nil
}

// ItemsNeedingMetadata selects items never fetched, plus items fetched before
// sel.StaleBefore when set, most-voted first.
func (s *Store) ItemsNeedingMetadata(ctx context.Context, sel Selection) ([]*Item, error) {
	where := "error_kind IS NULL AND metadata_fetched_at IS NULL"
	var args []any
	if sel.StaleBefore != nil {
		where = "error_kind IS NULL AND (metadata_fetched_at IS NULL OR metadata_fetched_at < ?)"
		args = append(args, formatTime(*sel.StaleBefore))
	}
	return s.selectItems(ctx, where, args, sel)
}

// ItemsNeedingLinks selects items whose genre/keyword links predate their
// metadata.
func (s *Store) ItemsNeedingLinks(ctx context.Context, sel Selection) ([]*Item, error) {
	where := "error_kind IS NULL AND metadata_fetched_at IS NOT NULL AND (links_synced_at IS NULL OR links_synced_at < metadata_fetched_at)"
	return s.selectItems(ctx, where, nil, sel)
}

// ItemsNeedingCredits selects items with metadata but no credits, plus items
// whose credits were fetched before sel.StaleBefore when set.
func (s *Store) ItemsNeedingCredits(ctx context.Context, sel Selection) ([]*Item, error) {
	where := "error_kind IS NULL AND metadata_fetched_at IS NOT NULL AND has_credits = 0"
	var args []any
	if sel.StaleBefore != nil {
		where = "error_kind IS NULL AND metadata_fetched_at IS NOT NULL AND (has_credits = 0 OR COALESCE(credits_fetched_at, '') < ?)"
		args = append(args, formatTime(*sel.StaleBefore))
	}
	return s.selectItems(ctx, where, args, sel)
}

// ItemsNeedingCastStats selects items with credits whose cast statistics are
// missing or older than the credits.
func (s *Store) ItemsNeedingCastStats(ctx context.Context, sel Selection) ([]*Item, error) {
	where := `error_kind IS NULL AND has_credits = 1 AND NOT EXISTS (
		SELECT 1 FROM cast_stats cs WHERE cs.item_id = catalog_items.id
		AND cs.computed_at >= COALESCE(catalog_items.credits_fetched_at, ''))`
	return s.selectItems(ctx, where, nil, sel)
}

// ItemsNeedingRatings selects items with an IMDb cross reference and no
// secondary rating row.
func (s *Store) ItemsNeedingRatings(ctx context.Context, sel Selection) ([]*Item, error) {
	where := `error_kind IS NULL AND imdb_id IS NOT NULL AND imdb_id <> '' AND NOT EXISTS (
		SELECT 1 FROM secondary_ratings sr WHERE sr.item_id = catalog_items.id)`
	var args []any
	if sel.StaleBefore != nil {
		where = `error_kind IS NULL AND imdb_id IS NOT NULL AND imdb_id <> '' AND NOT EXISTS (
			SELECT 1 FROM secondary_ratings sr WHERE sr.item_id = catalog_items.id AND sr.fetched_at >= ?)`
		args = append(args, formatTime(*sel.StaleBefore))
	}
	return s.selectItems(ctx, where, args, sel)
}

// ItemsNeedingScores selects items without scores, or whose score set is older
// than any of its inputs.
func (s *Store) ItemsNeedingScores(ctx context.Context, sel Selection) ([]*Item, error) {
	where := `error_kind IS NULL AND metadata_fetched_at IS NOT NULL AND (has_scores = 0 OR NOT EXISTS (
		SELECT 1 FROM score_sets ss WHERE ss.item_id = catalog_items.id
		AND ss.computed_at >= catalog_items.metadata_fetched_at
		AND ss.computed_at >= COALESCE((SELECT computed_at FROM cast_stats cs WHERE cs.item_id = catalog_items.id), '')
		AND ss.computed_at >= COALESCE((SELECT fetched_at FROM secondary_ratings sr WHERE sr.item_id = catalog_items.id), '')))`
	return s.selectItems(ctx, where, nil, sel)
}

// ItemsNeedingEmbeddings selects scored items without a vector.
func (s *Store) ItemsNeedingEmbeddings(ctx context.Context, sel Selection) ([]*Item, error) {
	where := "error_kind IS NULL AND metadata_fetched_at IS NOT NULL AND has_scores = 1 AND has_embeddings = 0"
	return s.selectItems(ctx, where, nil, sel)
}

func (s *Store) selectItems(ctx context.Context, where string, args []any, sel Selection) ([]*Item, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(itemColumns)
	b.WriteString(" FROM catalog_items WHERE ")
	b.WriteString(where)
	if sel.Stage != "" {
		b.WriteString(` AND NOT EXISTS (SELECT 1 FROM retry_queue rq
			WHERE rq.item_id = catalog_items.id AND rq.stage = ? AND rq.next_attempt_at > ?)`)
		args = append(args, sel.Stage, formatTime(sel.now()))
	}
	b.WriteString(" ORDER BY vote_count DESC, id ASC")
	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, sel.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return collectItems(rows)
}

// StatusCounts returns the number of items in each lifecycle status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM catalog_items GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}
