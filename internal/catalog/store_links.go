package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marquee/internal/textutil"
)

// UpsertGenres synchronizes the canonical genre table from the provider list.
func (s *Store) UpsertGenres(ctx context.Context, genres []Genre) error {
	if len(genres) == 0 {
		return nil
	}
	now := nowString()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range genres {
			name := strings.TrimSpace(g.Name)
			if g.ID <= 0 || name == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO genres (id, name, name_folded, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name, name_folded = excluded.name_folded, updated_at = excluded.updated_at`,
				g.ID, name, textutil.Fold(name), now); err != nil {
				return fmt.Errorf("upsert genre %d: %w", g.ID, err)
			}
		}
		return nil
	})
}

// GenreIndex maps folded genre names to canonical genre IDs.
func (s *Store) GenreIndex(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT id, name_folded FROM genres ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load genres: %w", err)
	}
	defer rows.Close()
	index := make(map[string]int64)
	for rows.Next() {
		var (
			id     int64
			folded string
		)
		if err := rows.Scan(&id, &folded); err != nil {
			return nil, err
		}
		if _, dup := index[folded]; !dup {
			index[folded] = id
		}
	}
	return index, rows.Err()
}

// ReplaceLinks rewrites an item's genre and keyword links and stamps the link
// sync time. Keyword rows must already exist (see UpsertKeywords). Writing the
// same links twice leaves the tables unchanged.
func (s *Store) ReplaceLinks(ctx context.Context, itemID int64, genreIDs, keywordIDs []int64) error {
	now := nowString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM genre_links WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("clear genre links: %w", err)
		}
		for pos, genreID := range genreIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO genre_links (item_id, genre_id, position) VALUES (?, ?, ?) ON CONFLICT(item_id, genre_id) DO NOTHING",
				itemID, genreID, pos); err != nil {
				return fmt.Errorf("link genre %d: %w", genreID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM keyword_links WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("clear keyword links: %w", err)
		}
		for _, keywordID := range keywordIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO keyword_links (item_id, keyword_id) VALUES (?, ?) ON CONFLICT(item_id, keyword_id) DO NOTHING",
				itemID, keywordID); err != nil {
				return fmt.Errorf("link keyword %d: %w", keywordID, err)
			}
		}

		_, err := tx.ExecContext(ctx, "UPDATE catalog_items SET links_synced_at = ?, updated_at = ? WHERE id = ?", now, now, itemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("replace links for item %d: %w", itemID, err)
	}
	return nil
}

// UpsertKeywords writes canonical keyword rows. Existing IDs keep their
// first-seen spelling.
func (s *Store) UpsertKeywords(ctx context.Context, keywords []Keyword) error {
	if len(keywords) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kw := range keywords {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO keywords (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING",
				kw.ID, kw.Name); err != nil {
				return fmt.Errorf("upsert keyword %q: %w", kw.Name, err)
			}
		}
		return nil
	})
}

// GenreIDs returns an item's linked genre IDs in provider order.
func (s *Store) GenreIDs(ctx context.Context, itemID int64) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT genre_id FROM genre_links WHERE item_id = ? ORDER BY position, genre_id", itemID)
}

// KeywordIDs returns an item's linked keyword IDs.
func (s *Store) KeywordIDs(ctx context.Context, itemID int64) ([]int64, error) {
	return s.queryIDs(ctx, "SELECT keyword_id FROM keyword_links WHERE item_id = ? ORDER BY keyword_id", itemID)
}

// KeywordCount returns the number of canonical keywords.
func (s *Store) KeywordCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM keywords").Scan(&count); err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	return count, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
