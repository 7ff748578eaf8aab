package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// SaveEmbedding stores an item's vector in pgvector text form and raises
// has_embeddings.
func (s *Store) SaveEmbedding(ctx context.Context, emb Embedding) error {
	dims := emb.Dimensions()
	if dims == 0 {
		return fmt.Errorf("save embedding for item %d: empty vector", emb.ItemID)
	}
	encoded, err := emb.Vector.Value()
	if err != nil {
		return fmt.Errorf("encode embedding for item %d: %w", emb.ItemID, err)
	}
	created := emb.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO item_embeddings (item_id, model, dimensions, vector, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET
				model = excluded.model,
				dimensions = excluded.dimensions,
				vector = excluded.vector,
				created_at = excluded.created_at`,
			emb.ItemID, emb.Model, dims, encoded, formatTime(created)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"UPDATE catalog_items SET has_embeddings = 1, updated_at = ? WHERE id = ? AND has_embeddings = 0",
			nowString(), emb.ItemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("save embedding for item %d: %w", emb.ItemID, err)
	}
	return nil
}

// GetEmbedding returns an item's stored vector, or nil.
func (s *Store) GetEmbedding(ctx context.Context, itemID int64) (*Embedding, error) {
	var (
		emb     Embedding
		dims    int
		raw     string
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT item_id, model, dimensions, vector, created_at FROM item_embeddings WHERE item_id = ?", itemID).
		Scan(&emb.ItemID, &emb.Model, &dims, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding for item %d: %w", itemID, err)
	}
	var vec pgvector.Vector
	if err := vec.Scan(raw); err != nil {
		return nil, fmt.Errorf("decode embedding for item %d: %w", itemID, err)
	}
	if len(vec.Slice()) != dims {
		return nil, fmt.Errorf("embedding for item %d has %d dimensions, expected %d", itemID, len(vec.Slice()), dims)
	}
	emb.Vector = vec
	emb.CreatedAt, _ = parseTimeString(created)
	return &emb, nil
}
