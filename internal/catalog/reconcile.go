package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// flagSource pairs a completeness flag with the SQL predicate that proves the
// flag's data exists for catalog_items row ci.
type flagSource struct {
	flag   Flag
	source string
	exists string
}

var flagSources = []flagSource{
	{FlagCredits, "credits_fetched_at", "ci.credits_fetched_at IS NOT NULL"},
	{FlagKeywords, "keyword_links", "EXISTS (SELECT 1 FROM keyword_links kl WHERE kl.item_id = ci.id) OR ci.links_synced_at IS NOT NULL"},
	{FlagScores, "score_sets", "EXISTS (SELECT 1 FROM score_sets ss WHERE ss.item_id = ci.id)"},
	{FlagEmbeddings, "item_embeddings", "EXISTS (SELECT 1 FROM item_embeddings ie WHERE ie.item_id = ci.id)"},
}

const derivedStatusExpr = `CASE
	WHEN error_kind IS NOT NULL AND error_kind <> '' THEN 'error'
	WHEN metadata_fetched_at IS NULL THEN 'pending'
	WHEN has_credits = 0 OR has_keywords = 0 THEN 'fetching'
	WHEN has_scores = 0 OR has_embeddings = 0 THEN 'scoring'
	ELSE 'complete'
END`

// CompletenessViolations returns items whose status is complete while at
// least one completeness flag is false.
func (s *Store) CompletenessViolations(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM catalog_items
		WHERE status = 'complete'
		AND (has_credits = 0 OR has_keywords = 0 OR has_scores = 0 OR has_embeddings = 0)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scan completeness violations: %w", err)
	}
	return collectItems(rows)
}

// Reconcile raises each completeness flag whose derived data already exists,
// counts set flags whose data is missing, then recomputes every status. Flags
// are never lowered.
func (s *Store) Reconcile(ctx context.Context) ([]ReconcileResult, error) {
	ctx = ensureContext(ctx)
	results := make([]ReconcileResult, 0, len(flagSources))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		results = results[:0]
		now := nowString()
		for _, fs := range flagSources {
			res, err := tx.ExecContext(ctx, fmt.Sprintf(
				"UPDATE catalog_items AS ci SET %s = 1, updated_at = ? WHERE ci.%s = 0 AND (%s)",
				fs.flag, fs.flag, fs.exists), now)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", fs.flag, err)
			}
			raised, _ := res.RowsAffected()

			var orphaned int
			if err := tx.QueryRowContext(ctx, fmt.Sprintf(
				"SELECT COUNT(1) FROM catalog_items AS ci WHERE ci.%s = 1 AND NOT (%s)",
				fs.flag, fs.exists)).Scan(&orphaned); err != nil {
				return fmt.Errorf("count orphaned %s: %w", fs.flag, err)
			}
			results = append(results, ReconcileResult{
				Flag:     fs.flag,
				Source:   fs.source,
				Raised:   int(raised),
				Orphaned: orphaned,
			})
		}
		if _, err := tx.ExecContext(ctx, "UPDATE catalog_items SET status = "+derivedStatusExpr); err != nil {
			return fmt.Errorf("recompute status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
