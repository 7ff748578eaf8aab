// Package taxonomy implements genre and keyword normalization. Genres link
// against the provider's canonical list; keywords are keyed by a stable hash
// of their normalized text because the provider's keyword IDs are not durable.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
	"marquee/internal/textutil"
)

// GenreSource returns the provider's authoritative genre list.
type GenreSource interface {
	Genres(ctx context.Context) ([]tmdb.Genre, error)
}

// Store is the persistence the taxonomy stage needs.
type Store interface {
	UpsertGenres(ctx context.Context, genres []catalog.Genre) error
	GenreIndex(ctx context.Context) (map[string]int64, error)
	ItemsNeedingLinks(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	UpsertKeywords(ctx context.Context, keywords []catalog.Keyword) error
	ReplaceLinks(ctx context.Context, itemID int64, genreIDs, keywordIDs []int64) error
	SetFlag(ctx context.Context, id int64, flag catalog.Flag) error
}

// Stage links items to canonical genres and keywords.
type Stage struct {
	genres GenreSource
	store  Store
	cfg    config.Pipeline
	logger *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// New builds the taxonomy stage.
func New(genres GenreSource, store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	return &Stage{
		genres: genres,
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stage.Taxonomy),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Taxonomy }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.genres == nil {
		return stage.Unhealthy(stage.Taxonomy, "metadata client unavailable")
	}
	return stage.Healthy(stage.Taxonomy)
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Taxonomy)

	index, err := s.syncGenres(ctx, opts, &res)
	if err != nil {
		return res, err
	}
	if res.Aborted {
		return res, nil
	}

	items, err := s.store.ItemsNeedingLinks(ctx, catalog.Selection{
		Limit: opts.LimitOr(s.cfg.DefaultLimit),
		Now:   opts.Clock(),
	})
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}
	if len(items) == 0 {
		return res, nil
	}

	keywords := CollectKeywords(items)
	if !opts.DryRun {
		if err := s.store.UpsertKeywords(ctx, keywords); err != nil {
			res.Abort("keyword upsert failed")
			res.AddError("upsert keywords: %v", err)
			return res, nil
		}
	}

	unmatched := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		genreIDs, missing := ResolveGenres(item.Genres, index)
		unmatched += missing
		keywordIDs := KeywordIDs(item.Keywords)

		if opts.DryRun {
			res.Succeeded++
			continue
		}
		if err := s.link(ctx, item, genreIDs, keywordIDs); err != nil {
			res.Failed++
			res.AddError("%d: %v", item.ProviderID, err)
			logging.WarnWithContext(logging.WithContext(services.WithItemID(ctx, item.ProviderID), s.logger),
				"link write failed", "item_failure",
				logging.String("title", item.DisplayTitle()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "item stays selected and is retried next run"),
			)
			continue
		}
		res.Succeeded++
	}

	s.logger.Info("taxonomy linked",
		logging.Int("items", res.Succeeded),
		logging.Int("keywords", len(keywords)),
		logging.Int("unmatched_genres", unmatched),
	)
	return res, nil
}

func (s *Stage) link(ctx context.Context, item *catalog.Item, genreIDs, keywordIDs []int64) error {
	if err := s.store.ReplaceLinks(ctx, item.ID, genreIDs, keywordIDs); err != nil {
		return err
	}
	return s.store.SetFlag(ctx, item.ID, catalog.FlagKeywords)
}

// syncGenres upserts the provider genre list and returns the folded-name
// index. A failed provider call falls back to the stored table; the stage
// aborts only when no canonical genres exist at all.
func (s *Stage) syncGenres(ctx context.Context, opts stage.Options, res *stage.Result) (map[string]int64, error) {
	fetched, fetchErr := s.genres.Genres(ctx)
	if fetchErr == nil && !opts.DryRun {
		genres := make([]catalog.Genre, 0, len(fetched))
		for _, g := range fetched {
			genres = append(genres, catalog.Genre{ID: g.ID, Name: g.Name})
		}
		if err := s.store.UpsertGenres(ctx, genres); err != nil {
			return nil, fmt.Errorf("sync genres: %w", err)
		}
	}
	if fetchErr != nil {
		res.AddError("genre list: %v", fetchErr)
		logging.WarnWithContext(s.logger, "genre list fetch failed", "genre_sync_failure",
			logging.Error(fetchErr),
			logging.String(logging.FieldErrorHint, "linking against the stored genre table"),
		)
	}

	index, err := s.store.GenreIndex(ctx)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		for _, g := range fetched {
			if _, ok := index[textutil.Fold(g.Name)]; !ok && g.ID > 0 {
				index[textutil.Fold(g.Name)] = g.ID
			}
		}
	}
	if len(index) == 0 {
		if fetchErr != nil && services.HaltsBatch(fetchErr) {
			res.Halt(string(services.Classify(fetchErr)))
		}
		res.Abort("no canonical genres available")
	}
	return index, nil
}

// CollectKeywords returns the distinct canonical keywords across items.
func CollectKeywords(items []*catalog.Item) []catalog.Keyword {
	seen := make(map[int64]struct{})
	var out []catalog.Keyword
	for _, item := range items {
		for _, raw := range item.Keywords {
			name := textutil.NormalizeKeyword(raw)
			if name == "" {
				continue
			}
			id := textutil.KeywordID(name)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, catalog.Keyword{ID: id, Name: name})
		}
	}
	return out
}

// KeywordIDs maps raw keywords to their canonical IDs, dropping blanks and
// duplicates.
func KeywordIDs(keywords []string) []int64 {
	seen := make(map[int64]struct{}, len(keywords))
	ids := make([]int64, 0, len(keywords))
	for _, raw := range keywords {
		if textutil.NormalizeKeyword(raw) == "" {
			continue
		}
		id := textutil.KeywordID(raw)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ResolveGenres maps genre names to canonical IDs in order. Names missing from
// the index are skipped and counted.
func ResolveGenres(names []string, index map[string]int64) ([]int64, int) {
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]struct{}, len(names))
	missing := 0
	for _, name := range names {
		id, ok := index[textutil.Fold(name)]
		if !ok {
			missing++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, missing
}
