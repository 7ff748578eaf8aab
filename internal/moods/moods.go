// Package moods implements the mood-compatibility stage: a dense item x mood
// score matrix written one mood at a time.
package moods

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/stage"
)

const minCacheSize = 256

// Store is the persistence the mood stage needs.
type Store interface {
	Moods(ctx context.Context) ([]catalog.Mood, error)
	GenreIndex(ctx context.Context) (map[string]int64, error)
	ItemsNeedingMoodScore(ctx context.Context, moodID int64, limit int) ([]int64, error)
	GetMoodProfile(ctx context.Context, itemID int64) (*catalog.MoodProfile, error)
	UpsertMoodScores(ctx context.Context, scores []catalog.MoodScore) error
}

// Stage computes mood compatibility scores.
type Stage struct {
	store  Store
	cfg    config.Pipeline
	logger *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// New builds the moods stage.
func New(store Store, cfg config.Pipeline, logger *slog.Logger) *Stage {
	return &Stage{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stage.Moods),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Moods }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	moods, err := s.store.Moods(ctx)
	if err != nil {
		return stage.HealthFromError(stage.Moods, err)
	}
	if len(moods) == 0 {
		return stage.Unhealthy(stage.Moods, "no moods defined")
	}
	return stage.Healthy(stage.Moods)
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Moods)
	moods, err := s.store.Moods(ctx)
	if err != nil {
		return res, fmt.Errorf("load moods: %w", err)
	}
	index, err := s.store.GenreIndex(ctx)
	if err != nil {
		return res, fmt.Errorf("load genres: %w", err)
	}

	limit := opts.LimitOr(s.cfg.DefaultLimit)
	profiles, err := lru.New[int64, *catalog.MoodProfile](max(limit, minCacheSize))
	if err != nil {
		return res, fmt.Errorf("profile cache: %w", err)
	}

	for _, mood := range moods {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		target := Resolve(mood, index)
		if len(target.Preferred) == 0 && len(mood.PreferredGenres) > 0 {
			s.logger.Debug("mood genres unresolved; genre match contributes nothing",
				logging.String("mood", mood.Slug))
		}
		if err := s.scoreMood(ctx, target, limit, profiles, opts.DryRun, &res); err != nil {
			return res, err
		}
	}

	if res.Attempted > 0 {
		s.logger.Info("mood scores computed",
			logging.Int("moods", len(moods)),
			logging.Int("scores", res.Succeeded),
		)
	}
	return res, nil
}

func (s *Stage) scoreMood(ctx context.Context, target Target, limit int, profiles *lru.Cache[int64, *catalog.MoodProfile], dryRun bool, res *stage.Result) error {
	ids, err := s.store.ItemsNeedingMoodScore(ctx, target.Mood.ID, limit)
	if err != nil {
		return fmt.Errorf("select items for mood %s: %w", target.Mood.Slug, err)
	}
	batch := make([]catalog.MoodScore, 0, len(ids))
	for _, id := range ids {
		res.Attempted++
		profile, err := s.profile(ctx, id, profiles)
		if err != nil {
			res.Failed++
			res.AddError("item %d mood %s: %v", id, target.Mood.Slug, err)
			continue
		}
		if profile == nil {
			res.Skipped++
			continue
		}
		batch = append(batch, catalog.MoodScore{ItemID: id, MoodID: target.Mood.ID, Score: Score(*profile, target)})
	}
	if dryRun || len(batch) == 0 {
		res.Succeeded += len(batch)
		return nil
	}
	if err := s.store.UpsertMoodScores(ctx, batch); err != nil {
		res.Failed += len(batch)
		res.AddError("mood %s: %v", target.Mood.Slug, err)
		logging.WarnWithContext(s.logger, "mood score batch failed", "batch_failure",
			logging.String("mood", target.Mood.Slug),
			logging.Int("batch_size", len(batch)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "pairs stay unscored and are retried next run"),
		)
		return nil
	}
	res.Succeeded += len(batch)
	return nil
}

func (s *Stage) profile(ctx context.Context, id int64, profiles *lru.Cache[int64, *catalog.MoodProfile]) (*catalog.MoodProfile, error) {
	if p, ok := profiles.Get(id); ok {
		return p, nil
	}
	p, err := s.store.GetMoodProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	profiles.Add(id, p)
	return p, nil
}
