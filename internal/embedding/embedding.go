// Package embedding implements the vector generation stage. A circuit breaker
// counts provider failures across the run and aborts the stage once the
// configured ceiling is reached, so a systemically broken batch does not burn
// the remaining quota.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"
	"github.com/sony/gobreaker/v2"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/stage"
)

// Embedder turns one text into one vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Store is the persistence the embedding stage needs.
type Store interface {
	stage.FailureStore
	ItemsNeedingEmbeddings(ctx context.Context, sel catalog.Selection) ([]*catalog.Item, error)
	GetScoreSet(ctx context.Context, itemID int64) (*catalog.ScoreSet, error)
	GetCastStats(ctx context.Context, itemID int64) (*catalog.CastStats, error)
	SaveEmbedding(ctx context.Context, emb catalog.Embedding) error
}

// Stage generates and stores item embeddings.
type Stage struct {
	client   Embedder
	store    Store
	pipeline config.Pipeline
	cfg      config.Embeddings
	logger   *slog.Logger
}

var _ stage.Handler = (*Stage)(nil)

// New builds the embedding stage.
func New(client Embedder, store Store, pipeline config.Pipeline, cfg config.Embeddings, logger *slog.Logger) *Stage {
	return &Stage{
		client:   client,
		store:    store,
		pipeline: pipeline,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, stage.Embeddings),
	}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.Embeddings }

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.client == nil {
		return stage.Unhealthy(stage.Embeddings, "embedding client unavailable")
	}
	return stage.Healthy(stage.Embeddings)
}

func (s *Stage) newBreaker() *gobreaker.CircuitBreaker[[]float32] {
	maxFailures := uint32(max(s.cfg.MaxFailures, 1))
	return gobreaker.NewCircuitBreaker[[]float32](gobreaker.Settings{
		Name: stage.Embeddings,
		// Interval zero keeps the counts for the whole run.
		Interval: 0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= maxFailures
		},
		// A missing item is not a provider fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrDataQuality)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logging.WarnWithContext(s.logger, "embedding failure ceiling reached", "breaker_open",
					logging.String("breaker", name),
					logging.Int("max_failures", int(maxFailures)),
					logging.String(logging.FieldErrorHint, "check the embedding provider; the stage stops to preserve quota"),
				)
			}
		},
	})
}

// Run implements stage.Handler.
func (s *Stage) Run(ctx context.Context, opts stage.Options) (stage.Result, error) {
	res := stage.NewResult(stage.Embeddings)
	items, err := s.store.ItemsNeedingEmbeddings(ctx, catalog.Selection{
		Limit: opts.LimitOr(s.pipeline.DefaultLimit),
		Stage: stage.Embeddings,
		Now:   opts.Clock(),
	})
	if err != nil {
		return res, fmt.Errorf("select items: %w", err)
	}

	breaker := s.newBreaker()
	policy := stage.FailurePolicy{
		Stage:       stage.Embeddings,
		Store:       s.store,
		MaxAttempts: s.pipeline.MaxRetryAttempts,
		DryRun:      opts.DryRun,
		Logger:      s.logger,
		Now:         opts.Clock,
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		itemCtx := services.WithItemID(ctx, item.ProviderID)
		text, err := s.text(itemCtx, item)
		if err != nil {
			res.Attempted++
			policy.Handle(itemCtx, item, err, &res)
			continue
		}

		vector, err := breaker.Execute(func() ([]float32, error) {
			return s.client.Embed(itemCtx, text)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res.Abort(fmt.Sprintf("%d cumulative embedding failures", s.cfg.MaxFailures))
			break
		}
		res.Attempted++
		if err == nil {
			err = s.save(itemCtx, item, vector, opts)
		}
		if err != nil {
			if policy.Handle(itemCtx, item, err, &res) {
				break
			}
			if breaker.State() == gobreaker.StateOpen {
				res.Abort(fmt.Sprintf("%d cumulative embedding failures", s.cfg.MaxFailures))
				break
			}
			continue
		}
		policy.Succeeded(itemCtx, item, &res)
	}
	return res, nil
}

func (s *Stage) text(ctx context.Context, item *catalog.Item) (string, error) {
	scores, err := s.store.GetScoreSet(ctx, item.ID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage.Embeddings, "load scores", "", err)
	}
	cast, err := s.store.GetCastStats(ctx, item.ID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stage.Embeddings, "load cast stats", "", err)
	}
	text := BuildText(item, scores, cast, s.cfg.MaxTextLength)
	if text == "" {
		return "", services.Wrap(services.ErrDataQuality, stage.Embeddings, "build text", "nothing to embed", nil)
	}
	return text, nil
}

func (s *Stage) save(ctx context.Context, item *catalog.Item, vector []float32, opts stage.Options) error {
	if len(vector) == 0 {
		return services.Wrap(services.ErrTransient, stage.Embeddings, "embed", "empty vector", nil)
	}
	if opts.DryRun {
		return nil
	}
	err := s.store.SaveEmbedding(ctx, catalog.Embedding{
		ItemID:    item.ID,
		Model:     s.client.Model(),
		Vector:    pgvector.NewVector(vector),
		CreatedAt: opts.Clock(),
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, stage.Embeddings, "store embedding", "", err)
	}
	return nil
}
