package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/credits"
	"marquee/internal/discovery"
	"marquee/internal/embedding"
	"marquee/internal/metadata"
	"marquee/internal/metrics"
	"marquee/internal/moods"
	"marquee/internal/ratings"
	"marquee/internal/scoring"
	"marquee/internal/services"
	"marquee/internal/services/apiclient"
	"marquee/internal/services/embedder"
	"marquee/internal/services/omdb"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
	"marquee/internal/taxonomy"
)

// provider is the accounting surface shared by the provider clients.
type provider interface {
	Provider() string
	Calls() int64
}

// Registry builds stage handlers with their provider clients. Clients are
// created on first use and their quotas seeded from the usage ledger, so a
// daily ceiling holds across stage processes.
type Registry struct {
	cfg        *config.Config
	store      *catalog.Store
	logger     *slog.Logger
	metrics    *metrics.Recorder
	httpClient *http.Client
	now        func() time.Time

	tmdb      *tmdb.Client
	omdb      *omdb.Client
	embedder  *embedder.Client
	providers []provider
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithHTTPClient routes every provider client through client.
func WithHTTPClient(client *http.Client) RegistryOption {
	return func(r *Registry) { r.httpClient = client }
}

// WithMetrics records provider calls on recorder.
func WithMetrics(recorder *metrics.Recorder) RegistryOption {
	return func(r *Registry) { r.metrics = recorder }
}

// WithClock overrides the time used for quota day boundaries.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a Registry.
func NewRegistry(cfg *config.Config, store *catalog.Store, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{cfg: cfg, store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build returns the handler for the named stage.
func (r *Registry) Build(ctx context.Context, name string) (stage.Handler, error) {
	pipeline := r.cfg.Pipeline
	switch name {
	case stage.Discover:
		client, err := r.tmdbClient(ctx)
		if err != nil {
			return nil, err
		}
		return discovery.New(client, r.store, pipeline, r.logger), nil
	case stage.Metadata:
		client, err := r.tmdbClient(ctx)
		if err != nil {
			return nil, err
		}
		return metadata.New(client, r.store, pipeline, r.logger), nil
	case stage.Taxonomy:
		client, err := r.tmdbClient(ctx)
		if err != nil {
			return nil, err
		}
		return taxonomy.New(client, r.store, pipeline, r.logger), nil
	case stage.Credits:
		client, err := r.tmdbClient(ctx)
		if err != nil {
			return nil, err
		}
		return credits.NewFetchStage(client, r.store, pipeline, r.logger), nil
	case stage.CastStats:
		return credits.NewAggregateStage(r.store, pipeline, r.logger), nil
	case stage.Ratings:
		client, err := r.omdbClient(ctx)
		if err != nil {
			return nil, err
		}
		return ratings.New(client, r.store, pipeline, r.logger), nil
	case stage.Scores:
		return scoring.NewStage(r.store, pipeline, r.logger), nil
	case stage.Embeddings:
		client, err := r.embedderClient(ctx)
		if err != nil {
			return nil, err
		}
		return embedding.New(client, r.store, pipeline, r.cfg.Embeddings, r.logger), nil
	case stage.Moods:
		return moods.New(r.store, pipeline, r.logger), nil
	default:
		return nil, services.Wrap(services.ErrValidation, name, "build", fmt.Sprintf("unknown stage %q", name), nil)
	}
}

// Usage returns the calls made by every client built so far, by provider.
func (r *Registry) Usage() map[string]int64 {
	usage := make(map[string]int64, len(r.providers))
	for _, p := range r.providers {
		usage[p.Provider()] += p.Calls()
	}
	return usage
}

func (r *Registry) clientOptions(ctx context.Context, name string) ([]apiclient.Option, error) {
	used, err := r.store.UsageOnDay(ctx, name, r.now())
	if err != nil {
		return nil, fmt.Errorf("load %s usage: %w", name, err)
	}
	opts := []apiclient.Option{
		apiclient.WithUsedToday(int(used)),
		apiclient.WithMetrics(r.metrics),
		apiclient.WithLogger(r.logger),
	}
	if r.httpClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(r.httpClient))
	}
	return opts, nil
}

func (r *Registry) tmdbClient(ctx context.Context) (*tmdb.Client, error) {
	if r.tmdb != nil {
		return r.tmdb, nil
	}
	if err := r.cfg.RequireTMDB(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, tmdb.Provider, "init", "", err)
	}
	opts, err := r.clientOptions(ctx, tmdb.Provider)
	if err != nil {
		return nil, err
	}
	client, err := tmdb.New(r.cfg.TMDB, opts...)
	if err != nil {
		return nil, err
	}
	r.tmdb = client
	r.providers = append(r.providers, client)
	return client, nil
}

func (r *Registry) omdbClient(ctx context.Context) (*omdb.Client, error) {
	if r.omdb != nil {
		return r.omdb, nil
	}
	if err := r.cfg.RequireOMDb(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, omdb.Provider, "init", "", err)
	}
	opts, err := r.clientOptions(ctx, omdb.Provider)
	if err != nil {
		return nil, err
	}
	client, err := omdb.New(r.cfg.OMDb, opts...)
	if err != nil {
		return nil, err
	}
	r.omdb = client
	r.providers = append(r.providers, client)
	return client, nil
}

func (r *Registry) embedderClient(ctx context.Context) (*embedder.Client, error) {
	if r.embedder != nil {
		return r.embedder, nil
	}
	if err := r.cfg.RequireEmbeddings(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, embedder.Provider, "init", "", err)
	}
	opts, err := r.clientOptions(ctx, embedder.Provider)
	if err != nil {
		return nil, err
	}
	client, err := embedder.New(r.cfg.Embeddings, opts...)
	if err != nil {
		return nil, err
	}
	r.embedder = client
	r.providers = append(r.providers, client)
	return client, nil
}
