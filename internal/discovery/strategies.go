package discovery

import (
	"context"
	"time"

	"marquee/internal/services/tmdb"
)

// Strategy is one named source of candidate provider IDs.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, page int) (*tmdb.Page, error)
}

// Strategies returns the fixed strategy list, evaluated relative to now.
func Strategies(client Lister, now time.Time) []Strategy {
	recent := tmdb.DiscoverOptions{
		ReleasedAfter:  now.AddDate(0, 0, -180),
		ReleasedBefore: now,
		MinVoteAverage: 7.0,
		MinVoteCount:   100,
		SortBy:         "popularity.desc",
	}
	obscure := tmdb.DiscoverOptions{
		MinVoteAverage: 7.5,
		MinVoteCount:   50,
		MaxVoteCount:   1000,
		SortBy:         "vote_average.desc",
	}
	return []Strategy{
		{Name: "now_playing", Fetch: client.NowPlaying},
		{Name: "popular", Fetch: client.Popular},
		{Name: "trending_week", Fetch: client.TrendingWeek},
		{Name: "recent_high_quality", Fetch: func(ctx context.Context, page int) (*tmdb.Page, error) {
			return client.Discover(ctx, recent, page)
		}},
		{Name: "acclaimed_obscure", Fetch: func(ctx context.Context, page int) (*tmdb.Page, error) {
			return client.Discover(ctx, obscure, page)
		}},
	}
}
