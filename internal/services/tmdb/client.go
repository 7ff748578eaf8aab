package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marquee/internal/config"
	"marquee/internal/services"
	"marquee/internal/services/apiclient"
)

// Provider is the name used in errors, metrics and usage rows.
const Provider = "tmdb"

const detailAppend = "credits,keywords,external_ids,videos"

// Client provides access to the metadata provider.
type Client struct {
	api      *apiclient.Client
	language string
}

// DiscoverOptions filters the discover endpoint. Zero values are omitted.
type DiscoverOptions struct {
	ReleasedAfter  time.Time
	ReleasedBefore time.Time
	MinVoteAverage float64
	MinVoteCount   int
	MaxVoteCount   int
	SortBy         string
}

func (o DiscoverOptions) values() url.Values {
	params := url.Values{}
	if !o.ReleasedAfter.IsZero() {
		params.Set("primary_release_date.gte", o.ReleasedAfter.Format("2006-01-02"))
	}
	if !o.ReleasedBefore.IsZero() {
		params.Set("primary_release_date.lte", o.ReleasedBefore.Format("2006-01-02"))
	}
	if o.MinVoteAverage > 0 {
		params.Set("vote_average.gte", strconv.FormatFloat(o.MinVoteAverage, 'f', -1, 64))
	}
	if o.MinVoteCount > 0 {
		params.Set("vote_count.gte", strconv.Itoa(o.MinVoteCount))
	}
	if o.MaxVoteCount > 0 {
		params.Set("vote_count.lte", strconv.Itoa(o.MaxVoteCount))
	}
	if sort := strings.TrimSpace(o.SortBy); sort != "" {
		params.Set("sort_by", sort)
	}
	return params
}

// New creates a metadata provider client from configuration.
func New(cfg config.TMDB, opts ...apiclient.Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "tmdb api key required", nil)
	}
	all := append([]apiclient.Option{apiclient.WithQueryKey("api_key", key)}, opts...)
	api, err := apiclient.New(apiclient.Config{
		Provider:    Provider,
		BaseURL:     cfg.BaseURL,
		MinInterval: time.Duration(cfg.MinIntervalMS) * time.Millisecond,
		DailyQuota:  cfg.DailyQuota,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, all...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "", err)
	}
	return &Client{api: api, language: strings.TrimSpace(cfg.Language)}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return Provider
}

// Calls returns the number of requests issued so far.
func (c *Client) Calls() int64 {
	return c.api.Calls()
}

// MovieDetails fetches one title with its credits, keywords, external IDs and
// videos appended.
func (c *Client) MovieDetails(ctx context.Context, movieID int64) (*MovieDetails, error) {
	if movieID <= 0 {
		return nil, errors.New("movie id must be positive")
	}
	params := c.params()
	params.Set("append_to_response", detailAppend)
	var details MovieDetails
	if err := c.api.GetJSON(ctx, "/movie/"+strconv.FormatInt(movieID, 10), params, &details); err != nil {
		return nil, err
	}
	if details.ID == 0 {
		return nil, services.Wrap(services.ErrTransient, Provider, "movie details", fmt.Sprintf("empty record for %d", movieID), nil)
	}
	return &details, nil
}

// MovieCredits fetches the credits sub-resource on its own.
func (c *Client) MovieCredits(ctx context.Context, movieID int64) (*Credits, error) {
	if movieID <= 0 {
		return nil, errors.New("movie id must be positive")
	}
	var credits Credits
	if err := c.api.GetJSON(ctx, "/movie/"+strconv.FormatInt(movieID, 10)+"/credits", c.params(), &credits); err != nil {
		return nil, err
	}
	return &credits, nil
}

// NowPlaying lists titles currently showing.
func (c *Client) NowPlaying(ctx context.Context, page int) (*Page, error) {
	return c.list(ctx, "/movie/now_playing", page, nil)
}

// Popular lists popular titles.
func (c *Client) Popular(ctx context.Context, page int) (*Page, error) {
	return c.list(ctx, "/movie/popular", page, nil)
}

// TrendingWeek lists titles trending this week.
func (c *Client) TrendingWeek(ctx context.Context, page int) (*Page, error) {
	return c.list(ctx, "/trending/movie/week", page, nil)
}

// Discover runs a filtered discovery query.
func (c *Client) Discover(ctx context.Context, opts DiscoverOptions, page int) (*Page, error) {
	return c.list(ctx, "/discover/movie", page, opts.values())
}

// Genres returns the authoritative genre list.
func (c *Client) Genres(ctx context.Context) ([]Genre, error) {
	var resp struct {
		Genres []Genre `json:"genres"`
	}
	if err := c.api.GetJSON(ctx, "/genre/movie/list", c.params(), &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

func (c *Client) list(ctx context.Context, endpoint string, page int, extra url.Values) (*Page, error) {
	if page < 1 {
		page = 1
	}
	params := c.params()
	for key, values := range extra {
		for _, v := range values {
			params.Add(key, v)
		}
	}
	params.Set("page", strconv.Itoa(page))
	var resp Page
	if err := c.api.GetJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) params() url.Values {
	params := url.Values{}
	if c.language != "" {
		params.Set("language", c.language)
	}
	return params
}
