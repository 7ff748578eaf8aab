// Package omdb is the secondary-ratings provider client.
//
// The provider answers unknown titles with HTTP 200 and a Response "False"
// body, so every payload is checked for that sentinel before parsing.
package omdb

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marquee/internal/config"
	"marquee/internal/services"
	"marquee/internal/services/apiclient"
)

// Provider is the name used in errors, metrics and usage rows.
const Provider = "omdb"

// Ratings is the parsed subset of a lookup. Nil fields were absent or "N/A".
type Ratings struct {
	IMDbID         string
	Title          string
	IMDbRating     *float64
	IMDbVotes      *int
	RottenTomatoes *int
	Metacritic     *int
}

// Empty reports whether no rating field could be parsed.
func (r *Ratings) Empty() bool {
	return r.IMDbRating == nil && r.IMDbVotes == nil && r.RottenTomatoes == nil && r.Metacritic == nil
}

type ratingSource struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

type lookupResponse struct {
	Response   string         `json:"Response"`
	Error      string         `json:"Error"`
	Title      string         `json:"Title"`
	IMDbID     string         `json:"imdbID"`
	IMDbRating string         `json:"imdbRating"`
	IMDbVotes  string         `json:"imdbVotes"`
	Metascore  string         `json:"Metascore"`
	Ratings    []ratingSource `json:"Ratings"`
}

// Client looks up ratings by IMDb identifier.
type Client struct {
	api *apiclient.Client
}

// New creates a ratings client from configuration.
func New(cfg config.OMDb, opts ...apiclient.Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "omdb api key required", nil)
	}
	all := append([]apiclient.Option{apiclient.WithQueryKey("apikey", key)}, opts...)
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
	return &Client{api: api}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return Provider
}

// Calls returns the number of requests issued so far.
func (c *Client) Calls() int64 {
	return c.api.Calls()
}

// Lookup fetches ratings for imdbID. A "not found" sentinel is returned as
// services.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, imdbID string) (*Ratings, error) {
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, errors.New("imdb id required")
	}
	params := url.Values{}
	params.Set("i", imdbID)
	var resp lookupResponse
	if err := c.api.GetJSON(ctx, "/", params, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(resp.Response), "true") {
		return nil, sentinelError(imdbID, resp.Error)
	}
	return parseRatings(resp), nil
}

func sentinelError(imdbID, message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "limit"):
		return services.Wrap(services.ErrRateLimited, Provider, "lookup "+imdbID, message, nil)
	case strings.Contains(lower, "api key"), strings.Contains(lower, "no api"):
		return services.Wrap(services.ErrConfiguration, Provider, "lookup "+imdbID, message, nil)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "incorrect imdb"):
		return services.Wrap(services.ErrNotFound, Provider, "lookup "+imdbID, message, nil)
	default:
		if message == "" {
			message = "unsuccessful response"
		}
		return services.Wrap(services.ErrTransient, Provider, "lookup "+imdbID, message, nil)
	}
}

func parseRatings(resp lookupResponse) *Ratings {
	r := &Ratings{
		IMDbID:     resp.IMDbID,
		Title:      resp.Title,
		IMDbRating: parseDecimal(resp.IMDbRating),
		IMDbVotes:  parseCount(resp.IMDbVotes),
		Metacritic: parseCount(resp.Metascore),
	}
	for _, source := range resp.Ratings {
		switch strings.ToLower(strings.TrimSpace(source.Source)) {
		case "rotten tomatoes":
			r.RottenTomatoes = parsePercent(source.Value)
		case "metacritic":
			if r.Metacritic == nil {
				r.Metacritic = parseFraction(source.Value)
			}
		case "internet movie database":
			if r.IMDbRating == nil {
				if v := parseFractionFloat(source.Value); v != nil {
					r.IMDbRating = v
				}
			}
		}
	}
	return r
}

func isMissing(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, "N/A")
}

func parseDecimal(value string) *float64 {
	if isMissing(value) {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseCount accepts thousands separators ("1,234,567").
func parseCount(value string) *int {
	if isMissing(value) {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(value), ",", ""))
	if err != nil {
		return nil
	}
	return &v
}

// parsePercent accepts "87%".
func parsePercent(value string) *int {
	if isMissing(value) {
		return nil
	}
	return parseCount(strings.TrimSuffix(strings.TrimSpace(value), "%"))
}

// parseFraction accepts "74/100" and returns the numerator.
func parseFraction(value string) *int {
	if isMissing(value) {
		return nil
	}
	numerator, _, _ := strings.Cut(strings.TrimSpace(value), "/")
	return parseCount(numerator)
}

// parseFractionFloat accepts "8.1/10".
func parseFractionFloat(value string) *float64 {
	if isMissing(value) {
		return nil
	}
	numerator, _, _ := strings.Cut(strings.TrimSpace(value), "/")
	return parseDecimal(numerator)
}
