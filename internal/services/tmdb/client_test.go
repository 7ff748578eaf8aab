package tmdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marquee/internal/config"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *tmdb.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := tmdb.New(config.TMDB{APIKey: "secret", BaseURL: server.URL, Language: "en-US"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestMovieDetailsAppendsSubResources(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/603" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "secret" || q.Get("language") != "en-US" {
			t.Fatalf("missing auth or language: %s", r.URL.RawQuery)
		}
		if q.Get("append_to_response") != "credits,keywords,external_ids,videos" {
			t.Fatalf("unexpected append_to_response %q", q.Get("append_to_response"))
		}
		_, _ = w.Write([]byte(`{
			"id": 603, "title": "The Matrix", "runtime": 136, "vote_count": 25000, "vote_average": 8.2,
			"genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
			"credits": {"cast": [{"id": 6384, "name": "Keanu Reeves", "order": 0, "popularity": 45.2}],
			            "crew": [{"id": 9340, "name": "Lana Wachowski", "job": "Director", "department": "Directing"}]},
			"keywords": {"keywords": [{"id": 1, "name": "simulated reality"}]},
			"external_ids": {"imdb_id": "tt0133093"},
			"videos": {"results": [{"key": "abc", "site": "YouTube", "type": "Trailer"}]}
		}`))
	})

	details, err := client.MovieDetails(context.Background(), 603)
	if err != nil {
		t.Fatalf("MovieDetails: %v", err)
	}
	if details.Title != "The Matrix" || len(details.Genres) != 2 {
		t.Fatalf("unexpected details: %+v", details)
	}
	credits, err := details.Credits()
	if err != nil || len(credits.Cast) != 1 || credits.Crew[0].Job != "Director" {
		t.Fatalf("Credits: %+v %v", credits, err)
	}
	keywords, err := details.Keywords()
	if err != nil || len(keywords) != 1 || keywords[0].Name != "simulated reality" {
		t.Fatalf("Keywords: %+v %v", keywords, err)
	}
	ids, err := details.ExternalIDs()
	if err != nil || ids.IMDbID != "tt0133093" {
		t.Fatalf("ExternalIDs: %+v %v", ids, err)
	}
	videos, err := details.Videos()
	if err != nil || len(videos) != 1 || videos[0].Key != "abc" {
		t.Fatalf("Videos: %+v %v", videos, err)
	}
	if client.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", client.Calls())
	}
}

func TestMalformedNestedBlockIsDataQuality(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1, "title": "Broken", "keywords": {"keywords": "not-a-list"}}`))
	})
	details, err := client.MovieDetails(context.Background(), 1)
	if err != nil {
		t.Fatalf("MovieDetails: %v", err)
	}
	if _, err := details.Keywords(); !errors.Is(err, services.ErrDataQuality) {
		t.Fatalf("expected data quality error, got %v", err)
	}
	credits, err := details.Credits()
	if err != nil || len(credits.Cast) != 0 {
		t.Fatalf("missing credits block should decode empty, got %+v %v", credits, err)
	}
}

func TestMovieDetailsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code": 34, "status_message": "The resource you requested could not be found."}`))
	})
	_, err := client.MovieDetails(context.Background(), 9)
	if services.Classify(err) != services.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDiscoverSendsFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discover/movie" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("primary_release_date.gte") != "2026-01-01" || q.Get("vote_count.gte") != "100" ||
			q.Get("vote_average.gte") != "7" || q.Get("sort_by") != "vote_average.desc" || q.Get("page") != "2" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Has("vote_count.lte") {
			t.Fatalf("zero max vote count should be omitted: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"page": 2, "total_pages": 5, "results": [{"id": 1}, {"id": 2}]}`))
	})
	page, err := client.Discover(context.Background(), tmdb.DiscoverOptions{
		ReleasedAfter:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		MinVoteAverage: 7,
		MinVoteCount:   100,
		SortBy:         "vote_average.desc",
	}, 2)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(page.Results) != 2 || page.TotalPages != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestListEndpoints(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = true
		mu.Unlock()
		if r.URL.Path == "/genre/movie/list" {
			_, _ = w.Write([]byte(`{"genres": [{"id": 35, "name": "Comedy"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"page": 1, "results": [{"id": 7, "title": "Seven"}]}`))
	})
	ctx := context.Background()
	if _, err := client.NowPlaying(ctx, 0); err != nil {
		t.Fatalf("NowPlaying: %v", err)
	}
	if _, err := client.Popular(ctx, 1); err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if _, err := client.TrendingWeek(ctx, 1); err != nil {
		t.Fatalf("TrendingWeek: %v", err)
	}
	genres, err := client.Genres(ctx)
	if err != nil || len(genres) != 1 || genres[0].Name != "Comedy" {
		t.Fatalf("Genres: %+v %v", genres, err)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, path := range []string{"/movie/now_playing", "/movie/popular", "/trending/movie/week", "/genre/movie/list"} {
		if !seen[path] {
			t.Fatalf("expected request to %s", path)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := tmdb.New(config.TMDB{BaseURL: "http://example.invalid"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
