package metadata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
	"marquee/internal/logging"
	"marquee/internal/metadata"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
	"marquee/internal/testsupport"
)

const matrixDetails = `{
	"id": 603, "title": "The Matrix", "overview": "A hacker learns the truth.", "runtime": 136,
	"release_date": "1999-03-30", "vote_count": 25000, "vote_average": 8.2, "popularity": 80.5,
	"genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
	"credits": {"cast": [
		{"id": 2, "name": "Laurence Fishburne", "order": 1},
		{"id": 1, "name": "Keanu Reeves", "order": 0}],
		"crew": [{"id": 9, "name": "Bill Pope", "job": "Director of Photography"},
		         {"id": 10, "name": "Lana Wachowski", "job": "Director"}]},
	"keywords": {"keywords": [{"id": 1, "name": "simulated reality"}, {"id": 2, "name": "hacker"}]},
	"external_ids": {"imdb_id": "tt0133093"},
	"videos": {"results": [
		{"key": "teaser", "site": "YouTube", "type": "Teaser"},
		{"key": "trailer", "site": "YouTube", "type": "Trailer"}]}
}`

type providerStub struct {
	mu        sync.Mutex
	responses map[string]func(w http.ResponseWriter)
	calls     []string
}

func (p *providerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.calls = append(p.calls, r.URL.Path)
	respond := p.responses[r.URL.Path]
	p.mu.Unlock()
	if respond == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status_code": 34}`))
		return
	}
	respond(w)
}

func (p *providerStub) called(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == path {
			return true
		}
	}
	return false
}

func body(payload string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) { _, _ = w.Write([]byte(payload)) }
}

func status(code int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

func newStage(t *testing.T, stub *providerStub) (*metadata.Stage, *catalog.Store) {
	t.Helper()
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	client, err := tmdb.New(cfg.TMDB)
	if err != nil {
		t.Fatalf("tmdb.New: %v", err)
	}
	return metadata.New(client, store, cfg.Pipeline, logging.NewNop()), store
}

func TestNormalizeFlattensDetails(t *testing.T) {
	stub := &providerStub{responses: map[string]func(http.ResponseWriter){"/movie/603": body(matrixDetails)}}
	server := httptest.NewServer(stub)
	defer server.Close()
	client, err := tmdb.New(config.TMDB{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("tmdb.New: %v", err)
	}
	details, err := client.MovieDetails(context.Background(), 603)
	if err != nil {
		t.Fatalf("MovieDetails: %v", err)
	}

	md, warnings := metadata.Normalize(details)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if md.PrimaryGenre() != "Action" || len(md.Genres) != 2 {
		t.Fatalf("unexpected genres %v", md.Genres)
	}
	if md.LeadActor != "Keanu Reeves" {
		t.Fatalf("expected lowest billing order as lead, got %q", md.LeadActor)
	}
	if md.Director != "Lana Wachowski" {
		t.Fatalf("expected exact Director job match, got %q", md.Director)
	}
	if md.TrailerKey != "trailer" {
		t.Fatalf("expected first Trailer video, got %q", md.TrailerKey)
	}
	if md.IMDbID != "tt0133093" || len(md.Keywords) != 2 {
		t.Fatalf("unexpected cross reference or keywords: %+v", md)
	}
}

func TestNormalizeKeepsRecordWhenNestedBlockIsMalformed(t *testing.T) {
	details := &tmdb.MovieDetails{
		ID:          1,
		Title:       "Broken Keywords",
		Genres:      []tmdb.Genre{{ID: 35, Name: "Comedy"}},
		RawKeywords: []byte(`{"keywords": "nope"}`),
	}
	md, warnings := metadata.Normalize(details)
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	if md.Title != "Broken Keywords" || md.PrimaryGenre() != "Comedy" || len(md.Keywords) != 0 {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestRunStoresMetadataAndMarksMissingItemsInvalid(t *testing.T) {
	stub := &providerStub{responses: map[string]func(http.ResponseWriter){"/movie/603": body(matrixDetails)}}
	s, store := newStage(t, stub)
	ctx := context.Background()
	ok := testsupport.NewItem(t, store, 603, "The Matrix")
	gone := testsupport.NewItem(t, store, 999, "Deleted Upstream")

	res, err := s.Run(ctx, stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Succeeded != 1 || res.Invalid != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %s", res.Summary())
	}
	if !res.Passed(0.1) {
		t.Fatalf("invalid items must not fail the stage: %s", res.Summary())
	}

	stored, _ := store.GetItem(ctx, ok.ID)
	if stored.Status != catalog.StatusFetching || stored.Director != "Lana Wachowski" || stored.MetadataFetchedAt == nil {
		t.Fatalf("unexpected stored item %+v", stored)
	}
	invalid, _ := store.GetItem(ctx, gone.ID)
	if invalid.Status != catalog.StatusError || invalid.ErrorKind != "not_found" {
		t.Fatalf("expected invalid item in error status, got %+v", invalid)
	}

	res, err = s.Run(ctx, stage.Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Attempted != 0 {
		t.Fatalf("invalid and fetched items must not be reselected: %s", res.Summary())
	}
}

func TestRunHaltsOnRateLimit(t *testing.T) {
	stub := &providerStub{responses: map[string]func(http.ResponseWriter){
		"/movie/1": status(http.StatusTooManyRequests),
		"/movie/2": body(`{"id": 2, "title": "Never Reached"}`),
	}}
	s, store := newStage(t, stub)
	ctx := context.Background()
	if _, err := store.InsertItems(ctx, []catalog.NewItem{
		{ProviderID: 1, Title: "First", VoteCount: 500},
		{ProviderID: 2, Title: "Second", VoteCount: 10},
	}); err != nil {
		t.Fatalf("InsertItems: %v", err)
	}

	res, err := s.Run(ctx, stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted || res.Attempted != 1 {
		t.Fatalf("expected halt after first item, got %s", res.Summary())
	}
	if stub.called("/movie/2") {
		t.Fatal("no calls expected after a rate limit")
	}
}

func TestRunQueuesTransientFailuresForRetry(t *testing.T) {
	stub := &providerStub{responses: map[string]func(http.ResponseWriter){
		"/movie/5": status(http.StatusBadGateway),
		"/movie/6": body(`{"id": 6, "title": "Fine"}`),
	}}
	s, store := newStage(t, stub)
	testsupport.NewItem(t, store, 5, "Flaky")
	testsupport.NewItem(t, store, 6, "Fine")
	ctx := context.Background()
	now := time.Now()

	res, err := s.Run(ctx, stage.Options{Now: now})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Succeeded != 1 || res.Halted {
		t.Fatalf("unexpected result %s", res.Summary())
	}
	entries, err := store.RetryEntries(ctx)
	if err != nil {
		t.Fatalf("RetryEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != stage.Metadata || entries[0].Attempts != 1 {
		t.Fatalf("unexpected retry queue %+v", entries)
	}

	res, err = s.Run(ctx, stage.Options{Now: now.Add(time.Minute)})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Attempted != 0 {
		t.Fatalf("item must wait for its backoff, got %s", res.Summary())
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	stub := &providerStub{responses: map[string]func(http.ResponseWriter){"/movie/603": body(matrixDetails)}}
	s, store := newStage(t, stub)
	item := testsupport.NewItem(t, store, 603, "The Matrix")

	res, err := s.Run(context.Background(), stage.Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("unexpected result %s", res.Summary())
	}
	stored, _ := store.GetItem(context.Background(), item.ID)
	if stored.MetadataFetchedAt != nil || stored.Status != catalog.StatusPending {
		t.Fatalf("dry run wrote metadata: %+v", stored)
	}
}
