package ratings_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"marquee/internal/catalog"
	"marquee/internal/logging"
	"marquee/internal/ratings"
	"marquee/internal/services/omdb"
	"marquee/internal/stage"
	"marquee/internal/testsupport"
)

func TestRunStoresRatingsAndMisses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("i") {
		case "tt0133093":
			_, _ = w.Write([]byte(`{"Response": "True", "Title": "The Matrix", "imdbRating": "8.7", "imdbVotes": "2,011,000",
				"Metascore": "73", "Ratings": [{"Source": "Rotten Tomatoes", "Value": "83%"}]}`))
		case "tt0000001":
			_, _ = w.Write([]byte(`{"Response": "False", "Error": "Incorrect IMDb ID."}`))
		default:
			_, _ = w.Write([]byte(`{"Response": "True", "Title": "Sparse", "imdbRating": "N/A"}`))
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithOMDb(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	matrix := testsupport.NewItemWithMetadata(t, store, 603, catalog.Metadata{Title: "The Matrix", IMDbID: "tt0133093"})
	unknown := testsupport.NewItemWithMetadata(t, store, 1, catalog.Metadata{Title: "Unknown", IMDbID: "tt0000001"})
	sparse := testsupport.NewItemWithMetadata(t, store, 2, catalog.Metadata{Title: "Sparse", IMDbID: "tt0000002"})
	testsupport.NewItemWithMetadata(t, store, 3, catalog.Metadata{Title: "No Cross Reference"})

	client, err := omdb.New(cfg.OMDb)
	if err != nil {
		t.Fatalf("omdb.New: %v", err)
	}
	s := ratings.New(client, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(ctx, stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Attempted != 3 || res.Succeeded != 3 {
		t.Fatalf("unexpected result %s", res.Summary())
	}

	got, err := store.GetSecondaryRating(ctx, matrix.ID)
	if err != nil || got == nil {
		t.Fatalf("GetSecondaryRating: %v", err)
	}
	if !got.Found || got.IMDbRating == nil || *got.IMDbRating != 8.7 || got.IMDbVotes == nil || *got.IMDbVotes != 2011000 {
		t.Fatalf("unexpected rating %+v", got)
	}
	if got.RottenTomatoes == nil || *got.RottenTomatoes != 83 || got.Metacritic == nil || *got.Metacritic != 73 {
		t.Fatalf("unexpected alternate ratings %+v", got)
	}

	miss, _ := store.GetSecondaryRating(ctx, unknown.ID)
	if miss == nil || miss.Found || miss.IMDbRating != nil {
		t.Fatalf("expected a not-found row, got %+v", miss)
	}
	item, _ := store.GetItem(ctx, unknown.ID)
	if item.Status == catalog.StatusError {
		t.Fatal("a ratings miss must not invalidate the catalog item")
	}

	partial, _ := store.GetSecondaryRating(ctx, sparse.ID)
	if partial == nil || !partial.Found || partial.IMDbRating != nil {
		t.Fatalf("expected tolerant parse of absent fields, got %+v", partial)
	}

	res, err = s.Run(ctx, stage.Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Attempted != 0 {
		t.Fatalf("rated items must not be reselected: %s", res.Summary())
	}
}

func TestRunHaltsOnProviderLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"Response": "False", "Error": "Request limit reached!"}`))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithOMDb(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewItemWithMetadata(t, store, 1, catalog.Metadata{Title: "One", IMDbID: "tt1"})
	testsupport.NewItemWithMetadata(t, store, 2, catalog.Metadata{Title: "Two", IMDbID: "tt2"})

	client, err := omdb.New(cfg.OMDb)
	if err != nil {
		t.Fatalf("omdb.New: %v", err)
	}
	res, err := ratings.New(client, store, cfg.Pipeline, logging.NewNop()).Run(context.Background(), stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted || calls.Load() != 1 {
		t.Fatalf("expected halt after one call, got %s with %d calls", res.Summary(), calls.Load())
	}
}
