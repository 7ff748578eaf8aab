package discovery_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marquee/internal/discovery"
	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/services/tmdb"
	"marquee/internal/stage"
	"marquee/internal/testsupport"
)

type fakeLister struct {
	lists    map[string][]tmdb.Result
	failures map[string]error
	calls    map[string]int
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		lists:    make(map[string][]tmdb.Result),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeLister) page(name string) (*tmdb.Page, error) {
	f.calls[name]++
	if err := f.failures[name]; err != nil {
		return nil, err
	}
	return &tmdb.Page{Page: 1, TotalPages: 1, Results: f.lists[name]}, nil
}

func (f *fakeLister) NowPlaying(context.Context, int) (*tmdb.Page, error) {
	return f.page("now_playing")
}

func (f *fakeLister) Popular(context.Context, int) (*tmdb.Page, error) {
	return f.page("popular")
}

func (f *fakeLister) TrendingWeek(context.Context, int) (*tmdb.Page, error) {
	return f.page("trending_week")
}

func (f *fakeLister) Discover(_ context.Context, opts tmdb.DiscoverOptions, _ int) (*tmdb.Page, error) {
	if opts.MaxVoteCount > 0 {
		return f.page("acclaimed_obscure")
	}
	return f.page("recent_high_quality")
}

func results(ids ...int64) []tmdb.Result {
	out := make([]tmdb.Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, tmdb.Result{ID: id, Title: fmt.Sprintf("Movie %d", id), VoteCount: 100})
	}
	return out
}

func TestRunUnionsStrategiesAndSkipsExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewItem(t, store, 3, "Already Here")

	lister := newFakeLister()
	lister.lists["now_playing"] = results(1, 2, 3)
	lister.lists["popular"] = results(2, 4)
	lister.lists["trending_week"] = results(5)
	lister.lists["recent_high_quality"] = results(1)
	lister.lists["acclaimed_obscure"] = results(6)

	s := discovery.New(lister, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(context.Background(), stage.Options{Now: time.Now()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Attempted != 5 || res.Succeeded != 5 {
		t.Fatalf("expected 5 new items inserted, got %s", res.Summary())
	}

	item, err := store.GetItemByProviderID(context.Background(), 2)
	if err != nil || item == nil {
		t.Fatalf("GetItemByProviderID(2): %v", err)
	}
	if item.DiscoveredBy != "now_playing" {
		t.Fatalf("expected first strategy to win attribution, got %q", item.DiscoveredBy)
	}

	res, err = s.Run(context.Background(), stage.Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Attempted != 0 {
		t.Fatalf("expected rerun to find nothing new, got %s", res.Summary())
	}
}

func TestRunToleratesPartialStrategyFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	lister := newFakeLister()
	lister.lists["popular"] = results(10, 11)
	lister.failures["now_playing"] = services.ErrTransient
	lister.failures["trending_week"] = services.ErrTransient

	s := discovery.New(lister, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(context.Background(), stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Aborted {
		t.Fatalf("stage should not abort while a strategy succeeds: %s", res.Summary())
	}
	if res.Succeeded != 2 {
		t.Fatalf("expected 2 inserts, got %s", res.Summary())
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 strategy errors, got %v", res.Errors)
	}
}

func TestRunAbortsWhenEveryStrategyFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	lister := newFakeLister()
	for _, name := range []string{"now_playing", "popular", "trending_week", "recent_high_quality", "acclaimed_obscure"} {
		lister.failures[name] = services.ErrTransient
	}

	s := discovery.New(lister, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(context.Background(), stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Aborted || res.Passed(0.1) {
		t.Fatalf("expected abort, got %s", res.Summary())
	}
}

func TestRunStopsCallingAfterRateLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	lister := newFakeLister()
	lister.lists["now_playing"] = results(20)
	lister.failures["popular"] = services.ErrRateLimited

	s := discovery.New(lister, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(context.Background(), stage.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted {
		t.Fatalf("expected halted result, got %s", res.Summary())
	}
	if lister.calls["trending_week"] != 0 {
		t.Fatalf("expected no calls after rate limit, got %d", lister.calls["trending_week"])
	}
	if res.Succeeded != 1 {
		t.Fatalf("expected partial results kept, got %s", res.Summary())
	}
}

func TestRunRespectsLimitAndDryRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	lister := newFakeLister()
	lister.lists["popular"] = results(30, 31, 32, 33)

	s := discovery.New(lister, store, cfg.Pipeline, logging.NewNop())
	res, err := s.Run(context.Background(), stage.Options{Limit: 2, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Attempted != 2 || res.Skipped != 2 {
		t.Fatalf("expected limit to cap candidates, got %s", res.Summary())
	}
	existing, err := store.ExistingProviderIDs(context.Background(), []int64{30, 31, 32, 33})
	if err != nil {
		t.Fatalf("ExistingProviderIDs: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("dry run must not insert, found %v", existing)
	}
}
