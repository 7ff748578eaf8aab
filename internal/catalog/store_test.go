package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"

	"marquee/internal/catalog"
	"marquee/internal/testsupport"
	"marquee/internal/textutil"
)

func TestOpenAppliesMigrationsAndSeedsMoods(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	moods, err := store.Moods(context.Background())
	if err != nil {
		t.Fatalf("Moods: %v", err)
	}
	if len(moods) != 8 {
		t.Fatalf("expected 8 seeded moods, got %d", len(moods))
	}
	for _, m := range moods {
		if m.IntensityLevel < 1 || m.IntensityLevel > 10 {
			t.Fatalf("mood %s has intensity %d", m.Slug, m.IntensityLevel)
		}
		if len(m.PreferredGenres) == 0 {
			t.Fatalf("mood %s has no preferred genres", m.Slug)
		}
	}

	// Reopening must not re-apply migrations.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	moods, err = reopened.Moods(context.Background())
	if err != nil || len(moods) != 8 {
		t.Fatalf("after reopen: moods=%d err=%v", len(moods), err)
	}
}

func TestInsertItemsIgnoresExistingProviderIDs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	n, err := store.InsertItems(ctx, []catalog.NewItem{{ProviderID: 1, Title: "One"}, {ProviderID: 2, Title: "Two"}})
	if err != nil || n != 2 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	n, err = store.InsertItems(ctx, []catalog.NewItem{{ProviderID: 2, Title: "Two again"}, {ProviderID: 3, Title: "Three"}})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 new row, got %d", n)
	}

	existing, err := store.ExistingProviderIDs(ctx, []int64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("ExistingProviderIDs: %v", err)
	}
	if len(existing) != 3 {
		t.Fatalf("expected 3 existing ids, got %v", existing)
	}
	if _, ok := existing[4]; ok {
		t.Fatal("provider id 4 should not exist")
	}

	item, err := store.GetItemByProviderID(ctx, 2)
	if err != nil || item == nil {
		t.Fatalf("GetItemByProviderID: %v", err)
	}
	if item.Title != "Two" {
		t.Fatalf("duplicate insert overwrote title: %q", item.Title)
	}
	if item.Status != catalog.StatusPending || item.HasCredits || item.HasScores {
		t.Fatalf("unexpected new item state: %+v", item)
	}
}

func TestStatusIsDerivedFromFlags(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := testsupport.NewItem(t, store, 550, "Fight Club")
	if item.Status != catalog.StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}

	if err := store.UpdateMetadata(ctx, item.ID, catalog.Metadata{Title: "Fight Club", Genres: []string{"Drama"}}, time.Now()); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	assertStatus(t, store, item.ID, catalog.StatusFetching)

	for _, flag := range []catalog.Flag{catalog.FlagCredits, catalog.FlagKeywords} {
		if err := store.SetFlag(ctx, item.ID, flag); err != nil {
			t.Fatalf("SetFlag(%s): %v", flag, err)
		}
	}
	assertStatus(t, store, item.ID, catalog.StatusScoring)

	if err := store.SetFlag(ctx, item.ID, catalog.FlagScores); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	assertStatus(t, store, item.ID, catalog.StatusScoring)

	if err := store.SetFlag(ctx, item.ID, catalog.FlagEmbeddings); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	got := assertStatus(t, store, item.ID, catalog.StatusComplete)
	if !got.AllFlags() {
		t.Fatalf("complete item missing flags: %v", got.MissingFlags())
	}

	if err := store.MarkInvalid(ctx, item.ID, "not_found", "gone"); err != nil {
		t.Fatalf("MarkInvalid: %v", err)
	}
	got = assertStatus(t, store, item.ID, catalog.StatusError)
	if got.ErrorKind != "not_found" || got.ErrorMessage != "gone" {
		t.Fatalf("unexpected error fields: %q %q", got.ErrorKind, got.ErrorMessage)
	}

	if err := store.SetFlag(ctx, item.ID, catalog.Flag("status")); err == nil {
		t.Fatal("expected unknown flag to be rejected")
	}
}

func TestItemsNeedingMetadataOrdersByVotesAndHonoursStaleness(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.InsertItems(ctx, []catalog.NewItem{
		{ProviderID: 10, Title: "Low", VoteCount: 5},
		{ProviderID: 11, Title: "High", VoteCount: 5000},
		{ProviderID: 12, Title: "Mid", VoteCount: 300},
	}); err != nil {
		t.Fatalf("InsertItems: %v", err)
	}

	items, err := store.ItemsNeedingMetadata(ctx, catalog.Selection{Limit: 2})
	if err != nil {
		t.Fatalf("ItemsNeedingMetadata: %v", err)
	}
	if len(items) != 2 || items[0].ProviderID != 11 || items[1].ProviderID != 12 {
		t.Fatalf("unexpected order: %+v", providerIDs(items))
	}

	old := time.Now().Add(-100 * 24 * time.Hour)
	if err := store.UpdateMetadata(ctx, items[0].ID, catalog.Metadata{Title: "High", VoteCount: 5000}, old); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if err := store.UpdateMetadata(ctx, items[1].ID, catalog.Metadata{Title: "Mid", VoteCount: 300}, time.Now()); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	items, err = store.ItemsNeedingMetadata(ctx, catalog.Selection{})
	if err != nil {
		t.Fatalf("ItemsNeedingMetadata: %v", err)
	}
	if got := providerIDs(items); len(got) != 1 || got[0] != 10 {
		t.Fatalf("expected only never-fetched item, got %v", got)
	}

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	items, err = store.ItemsNeedingMetadata(ctx, catalog.Selection{StaleBefore: &cutoff})
	if err != nil {
		t.Fatalf("ItemsNeedingMetadata stale: %v", err)
	}
	if got := providerIDs(items); len(got) != 2 || got[0] != 11 || got[1] != 10 {
		t.Fatalf("expected stale item then unfetched item, got %v", got)
	}
}

func TestReplaceLinksIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.UpsertGenres(ctx, []catalog.Genre{{ID: 28, Name: "Action"}, {ID: 35, Name: "Comedy"}}); err != nil {
		t.Fatalf("UpsertGenres: %v", err)
	}
	index, err := store.GenreIndex(ctx)
	if err != nil {
		t.Fatalf("GenreIndex: %v", err)
	}
	if index[textutil.Fold("COMEDY")] != 35 {
		t.Fatalf("expected case-insensitive genre lookup, got %v", index)
	}

	item := testsupport.NewItemWithMetadata(t, store, 99, catalog.Metadata{Title: "Links", Genres: []string{"Comedy", "Action"}})
	keywords := []catalog.Keyword{
		{ID: textutil.KeywordID("heist"), Name: "heist"},
		{ID: textutil.KeywordID("time travel"), Name: "time travel"},
	}
	keywordIDs := []int64{keywords[0].ID, keywords[1].ID}
	for i := 0; i < 2; i++ {
		if err := store.UpsertKeywords(ctx, keywords); err != nil {
			t.Fatalf("UpsertKeywords: %v", err)
		}
		if err := store.ReplaceLinks(ctx, item.ID, []int64{35, 28}, keywordIDs); err != nil {
			t.Fatalf("ReplaceLinks: %v", err)
		}
	}

	genreIDs, err := store.GenreIDs(ctx, item.ID)
	if err != nil {
		t.Fatalf("GenreIDs: %v", err)
	}
	if len(genreIDs) != 2 || genreIDs[0] != 35 {
		t.Fatalf("expected primary genre first, got %v", genreIDs)
	}
	linked, err := store.KeywordIDs(ctx, item.ID)
	if err != nil || len(linked) != 2 {
		t.Fatalf("KeywordIDs: %v %v", linked, err)
	}
	count, err := store.KeywordCount(ctx)
	if err != nil || count != 2 {
		t.Fatalf("KeywordCount: %d %v", count, err)
	}

	pending, err := store.ItemsNeedingLinks(ctx, catalog.Selection{})
	if err != nil {
		t.Fatalf("ItemsNeedingLinks: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected links to be current, got %v", providerIDs(pending))
	}
}

func TestScheduleRetryBacksOffThenExhausts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewItem(t, store, 7, "Flaky")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	attempts, exhausted, err := store.ScheduleRetry(ctx, item.ID, "metadata", "timeout", 3, now)
	if err != nil || attempts != 1 || exhausted {
		t.Fatalf("first retry: attempts=%d exhausted=%v err=%v", attempts, exhausted, err)
	}
	entries, err := store.RetryEntries(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("RetryEntries: %v %v", entries, err)
	}
	if want := now.Add(time.Hour); !entries[0].NextAttemptAt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", entries[0].NextAttemptAt, want)
	}

	deferred, err := store.ItemsNeedingMetadata(ctx, catalog.Selection{Stage: "metadata", Now: now.Add(30 * time.Minute)})
	if err != nil || len(deferred) != 0 {
		t.Fatalf("expected item to be deferred, got %v %v", providerIDs(deferred), err)
	}
	due, err := store.ItemsNeedingMetadata(ctx, catalog.Selection{Stage: "metadata", Now: now.Add(2 * time.Hour)})
	if err != nil || len(due) != 1 {
		t.Fatalf("expected item to be due, got %v %v", providerIDs(due), err)
	}

	if _, _, err := store.ScheduleRetry(ctx, item.ID, "metadata", "timeout", 3, now); err != nil {
		t.Fatalf("second retry: %v", err)
	}
	attempts, exhausted, err = store.ScheduleRetry(ctx, item.ID, "metadata", "timeout", 3, now)
	if err != nil || attempts != 3 || !exhausted {
		t.Fatalf("third retry: attempts=%d exhausted=%v err=%v", attempts, exhausted, err)
	}
	got, err := store.GetItem(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Status != catalog.StatusError || got.ErrorKind != catalog.ErrorKindRetriesExhausted {
		t.Fatalf("expected exhausted item in error, got %s/%s", got.Status, got.ErrorKind)
	}
	if entries, _ := store.RetryEntries(ctx); len(entries) != 0 {
		t.Fatalf("expected retry row removed, got %v", entries)
	}
}

func TestRetryDelayDoubles(t *testing.T) {
	cases := map[int]time.Duration{0: time.Hour, 1: time.Hour, 2: 2 * time.Hour, 3: 4 * time.Hour}
	for attempts, want := range cases {
		if got := catalog.RetryDelay(attempts); got != want {
			t.Fatalf("RetryDelay(%d) = %v, want %v", attempts, got, want)
		}
	}
}

func TestScoreSetAndEmbeddingRaiseFlags(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewItemWithMetadata(t, store, 42, catalog.Metadata{Title: "Scored"})

	if err := store.SaveScoreSet(ctx, catalog.ScoreSet{ItemID: item.ID, Pacing: 70, Intensity: 40, Quality: 80, StarPowerTier: "none", VFXCategory: "minimal"}); err != nil {
		t.Fatalf("SaveScoreSet: %v", err)
	}
	set, err := store.GetScoreSet(ctx, item.ID)
	if err != nil || set == nil {
		t.Fatalf("GetScoreSet: %v", err)
	}
	if set.Composite != nil {
		t.Fatalf("expected nil composite, got %v", *set.Composite)
	}
	if set.Pacing != 70 || set.Quality != 80 {
		t.Fatalf("unexpected score set: %+v", set)
	}

	vec := pgvector.NewVector([]float32{0.25, -0.5, 1})
	if err := store.SaveEmbedding(ctx, catalog.Embedding{ItemID: item.ID, Model: "test-model", Vector: vec}); err != nil {
		t.Fatalf("SaveEmbedding: %v", err)
	}
	emb, err := store.GetEmbedding(ctx, item.ID)
	if err != nil || emb == nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	got := emb.Vector.Slice()
	if len(got) != 3 || got[0] != 0.25 || got[1] != -0.5 || got[2] != 1 {
		t.Fatalf("unexpected vector: %v", got)
	}

	reloaded, err := store.GetItem(ctx, item.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !reloaded.HasScores || !reloaded.HasEmbeddings {
		t.Fatalf("expected score and embedding flags, got %+v", reloaded)
	}

	if err := store.SaveEmbedding(ctx, catalog.Embedding{ItemID: item.ID, Model: "m"}); err == nil {
		t.Fatal("expected empty vector to be rejected")
	}
}

func TestMoodScoresAreUpsertedAndTracked(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.NewItemWithMetadata(t, store, 5, catalog.Metadata{Title: "Moody"})
	if err := store.SaveScoreSet(ctx, catalog.ScoreSet{ItemID: item.ID, Pacing: 50, Intensity: 50, Quality: 60, StarPowerTier: "none", VFXCategory: "minimal"}); err != nil {
		t.Fatalf("SaveScoreSet: %v", err)
	}
	moods, err := store.Moods(ctx)
	if err != nil || len(moods) == 0 {
		t.Fatalf("Moods: %v", err)
	}
	moodID := moods[0].ID

	ids, err := store.ItemsNeedingMoodScore(ctx, moodID, 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("unlinked item must not be selected: %v %v", ids, err)
	}
	if err := store.ReplaceLinks(ctx, item.ID, nil, nil); err != nil {
		t.Fatalf("ReplaceLinks: %v", err)
	}
	ids, err = store.ItemsNeedingMoodScore(ctx, moodID, 0)
	if err != nil || len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("ItemsNeedingMoodScore: %v %v", ids, err)
	}
	profile, err := store.GetMoodProfile(ctx, item.ID)
	if err != nil || profile == nil || profile.Quality != 60 {
		t.Fatalf("GetMoodProfile: %+v %v", profile, err)
	}

	for _, score := range []int{40, 55} {
		if err := store.UpsertMoodScores(ctx, []catalog.MoodScore{{ItemID: item.ID, MoodID: moodID, Score: score}}); err != nil {
			t.Fatalf("UpsertMoodScores: %v", err)
		}
	}
	scores, err := store.MoodScores(ctx, item.ID)
	if err != nil || len(scores) != 1 || scores[moodID] != 55 {
		t.Fatalf("MoodScores: %v %v", scores, err)
	}
	ids, err = store.ItemsNeedingMoodScore(ctx, moodID, 0)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected no remaining work, got %v %v", ids, err)
	}
}

func TestMoodProfilePrimaryGenreFollowsProviderOrder(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.UpsertGenres(ctx, []catalog.Genre{{ID: 35, Name: "Comedy"}, {ID: 18, Name: "Drama"}}); err != nil {
		t.Fatalf("UpsertGenres: %v", err)
	}

	unresolved := testsupport.NewItemWithMetadata(t, store, 8, catalog.Metadata{Title: "Unknown First", Genres: []string{"Western", "Comedy"}})
	resolved := testsupport.NewItemWithMetadata(t, store, 9, catalog.Metadata{Title: "Drama First", Genres: []string{"drama", "Comedy"}})
	for _, link := range []struct {
		item   *catalog.Item
		genres []int64
	}{{unresolved, []int64{35}}, {resolved, []int64{18, 35}}} {
		if err := store.ReplaceLinks(ctx, link.item.ID, link.genres, nil); err != nil {
			t.Fatalf("ReplaceLinks: %v", err)
		}
		if err := store.SaveScoreSet(ctx, catalog.ScoreSet{ItemID: link.item.ID, Pacing: 50, Intensity: 50, Quality: 50, StarPowerTier: "none", VFXCategory: "minimal"}); err != nil {
			t.Fatalf("SaveScoreSet: %v", err)
		}
	}

	profile, err := store.GetMoodProfile(ctx, unresolved.ID)
	if err != nil || profile == nil {
		t.Fatalf("GetMoodProfile: %+v %v", profile, err)
	}
	if profile.PrimaryGenreID != 0 || len(profile.GenreIDs) != 1 || profile.GenreIDs[0] != 35 {
		t.Fatalf("unresolved first genre must leave no primary: %+v", profile)
	}
	profile, err = store.GetMoodProfile(ctx, resolved.ID)
	if err != nil || profile == nil {
		t.Fatalf("GetMoodProfile: %+v %v", profile, err)
	}
	if profile.PrimaryGenreID != 18 {
		t.Fatalf("primary genre = %d, want 18", profile.PrimaryGenreID)
	}
}

func TestRunLedgerAndUsage(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	if err := store.CreateRun(ctx, catalog.Run{ID: "run-1", Mode: "daily", StartedAt: started}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, u := range []catalog.Usage{
		{RunID: "run-1", Stage: "metadata", Provider: "tmdb", Calls: 10},
		{RunID: "run-1", Stage: "credits", Provider: "tmdb", Calls: 5},
		{RunID: "run-1", Stage: "ratings", Provider: "omdb", Calls: 3},
		{RunID: "other", Stage: "ratings", Provider: "omdb", Calls: 100},
	} {
		if err := store.RecordUsage(ctx, u, time.Now()); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
	calls, err := store.UsageForRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("UsageForRun: %v", err)
	}
	if calls["tmdb"] != 15 || calls["omdb"] != 3 {
		t.Fatalf("unexpected usage: %v", calls)
	}
	today, err := store.UsageOnDay(ctx, "omdb", time.Now())
	if err != nil || today != 103 {
		t.Fatalf("UsageOnDay: %d %v", today, err)
	}

	finished := time.Now()
	if err := store.FinishRun(ctx, catalog.Run{
		ID:             "run-1",
		FinishedAt:     &finished,
		Status:         catalog.RunPartial,
		StepsCompleted: 2,
		StepsFailed:    1,
		ProviderCalls:  calls,
		Steps:          []catalog.RunStep{{Stage: "metadata", Outcome: "passed"}, {Stage: "ratings", Outcome: "failed", ExitCode: 1}},
		Errors:         []string{"ratings: exit status 1"},
	}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != catalog.RunPartial || run.StepsFailed != 1 || run.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.ProviderCalls["tmdb"] != 15 || len(run.Steps) != 2 || len(run.Errors) != 1 {
		t.Fatalf("unexpected run detail: %+v", run)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns: %v %v", runs, err)
	}
	if missing, err := store.GetRun(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown run, got %v %v", missing, err)
	}
}

func assertStatus(t *testing.T, store *catalog.Store, id int64, want catalog.Status) *catalog.Item {
	t.Helper()
	item, err := store.GetItem(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("GetItem(%d): %v", id, err)
	}
	if item.Status != want {
		t.Fatalf("status = %s, want %s", item.Status, want)
	}
	return item
}

func providerIDs(items []*catalog.Item) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProviderID)
	}
	return ids
}
