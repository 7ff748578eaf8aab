package stageexec_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"marquee/internal/logging"
	"marquee/internal/services"
	"marquee/internal/stage"
	"marquee/internal/stageexec"
	"marquee/internal/testsupport"
)

func TestRunRejectsUnknownStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, code, err := stageexec.Run(context.Background(), stageexec.Options{
		Config: cfg, Store: store, Logger: logging.NewNop(), Name: "transcode",
	})
	if code != stageexec.ExitUnusable {
		t.Fatalf("expected exit %d, got %d", stageexec.ExitUnusable, code)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunReportsMissingKeyAsUnusable(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutKeys())
	store := testsupport.MustOpenStore(t, cfg)

	_, code, err := stageexec.Run(context.Background(), stageexec.Options{
		Config: cfg, Store: store, Logger: logging.NewNop(), Name: stage.Ratings,
	})
	if code != stageexec.ExitUnusable {
		t.Fatalf("expected exit %d, got %d", stageexec.ExitUnusable, code)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunLocalStageOnEmptyCatalogPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutKeys())
	store := testsupport.MustOpenStore(t, cfg)

	res, code, err := stageexec.Run(context.Background(), stageexec.Options{
		Config: cfg, Store: store, Logger: logging.NewNop(), Name: stage.Scores,
	})
	if err != nil || code != stageexec.ExitPassed {
		t.Fatalf("expected pass, got code=%d err=%v", code, err)
	}
	if res.Attempted != 0 || res.Finished.IsZero() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunDiscoverRecordsProviderUsage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch n % 2 {
		case 0:
			_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[{"id":10,"title":"Ten","vote_count":10}]}`))
		default:
			_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[{"id":11,"title":"Eleven","vote_count":10}]}`))
		}
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(srv.URL))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	runID := "run-usage"

	res, code, err := stageexec.Run(ctx, stageexec.Options{
		Config: cfg,
		Store:  store,
		Logger: logging.NewNop(),
		Name:   stage.Discover,
		Stage:  stage.Options{RunID: runID, Now: time.Now()},
	})
	if err != nil || code != stageexec.ExitPassed {
		t.Fatalf("expected pass, got code=%d err=%v", code, err)
	}
	if res.Succeeded != 2 {
		t.Fatalf("expected 2 inserted items, got %+v", res)
	}

	usage, err := store.UsageForRun(ctx, runID)
	if err != nil {
		t.Fatalf("UsageForRun: %v", err)
	}
	if usage["tmdb"] != int64(calls.Load()) || usage["tmdb"] == 0 {
		t.Fatalf("expected %d tmdb calls recorded, got %v", calls.Load(), usage)
	}
	today, err := store.UsageOnDay(ctx, "tmdb", time.Now())
	if err != nil || today != usage["tmdb"] {
		t.Fatalf("expected day usage %d, got %d (%v)", usage["tmdb"], today, err)
	}
}

func TestRunHaltedStageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(srv.URL))
	store := testsupport.MustOpenStore(t, cfg)

	res, code, err := stageexec.Run(context.Background(), stageexec.Options{
		Config: cfg, Store: store, Logger: logging.NewNop(), Name: stage.Discover,
	})
	if code != stageexec.ExitFailed {
		t.Fatalf("expected exit %d, got %d (res=%+v err=%v)", stageexec.ExitFailed, code, res, err)
	}
	if err == nil {
		t.Fatal("expected an error describing the failure")
	}
}

func TestExitCode(t *testing.T) {
	passing := stage.Result{Attempted: 10, Failed: 1}
	failing := stage.Result{Attempted: 10, Failed: 5}
	aborted := stage.Result{Aborted: true}

	cases := []struct {
		name string
		res  stage.Result
		err  error
		want int
	}{
		{"passed", passing, nil, stageexec.ExitPassed},
		{"threshold", failing, nil, stageexec.ExitFailed},
		{"aborted", aborted, nil, stageexec.ExitFailed},
		{"transient error", passing, services.Wrap(services.ErrTransient, "x", "y", "", nil), stageexec.ExitFailed},
		{"config error", passing, services.Wrap(services.ErrConfiguration, "x", "y", "", nil), stageexec.ExitUnusable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stageexec.ExitCode(tc.res, tc.err, 0.5); got != tc.want {
				t.Fatalf("ExitCode = %d, want %d", got, tc.want)
			}
		})
	}
}
