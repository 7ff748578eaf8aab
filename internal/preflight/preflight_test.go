package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"marquee/internal/testsupport"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReachable(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ok.Close()
	if result := CheckReachable(context.Background(), "TMDB", ok.URL); !result.Passed {
		t.Fatalf("expected 401 to count as reachable, got: %s", result.Detail)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	if result := CheckReachable(context.Background(), "TMDB", broken.URL); result.Passed {
		t.Fatal("expected 502 to fail")
	}

	if result := CheckReachable(context.Background(), "TMDB", ""); result.Passed {
		t.Fatal("expected missing url to fail")
	}
}

func TestRunAllReportsRequiredFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutKeys())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, pingStub{}, Options{})
	if err := Error(results); err != nil {
		t.Fatalf("missing keys must not fail preflight: %v", err)
	}
	keyFailures := 0
	for _, r := range results {
		if strings.HasSuffix(r.Name, " key") && !r.Passed {
			keyFailures++
		}
	}
	if keyFailures != 3 {
		t.Fatalf("expected three unconfigured keys, got %d in %+v", keyFailures, results)
	}

	results = RunAll(context.Background(), cfg, pingStub{err: errors.New("database is locked")}, Options{})
	err := Error(results)
	if err == nil || !strings.Contains(err.Error(), "Catalog") {
		t.Fatalf("expected catalog failure, got %v", err)
	}
}

func TestRunAllProbesConfiguredProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithTMDB(srv.URL), testsupport.WithOMDb(srv.URL), testsupport.WithEmbeddings(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg, nil, Options{Probe: true})
	probes := 0
	for _, r := range results {
		if r.Name == "TMDB" || r.Name == "OMDb" || r.Name == "Embeddings" {
			probes++
			if !r.Passed {
				t.Fatalf("expected %s probe to pass, got %s", r.Name, r.Detail)
			}
		}
	}
	if probes != 3 {
		t.Fatalf("expected three probes, got %d", probes)
	}
}
