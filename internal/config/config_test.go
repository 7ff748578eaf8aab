package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"marquee/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnvKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TMDB_API_KEY", "env-tmdb")
	t.Setenv("OMDB_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "marquee", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}

	wantData := filepath.Join(tempHome, ".local", "share", "marquee")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "catalog.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.TMDB.APIKey != "env-tmdb" {
		t.Fatalf("expected TMDB key from env, got %q", cfg.TMDB.APIKey)
	}
	if cfg.OMDb.APIKey != "" {
		t.Fatalf("expected empty OMDb key, got %q", cfg.OMDb.APIKey)
	}
	if cfg.Embeddings.APIKey != "env-openai" {
		t.Fatalf("expected embeddings key to fall back to OPENAI_API_KEY, got %q", cfg.Embeddings.APIKey)
	}
	if cfg.OMDb.MinIntervalMS != 1000 || cfg.OMDb.DailyQuota != 1000 {
		t.Fatalf("unexpected omdb cadence defaults: %+v", cfg.OMDb)
	}
	if cfg.Pipeline.StalenessDays != 90 {
		t.Fatalf("unexpected staleness days: %d", cfg.Pipeline.StalenessDays)
	}
	if cfg.Pipeline.FailureThreshold != 0.10 {
		t.Fatalf("unexpected failure threshold: %v", cfg.Pipeline.FailureThreshold)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("TMDB_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "marquee.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		TMDB struct {
			APIKey  string `toml:"api_key"`
			BaseURL string `toml:"base_url"`
		} `toml:"tmdb"`
		Pipeline struct {
			StalenessDays int `toml:"staleness_days"`
			CastLimit     int `toml:"cast_limit"`
		} `toml:"pipeline"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.TMDB.APIKey = "abc123"
	custom.TMDB.BaseURL = "https://example.com/tmdb/"
	custom.Pipeline.StalenessDays = 30
	custom.Pipeline.CastLimit = 5
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: exists=%v resolved=%q", exists, resolved)
	}
	if cfg.TMDB.APIKey != "abc123" {
		t.Fatalf("expected TMDB key from file, got %q", cfg.TMDB.APIKey)
	}
	if cfg.TMDB.BaseURL != "https://example.com/tmdb" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.TMDB.BaseURL)
	}
	if cfg.Pipeline.StalenessDays != 30 || cfg.Pipeline.CastLimit != 5 {
		t.Fatalf("unexpected pipeline overrides: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.CrewLimit != 10 {
		t.Fatalf("expected crew limit default to survive partial file, got %d", cfg.Pipeline.CrewLimit)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "marquee.toml")
	contents := "[tmdb]\napi_key = \"file-tmdb\"\n[omdb]\napi_key = \"file-omdb\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TMDB_API_KEY", "env-tmdb")
	t.Setenv("OMDB_API_KEY", "")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TMDB.APIKey != "env-tmdb" {
		t.Fatalf("expected env to override file, got %q", cfg.TMDB.APIKey)
	}
	if cfg.OMDb.APIKey != "file-omdb" {
		t.Fatalf("expected file value when env empty, got %q", cfg.OMDb.APIKey)
	}
}

func TestEnvFileSuppliesMissingSecrets(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, "secrets.env")
	if err := os.WriteFile(envPath, []byte("OMDB_API_KEY=dotenv-omdb\nEMBEDDING_API_KEY=dotenv-embed\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	configPath := filepath.Join(tempDir, "marquee.toml")
	contents := "[paths]\nenv_file = \"" + filepath.ToSlash(envPath) + "\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OMDB_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.OMDb.APIKey != "dotenv-omdb" {
		t.Fatalf("expected dotenv omdb key, got %q", cfg.OMDb.APIKey)
	}
	if cfg.Embeddings.APIKey != "dotenv-embed" {
		t.Fatalf("expected dotenv embeddings key, got %q", cfg.Embeddings.APIKey)
	}
	if _, ok := os.LookupEnv("OMDB_API_KEY"); ok && os.Getenv("OMDB_API_KEY") != "" {
		t.Fatal("dotenv values must not leak into the process environment")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"threshold", func(c *config.Config) { c.Pipeline.FailureThreshold = 1.5 }, "pipeline.failure_threshold"},
		{"base url", func(c *config.Config) { c.OMDb.BaseURL = "not a url" }, "omdb.base_url"},
		{"interval", func(c *config.Config) { c.TMDB.MinIntervalMS = -1 }, "tmdb.min_interval_ms"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"pushgateway", func(c *config.Config) { c.Metrics.PushgatewayURL = "localhost" }, "metrics.pushgateway_url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRequireKeysNameTheEnvironmentVariable(t *testing.T) {
	cfg := config.Default()
	err := cfg.RequireOMDb()
	if err == nil || !strings.Contains(err.Error(), "OMDB_API_KEY") {
		t.Fatalf("expected OMDB_API_KEY hint, got %v", err)
	}
	cfg.OMDb.APIKey = "set"
	if err := cfg.RequireOMDb(); err != nil {
		t.Fatalf("unexpected error with key set: %v", err)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
