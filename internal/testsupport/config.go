package testsupport

import (
	"path/filepath"
	"testing"

	"marquee/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory per test,
// with dummy provider keys and no throttling delay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.TMDB.APIKey = "test-tmdb"
	cfgVal.TMDB.MinIntervalMS = 0
	cfgVal.OMDb.APIKey = "test-omdb"
	cfgVal.OMDb.MinIntervalMS = 0
	cfgVal.Embeddings.APIKey = "test-embeddings"
	cfgVal.Embeddings.MinIntervalMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTMDB points the metadata provider at baseURL (usually an httptest server).
func WithTMDB(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDB.BaseURL = baseURL
	}
}

// WithOMDb points the ratings provider at baseURL.
func WithOMDb(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OMDb.BaseURL = baseURL
	}
}

// WithEmbeddings points the embedding provider at baseURL.
func WithEmbeddings(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embeddings.BaseURL = baseURL
	}
}

// WithoutKeys clears every provider key.
func WithoutKeys() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDB.APIKey = ""
		b.cfg.OMDb.APIKey = ""
		b.cfg.Embeddings.APIKey = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
