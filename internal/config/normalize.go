package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	dotenv, err := c.readEnvFile()
	if err != nil {
		return err
	}
	c.normalizeTMDB(dotenv)
	c.normalizeOMDb(dotenv)
	c.normalizeEmbeddings(dotenv)
	c.normalizePipeline()
	c.normalizeLogging()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.EnvFile) != "" {
		if c.Paths.EnvFile, err = expandPath(strings.TrimSpace(c.Paths.EnvFile)); err != nil {
			return fmt.Errorf("paths.env_file: %w", err)
		}
	}
	return nil
}

// readEnvFile parses the optional dotenv file without touching the process
// environment.
func (c *Config) readEnvFile() (map[string]string, error) {
	if c.Paths.EnvFile == "" {
		return nil, nil
	}
	values, err := godotenv.Read(c.Paths.EnvFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("paths.env_file: %w", err)
	}
	return values, nil
}

// secret resolves a credential: process environment first, then the config
// file value, then the dotenv file.
func secret(current string, dotenv map[string]string, keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		return trimmed
	}
	for _, key := range keys {
		if value := strings.TrimSpace(dotenv[key]); value != "" {
			return value
		}
	}
	return ""
}

func (c *Config) normalizeTMDB(dotenv map[string]string) {
	c.TMDB.APIKey = secret(c.TMDB.APIKey, dotenv, "TMDB_API_KEY")
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizeOMDb(dotenv map[string]string) {
	c.OMDb.APIKey = secret(c.OMDb.APIKey, dotenv, "OMDB_API_KEY")
	c.OMDb.BaseURL = strings.TrimRight(strings.TrimSpace(c.OMDb.BaseURL), "/")
	if c.OMDb.BaseURL == "" {
		c.OMDb.BaseURL = defaultOMDbBaseURL
	}
	if c.OMDb.TimeoutSeconds <= 0 {
		c.OMDb.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) normalizeEmbeddings(dotenv map[string]string) {
	c.Embeddings.APIKey = secret(c.Embeddings.APIKey, dotenv, "EMBEDDING_API_KEY", "OPENAI_API_KEY")
	c.Embeddings.BaseURL = strings.TrimRight(strings.TrimSpace(c.Embeddings.BaseURL), "/")
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = defaultEmbeddingsBaseURL
	}
	c.Embeddings.Model = strings.TrimSpace(c.Embeddings.Model)
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = defaultEmbeddingsModel
	}
	if c.Embeddings.TimeoutSeconds <= 0 {
		c.Embeddings.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Embeddings.MaxFailures <= 0 {
		c.Embeddings.MaxFailures = defaultEmbeddingsFailures
	}
	if c.Embeddings.MaxTextLength <= 0 {
		c.Embeddings.MaxTextLength = defaultEmbeddingsTextLimit
	}
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = defaultStageLimit
	}
	if p.DiscoveryPages <= 0 {
		p.DiscoveryPages = defaultDiscoveryPages
	}
	if p.DiscoveryInsertCap <= 0 {
		p.DiscoveryInsertCap = defaultDiscoveryInsertCap
	}
	if p.LookupBatchSize <= 0 {
		p.LookupBatchSize = defaultLookupBatchSize
	}
	if p.InsertBatchSize <= 0 {
		p.InsertBatchSize = defaultInsertBatchSize
	}
	if p.StalenessDays <= 0 {
		p.StalenessDays = defaultStalenessDays
	}
	if p.FailureThreshold == 0 {
		p.FailureThreshold = defaultFailureThreshold
	}
	if p.MaxRetryAttempts <= 0 {
		p.MaxRetryAttempts = defaultMaxRetryAttempts
	}
	if p.CastLimit <= 0 {
		p.CastLimit = defaultCastLimit
	}
	if p.CrewLimit <= 0 {
		p.CrewLimit = defaultCrewLimit
	}
	if p.StageTimeoutMinutes <= 0 {
		p.StageTimeoutMinutes = defaultStageTimeoutMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.PushgatewayURL = strings.TrimRight(strings.TrimSpace(c.Metrics.PushgatewayURL), "/")
	c.Metrics.Job = strings.TrimSpace(c.Metrics.Job)
	if c.Metrics.Job == "" {
		c.Metrics.Job = defaultMetricsJob
	}
}
