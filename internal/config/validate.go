package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateProviders() error {
	providers := []struct {
		name     string
		baseURL  string
		interval int
		quota    int
	}{
		{"tmdb", c.TMDB.BaseURL, c.TMDB.MinIntervalMS, c.TMDB.DailyQuota},
		{"omdb", c.OMDb.BaseURL, c.OMDb.MinIntervalMS, c.OMDb.DailyQuota},
		{"embeddings", c.Embeddings.BaseURL, c.Embeddings.MinIntervalMS, c.Embeddings.DailyQuota},
	}
	for _, p := range providers {
		parsed, err := url.Parse(p.baseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s.base_url must be an absolute URL, got %q", p.name, p.baseURL)
		}
		if p.interval < 0 {
			return fmt.Errorf("%s.min_interval_ms must be >= 0", p.name)
		}
		if p.quota < 0 {
			return fmt.Errorf("%s.daily_quota must be >= 0 (0 disables the ceiling)", p.name)
		}
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.FailureThreshold <= 0 || c.Pipeline.FailureThreshold > 1 {
		return errors.New("pipeline.failure_threshold must be within (0, 1]")
	}
	if c.Pipeline.CastLimit > 50 {
		return errors.New("pipeline.cast_limit must be 50 or less")
	}
	if c.Pipeline.CrewLimit > 50 {
		return errors.New("pipeline.crew_limit must be 50 or less")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.PushgatewayURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Metrics.PushgatewayURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("metrics.pushgateway_url must be an absolute URL, got %q", c.Metrics.PushgatewayURL)
	}
	return nil
}

// RequireTMDB reports a configuration error when the metadata key is missing.
func (c *Config) RequireTMDB() error {
	return requireKey("tmdb.api_key", "TMDB_API_KEY", c.TMDB.APIKey)
}

// RequireOMDb reports a configuration error when the ratings key is missing.
func (c *Config) RequireOMDb() error {
	return requireKey("omdb.api_key", "OMDB_API_KEY", c.OMDb.APIKey)
}

// RequireEmbeddings reports a configuration error when the embedding key is missing.
func (c *Config) RequireEmbeddings() error {
	return requireKey("embeddings.api_key", "EMBEDDING_API_KEY", c.Embeddings.APIKey)
}

func requireKey(field, env, value string) error {
	if value != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/marquee/config.toml"
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'marquee config init')", field, env, defaultPath)
}
