// Package embedder is the embedding provider client: one text in, one vector
// out, over an OpenAI-compatible /embeddings endpoint.
package embedder

import (
	"context"
	"errors"
	"strings"
	"time"

	"marquee/internal/config"
	"marquee/internal/services"
	"marquee/internal/services/apiclient"
)

// Provider is the name used in errors, metrics and usage rows.
const Provider = "embeddings"

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Client requests embeddings for single texts.
type Client struct {
	api   *apiclient.Client
	model string
}

// New creates an embedding client from configuration.
func New(cfg config.Embeddings, opts ...apiclient.Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "embeddings api key required", nil)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "embeddings model required", nil)
	}
	all := append([]apiclient.Option{apiclient.WithBearerToken(key)}, opts...)
	api, err := apiclient.New(apiclient.Config{
		Provider:    Provider,
		BaseURL:     cfg.BaseURL,
		MinInterval: time.Duration(cfg.MinIntervalMS) * time.Millisecond,
		DailyQuota:  cfg.DailyQuota,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, all...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, Provider, "init", "", err)
	}
	return &Client{api: api, model: model}, nil
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return Provider
}

// Model returns the configured embedding model.
func (c *Client) Model() string {
	return c.model
}

// Calls returns the number of requests issued so far.
func (c *Client) Calls() int64 {
	return c.api.Calls()
}

// Embed returns the vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("embedding input must not be empty")
	}
	var resp embeddingResponse
	if err := c.api.PostJSON(ctx, "/embeddings", embeddingRequest{Model: c.model, Input: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, services.Wrap(services.ErrTransient, Provider, "embed", "response carried no vector", nil)
	}
	return resp.Data[0].Embedding, nil
}
