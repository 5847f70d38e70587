// Package openai implements embed.Provider against OpenAI-compatible
// embeddings endpoints (OpenAI, vLLM, Ollama with the OpenAI shim, etc.).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/efebarandurmaz/vecsync/internal/embed"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements embed.Provider for OpenAI-compatible APIs.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates an OpenAI-compatible embedding provider.
func New(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "openai" }

// Embed requests embeddings for the given texts. Failures carry the
// retryable/permanent classification in the returned *embed.Error.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]any{
		"model": c.model,
		"input": texts,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, embed.WrapHTTPError(c.Name(), 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, embed.WrapHTTPError(c.Name(), 0, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, embed.WrapHTTPError(c.Name(), resp.StatusCode,
			fmt.Errorf("openai embed: %s: %s", resp.Status, respBody))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &embed.Error{Provider: c.Name(), Err: err}
	}
	if len(result.Data) != len(texts) {
		return nil, &embed.Error{
			Provider: c.Name(),
			Err:      fmt.Errorf("embedding count mismatch: got %d, want %d", len(result.Data), len(texts)),
		}
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// Register adds this provider to an embedding factory under "openai" and
// "custom" (any OpenAI-compatible endpoint selected via base_url).
func Register(f *embed.Factory) {
	ctor := func(cfg embed.ProviderConfig) (embed.Provider, error) {
		return New(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	}
	f.Register("openai", ctor)
	f.Register("custom", ctor)
}
