// Package openai implements embedding.Provider for OpenAI-compatible
// embedding APIs (OpenAI, Ollama, Together, vLLM, self-hosted servers).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the /embeddings endpoint of an OpenAI-compatible API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	dim     int
	http    *http.Client
}

// knownDimensions maps common embedding models to their output size.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// New creates an OpenAI-compatible embedding client. dim may be 0 for
// models listed in knownDimensions.
func New(apiKey, model, baseURL string, dim int) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if dim == 0 {
		dim = knownDimensions[model]
	}
	if dim == 0 {
		return nil, fmt.Errorf("unknown dimension for model %q, set store.dimension explicitly", model)
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		dim:     dim,
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) Name() string { return c.model }

func (c *Client) Dimension() int { return c.dim }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
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
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed %s: %s: %s", c.model, resp.Status, respBody)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embed %s: got %d vectors for %d inputs", c.model, len(result.Data), len(texts))
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		if len(d.Embedding) != c.dim {
			return nil, fmt.Errorf("embed %s: got dimension %d, want %d", c.model, len(d.Embedding), c.dim)
		}
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}
