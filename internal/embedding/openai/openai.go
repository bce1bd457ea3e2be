// Package openai provides an OpenAI-compatible embeddings client. It also
// accepts the Ollama-native response shape so local inference servers can be
// used without code changes.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"eventsearch/internal/embedding"
	"eventsearch/internal/logging"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultTimeout   = 30 * time.Second
	DefaultBatchSize = 64
)

// batchPause is the pause between sequential batch calls, so large corpus
// builds do not hammer the provider.
const batchPause = 200 * time.Millisecond

// Client is an OpenAI-compatible embeddings client implementing the
// embedding.Backend interface.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	dimension  atomic.Int32
	client     *http.Client
	maxRetries int
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	BatchSize int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = DefaultTimeout
	}
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		batchSize:  bs,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}, nil
}

// Name returns the identifier of this backend implementation.
func (c *Client) Name() string { return "openai" }

// Prepare is not required for remote embedding. The dimension is set lazily
// on the first successful embed.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors,
// or 0 before the first successful embed.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	vecs, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds the texts in input order, splitting the work into
// sequential batch calls with a brief pause in between. When a whole batch
// call fails after retries, each item of that batch is retried individually
// before the operation is failed; fewer vectors than texts are never
// returned.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]embedding.Vector, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := c.request(ctx, batch)
		if err != nil {
			logging.Warn("openai", "batch of %d failed, retrying per item: %v", len(batch), err)
			vecs, err = c.salvage(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)
		if end < len(texts) {
			if err := sleepCtx(ctx, batchPause); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// salvage retries each text of a failed batch individually.
func (c *Client) salvage(ctx context.Context, batch []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, 0, len(batch))
	for _, text := range batch {
		v, err := c.request(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		out = append(out, v...)
	}
	return out, nil
}

// request performs one embeddings call with retries and returns exactly one
// dense vector per input, in input order.
func (c *Client) request(ctx context.Context, inputs []string) ([]embedding.Vector, error) {
	type reqBody struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		data, _ := json.Marshal(reqBody{Input: inputs, Model: c.model})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			// Respect Retry-After if provided
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					if err := sleepCtx(ctx, time.Duration(secs)*time.Second); err != nil {
						return nil, err
					}
					lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
					continue
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("openai embeddings failed: %s", resp.Status)
		}

		vecs, err := c.decode(payload, len(inputs))
		if err != nil {
			lastErr = err
			continue
		}
		return vecs, nil
	}
	if lastErr == nil {
		lastErr = embedding.ErrNoEmbedding
	}
	return nil, lastErr
}

// decode parses a response payload into want vectors ordered by index.
func (c *Client) decode(payload []byte, want int) ([]embedding.Vector, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) == want {
		out := make([]embedding.Vector, want)
		for _, item := range openaiOut.Data {
			if item.Index < 0 || item.Index >= want || len(item.Embedding) == 0 {
				return nil, embedding.ErrNoEmbedding
			}
			out[item.Index] = embedding.Dense(item.Embedding)
		}
		for _, v := range out {
			if v == nil {
				return nil, embedding.ErrNoEmbedding
			}
		}
		c.dimension.CompareAndSwap(0, int32(len(out[0].(embedding.Dense))))
		return out, nil
	}
	// Ollama-native shape: { "embedding": [...] }, single input only
	if want == 1 {
		var ollamaOut struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
			c.dimension.CompareAndSwap(0, int32(len(ollamaOut.Embedding)))
			return []embedding.Vector{embedding.Dense(ollamaOut.Embedding)}, nil
		}
	}
	return nil, embedding.ErrNoEmbedding
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
