// Package qdrant implements the index contract against a remote Qdrant
// instance over its REST API. Only dense provider vectors are supported;
// sparse fallback vectors stay local to the in-memory index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"eventsearch/internal/domain"
	"eventsearch/internal/embedding"
)

// Config contains connection details for a Qdrant collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is a minimal REST client to Qdrant. It assumes cosine distance and
// recreates the collection on every build.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu     sync.RWMutex
	mode   string
	events []domain.Event
}

// New creates a Qdrant-backed index.
func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Build embeds the documents and replaces the remote collection wholesale.
func (x *Index) Build(ctx context.Context, events []domain.Event, docs []string, backend embedding.Backend) error {
	if len(events) != len(docs) {
		x.Clear()
		return fmt.Errorf("index build: %d events but %d documents", len(events), len(docs))
	}
	if len(events) == 0 {
		x.mu.Lock()
		x.events = nil
		x.mode = ""
		x.mu.Unlock()
		return nil
	}
	vectors, err := backend.EmbedBatch(ctx, docs)
	if err != nil {
		x.Clear()
		return fmt.Errorf("index build: %w", err)
	}
	if len(vectors) != len(events) {
		x.Clear()
		return fmt.Errorf("index build: embedded %d of %d documents", len(vectors), len(events))
	}
	dense := make([]embedding.Dense, len(vectors))
	for i, v := range vectors {
		d, ok := v.(embedding.Dense)
		if !ok {
			x.Clear()
			return errors.New("index build: qdrant requires dense vectors")
		}
		dense[i] = d
	}
	if err := x.recreate(ctx, len(dense[0])); err != nil {
		x.Clear()
		return err
	}
	points := make([]map[string]any, len(events))
	for i := range events {
		points[i] = map[string]any{
			"id":     events[i].ID,
			"vector": dense[i],
			"payload": map[string]any{
				"event_id": events[i].ID,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := x.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", x.url, x.collection), body); err != nil {
		x.Clear()
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = events
	x.mode = backend.Name()
	return nil
}

// RestoreFromCache is unsupported: the remote collection is its own
// persistence and is rebuilt per corpus version.
func (x *Index) RestoreFromCache(events []domain.Event, docs []string, backendName string) bool {
	return false
}

// PersistToCache is a no-op; the collection lives server-side.
func (x *Index) PersistToCache() {}

// Search queries the remote collection and resolves hits back to events by
// position id.
func (x *Index) Search(query embedding.Vector, topK int) ([]domain.SearchResult, error) {
	d, ok := query.(embedding.Dense)
	if !ok {
		return nil, errors.New("qdrant search requires a dense query vector")
	}
	x.mu.RLock()
	events := x.events
	x.mu.RUnlock()
	if len(events) == 0 {
		return nil, nil
	}
	if topK < 1 {
		topK = 1
	}
	if topK > len(events) {
		topK = len(events)
	}
	req := map[string]any{
		"vector":       d,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", x.url, x.collection)
	if err := x.postJSON(context.Background(), url, req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		id, ok := r.Payload["event_id"].(float64)
		if !ok || int(id) < 0 || int(id) >= len(events) {
			continue
		}
		results = append(results, domain.SearchResult{Event: events[int(id)], Score: r.Score})
	}
	return results, nil
}

// Mode names the backend whose vectors are stored, or "" when empty.
func (x *Index) Mode() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.mode
}

// Len reports the number of indexed events.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.events)
}

// Clear drops the local event list and best-effort deletes the collection.
func (x *Index) Clear() {
	x.mu.Lock()
	x.events = nil
	x.mode = ""
	x.mu.Unlock()
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", x.url, x.collection), nil)
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}
	if resp, err := x.client.Do(req); err == nil {
		_ = resp.Body.Close()
	}
}

// recreate drops and recreates the collection with the given dimension.
func (x *Index) recreate(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	del, _ := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", x.url, x.collection), nil)
	if x.apiKey != "" {
		del.Header.Set("api-key", x.apiKey)
	}
	if resp, err := x.client.Do(del); err == nil {
		_ = resp.Body.Close()
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return x.putJSON(ctx, fmt.Sprintf("%s/collections/%s", x.url, x.collection), body)
}

func (x *Index) putJSON(ctx context.Context, url string, body any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (x *Index) postJSON(ctx context.Context, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		return dec.Decode(out)
	}
	return nil
}
