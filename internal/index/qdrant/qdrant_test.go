package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsearch/internal/domain"
	"eventsearch/internal/embedding"
)

type denseBackend struct{ vecs []embedding.Vector }

func (b *denseBackend) Name() string { return "openai" }

func (b *denseBackend) Prepare(corpus []string) error { return nil }

func (b *denseBackend) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	return b.vecs[0], nil
}

func (b *denseBackend) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	return b.vecs, nil
}

// fakeQdrant records collection operations and answers searches with a
// canned hit list.
type fakeQdrant struct {
	mu          sync.Mutex
	createdSize int
	upserted    int
	searchHits  []map[string]any
}

func (f *fakeQdrant) handler(t *testing.T, collection string) http.Handler {
	base := "/collections/" + collection
	mux := http.NewServeMux()
	mux.HandleFunc(base, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			var body struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.mu.Lock()
			f.createdSize = body.Vectors.Size
			f.mu.Unlock()
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc(base+"/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []json.RawMessage `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.upserted = len(body.Points)
		f.mu.Unlock()
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc(base+"/points/search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		hits := f.searchHits
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})
	return mux
}

func testEvents() ([]domain.Event, []string) {
	return []domain.Event{
		{ID: 0, Title: "현대미술 기획전"},
		{ID: 1, Title: "재즈 콘서트"},
	}, []string{"doc0", "doc1"}
}

func TestBuildAndSearch(t *testing.T) {
	fake := &fakeQdrant{searchHits: []map[string]any{
		{"score": 0.9, "payload": map[string]any{"event_id": 1}},
		{"score": 0.4, "payload": map[string]any{"event_id": 0}},
	}}
	srv := httptest.NewServer(fake.handler(t, "events"))
	defer srv.Close()

	x := New(Config{URL: srv.URL, Collection: "events"})
	evs, docs := testEvents()
	backend := &denseBackend{vecs: []embedding.Vector{
		embedding.Dense{1, 0, 0},
		embedding.Dense{0, 1, 0},
	}}

	require.NoError(t, x.Build(context.Background(), evs, docs, backend))
	assert.Equal(t, 2, x.Len())
	assert.Equal(t, "openai", x.Mode())
	assert.Equal(t, 3, fake.createdSize)
	assert.Equal(t, 2, fake.upserted)

	results, err := x.Search(embedding.Dense{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "재즈 콘서트", results[0].Title)
	assert.Equal(t, 0.9, results[0].Score)
	assert.Equal(t, "현대미술 기획전", results[1].Title)
}

func TestSearch_SkipsUnknownHits(t *testing.T) {
	fake := &fakeQdrant{searchHits: []map[string]any{
		{"score": 0.9, "payload": map[string]any{"event_id": 42}},
		{"score": 0.5, "payload": map[string]any{"event_id": 0}},
	}}
	srv := httptest.NewServer(fake.handler(t, "events"))
	defer srv.Close()

	x := New(Config{URL: srv.URL, Collection: "events"})
	evs, docs := testEvents()
	backend := &denseBackend{vecs: []embedding.Vector{embedding.Dense{1}, embedding.Dense{0.5}}}
	require.NoError(t, x.Build(context.Background(), evs, docs, backend))

	results, err := x.Search(embedding.Dense{1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ID)
}

func TestSearch_RejectsSparseQuery(t *testing.T) {
	x := New(Config{URL: "http://unused", Collection: "events"})
	_, err := x.Search(sparseStub{}, 1)
	assert.Error(t, err)
}

func TestSearch_EmptyIndex(t *testing.T) {
	x := New(Config{URL: "http://unused", Collection: "events"})
	results, err := x.Search(embedding.Dense{1}, 5)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for an empty build, got %s %s", r.Method, r.URL.Path)
	}))
	defer srv.Close()

	x := New(Config{URL: srv.URL, Collection: "events"})
	backend := &denseBackend{}

	require.NoError(t, x.Build(context.Background(), nil, nil, backend))
	assert.Zero(t, x.Len())
	assert.Empty(t, x.Mode())
}

func TestBuild_ServerErrorClearsIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	x := New(Config{URL: srv.URL, Collection: "events"})
	evs, docs := testEvents()
	backend := &denseBackend{vecs: []embedding.Vector{embedding.Dense{1}, embedding.Dense{1}}}

	err := x.Build(context.Background(), evs, docs, backend)
	assert.Error(t, err)
	assert.Zero(t, x.Len())
	assert.Empty(t, x.Mode())
}

func TestRestoreFromCache_AlwaysDeclines(t *testing.T) {
	x := New(Config{URL: "http://unused", Collection: "events"})
	evs, docs := testEvents()
	assert.False(t, x.RestoreFromCache(evs, docs, "openai"))
}

type sparseStub struct{}

func (sparseStub) Cosine(other embedding.Vector) float64 { return 0 }

func (sparseStub) IsZero() bool { return false }
