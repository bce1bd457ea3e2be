package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsearch/internal/embedding"
)

func newTestClient(t *testing.T, srv *httptest.Server, batchSize int) *Client {
	t.Helper()
	t.Setenv("TEST_API_KEY", "test-key")
	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		APIKeyEnv: "TEST_API_KEY",
		Model:     "test-model",
		BatchSize: batchSize,
	})
	require.NoError(t, err)
	return c
}

func decodeInputs(t *testing.T, r *http.Request) []string {
	t.Helper()
	var body struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Input
}

func writeEmbeddings(w http.ResponseWriter, vecs map[int][]float64) {
	type item struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	}
	out := struct {
		Data []item `json:"data"`
	}{}
	for i, v := range vecs {
		out.Data = append(out.Data, item{Index: i, Embedding: v})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("EMPTY_KEY_ENV", "")
	_, err := NewClient(Config{APIKeyEnv: "EMPTY_KEY_ENV"})
	assert.Error(t, err)
}

func TestEmbedBatch_OrdersByResponseIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		inputs := decodeInputs(t, r)
		require.Len(t, inputs, 2)
		// Deliberately answer out of order.
		_, _ = fmt.Fprint(w, `{"data": [
			{"index": 1, "embedding": [0, 1]},
			{"index": 0, "embedding": [1, 0]}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, embedding.Dense{1, 0}, vecs[0])
	assert.Equal(t, embedding.Dense{0, 1}, vecs[1])
	assert.Equal(t, 2, c.Dimension())
}

func TestEmbed_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeEmbeddings(w, map[int][]float64{0: {0.5}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	v, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, embedding.Dense{0.5}, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeEmbeddings(w, map[int][]float64{0: {1}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	_, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedBatch_SalvagesFailedBatchPerItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inputs := decodeInputs(t, r)
		if len(inputs) > 1 {
			http.Error(w, "payload too large", http.StatusBadRequest)
			return
		}
		val := float64(len(inputs[0]))
		writeEmbeddings(w, map[int][]float64{0: {val}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, embedding.Dense{1}, vecs[0])
	assert.Equal(t, embedding.Dense{2}, vecs[1])
	assert.Equal(t, embedding.Dense{3}, vecs[2])
}

func TestEmbedBatch_SplitsIntoBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		inputs := decodeInputs(t, r)
		assert.LessOrEqual(t, len(inputs), 2)
		vecs := make(map[int][]float64, len(inputs))
		for i := range inputs {
			vecs[i] = []float64{1}
		}
		writeEmbeddings(w, vecs)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_OllamaResponseShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"embedding": [0.1, 0.2, 0.3]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	v, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, embedding.Dense{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbed_ConcurrentCallsSettleDimensionOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, map[int][]float64{0: {1, 2, 3}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Embed(context.Background(), "text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, c.Dimension())
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
