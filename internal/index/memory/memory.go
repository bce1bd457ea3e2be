// Package memory implements an exact in-memory vector index using
// brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eventsearch/internal/cache"
	"eventsearch/internal/domain"
	"eventsearch/internal/embedding"
	"eventsearch/internal/logging"
)

// Index keeps parallel slices of events, documents and vectors. The three
// slices always have identical length and ordering; builds swap all of them
// under the write lock so concurrent readers see either the old index or the
// new one, never a mix.
type Index struct {
	mu      sync.RWMutex
	store   cache.Store // optional; nil disables persistence
	mode    string
	events  []domain.Event
	docs    []string
	vectors []embedding.Vector
}

// New creates an empty index. store may be nil.
func New(store cache.Store) *Index { return &Index{store: store} }

// Build embeds every document and replaces the index contents. A failed or
// short embedding batch clears the index instead of leaving it partially
// populated.
func (x *Index) Build(ctx context.Context, events []domain.Event, docs []string, backend embedding.Backend) error {
	if len(events) != len(docs) {
		x.Clear()
		return fmt.Errorf("index build: %d events but %d documents", len(events), len(docs))
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
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = events
	x.docs = docs
	x.vectors = vectors
	x.mode = backend.Name()
	return nil
}

// RestoreFromCache adopts cached dense vectors when backend name and count
// match the current corpus exactly. A corpus of a different size invalidates
// the whole cache; there is no partial reuse.
func (x *Index) RestoreFromCache(events []domain.Event, docs []string, backendName string) bool {
	if x.store == nil || len(events) == 0 || len(events) != len(docs) {
		return false
	}
	snap, err := x.store.Load()
	if err != nil {
		logging.Warn("index", "cache load failed, rebuilding: %v", err)
		return false
	}
	if snap == nil {
		return false
	}
	if snap.Backend != backendName {
		logging.Debug("index", "cache backend %q does not match %q", snap.Backend, backendName)
		return false
	}
	if len(snap.Vectors) != len(events) {
		logging.Info("index", "cache has %d vectors but corpus has %d records, rebuilding", len(snap.Vectors), len(events))
		return false
	}
	vectors := make([]embedding.Vector, len(snap.Vectors))
	for i, v := range snap.Vectors {
		vectors[i] = embedding.Dense(v)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = events
	x.docs = docs
	x.vectors = vectors
	x.mode = backendName
	logging.Info("index", "restored %d vectors from cache", len(vectors))
	return true
}

// PersistToCache writes the current dense vectors to the cache store.
// Fallback-mode vectors are never persisted. Failures only log.
func (x *Index) PersistToCache() {
	x.mu.RLock()
	snap := &cache.Snapshot{Backend: x.mode, Vectors: make([][]float64, 0, len(x.vectors))}
	for _, v := range x.vectors {
		d, ok := v.(embedding.Dense)
		if !ok {
			x.mu.RUnlock()
			return
		}
		snap.Vectors = append(snap.Vectors, d)
	}
	x.mu.RUnlock()
	if x.store == nil || len(snap.Vectors) == 0 {
		return
	}
	if err := x.store.Save(snap); err != nil {
		logging.Warn("index", "cache save failed: %v", err)
		return
	}
	logging.Debug("index", "persisted %d vectors to cache", len(snap.Vectors))
}

// Search scores every stored vector against the query and returns the topK
// best matches. The sort is stable, so equal scores keep insertion order.
func (x *Index) Search(query embedding.Vector, topK int) ([]domain.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := len(x.vectors)
	if n == 0 {
		return nil, nil
	}
	if topK < 1 {
		topK = 1
	}
	if topK > n {
		topK = n
	}
	scores := make([]float64, n)
	for i, v := range x.vectors {
		scores[i] = v.Cosine(query)
	}
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Event: x.events[j], Score: scores[j]})
	}
	return results, nil
}

// Mode names the backend whose vectors are stored, or "" when empty.
func (x *Index) Mode() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.mode
}

// Len reports the number of stored triples.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Clear drops all stored triples.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = nil
	x.docs = nil
	x.vectors = nil
	x.mode = ""
}
