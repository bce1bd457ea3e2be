// Package index defines the vector index contract shared by the in-memory
// and remote implementations.
package index

import (
	"context"

	"eventsearch/internal/domain"
	"eventsearch/internal/embedding"
)

// Index holds (event, document, vector) triples and answers exact
// nearest-neighbor queries. A build replaces the stored triples as a unit;
// readers never observe the three sequences at different lengths.
type Index interface {
	// Build embeds every document with the backend and stores the triples.
	// On any failure, including a vector/record count mismatch, the index is
	// left empty rather than partially populated.
	Build(ctx context.Context, events []domain.Event, docs []string, backend embedding.Backend) error

	// RestoreFromCache loads previously persisted vectors for the given
	// corpus. It succeeds only when the cached backend name and vector count
	// match exactly; any other outcome reports false and leaves the index
	// unchanged.
	RestoreFromCache(events []domain.Event, docs []string, backendName string) bool

	// PersistToCache writes the current vectors to the cache store,
	// best-effort. Failures are logged and do not affect in-memory state.
	PersistToCache()

	// Search returns the topK most similar events, best first, with ties
	// broken by insertion order. topK is clamped to [1, Len()].
	Search(query embedding.Vector, topK int) ([]domain.SearchResult, error)

	// Mode names the backend whose vectors are stored, or "" when empty.
	// Callers must not search with a query vector from a different backend.
	Mode() string

	// Len reports the number of stored triples.
	Len() int

	// Clear drops all stored triples.
	Clear()
}
