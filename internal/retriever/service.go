// Package retriever orchestrates corpus loading, document composition,
// embedding and the vector index behind a single search entry point.
package retriever

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"eventsearch/internal/corpus"
	"eventsearch/internal/document"
	"eventsearch/internal/domain"
	"eventsearch/internal/embedding"
	"eventsearch/internal/index"
	"eventsearch/internal/logging"
)

// Loader supplies the normalized corpus. Implemented by corpus.Loader.
type Loader interface {
	Load() ([]domain.Event, error)
}

// Config tunes the retrieval behavior.
type Config struct {
	// TopK is the default result count when the caller passes 0.
	TopK int
	// MinScore excludes weaker results. When the floor would eliminate all
	// candidates the unfiltered top-K is returned instead. 0 disables it.
	MinScore float64
	// RecomputeState recomputes each result's lifecycle state at query time
	// instead of reusing the state computed at load time.
	RecomputeState bool
}

// Result carries enough of an event for a downstream formatter to render
// without touching the index again. Score is cosine similarity in provider
// mode and a term-overlap count in keyword fallback; the two are not
// comparable.
type Result struct {
	ID       int          `json:"id"`
	Title    string       `json:"title"`
	Place    string       `json:"place"`
	Host     string       `json:"host"`
	Period   string       `json:"period"`
	Category string       `json:"category,omitempty"`
	State    domain.State `json:"state"`
	URL      string       `json:"url"`
	Score    float64      `json:"score"`
}

// Stats summarizes the current corpus and index.
type Stats struct {
	Total   int
	ByState map[domain.State]int
	Mode    string
}

// Service owns the corpus, the index and the build lock. Construct once per
// process and share by reference.
type Service struct {
	cfg      Config
	loader   Loader
	provider embedding.Backend // nil when no external provider is configured
	fallback embedding.Backend
	idx      index.Index

	mu     sync.Mutex // guards the build and the fields below
	ready  bool
	active embedding.Backend
	events []domain.Event
	docs   []string
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// New creates a retrieval service. provider may be nil; fallback must not be.
func New(loader Loader, provider, fallback embedding.Backend, idx index.Index, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Service{
		cfg:      cfg,
		loader:   loader,
		provider: provider,
		fallback: fallback,
		idx:      idx,
	}
}

// Search answers a free-text query with the topK most relevant events, best
// first. An empty query or an empty corpus returns an empty result. The
// first call builds the index; concurrent callers wait on the same build.
// Provider failures degrade to keyword matching for the affected query and
// are logged, never raised to the caller.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	active, events, docs := s.active, s.events, s.docs
	s.mu.Unlock()
	if len(events) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	qvec, err := active.Embed(ctx, query)
	if err != nil {
		logging.Warn("retriever", "query embedding failed, answering with keyword match: %v", err)
		return s.materialize(s.keywordMatch(query, events, docs, topK)), nil
	}
	if qvec.IsZero() {
		return s.materialize(s.keywordMatch(query, events, docs, topK)), nil
	}
	matches, err := s.idx.Search(qvec, topK)
	if err != nil {
		logging.Warn("retriever", "index search failed, answering with keyword match: %v", err)
		return s.materialize(s.keywordMatch(query, events, docs, topK)), nil
	}
	return s.materialize(s.applyFloor(matches)), nil
}

// Refresh reloads the corpus and rebuilds the index wholesale.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked(ctx, true)
}

// Invalidate drops the index; the next query triggers a rebuild.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.idx.Clear()
}

// Stats reports corpus size, lifecycle state counts and the active index
// mode.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: len(s.events), ByState: make(map[domain.State]int)}
	for _, ev := range s.events {
		st.ByState[ev.State]++
	}
	if s.ready && s.active != nil {
		st.Mode = s.active.Name()
	}
	return st
}

// ensureReady performs the at-most-once build for the current corpus
// version. A vector/record count or mode divergence is treated as a hard
// inconsistency and triggers a rebuild.
func (s *Service) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && s.idx.Len() == len(s.events) && (len(s.events) == 0 || s.idx.Mode() == s.active.Name()) {
		return nil
	}
	return s.buildLocked(ctx, false)
}

// buildLocked loads the corpus (when absent or reload is set), composes the
// documents and builds the index, preferring the provider backend and
// degrading to the fallback vectorizer when the provider is missing or
// fails. Callers hold s.mu.
func (s *Service) buildLocked(ctx context.Context, reload bool) error {
	if s.events == nil || reload {
		events, err := s.loader.Load()
		if err != nil {
			return err
		}
		docs := make([]string, len(events))
		for i, ev := range events {
			docs[i] = document.Compose(ev)
		}
		s.events = events
		s.docs = docs
		s.ready = false
	}
	if len(s.events) == 0 {
		s.idx.Clear()
		s.active = s.fallback
		s.ready = true
		return nil
	}
	if s.provider != nil {
		if s.idx.RestoreFromCache(s.events, s.docs, s.provider.Name()) {
			s.active = s.provider
			s.ready = true
			return nil
		}
		logging.Info("retriever", "embedding %d documents with %s", len(s.docs), s.provider.Name())
		if err := s.idx.Build(ctx, s.events, s.docs, s.provider); err == nil {
			s.idx.PersistToCache()
			s.active = s.provider
			s.ready = true
			return nil
		} else {
			logging.Warn("retriever", "provider build failed, degrading to %s: %v", s.fallback.Name(), err)
		}
	}
	if err := s.fallback.Prepare(s.docs); err != nil {
		return err
	}
	if err := s.idx.Build(ctx, s.events, s.docs, s.fallback); err != nil {
		return err
	}
	s.active = s.fallback
	s.ready = true
	return nil
}

// applyFloor drops matches below the relevance floor unless that would drop
// everything.
func (s *Service) applyFloor(matches []domain.SearchResult) []domain.SearchResult {
	if s.cfg.MinScore <= 0 {
		return matches
	}
	kept := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Score >= s.cfg.MinScore {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return matches
	}
	return kept
}

// keywordMatch scores documents by the number of distinct query terms they
// contain. Used when no vector for the query could be produced; it reads
// only snapshot data and never mutates index state.
func (s *Service) keywordMatch(query string, events []domain.Event, docs []string, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	scores := make([]float64, len(docs))
	for i, doc := range docs {
		scores[i] = overlapCount(qset, doc)
	}
	idxs := make([]int, len(docs))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return scores[idxs[i]] > scores[idxs[j]] })
	if topK < 1 {
		topK = 1
	}
	if topK > len(idxs) {
		topK = len(idxs)
	}
	out := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		out = append(out, domain.SearchResult{Event: events[j], Score: scores[j]})
	}
	return s.applyFloor(out)
}

// materialize converts index matches into the consumer payload.
func (s *Service) materialize(matches []domain.SearchResult) []Result {
	now := time.Now()
	out := make([]Result, len(matches))
	for i, m := range matches {
		ev := m.Event
		state := ev.State
		if s.cfg.RecomputeState {
			state = corpus.ComputeState(ev.Period, now)
		}
		url := ev.URL
		if url == "" {
			url = "#"
		}
		out[i] = Result{
			ID:       ev.ID,
			Title:    ev.Title,
			Place:    ev.Place,
			Host:     ev.Host,
			Period:   ev.Period,
			Category: ev.Category,
			State:    state,
			URL:      url,
			Score:    m.Score,
		}
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlapCount(qset map[string]struct{}, text string) float64 {
	toks := wordRe.FindAllString(strings.ToLower(text), -1)
	seen := make(map[string]struct{}, len(toks))
	count := 0
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			count++
		}
	}
	return float64(count)
}
