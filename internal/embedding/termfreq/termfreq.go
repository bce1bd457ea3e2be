// Package termfreq implements the local fallback vectorizer used when no
// external embedding provider is configured or the provider has failed for
// the session.
package termfreq

import (
	"context"
	"math"
	"regexp"
	"strings"

	"eventsearch/internal/embedding"
)

// Vector is a sparse term-frequency vector with a precomputed L2 norm.
type Vector struct {
	Terms map[string]float64
	Norm  float64
}

// Cosine implements the embedding.Vector contract for sparse vectors.
// Comparing against a non-sparse vector yields 0.
func (v Vector) Cosine(other embedding.Vector) float64 {
	o, ok := other.(Vector)
	if !ok {
		return 0
	}
	if v.Norm == 0 || o.Norm == 0 {
		return 0
	}
	a, b := v.Terms, o.Terms
	if len(b) < len(a) {
		a, b = b, a
	}
	dot := 0.0
	for term, w := range a {
		if bw, ok := b[term]; ok {
			dot += w * bw
		}
	}
	return dot / (v.Norm * o.Norm)
}

// IsZero reports whether the vector carries no terms.
func (v Vector) IsZero() bool { return v.Norm == 0 }

// Vectorizer computes term-frequency vectors from lower-cased letter and
// digit runs. \p{L} covers Hangul syllables, so Korean queries and documents
// tokenize without special casing.
type Vectorizer struct {
	tokenPattern *regexp.Regexp
}

// New creates a fallback vectorizer.
func New() *Vectorizer {
	return &Vectorizer{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+`),
	}
}

// Name returns the identifier of this backend implementation.
func (z *Vectorizer) Name() string { return "termfreq" }

// Prepare is a no-op: term vectors need no corpus-wide vocabulary.
func (z *Vectorizer) Prepare(corpus []string) error { return nil }

// Embed computes the term-frequency vector for the given text.
func (z *Vectorizer) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	terms := make(map[string]float64)
	for _, tok := range z.Tokens(text) {
		terms[tok]++
	}
	norm := 0.0
	for _, w := range terms {
		norm += w * w
	}
	return Vector{Terms: terms, Norm: math.Sqrt(norm)}, nil
}

// EmbedBatch vectorizes each text in order. It never fails.
func (z *Vectorizer) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i, t := range texts {
		v, _ := z.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

// Tokens returns the lower-cased tokens of text, in occurrence order.
func (z *Vectorizer) Tokens(text string) []string {
	return z.tokenPattern.FindAllString(strings.ToLower(text), -1)
}
