package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrNoEmbedding is returned when the provider answered but produced no
// usable vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// Vector is a comparable text representation. Dense provider vectors and
// sparse fallback vectors both implement it, but the two spaces are not
// interchangeable: Cosine between vectors of different kinds is 0.
type Vector interface {
	// Cosine returns the cosine similarity with another vector of the same
	// kind. Defined as 0 when either magnitude is 0 or the kinds differ.
	Cosine(other Vector) float64

	// IsZero reports whether the vector has zero magnitude.
	IsZero() bool
}

// Backend converts free text into vectors. Implementations may require a
// preparation phase over the corpus before embedding.
type Backend interface {
	Name() string
	Prepare(corpus []string) error
	Embed(ctx context.Context, text string) (Vector, error)

	// EmbedBatch returns one vector per input text, in input order. It never
	// silently returns fewer vectors than requested; a batch that cannot be
	// completed fails as a whole.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Dense is a fixed-length provider embedding.
type Dense []float64

// Cosine implements the Vector contract for dense vectors.
func (d Dense) Cosine(other Vector) float64 {
	o, ok := other.(Dense)
	if !ok {
		return 0
	}
	n := len(d)
	if len(o) < n {
		n = len(o)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += d[i] * o[i]
	}
	for _, v := range d {
		na += v * v
	}
	for _, v := range o {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// IsZero reports whether every component is zero.
func (d Dense) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}
