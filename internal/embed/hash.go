package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// #region hash-embedder

// HashEmbedder produces deterministic pseudo-embeddings from text. It hashes
// the text to seed a small generator, fills the vector, and L2-normalizes.
// Useful for local runs and tests where no embedding service is available;
// equal texts always map to equal vectors.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder of the given width.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dims: dims}
}

// Embed hashes the text into a unit-norm vector. Never fails.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	v := make([]float64, e.dims)
	var norm float64
	for i := range v {
		state = state*6364136223846793005 + 1442695040888963407
		// Map the top bits to [-1, 1).
		v[i] = float64(int64(state>>11))/float64(1<<52) - 1
		norm += v[i] * v[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v, nil
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// #endregion hash-embedder
