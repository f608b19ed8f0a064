package embed

import "context"

// Embedder turns free text into a fixed-width input vector for the engine.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}
