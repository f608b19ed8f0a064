package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated
// embedder failures.
var ErrCircuitOpen = errors.New("embedder circuit open")

// #region breaker-embedder

// BreakerConfig tunes the circuit breaker around an embedder.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing again.
	Timeout time.Duration
	// HalfOpenMaxCalls bounds probe calls while half-open.
	HalfOpenMaxCalls uint32
}

// DefaultBreakerConfig returns the settings used by the CLI tools.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      3,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// BreakerEmbedder wraps an Embedder with a circuit breaker so a failing
// embedding backend degrades to fast rejection instead of hanging the event
// loop.
type BreakerEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder wraps the given embedder.
func NewBreakerEmbedder(inner Embedder, cfg BreakerConfig) *BreakerEmbedder {
	settings := gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: cfg.HalfOpenMaxCalls,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &BreakerEmbedder{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Embed calls the wrapped embedder through the breaker. An open circuit
// returns ErrCircuitOpen without touching the backend.
func (e *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.inner.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, fmt.Errorf("embed: %w", err)
	}
	return result.([]float64), nil
}

// Dimensions returns the wrapped embedder's vector width.
func (e *BreakerEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// State reports the breaker state for diagnostics.
func (e *BreakerEmbedder) State() string {
	return e.breaker.State().String()
}

// #endregion breaker-embedder
