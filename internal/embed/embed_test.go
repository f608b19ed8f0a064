package embed

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(16)

	a, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text diverged at %d: %g != %g", i, a[i], b[i])
		}
	}

	c, _ := e.Embed(context.Background(), "different text")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical vectors")
	}
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e := NewHashEmbedder(32)
	if e.Dimensions() != 32 {
		t.Fatalf("Dimensions: got %d, want 32", e.Dimensions())
	}

	v, err := e.Embed(context.Background(), "some event text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 32 {
		t.Fatalf("vector width: got %d, want 32", len(v))
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Fatalf("expected unit norm, got %g", math.Sqrt(norm))
	}
}

// failingEmbedder always errors, for breaker tests.
type failingEmbedder struct{ dims int }

func (f *failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("backend down")
}

func (f *failingEmbedder) Dimensions() int { return f.dims }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := BreakerConfig{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxCalls: 1}
	be := NewBreakerEmbedder(&failingEmbedder{dims: 4}, cfg)

	for i := 0; i < 2; i++ {
		if _, err := be.Embed(context.Background(), "x"); err == nil {
			t.Fatalf("call %d: expected backend error", i)
		} else if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: circuit opened too early", i)
		}
	}

	if _, err := be.Embed(context.Background(), "x"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after %d failures, got %v", cfg.MaxFailures, err)
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	be := NewBreakerEmbedder(NewHashEmbedder(8), DefaultBreakerConfig())
	if be.Dimensions() != 8 {
		t.Fatalf("Dimensions: got %d, want 8", be.Dimensions())
	}

	v, err := be.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 8 {
		t.Fatalf("vector width: got %d, want 8", len(v))
	}
}

func TestBreakerHonorsCancelledContext(t *testing.T) {
	be := NewBreakerEmbedder(NewHashEmbedder(8), DefaultBreakerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := be.Embed(ctx, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
