package scorer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/optim"
)

// ErrShape marks a vector with the wrong width.
var ErrShape = errors.New("shape mismatch")

// ErrNotFinite marks a NaN or Inf significance. The offending event is not
// recorded in the history.
var ErrNotFinite = errors.New("non-finite significance")

// #region scorer

// Scorer converts prediction error and state uncertainty into a scalar
// significance score:
//
//	S = ||x - predict(x)||_2 + lambda * variance(hiddenPrev)
//
// The predictor is a small feed-forward regressor over input-width vectors.
// A learned linear projection maps hidden states down to input width so the
// reconstruction path is defined for any (input, hidden) size pair. None of
// the parameters change inside Score; they train only through the
// orchestrator's gradient step.
type Scorer struct {
	inputSize  int
	hiddenSize int
	layerWidth int
	lambda     float64

	// Predictor: input -> layerWidth (ReLU) -> input.
	w1, w2 *optim.Param
	b1, b2 *optim.Param
	// State projection: hidden -> input, feeds the predictor during
	// reconstruction.
	proj, projB *optim.Param

	history *ring
}

// NewScorer creates a scorer with seeded initialization. historyCap bounds
// the rolling event history; the oldest record is evicted first.
func NewScorer(inputSize, hiddenSize, layerWidth int, lambda float64, historyCap int, seed int64) *Scorer {
	rng := rand.New(rand.NewSource(seed))

	initW := func(name string, rows, cols int) *optim.Param {
		k := 1.0 / math.Sqrt(float64(cols))
		vals := make([]float64, rows*cols)
		for i := range vals {
			vals[i] = (rng.Float64()*2 - 1) * k
		}
		return optim.NewParam(name, vals)
	}
	initB := func(name string, size int) *optim.Param {
		return optim.NewParam(name, make([]float64, size))
	}

	return &Scorer{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		layerWidth: layerWidth,
		lambda:     lambda,
		w1:         initW("scorer.w1", layerWidth, inputSize),
		b1:         initB("scorer.b1", layerWidth),
		w2:         initW("scorer.w2", inputSize, layerWidth),
		b2:         initB("scorer.b2", inputSize),
		proj:       initW("scorer.proj", inputSize, hiddenSize),
		projB:      initB("scorer.proj_b", inputSize),
		history:    newRing(historyCap),
	}
}

// Params exposes all learnable parameters for the optimizer.
func (s *Scorer) Params() []*optim.Param {
	return []*optim.Param{s.w1, s.b1, s.w2, s.b2, s.proj, s.projB}
}

// #endregion scorer

// #region score

// Score computes the significance of an event and records it in the rolling
// history. Always >= 0 for finite inputs.
func (s *Scorer) Score(input, hiddenPrev []float64) (float64, error) {
	if len(input) != s.inputSize {
		return 0, fmt.Errorf("%w: input width %d, want %d", ErrShape, len(input), s.inputSize)
	}
	if len(hiddenPrev) != s.hiddenSize {
		return 0, fmt.Errorf("%w: hidden width %d, want %d", ErrShape, len(hiddenPrev), s.hiddenSize)
	}

	pred := s.Predict(input)
	var errSq float64
	for i := range input {
		d := input[i] - pred[i]
		errSq += d * d
	}
	predErr := math.Sqrt(errSq)

	uncertainty := variance(hiddenPrev)
	significance := predErr + s.lambda*uncertainty
	if math.IsNaN(significance) || math.IsInf(significance, 0) {
		return 0, fmt.Errorf("%w: prediction error %g, uncertainty %g", ErrNotFinite, predErr, uncertainty)
	}

	s.history.push(EventRecord{
		PredictionError: predErr,
		Uncertainty:     uncertainty,
		Significance:    significance,
	})

	return significance, nil
}

// Predict runs the feed-forward regressor over an input-width vector.
func (s *Scorer) Predict(x []float64) []float64 {
	h1 := matVec(s.w1.Value, s.b1.Value, x, s.layerWidth)
	for i := range h1 {
		if h1[i] < 0 {
			h1[i] = 0
		}
	}
	return matVec(s.w2.Value, s.b2.Value, h1, s.inputSize)
}

// variance computes the population variance over the components.
func variance(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	var acc float64
	for _, x := range v {
		d := x - mean
		acc += d * d
	}
	return acc / float64(len(v))
}

// matVec computes w*x + b where w is rows x len(x) row-major.
func matVec(w, b, x []float64, rows int) []float64 {
	out := make([]float64, rows)
	cols := len(x)
	for r := 0; r < rows; r++ {
		sum := b[r]
		row := w[r*cols : (r+1)*cols]
		for j, v := range x {
			sum += row[j] * v
		}
		out[r] = sum
	}
	return out
}

// #endregion score

// #region reconstruct

// ReconTrace caches the activations of one reconstruction forward pass.
type ReconTrace struct {
	hidden []float64
	projed []float64
	relu   []float64
	Pred   []float64
}

// Reconstruct runs predict over the projected hidden state and returns the
// trace needed for the backward pass. Used for the self-supervised loss.
func (s *Scorer) Reconstruct(hidden []float64) (ReconTrace, error) {
	if len(hidden) != s.hiddenSize {
		return ReconTrace{}, fmt.Errorf("%w: hidden width %d, want %d", ErrShape, len(hidden), s.hiddenSize)
	}

	hCopy := make([]float64, len(hidden))
	copy(hCopy, hidden)

	projed := matVec(s.proj.Value, s.projB.Value, hCopy, s.inputSize)
	relu := matVec(s.w1.Value, s.b1.Value, projed, s.layerWidth)
	for i := range relu {
		if relu[i] < 0 {
			relu[i] = 0
		}
	}
	pred := matVec(s.w2.Value, s.b2.Value, relu, s.inputSize)

	return ReconTrace{hidden: hCopy, projed: projed, relu: relu, Pred: pred}, nil
}

// BackwardReconstruct accumulates parameter gradients for one reconstruction
// and returns the gradient with respect to the hidden state, so the caller
// can chain it into the cell's backward pass.
func (s *Scorer) BackwardReconstruct(t ReconTrace, dPred []float64) ([]float64, error) {
	if len(dPred) != s.inputSize {
		return nil, fmt.Errorf("%w: gradient width %d, want %d", ErrShape, len(dPred), s.inputSize)
	}

	// Output layer: w2 is inputSize x layerWidth.
	dRelu := make([]float64, s.layerWidth)
	for r := 0; r < s.inputSize; r++ {
		if dPred[r] == 0 {
			continue
		}
		row := s.w2.Grad[r*s.layerWidth : (r+1)*s.layerWidth]
		wRow := s.w2.Value[r*s.layerWidth : (r+1)*s.layerWidth]
		for j := 0; j < s.layerWidth; j++ {
			row[j] += dPred[r] * t.relu[j]
			dRelu[j] += wRow[j] * dPred[r]
		}
		s.b2.Grad[r] += dPred[r]
	}

	// ReLU mask.
	for j := range dRelu {
		if t.relu[j] <= 0 {
			dRelu[j] = 0
		}
	}

	// Hidden layer: w1 is layerWidth x inputSize.
	dProjed := make([]float64, s.inputSize)
	for r := 0; r < s.layerWidth; r++ {
		if dRelu[r] == 0 {
			continue
		}
		row := s.w1.Grad[r*s.inputSize : (r+1)*s.inputSize]
		wRow := s.w1.Value[r*s.inputSize : (r+1)*s.inputSize]
		for j := 0; j < s.inputSize; j++ {
			row[j] += dRelu[r] * t.projed[j]
			dProjed[j] += wRow[j] * dRelu[r]
		}
		s.b1.Grad[r] += dRelu[r]
	}

	// Projection layer: proj is inputSize x hiddenSize.
	dHidden := make([]float64, s.hiddenSize)
	for r := 0; r < s.inputSize; r++ {
		if dProjed[r] == 0 {
			continue
		}
		row := s.proj.Grad[r*s.hiddenSize : (r+1)*s.hiddenSize]
		wRow := s.proj.Value[r*s.hiddenSize : (r+1)*s.hiddenSize]
		for j := 0; j < s.hiddenSize; j++ {
			row[j] += dProjed[r] * t.hidden[j]
			dHidden[j] += wRow[j] * dProjed[r]
		}
		s.projB.Grad[r] += dProjed[r]
	}

	return dHidden, nil
}

// #endregion reconstruct

// #region history

// EventRecord is one scored event kept for diagnostics only.
type EventRecord struct {
	PredictionError float64
	Uncertainty     float64
	Significance    float64
}

// Stats summarizes the rolling event history. Count is zero when no events
// have been scored; that is an empty result, not an error.
type Stats struct {
	MeanError        float64
	StdError         float64
	MeanUncertainty  float64
	StdUncertainty   float64
	MeanSignificance float64
	StdSignificance  float64
	Count            int
}

// EventStatistics computes mean and population std of each history field.
func (s *Scorer) EventStatistics() Stats {
	records := s.history.snapshot()
	if len(records) == 0 {
		return Stats{}
	}

	errs := make([]float64, len(records))
	uncs := make([]float64, len(records))
	sigs := make([]float64, len(records))
	for i, r := range records {
		errs[i] = r.PredictionError
		uncs[i] = r.Uncertainty
		sigs[i] = r.Significance
	}

	return Stats{
		MeanError:        mean(errs),
		StdError:         std(errs),
		MeanUncertainty:  mean(uncs),
		StdUncertainty:   std(uncs),
		MeanSignificance: mean(sigs),
		StdSignificance:  std(sigs),
		Count:            len(records),
	}
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func std(v []float64) float64 {
	return math.Sqrt(variance(v))
}

// ring is a fixed-capacity FIFO over EventRecords. Eviction of the oldest
// entry is automatic and never reallocates.
type ring struct {
	buf   []EventRecord
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]EventRecord, capacity)}
}

func (r *ring) push(rec EventRecord) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = rec
		r.count++
		return
	}
	// Full: overwrite the oldest slot.
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
}

// snapshot returns records oldest first.
func (r *ring) snapshot() []EventRecord {
	out := make([]EventRecord, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// #endregion history
