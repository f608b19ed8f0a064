package memcell

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/optim"
)

// ErrShape marks an input or state vector with the wrong width.
var ErrShape = errors.New("shape mismatch")

// #region cell

// Cell is a gated recurrent memory cell with built-in time decay.
//
// One step computes input, forget, and output gates plus a candidate state,
// each an affine transform of [input, hiddenPrev]. The next cell state is the
// forget-gated previous cell plus the input-gated candidate, scaled by the
// decay factor. The next hidden state is the output gate times tanh of the
// next cell state.
//
// The cell also owns a resident (hidden, cell) state pair so a caller can
// decay, reset, or swap session state without re-running the recurrence.
type Cell struct {
	inputSize  int
	hiddenSize int
	decay      float64

	// Gate parameters, each weight matrix is hiddenSize x (inputSize+hiddenSize)
	// stored row-major.
	wi, wf, wo, wg *optim.Param
	bi, bf, bo, bg *optim.Param

	hidden []float64
	cell   []float64
}

// NewCell creates a cell with seeded uniform initialization in
// [-1/sqrt(H), 1/sqrt(H)] for weights and zero biases.
func NewCell(inputSize, hiddenSize int, decay float64, seed int64) *Cell {
	rng := rand.New(rand.NewSource(seed))
	k := 1.0 / math.Sqrt(float64(hiddenSize))
	wSize := hiddenSize * (inputSize + hiddenSize)

	initW := func(name string) *optim.Param {
		vals := make([]float64, wSize)
		for i := range vals {
			vals[i] = (rng.Float64()*2 - 1) * k
		}
		return optim.NewParam(name, vals)
	}
	initB := func(name string) *optim.Param {
		return optim.NewParam(name, make([]float64, hiddenSize))
	}

	return &Cell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		decay:      decay,
		wi:         initW("cell.w_input"),
		wf:         initW("cell.w_forget"),
		wo:         initW("cell.w_output"),
		wg:         initW("cell.w_candidate"),
		bi:         initB("cell.b_input"),
		bf:         initB("cell.b_forget"),
		bo:         initB("cell.b_output"),
		bg:         initB("cell.b_candidate"),
		hidden:     make([]float64, hiddenSize),
		cell:       make([]float64, hiddenSize),
	}
}

// Params exposes all learnable parameters for the optimizer.
func (c *Cell) Params() []*optim.Param {
	return []*optim.Param{c.wi, c.wf, c.wo, c.wg, c.bi, c.bf, c.bo, c.bg}
}

// InputSize returns the expected input width.
func (c *Cell) InputSize() int { return c.inputSize }

// HiddenSize returns the state width.
func (c *Cell) HiddenSize() int { return c.hiddenSize }

// #endregion cell

// #region step

// stepTrace caches the forward activations needed for Backward.
type stepTrace struct {
	z        []float64 // [input, hiddenPrev]
	gateI    []float64
	gateF    []float64
	gateO    []float64
	cand     []float64
	cellPrev []float64
	tanhC    []float64 // tanh of the decayed next cell state
}

// StepResult bundles the outputs of one recurrence step. Output aliases the
// next hidden state by value: both are fresh slices the caller may keep.
type StepResult struct {
	Output     []float64
	HiddenNext []float64
	CellNext   []float64

	trace *stepTrace
}

// Step runs one recurrence step from the given previous state. The returned
// cell state is already scaled by the decay factor. The resident state is not
// touched; commit via SetState.
func (c *Cell) Step(input, hiddenPrev, cellPrev []float64) (StepResult, error) {
	if len(input) != c.inputSize {
		return StepResult{}, fmt.Errorf("%w: input width %d, want %d", ErrShape, len(input), c.inputSize)
	}
	if len(hiddenPrev) != c.hiddenSize || len(cellPrev) != c.hiddenSize {
		return StepResult{}, fmt.Errorf("%w: state width (%d, %d), want %d", ErrShape, len(hiddenPrev), len(cellPrev), c.hiddenSize)
	}

	z := make([]float64, c.inputSize+c.hiddenSize)
	copy(z, input)
	copy(z[c.inputSize:], hiddenPrev)

	gateI := c.affine(c.wi, c.bi, z)
	gateF := c.affine(c.wf, c.bf, z)
	gateO := c.affine(c.wo, c.bo, z)
	cand := c.affine(c.wg, c.bg, z)

	for h := 0; h < c.hiddenSize; h++ {
		gateI[h] = sigmoid(gateI[h])
		gateF[h] = sigmoid(gateF[h])
		gateO[h] = sigmoid(gateO[h])
		cand[h] = math.Tanh(cand[h])
	}

	cellNext := make([]float64, c.hiddenSize)
	hiddenNext := make([]float64, c.hiddenSize)
	tanhC := make([]float64, c.hiddenSize)
	prevCopy := make([]float64, c.hiddenSize)
	copy(prevCopy, cellPrev)

	for h := 0; h < c.hiddenSize; h++ {
		raw := gateF[h]*cellPrev[h] + gateI[h]*cand[h]
		cellNext[h] = raw * c.decay
		tanhC[h] = math.Tanh(cellNext[h])
		hiddenNext[h] = gateO[h] * tanhC[h]
	}

	output := make([]float64, c.hiddenSize)
	copy(output, hiddenNext)

	return StepResult{
		Output:     output,
		HiddenNext: hiddenNext,
		CellNext:   cellNext,
		trace: &stepTrace{
			z:        z,
			gateI:    gateI,
			gateF:    gateF,
			gateO:    gateO,
			cand:     cand,
			cellPrev: prevCopy,
			tanhC:    tanhC,
		},
	}, nil
}

// StepBatch runs one step per row. Each row carries its own previous state,
// so a single-row batch is exactly Step.
func (c *Cell) StepBatch(inputs, hiddenPrev, cellPrev [][]float64) ([]StepResult, error) {
	if len(hiddenPrev) != len(inputs) || len(cellPrev) != len(inputs) {
		return nil, fmt.Errorf("%w: batch sizes (%d, %d, %d) differ", ErrShape, len(inputs), len(hiddenPrev), len(cellPrev))
	}
	results := make([]StepResult, len(inputs))
	for i := range inputs {
		res, err := c.Step(inputs[i], hiddenPrev[i], cellPrev[i])
		if err != nil {
			return nil, fmt.Errorf("batch row %d: %w", i, err)
		}
		results[i] = res
	}
	return results, nil
}

// affine computes w*z + b for one gate.
func (c *Cell) affine(w, b *optim.Param, z []float64) []float64 {
	out := make([]float64, c.hiddenSize)
	width := len(z)
	for h := 0; h < c.hiddenSize; h++ {
		sum := b.Value[h]
		row := w.Value[h*width : (h+1)*width]
		for j, v := range z {
			sum += row[j] * v
		}
		out[h] = sum
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// #endregion step

// #region backward

// Backward accumulates parameter gradients for one step given the loss
// gradient with respect to the next hidden state. Gradients into the inputs
// and previous state are not propagated; one event trains one step.
func (c *Cell) Backward(res StepResult, dHidden []float64) error {
	t := res.trace
	if t == nil {
		return errors.New("step result carries no trace")
	}
	if len(dHidden) != c.hiddenSize {
		return fmt.Errorf("%w: gradient width %d, want %d", ErrShape, len(dHidden), c.hiddenSize)
	}

	width := len(t.z)
	dAI := make([]float64, c.hiddenSize)
	dAF := make([]float64, c.hiddenSize)
	dAO := make([]float64, c.hiddenSize)
	dAG := make([]float64, c.hiddenSize)

	for h := 0; h < c.hiddenSize; h++ {
		dh := dHidden[h]
		o := t.gateO[h]
		tc := t.tanhC[h]

		dO := dh * tc
		dCellNext := dh * o * (1 - tc*tc)
		dRaw := dCellNext * c.decay

		dF := dRaw * t.cellPrev[h]
		dI := dRaw * t.cand[h]
		dG := dRaw * t.gateI[h]

		i := t.gateI[h]
		f := t.gateF[h]
		g := t.cand[h]

		dAI[h] = dI * i * (1 - i)
		dAF[h] = dF * f * (1 - f)
		dAO[h] = dO * o * (1 - o)
		dAG[h] = dG * (1 - g*g)
	}

	accumulate := func(w, b *optim.Param, dA []float64) {
		for h := 0; h < c.hiddenSize; h++ {
			if dA[h] == 0 {
				continue
			}
			row := w.Grad[h*width : (h+1)*width]
			for j, v := range t.z {
				row[j] += dA[h] * v
			}
			b.Grad[h] += dA[h]
		}
	}
	accumulate(c.wi, c.bi, dAI)
	accumulate(c.wf, c.bf, dAF)
	accumulate(c.wo, c.bo, dAO)
	accumulate(c.wg, c.bg, dAG)

	return nil
}

// #endregion backward

// #region state

// ApplyTimeDecay rescales the resident cell state by the decay factor without
// running the recurrence. The hidden state is left unchanged: only retained
// memory decays, not the emitted representation.
func (c *Cell) ApplyTimeDecay() {
	for h := range c.cell {
		c.cell[h] *= c.decay
	}
}

// ResetState zeroes both resident state vectors.
func (c *Cell) ResetState() {
	for h := 0; h < c.hiddenSize; h++ {
		c.hidden[h] = 0
		c.cell[h] = 0
	}
}

// State returns copies of the resident (hidden, cell) pair.
func (c *Cell) State() (hidden, cell []float64) {
	hidden = make([]float64, c.hiddenSize)
	cell = make([]float64, c.hiddenSize)
	copy(hidden, c.hidden)
	copy(cell, c.cell)
	return hidden, cell
}

// SetState replaces the resident state after validating widths. The inputs
// are copied, never aliased.
func (c *Cell) SetState(hidden, cell []float64) error {
	if len(hidden) != c.hiddenSize || len(cell) != c.hiddenSize {
		return fmt.Errorf("%w: state width (%d, %d), want %d", ErrShape, len(hidden), len(cell), c.hiddenSize)
	}
	copy(c.hidden, hidden)
	copy(c.cell, cell)
	return nil
}

// Summary holds descriptive statistics of the resident state.
type Summary struct {
	HiddenNorm float64
	CellNorm   float64
	HiddenMean float64
	CellMean   float64
	HiddenSize int
}

// StateSummary computes norms and means of the resident state.
func (c *Cell) StateSummary() Summary {
	return Summary{
		HiddenNorm: vectorNorm(c.hidden),
		CellNorm:   vectorNorm(c.cell),
		HiddenMean: vectorMean(c.hidden),
		CellMean:   vectorMean(c.cell),
		HiddenSize: c.hiddenSize,
	}
}

// vectorNorm computes the L2 norm.
func vectorNorm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func vectorMean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// #endregion state
