package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/bank"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/config"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/memcell"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/optim"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/scorer"
	"github.com/danielpatrickdp/adaptive-memory/go-engine/internal/threshold"
)

// ErrShape marks an input or target vector with the wrong width. Raised
// before any state mutation; the prior committed state stays intact.
var ErrShape = errors.New("shape mismatch")

// ErrNumericDivergence marks a NaN or Inf detected in state, loss, or
// gradients. The event is rejected as a unit: no parameter step, no state
// commit, no metric or threshold advance.
var ErrNumericDivergence = errors.New("numeric divergence")

// #region event-input

// EventInput is an observation with an optional supervision target. Use the
// constructors; the zero value is not a valid event.
type EventInput struct {
	input      []float64
	target     []float64
	supervised bool
}

// Observation wraps a plain input vector. A triggered update trains against
// the self-supervised reconstruction loss.
func Observation(input []float64) EventInput {
	return EventInput{input: input}
}

// Supervised pairs an input vector with a target for the supervised
// mean-squared-error loss. The target must match the output width.
func Supervised(input, target []float64) EventInput {
	return EventInput{input: input, target: target, supervised: true}
}

// #endregion event-input

// #region result

// Result reports the outcome of one processed event. Threshold is the
// pre-update value the trigger decision used. Loss is nil on the decay path.
type Result struct {
	Significance float64
	Threshold    float64
	Triggered    bool
	Loss         *float64
	Output       []float64
}

// UpdateRecord is one entry of the triggered-update history.
type UpdateRecord struct {
	EventIndex   int
	Significance float64
	Loss         float64
}

// Report is a point-in-time snapshot of the engine's learning metrics.
// AverageLoss and UpdateRate are derived on demand and report 0 when no
// events or updates have occurred.
type Report struct {
	TotalEvents      int
	TriggeredUpdates int
	TotalLoss        float64
	AverageLoss      float64
	UpdateRate       float64
	UpdateHistory    []UpdateRecord
	EventStats       scorer.Stats
	ThresholdHistory []float64
}

// #endregion result

// #region engine

// Engine is the closed control loop: memory cell forward, significance
// scoring, trigger decision, and either a bounded gradient update or passive
// decay, per event.
//
// Model parameters, the adaptive threshold, and the learning metrics are
// engine-wide: all sessions processed by one Engine share them. One mutex
// serializes ProcessEvent end to end, which covers both the per-session
// single-writer discipline and parameter consistency across sessions. To
// parallelize, shard sessions across engine instances.
type Engine struct {
	mu sync.Mutex

	cfg  config.Config
	cell *memcell.Cell
	scr  *scorer.Scorer
	thr  *threshold.Controller
	opt  *optim.AdamW
	bank bank.Bank

	totalEvents      int
	triggeredUpdates int
	totalLoss        float64
	updateHistory    []UpdateRecord
}

// New validates the configuration and wires an engine over the given bank.
func New(cfg config.Config, b bank.Bank) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cell := memcell.NewCell(cfg.InputSize, cfg.HiddenSize, cfg.DecayFactor, cfg.Seed)
	scr := scorer.NewScorer(cfg.InputSize, cfg.HiddenSize, cfg.PredictorHidden,
		cfg.UncertaintyLambda, cfg.HistoryCapacity, cfg.Seed+1)

	params := append(cell.Params(), scr.Params()...)

	return &Engine{
		cfg:  cfg,
		cell: cell,
		scr:  scr,
		thr:  threshold.New(cfg.InitialThreshold, cfg.ThresholdAlpha),
		opt:  optim.NewAdamW(params, cfg.LearningRate, cfg.WeightDecay),
		bank: b,
	}, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// #endregion engine

// #region process-event

// ProcessEvent runs one full control-loop transition for a session:
// retrieve state, step the cell, score significance, decide trigger against
// the pre-update threshold, then either apply one clipped optimizer step and
// commit the stepped state, or decay the committed cell state. The threshold
// update and event count run unconditionally on success.
func (e *Engine) ProcessEvent(sessionID string, ev EventInput, force bool) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Preconditions first: nothing below may have run on a malformed event.
	if len(ev.input) != e.cfg.InputSize {
		return Result{}, fmt.Errorf("%w: input width %d, want %d", ErrShape, len(ev.input), e.cfg.InputSize)
	}
	if ev.supervised && len(ev.target) != e.cfg.HiddenSize {
		return Result{}, fmt.Errorf("%w: target width %d, want output width %d", ErrShape, len(ev.target), e.cfg.HiddenSize)
	}

	hiddenPrev, cellPrev, err := e.loadState(sessionID)
	if err != nil {
		return Result{}, err
	}
	if err := e.cell.SetState(hiddenPrev, cellPrev); err != nil {
		return Result{}, fmt.Errorf("restore session %s: %w", sessionID, err)
	}

	step, err := e.cell.Step(ev.input, hiddenPrev, cellPrev)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if !allFinite(step.HiddenNext) || !allFinite(step.CellNext) {
		return Result{}, fmt.Errorf("%w: non-finite state after forward pass", ErrNumericDivergence)
	}

	significance, err := e.scr.Score(ev.input, hiddenPrev)
	if errors.Is(err, scorer.ErrNotFinite) {
		// A NaN here would poison the shared threshold: NaN never triggers
		// and every EMA update after it stays NaN.
		return Result{}, fmt.Errorf("%w: %v", ErrNumericDivergence, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrShape, err)
	}

	// The decision uses the threshold as of before this event's update.
	decisionThreshold := e.thr.Current()
	triggered := force || e.thr.ShouldTrigger(significance)

	var lossPtr *float64
	var hidden, cell []float64

	if triggered {
		loss, err := e.performUpdate(ev, step)
		if err != nil {
			return Result{}, err
		}
		if err := e.cell.SetState(step.HiddenNext, step.CellNext); err != nil {
			return Result{}, fmt.Errorf("commit state: %w", err)
		}
		hidden, cell = step.HiddenNext, step.CellNext
		lossPtr = &loss

		e.triggeredUpdates++
		e.totalLoss += loss
		e.updateHistory = append(e.updateHistory, UpdateRecord{
			EventIndex:   e.totalEvents + 1,
			Significance: significance,
			Loss:         loss,
		})
	} else {
		// No update: pure forgetting of the committed cell state. The stepped
		// state is discarded and the hidden state stays as committed.
		e.cell.ApplyTimeDecay()
		hidden, cell = e.cell.State()
	}

	e.thr.Update(significance)
	e.totalEvents++

	if err := e.bank.Store(sessionID, hidden, cell); err != nil {
		return Result{}, fmt.Errorf("store session %s: %w", sessionID, err)
	}

	return Result{
		Significance: significance,
		Threshold:    decisionThreshold,
		Triggered:    triggered,
		Loss:         lossPtr,
		Output:       step.Output,
	}, nil
}

// loadState retrieves the committed session state, lazily zero-initializing
// unseen sessions.
func (e *Engine) loadState(sessionID string) ([]float64, []float64, error) {
	hidden, cell, ok, err := e.bank.Retrieve(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve session %s: %w", sessionID, err)
	}
	if !ok {
		return make([]float64, e.cfg.HiddenSize), make([]float64, e.cfg.HiddenSize), nil
	}
	if len(hidden) != e.cfg.HiddenSize || len(cell) != e.cfg.HiddenSize {
		return nil, nil, fmt.Errorf("%w: stored state width (%d, %d), want %d",
			ErrShape, len(hidden), len(cell), e.cfg.HiddenSize)
	}
	return hidden, cell, nil
}

// #endregion process-event

// #region update-branch

// performUpdate computes the loss, backpropagates through the scorer and the
// cell, clips the joint gradient norm, and applies one optimizer step. On
// divergence nothing is applied: parameters and committed state are exactly
// as before the event.
func (e *Engine) performUpdate(ev EventInput, step memcell.StepResult) (float64, error) {
	optim.ZeroGrad(e.opt.Params())

	var loss float64
	var dHidden []float64

	if ev.supervised {
		loss, dHidden = mseGrad(step.HiddenNext, ev.target)
	} else {
		// Self-supervised: reconstruct the input from the new output state.
		trace, err := e.scr.Reconstruct(step.HiddenNext)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrShape, err)
		}
		var dPred []float64
		loss, dPred = mseGrad(trace.Pred, ev.input)
		dHidden, err = e.scr.BackwardReconstruct(trace, dPred)
		if err != nil {
			return 0, fmt.Errorf("reconstruction backward: %w", err)
		}
	}

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return 0, fmt.Errorf("%w: non-finite loss", ErrNumericDivergence)
	}

	if err := e.cell.Backward(step, dHidden); err != nil {
		return 0, fmt.Errorf("cell backward: %w", err)
	}
	if !optim.GradsFinite(e.opt.Params()) {
		return 0, fmt.Errorf("%w: non-finite gradients", ErrNumericDivergence)
	}

	optim.ClipGradNorm(e.opt.Params(), e.cfg.GradClipNorm)
	e.opt.Step()

	return loss, nil
}

// mseGrad returns the mean squared error and its gradient with respect to
// the prediction.
func mseGrad(pred, target []float64) (float64, []float64) {
	n := float64(len(pred))
	grad := make([]float64, len(pred))
	var sum float64
	for i := range pred {
		d := pred[i] - target[i]
		sum += d * d
		grad[i] = 2 * d / n
	}
	return sum / n, grad
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// #endregion update-branch

// #region metrics

// Metrics returns a snapshot of the learning metrics with derived rates.
func (e *Engine) Metrics() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := make([]UpdateRecord, len(e.updateHistory))
	copy(history, e.updateHistory)

	r := Report{
		TotalEvents:      e.totalEvents,
		TriggeredUpdates: e.triggeredUpdates,
		TotalLoss:        e.totalLoss,
		UpdateHistory:    history,
		EventStats:       e.scr.EventStatistics(),
		ThresholdHistory: e.thr.History(),
	}
	if e.triggeredUpdates > 0 {
		r.AverageLoss = e.totalLoss / float64(e.triggeredUpdates)
	}
	if e.totalEvents > 0 {
		r.UpdateRate = float64(e.triggeredUpdates) / float64(e.totalEvents)
	}
	return r
}

// ResetMetrics clears the counters and update history. The threshold and
// scorer diagnostics keep their trajectories.
func (e *Engine) ResetMetrics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalEvents = 0
	e.triggeredUpdates = 0
	e.totalLoss = 0
	e.updateHistory = nil
}

// Threshold returns the current significance threshold.
func (e *Engine) Threshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thr.Current()
}

// ResetSession commits a zero state for the session (hard amnesia).
func (e *Engine) ResetSession(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	zeros := make([]float64, e.cfg.HiddenSize)
	if err := e.bank.Store(sessionID, zeros, zeros); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	return nil
}

// StateSummary reports diagnostics of the last state the engine worked on.
func (e *Engine) StateSummary() memcell.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cell.StateSummary()
}

// #endregion metrics
