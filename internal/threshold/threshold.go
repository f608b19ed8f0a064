package threshold

// #region controller

// Controller tracks an exponentially-smoothed significance threshold:
//
//	tau' = (1 - alpha) * tau + alpha * significance
//
// The trigger decision always uses the pre-update value; Update runs
// unconditionally after every event, triggered or not.
type Controller struct {
	current float64
	alpha   float64
	history []float64
}

// New creates a controller at the given initial threshold. The initial value
// is a configured constant, not learned, and seeds the history.
func New(initial, alpha float64) *Controller {
	return &Controller{
		current: initial,
		alpha:   alpha,
		history: []float64{initial},
	}
}

// ShouldTrigger reports whether significance strictly exceeds the current
// threshold. A score exactly equal to the threshold does not trigger.
func (c *Controller) ShouldTrigger(significance float64) bool {
	return significance > c.current
}

// Update folds a new significance score into the threshold and appends the
// new value to the history. The result is a convex combination of the
// previous threshold and the score, so it stays within the range observed
// so far.
func (c *Controller) Update(significance float64) {
	c.current = (1-c.alpha)*c.current + c.alpha*significance
	c.history = append(c.history, c.current)
}

// Current returns the threshold as it stands.
func (c *Controller) Current() float64 {
	return c.current
}

// History returns a copy of the append-only threshold trajectory, starting
// with the initial value.
func (c *Controller) History() []float64 {
	out := make([]float64, len(c.history))
	copy(out, c.history)
	return out
}

// #endregion controller
