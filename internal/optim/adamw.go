package optim

import (
	"math"
)

// #region param

// Param is one named tensor of learnable values with its gradient buffer.
// Value and Grad always have the same length. Callers accumulate into Grad
// during backward passes; the optimizer consumes and the caller zeroes it.
type Param struct {
	Name  string
	Value []float64
	Grad  []float64
}

// NewParam allocates a parameter of the given size with a zero gradient.
func NewParam(name string, value []float64) *Param {
	return &Param{
		Name:  name,
		Value: value,
		Grad:  make([]float64, len(value)),
	}
}

// ZeroGrad clears the gradient buffers of all params.
func ZeroGrad(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// GradNorm computes the joint L2 norm over all gradients.
func GradNorm(params []*Param) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += g * g
		}
	}
	return math.Sqrt(sum)
}

// ClipGradNorm rescales all gradients uniformly by cap/norm when the joint
// norm exceeds cap, and leaves them untouched otherwise. Returns the
// pre-clip norm.
func ClipGradNorm(params []*Param, cap float64) float64 {
	norm := GradNorm(params)
	if norm > cap && norm > 0 {
		scale := cap / norm
		for _, p := range params {
			for i := range p.Grad {
				p.Grad[i] *= scale
			}
		}
	}
	return norm
}

// GradsFinite reports whether every gradient entry is finite.
func GradsFinite(params []*Param) bool {
	for _, p := range params {
		for _, g := range p.Grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				return false
			}
		}
	}
	return true
}

// #endregion param

// #region adamw

// AdamW applies moment-based adaptive steps with decoupled weight decay.
// Every registered parameter steps on every call, including zero-gradient
// ones: their moments decay and weight decay still shrinks them.
type AdamW struct {
	params []*Param
	lr     float64
	wd     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int
	m      [][]float64
	v      [][]float64
}

// NewAdamW creates an optimizer over the given parameter set.
func NewAdamW(params []*Param, lr, weightDecay float64) *AdamW {
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Value))
		v[i] = make([]float64, len(p.Value))
	}
	return &AdamW{
		params: params,
		lr:     lr,
		wd:     weightDecay,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      m,
		v:      v,
	}
}

// Params returns the registered parameter set.
func (o *AdamW) Params() []*Param {
	return o.params
}

// Step applies one AdamW update from the current gradients.
func (o *AdamW) Step() {
	o.t++
	bc1 := 1 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.beta2, float64(o.t))

	for i, p := range o.params {
		m := o.m[i]
		v := o.v[i]
		for j := range p.Value {
			g := p.Grad[j]
			m[j] = o.beta1*m[j] + (1-o.beta1)*g
			v[j] = o.beta2*v[j] + (1-o.beta2)*g*g
			mHat := m[j] / bc1
			vHat := v[j] / bc2
			p.Value[j] -= o.lr * mHat / (math.Sqrt(vHat) + o.eps)
			// Decoupled weight decay, applied outside the adaptive term.
			p.Value[j] -= o.lr * o.wd * p.Value[j]
		}
	}
}

// #endregion adamw
