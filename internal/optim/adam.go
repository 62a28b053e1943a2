package optim

import (
	"math"

	"restframe/internal/autoenc"
)

// Adam implements the Adam update over parameter groups. Frozen parameters
// carry no gradient and are skipped entirely, so their values and moment
// estimates stay untouched across a step.
type Adam struct {
	Groups []Group

	beta1 float64
	beta2 float64
	eps   float64
	step  int

	m map[*autoenc.Param][]float64
	v map[*autoenc.Param][]float64
}

// NewAdam constructs an Adam optimizer with standard betas.
func NewAdam(groups []Group, eps float64) *Adam {
	return &Adam{
		Groups: groups,
		beta1:  0.9,
		beta2:  0.999,
		eps:    eps,
		m:      map[*autoenc.Param][]float64{},
		v:      map[*autoenc.Param][]float64{},
	}
}

// Step applies one Adam update to every trainable parameter.
func (a *Adam) Step() {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, group := range a.Groups {
		for _, p := range group.Params {
			if !p.Trainable {
				continue
			}
			m, ok := a.m[p]
			if !ok {
				m = make([]float64, len(p.Value))
				a.m[p] = m
			}
			v, ok := a.v[p]
			if !ok {
				v = make([]float64, len(p.Value))
				a.v[p] = v
			}
			for i, g := range p.Grad {
				m[i] = a.beta1*m[i] + (1-a.beta1)*g
				v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
				mHat := m[i] / bc1
				vHat := v[i] / bc2
				p.Value[i] -= group.LR * mHat / (math.Sqrt(vHat) + a.eps)
			}
		}
	}
}

// ZeroGrad clears the gradients of every parameter in every group.
func (a *Adam) ZeroGrad() {
	for _, group := range a.Groups {
		for _, p := range group.Params {
			p.ZeroGrad()
		}
	}
}
