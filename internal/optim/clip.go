package optim

import (
	"math"

	"restframe/internal/autoenc"
)

// ClipGradNorm rescales the gradients of the given parameters so their
// global L2 norm does not exceed maxNorm. Frozen parameters are ignored.
// Returns the pre-clip norm.
func ClipGradNorm(params []*autoenc.Param, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		for _, g := range p.Grad {
			total += g * g
		}
	}
	norm := math.Sqrt(total)
	if norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / norm
	for _, p := range params {
		if !p.Trainable {
			continue
		}
		for i := range p.Grad {
			p.Grad[i] *= scale
		}
	}
	return norm
}
