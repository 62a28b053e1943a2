// Package autoenc provides the spectrum autoencoder used during training:
// per-instrument encoders that map observed spectra to a shared latent space
// and a single decoder, shared across encoders, that reconstructs restframe
// spectra. The reference model is linear; the orchestration layer only
// depends on the encode/decode/fidelity contract and on the parameter
// handles exposed here.
package autoenc

// Param is one named tensor of trainable state. Gradients accumulate into
// Grad until the optimizer consumes them; a param with Trainable false never
// receives gradient and is skipped by the optimizer.
type Param struct {
	Name      string
	Value     []float64
	Grad      []float64
	Trainable bool
}

// NewParam allocates a zero-valued parameter of the given size.
func NewParam(name string, size int) *Param {
	return &Param{
		Name:      name,
		Value:     make([]float64, size),
		Grad:      make([]float64, size),
		Trainable: true,
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// accumulate adds g into gradient entry i unless the parameter is frozen.
func (p *Param) accumulate(i int, g float64) {
	if !p.Trainable {
		return
	}
	p.Grad[i] += g
}
