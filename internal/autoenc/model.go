package autoenc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Observed is the view of a physical instrument the model needs: the
// observed wavelength grid, the skyline contamination mask, and optional
// trainable calibration parameters (nil when the instrument carries none).
type Observed interface {
	ObsWave() []float64
	SkylineMask() []bool
	Calibration() *Param
}

// Encoder maps observed spectra to latent codes. One encoder exists per
// instrument.
type Encoder struct {
	NIn     int
	NLatent int
	Weight  *Param // NLatent x NIn, row major
	Bias    *Param // NLatent
}

// Decoder reconstructs restframe spectra from latent codes. A single
// decoder instance is shared by every encoder; gradient accumulation across
// encoders applies its update exactly once per optimizer step.
type Decoder struct {
	NLatent  int
	WaveRest []float64
	Weight   *Param // len(WaveRest) x NLatent, row major
	Bias     *Param // len(WaveRest)
}

// Model pairs one encoder with the shared decoder and the instrument it
// observes through.
type Model struct {
	Encoder    *Encoder
	Decoder    *Decoder
	Instrument Observed
}

// NewEncoder allocates an encoder with small deterministic initial weights.
func NewEncoder(nIn, nLatent int) *Encoder {
	e := &Encoder{
		NIn:     nIn,
		NLatent: nLatent,
		Weight:  NewParam("encoder.mlp.weight", nLatent*nIn),
		Bias:    NewParam("encoder.mlp.bias", nLatent),
	}
	initWeights(e.Weight.Value, nIn)
	return e
}

// NewDecoder allocates the shared decoder over the given restframe grid.
func NewDecoder(waveRest []float64, nLatent int) *Decoder {
	d := &Decoder{
		NLatent:  nLatent,
		WaveRest: append([]float64(nil), waveRest...),
		Weight:   NewParam("decoder.mlp.weight", len(waveRest)*nLatent),
		Bias:     NewParam("decoder.mlp.bias", len(waveRest)),
	}
	initWeights(d.Weight.Value, nLatent)
	return d
}

// NewModel binds an instrument-specific encoder to a shared decoder.
func NewModel(inst Observed, decoder *Decoder, nLatent int) *Model {
	return &Model{
		Encoder:    NewEncoder(len(inst.ObsWave()), nLatent),
		Decoder:    decoder,
		Instrument: inst,
	}
}

// initWeights fills a weight matrix with a small deterministic pattern so
// freshly constructed models decode non-degenerate spectra.
func initWeights(w []float64, fanIn int) {
	scale := 1.0 / float64(fanIn)
	for i := range w {
		// cheap pseudo-random in (-scale, scale)
		v := float64((i*2654435761)%2039)/2039.0*2 - 1
		w[i] = v * scale
	}
}

// Encode maps a batch of observed spectra to latent codes.
func (m *Model) Encode(spec *mat.Dense) *mat.Dense {
	rows, cols := spec.Dims()
	if cols != m.Encoder.NIn {
		panic(fmt.Sprintf("autoenc: encode input has %d bins, encoder expects %d", cols, m.Encoder.NIn))
	}
	k := m.Encoder.NLatent
	s := mat.NewDense(rows, k, nil)
	w := m.Encoder.Weight.Value
	b := m.Encoder.Bias.Value
	for row := 0; row < rows; row++ {
		x := spec.RawRowView(row)
		out := s.RawRowView(row)
		for j := 0; j < k; j++ {
			sum := b[j]
			wj := w[j*m.Encoder.NIn : (j+1)*m.Encoder.NIn]
			for i, xi := range x {
				sum += wj[i] * xi
			}
			out[j] = sum
		}
	}
	return s
}

// EncodeBackward accumulates encoder gradients for the batch that produced
// dS. spec must be the same matrix passed to Encode.
func (m *Model) EncodeBackward(spec, dS *mat.Dense) {
	if !m.Encoder.Weight.Trainable && !m.Encoder.Bias.Trainable {
		return
	}
	rows, _ := spec.Dims()
	nIn := m.Encoder.NIn
	for row := 0; row < rows; row++ {
		x := spec.RawRowView(row)
		g := dS.RawRowView(row)
		for j, gj := range g {
			if gj == 0 {
				continue
			}
			m.Encoder.Bias.accumulate(j, gj)
			if m.Encoder.Weight.Trainable {
				wg := m.Encoder.Weight.Grad[j*nIn : (j+1)*nIn]
				for i, xi := range x {
					wg[i] += gj * xi
				}
			}
		}
	}
}

// Decode reconstructs restframe spectra for a batch of latent codes.
func (m *Model) Decode(s *mat.Dense) *mat.Dense {
	return m.Decoder.Forward(s)
}

// Forward evaluates the decoder on a batch of latents.
func (d *Decoder) Forward(s *mat.Dense) *mat.Dense {
	rows, k := s.Dims()
	if k != d.NLatent {
		panic(fmt.Sprintf("autoenc: decode input has %d latents, decoder expects %d", k, d.NLatent))
	}
	nRest := len(d.WaveRest)
	y := mat.NewDense(rows, nRest, nil)
	w := d.Weight.Value
	b := d.Bias.Value
	for row := 0; row < rows; row++ {
		latent := s.RawRowView(row)
		out := y.RawRowView(row)
		for r := 0; r < nRest; r++ {
			sum := b[r]
			wr := w[r*k : (r+1)*k]
			for j, sj := range latent {
				sum += wr[j] * sj
			}
			out[r] = sum
		}
	}
	return y
}

// Backward accumulates decoder gradients for dY and returns the gradient
// with respect to the latent codes. s must be the matrix passed to Forward.
func (d *Decoder) Backward(s, dY *mat.Dense) *mat.Dense {
	rows, k := s.Dims()
	dS := mat.NewDense(rows, k, nil)
	weightTrainable := d.Weight.Trainable
	biasTrainable := d.Bias.Trainable
	for row := 0; row < rows; row++ {
		latent := s.RawRowView(row)
		g := dY.RawRowView(row)
		out := dS.RawRowView(row)
		for r, gr := range g {
			if gr == 0 {
				continue
			}
			if biasTrainable {
				d.Bias.Grad[r] += gr
			}
			wr := d.Weight.Value[r*k : (r+1)*k]
			if weightTrainable {
				wg := d.Weight.Grad[r*k : (r+1)*k]
				for j, sj := range latent {
					wg[j] += gr * sj
				}
			}
			for j, wj := range wr {
				out[j] += gr * wj
			}
		}
	}
	return dS
}
