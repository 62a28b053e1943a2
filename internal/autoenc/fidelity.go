package autoenc

import (
	"gonum.org/v1/gonum/mat"

	"restframe/internal/dataset"
)

// Fidelity computes the reconstruction loss of a batch against the decoded
// latents: the decoder output is redshifted onto the observed grid, scaled
// by the instrument calibration when present, and compared to the observed
// flux under inverse-variance weighting with skyline bins masked out. The
// per-example weighted squared error is averaged over wavelength bins and
// summed over the batch.
//
// When train is true, decoder and calibration gradients accumulate and the
// gradient with respect to the latent codes is returned; otherwise dS is
// nil.
func (m *Model) Fidelity(batch *dataset.Batch, s *mat.Dense, train bool) (float64, *mat.Dense) {
	waveObs := m.Instrument.ObsWave()
	skyline := m.Instrument.SkylineMask()
	calib := m.Instrument.Calibration()
	waveRest := m.Decoder.WaveRest
	nObs := len(waveObs)

	y := m.Decoder.Forward(s)
	rows, _ := s.Dims()

	var dY *mat.Dense
	if train {
		rRows, rCols := y.Dims()
		dY = mat.NewDense(rRows, rCols, nil)
	}

	loss := 0.0
	gObs := make([]float64, nObs)
	for row := 0; row < rows; row++ {
		z := batch.Z[row]
		rest := y.RawRowView(row)
		pre := ResampleToObserved(waveRest, rest, waveObs, z)
		x := batch.Spec.RawRowView(row)
		w := batch.Weight.RawRowView(row)

		for o := 0; o < nObs; o++ {
			gObs[o] = 0
			wo := w[o]
			if wo <= 0 || (skyline != nil && skyline[o]) {
				continue
			}
			c := 1.0
			if calib != nil {
				c = calib.Value[o]
			}
			pred := c * pre[o]
			diff := pred - x[o]
			loss += wo * diff * diff / float64(nObs)
			if !train {
				continue
			}
			g := 2 * wo * diff / float64(nObs)
			if calib != nil {
				calib.accumulate(o, g*pre[o])
				g *= c
			}
			gObs[o] = g
		}
		if train {
			resampleAdjoint(waveRest, waveObs, z, gObs, dY.RawRowView(row))
		}
	}

	if !train {
		return loss, nil
	}
	return loss, m.Decoder.Backward(s, dY)
}
