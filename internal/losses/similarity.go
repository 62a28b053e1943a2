// Package losses composes the multi-term training loss: reconstruction
// fidelity, two similarity regularizers relating latent distances to
// spectral distances, and a consistency regularizer between a batch and its
// augmented view.
package losses

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"restframe/internal/autoenc"
	"restframe/internal/dataset"
)

const (
	// simWidth is the dead-zone width of the even pairwise penalty.
	simWidth = 5.0

	// reference window for median flux normalization, Angstrom
	refWindowLo = 4000.0
	refWindowHi = 7000.0

	// Gaussian restframe diagnostic weight
	restframeAmp   = 30.0
	restframeMu    = 5000.0
	restframeSigma = 2000.0

	// amplitude of the observed-frame similarity variant
	observedAmp = 3.0

	// inverse-variance entries at or below this are treated as empty bins
	minIvar = 1e-6
)

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func sigmoidPrime(x float64) float64 {
	s := sigmoid(x)
	return s * (1 - s)
}

// pairPenalty is the even penalty applied to x = latent dissimilarity minus
// spectral dissimilarity: small near x = 0, saturating for large |x|.
func pairPenalty(x, slope float64) float64 {
	return sigmoid(slope*x-simWidth/2) + sigmoid(-slope*x-simWidth/2)
}

func pairPenaltyGrad(x, slope float64) float64 {
	return slope * (sigmoidPrime(slope*x-simWidth/2) - sigmoidPrime(-slope*x-simWidth/2))
}

// RestframeWeight evaluates the Gaussian diagnostic weight on a restframe
// grid, emphasizing the wavelengths where reconstructions are most
// informative.
func RestframeWeight(wave []float64) []float64 {
	out := make([]float64, len(wave))
	for i, x := range wave {
		d := 0.5 * (x - restframeMu) / restframeSigma
		out[i] = restframeAmp * math.Exp(-d*d)
	}
	return out
}

// latentDissimilarity fills sim[i][j] with the mean squared latent distance
// between examples i and j.
func latentDissimilarity(s *mat.Dense) [][]float64 {
	rows, k := s.Dims()
	sim := make([][]float64, rows)
	for i := range sim {
		sim[i] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		si := s.RawRowView(i)
		for j := i + 1; j < rows; j++ {
			sj := s.RawRowView(j)
			sum := 0.0
			for q := range si {
				d := si[q] - sj[q]
				sum += d * d
			}
			sum /= float64(k)
			sim[i][j] = sum
			sim[j][i] = sum
		}
	}
	return sim
}

// accumulateLatentGrad folds dL/dx through the latent dissimilarity into
// dS: for the ordered pair (i, j), d s_sim[i][j] / d s[i][q] is
// 2 (s[i][q]-s[j][q]) / k.
func accumulateLatentGrad(s, dS *mat.Dense, g [][]float64) {
	rows, k := s.Dims()
	for i := 0; i < rows; i++ {
		si := s.RawRowView(i)
		gi := dS.RawRowView(i)
		for j := 0; j < rows; j++ {
			if j == i {
				continue
			}
			// g[i][j] from pair (i,j) plus g[j][i] from pair (j,i)
			coeff := (g[i][j] + g[j][i]) * 2 / float64(k)
			if coeff == 0 {
				continue
			}
			sj := s.RawRowView(j)
			for q := range si {
				gi[q] += coeff * (si[q] - sj[q])
			}
		}
	}
}

// RestframeSimilarity penalizes pairs whose latent dissimilarity disagrees
// with the dissimilarity of their decoded restframe spectra, in either
// direction. Decoded spectra are normalized by their median flux inside the
// reference window before comparison. The pair penalty is summed over
// off-diagonal pairs and divided by batch size.
//
// When train is true, decoder gradients accumulate and the gradient with
// respect to the latents is returned.
func RestframeSimilarity(m *autoenc.Model, s *mat.Dense, slope float64, train bool) (float64, *mat.Dense) {
	rows, _ := s.Dims()
	if rows < 2 {
		return 0, nil
	}
	wave := m.Decoder.WaveRest
	nRest := len(wave)
	y := m.Decode(s)

	// median-window normalization, with the selected bin tracked for the
	// gradient path through the median
	norm := mat.NewDense(rows, nRest, nil)
	medians := make([]float64, rows)
	medianIdx := make([]int, rows)
	for i := 0; i < rows; i++ {
		med, idx := windowMedian(wave, y.RawRowView(i))
		medians[i] = med
		medianIdx[i] = idx
		src := y.RawRowView(i)
		dst := norm.RawRowView(i)
		for r := range src {
			dst[r] = src[r] / med
		}
	}

	weight := RestframeWeight(wave)
	specSim := make([][]float64, rows)
	for i := range specSim {
		specSim[i] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		ni := norm.RawRowView(i)
		for j := i + 1; j < rows; j++ {
			nj := norm.RawRowView(j)
			sum := 0.0
			for r := range ni {
				d := ni[r] - nj[r]
				sum += weight[r] * d * d
			}
			sum /= float64(nRest)
			specSim[i][j] = sum
			specSim[j][i] = sum
		}
	}

	latSim := latentDissimilarity(s)

	loss := 0.0
	var g [][]float64
	if train {
		g = make([][]float64, rows)
		for i := range g {
			g[i] = make([]float64, rows)
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			if j == i {
				continue
			}
			x := latSim[i][j] - specSim[i][j]
			loss += pairPenalty(x, slope)
			if train {
				g[i][j] = pairPenaltyGrad(x, slope) / float64(rows)
			}
		}
	}
	loss /= float64(rows)

	if !train {
		return loss, nil
	}

	dS := mat.NewDense(rows, m.Decoder.NLatent, nil)
	accumulateLatentGrad(s, dS, g)

	// spec_sim enters x with a negative sign
	dNorm := mat.NewDense(rows, nRest, nil)
	for i := 0; i < rows; i++ {
		ni := norm.RawRowView(i)
		di := dNorm.RawRowView(i)
		for j := 0; j < rows; j++ {
			if j == i {
				continue
			}
			coeff := -(g[i][j] + g[j][i]) * 2 / float64(nRest)
			if coeff == 0 {
				continue
			}
			nj := norm.RawRowView(j)
			for r := range ni {
				di[r] += coeff * weight[r] * (ni[r] - nj[r])
			}
		}
	}

	// chain through the normalization: norm = y / median(y), where the
	// median contributes through its selected bin only
	dY := mat.NewDense(rows, nRest, nil)
	for i := 0; i < rows; i++ {
		di := dNorm.RawRowView(i)
		ni := norm.RawRowView(i)
		out := dY.RawRowView(i)
		med := medians[i]
		dMed := 0.0
		for r := range di {
			out[r] += di[r] / med
			dMed -= di[r] * ni[r] / med
		}
		if idx := medianIdx[i]; idx >= 0 {
			out[idx] += dMed
		}
	}

	dSdec := m.Decoder.Backward(s, dY)
	dS.Add(dS, dSdec)
	return loss, dS
}

// windowMedian returns the median flux inside the reference window and the
// grid index of the selected bin. For even counts the lower middle element
// is selected. A zero median is replaced by 1 to keep the normalization
// finite; the returned index is -1 in that case since no gradient can flow
// through the guard.
func windowMedian(wave, y []float64) (float64, int) {
	type binValue struct {
		value float64
		index int
	}
	window := make([]binValue, 0, len(y))
	for r, w := range wave {
		if w > refWindowLo && w < refWindowHi {
			window = append(window, binValue{y[r], r})
		}
	}
	if len(window) == 0 {
		for r := range y {
			window = append(window, binValue{y[r], r})
		}
	}
	// selection by partial sort; window sizes are modest
	for i := 1; i < len(window); i++ {
		for j := i; j > 0 && window[j].value < window[j-1].value; j-- {
			window[j], window[j-1] = window[j-1], window[j]
		}
	}
	mid := window[(len(window)-1)/2]
	if mid.value == 0 {
		return 1, -1
	}
	return mid.value, mid.index
}

// ObservedSimilarity is the observed-frame variant of the similarity
// regularizer: the measured spectra themselves, shifted to restframe, stand
// in for the decoded reconstructions, with pairwise inverse-variance
// weighting. Pairs with no jointly covered bins are guarded against a zero
// denominator. Since the spectral side is data, gradient flows only through
// the latent dissimilarity.
func ObservedSimilarity(m *autoenc.Model, batch *dataset.Batch, s *mat.Dense, slope float64, train bool) (float64, *mat.Dense) {
	rows, _ := s.Dims()
	if rows < 2 {
		return 0, nil
	}
	waveObs := m.Instrument.ObsWave()
	waveRest := m.Decoder.WaveRest
	nRest := len(waveRest)

	rest := make([][]float64, rows)
	ivar := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		rest[i], ivar[i] = autoenc.ResampleToRestframe(
			waveObs, waveRest, batch.Spec.RawRowView(i), batch.Weight.RawRowView(i), batch.Z[i])
	}

	specSim := make([][]float64, rows)
	for i := range specSim {
		specSim[i] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		for j := i + 1; j < rows; j++ {
			sum := 0.0
			covered := 0
			for r := 0; r < nRest; r++ {
				wi, wj := ivar[i][r], ivar[j][r]
				if wi <= minIvar || wj <= minIvar {
					continue
				}
				covered++
				w := 1.0 / (1.0/wi + 1.0/wj)
				d := rest[i][r] - rest[j][r]
				sum += w * d * d
			}
			if covered == 0 {
				covered = 1
			}
			sum /= float64(covered)
			specSim[i][j] = sum
			specSim[j][i] = sum
		}
	}

	latSim := latentDissimilarity(s)

	loss := 0.0
	var g [][]float64
	if train {
		g = make([][]float64, rows)
		for i := range g {
			g[i] = make([]float64, rows)
		}
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			if j == i {
				continue
			}
			x := latSim[i][j] - specSim[i][j]
			loss += pairPenalty(x, slope)
			if train {
				g[i][j] = observedAmp * pairPenaltyGrad(x, slope) / float64(rows)
			}
		}
	}
	loss = observedAmp * loss / float64(rows)

	if !train {
		return loss, nil
	}
	dS := mat.NewDense(rows, m.Decoder.NLatent, nil)
	accumulateLatentGrad(s, dS, g)
	return loss, dS
}
