package losses

import "gonum.org/v1/gonum/mat"

// consistencyScale is the squared latent noise scale: per-example squared
// latent distances are divided by (0.5)^2 before the latent-dimensionality
// normalization.
const consistencyScale = 0.25

// Consistency penalizes latent drift between a batch and its augmented
// counterpart: the normalized squared latent distance per example passes
// through sigmoid(x) - 0.5 (zero at perfect alignment, saturating
// otherwise), summed over the batch and scaled by the annealing slope.
//
// When train is true the gradients with respect to both latent matrices are
// returned; they are exact opposites through the squared distance.
func Consistency(s, sAug *mat.Dense, slope float64, train bool) (float64, *mat.Dense, *mat.Dense) {
	rows, k := s.Dims()
	loss := 0.0
	var dS, dSAug *mat.Dense
	if train {
		dS = mat.NewDense(rows, k, nil)
		dSAug = mat.NewDense(rows, k, nil)
	}
	for row := 0; row < rows; row++ {
		a := s.RawRowView(row)
		b := sAug.RawRowView(row)
		x := 0.0
		for q := range a {
			d := b[q] - a[q]
			x += d * d / consistencyScale
		}
		x /= float64(k)
		loss += sigmoid(x) - 0.5
		if !train {
			continue
		}
		coeff := slope * sigmoidPrime(x) * 2 / (consistencyScale * float64(k))
		ga := dS.RawRowView(row)
		gb := dSAug.RawRowView(row)
		for q := range a {
			d := a[q] - b[q]
			ga[q] = coeff * d
			gb[q] = -coeff * d
		}
	}
	return slope * loss, dS, dSAug
}
