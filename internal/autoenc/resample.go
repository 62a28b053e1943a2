package autoenc

import "sort"

// bracket locates target wavelength t on the ascending grid wave and
// returns the lower bin index plus the interpolation fraction toward the
// next bin. ok is false when t falls outside the grid.
func bracket(wave []float64, t float64) (lo int, alpha float64, ok bool) {
	n := len(wave)
	if t < wave[0] || t > wave[n-1] {
		return 0, 0, false
	}
	hi := sort.SearchFloat64s(wave, t)
	if hi == 0 {
		return 0, 0, true
	}
	if hi >= n {
		return n - 2, 1, true
	}
	lo = hi - 1
	return lo, (t - wave[lo]) / (wave[hi] - wave[lo]), true
}

// ResampleToObserved evaluates one restframe spectrum on an observed grid
// redshifted by z: the observed bin at wavelength w samples the restframe
// model at w/(1+z). Observed bins without restframe coverage read zero.
func ResampleToObserved(waveRest, y, waveObs []float64, z float64) []float64 {
	out := make([]float64, len(waveObs))
	for o, w := range waveObs {
		lo, alpha, ok := bracket(waveRest, w/(1.0+z))
		if ok {
			out[o] = (1-alpha)*y[lo] + alpha*y[lo+1]
		}
	}
	return out
}

// resampleAdjoint scatters observed-frame gradients back onto the restframe
// grid, the transpose of ResampleToObserved.
func resampleAdjoint(waveRest, waveObs []float64, z float64, gObs, gRest []float64) {
	for o, w := range waveObs {
		g := gObs[o]
		if g == 0 {
			continue
		}
		lo, alpha, ok := bracket(waveRest, w/(1.0+z))
		if !ok {
			continue
		}
		gRest[lo] += g * (1 - alpha)
		gRest[lo+1] += g * alpha
	}
}

// ResampleToRestframe shifts one observed spectrum and its weights onto the
// restframe grid. Restframe bins without observed coverage get zero weight.
func ResampleToRestframe(waveObs, waveRest, spec, weight []float64, z float64) (restSpec, restWeight []float64) {
	restSpec = make([]float64, len(waveRest))
	restWeight = make([]float64, len(waveRest))
	for r, w := range waveRest {
		lo, alpha, ok := bracket(waveObs, w*(1.0+z))
		if !ok {
			continue
		}
		restSpec[r] = (1-alpha)*spec[lo] + alpha*spec[lo+1]
		restWeight[r] = (1-alpha)*weight[lo] + alpha*weight[lo+1]
	}
	return restSpec, restWeight
}
