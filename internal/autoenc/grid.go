package autoenc

// restframeBinWidth is the wavelength spacing of the shared restframe grid
// in Angstrom.
const restframeBinWidth = 0.8

// RestframeGrid derives the shared restframe wavelength grid from an
// instrument's observed grid and the redshift ceiling. For an extragalactic
// ceiling the grid spans from the bluest observed bin de-redshifted by zMax
// up to the reddest observed bin; for a near-zero ceiling the range expands
// symmetrically to cover small blue- and redshifts.
func RestframeGrid(waveObs []float64, zMax float64) []float64 {
	if len(waveObs) == 0 {
		return nil
	}
	lo := waveObs[0] / (1.0 + zMax)
	hi := waveObs[len(waveObs)-1]
	if zMax <= 0.01 {
		hi = waveObs[len(waveObs)-1] / (1.0 - zMax)
	}
	bins := int((hi - lo) / restframeBinWidth)
	if bins < 2 {
		bins = 2
	}
	return linspace(lo, hi, bins)
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
