// Package instrument models the physical spectrographs feeding the trainer:
// their observed wavelength grids, skyline contamination masks, optional
// trainable flux-calibration parameters, and the data augmentation used for
// the consistency regularizer.
package instrument

import (
	"fmt"
	"math"
	"math/rand"

	"restframe/internal/autoenc"
	"restframe/internal/dataset"
)

// Instrument describes one spectrograph. It satisfies autoenc.Observed.
type Instrument struct {
	Name    string
	Wave    []float64
	Skyline []bool

	calib    *autoenc.Param
	training bool
	rng      *rand.Rand
}

// New constructs an instrument over an observed wavelength grid.
func New(name string, wave []float64, seed int64) (*Instrument, error) {
	if len(wave) < 2 {
		return nil, fmt.Errorf("instrument %s: observed grid needs at least 2 bins, got %d", name, len(wave))
	}
	for i := 1; i < len(wave); i++ {
		if wave[i] <= wave[i-1] {
			return nil, fmt.Errorf("instrument %s: observed grid not ascending at bin %d", name, i)
		}
	}
	return &Instrument{
		Name:    name,
		Wave:    append([]float64(nil), wave...),
		Skyline: make([]bool, len(wave)),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// EnableCalibration attaches a trainable per-bin flux calibration vector,
// initialized to unity. Calibration parameters train at their own learning
// rate, separate from representation parameters.
func (it *Instrument) EnableCalibration() *autoenc.Param {
	if it.calib == nil {
		it.calib = autoenc.NewParam(autoenc.KeyCalibration, len(it.Wave))
		for i := range it.calib.Value {
			it.calib.Value[i] = 1
		}
	}
	return it.calib
}

// MaskSkylines marks observed bins within halfWidth of the given sky
// emission wavelengths; fidelity ignores masked bins.
func (it *Instrument) MaskSkylines(lines []float64, halfWidth float64) {
	for i, w := range it.Wave {
		for _, line := range lines {
			if math.Abs(w-line) <= halfWidth {
				it.Skyline[i] = true
				break
			}
		}
	}
}

// ObsWave returns the observed wavelength grid.
func (it *Instrument) ObsWave() []float64 { return it.Wave }

// SkylineMask returns the skyline contamination mask.
func (it *Instrument) SkylineMask() []bool { return it.Skyline }

// Calibration returns the trainable calibration parameters, or nil.
func (it *Instrument) Calibration() *autoenc.Param { return it.calib }

// Train switches the instrument into training mode.
func (it *Instrument) Train() { it.training = true }

// Eval switches the instrument into evaluation mode.
func (it *Instrument) Eval() { it.training = false }

// Training reports whether the instrument is in training mode.
func (it *Instrument) Training() bool { return it.training }

// Augment produces a perturbed view of the batch for the consistency
// regularizer: each example is shifted to a nearby redshift, never exceeding
// zMax, and re-noised according to its inverse variance. The input batch is
// left untouched.
func (it *Instrument) Augment(batch *dataset.Batch, zMax float64) *dataset.Batch {
	out := batch.Clone()
	rows := out.Size()
	for row := 0; row < rows; row++ {
		z := batch.Z[row]
		zNew := z + it.rng.NormFloat64()*0.02*(1+z)
		if zNew < 0 {
			zNew = 0
		}
		if zNew > zMax {
			zNew = zMax
		}
		// shifting observed wavelengths by (1+zNew)/(1+z) is the same as
		// sampling the old spectrum as if de-redshifted by zEff
		zEff := (1+zNew)/(1+z) - 1
		spec := batch.Spec.RawRowView(row)
		weight := batch.Weight.RawRowView(row)
		shifted := autoenc.ResampleToObserved(it.Wave, spec, it.Wave, zEff)
		shiftedWeight := autoenc.ResampleToObserved(it.Wave, weight, it.Wave, zEff)
		outSpec := out.Spec.RawRowView(row)
		outWeight := out.Weight.RawRowView(row)
		for o := range outSpec {
			outSpec[o] = shifted[o]
			outWeight[o] = shiftedWeight[o]
			if shiftedWeight[o] > 1e-6 {
				outSpec[o] += it.rng.NormFloat64() / math.Sqrt(shiftedWeight[o])
			}
		}
		out.Z[row] = zNew
	}
	return out
}
