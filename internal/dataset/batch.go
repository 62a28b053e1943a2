// Package dataset loads instrument spectra from disk and serves them as
// shuffled, finite, restartable batch sequences.
package dataset

import "gonum.org/v1/gonum/mat"

// Batch is one mini-batch of observed spectra: flux values, inverse-variance
// weights of the same shape, and one redshift per example.
type Batch struct {
	Spec   *mat.Dense
	Weight *mat.Dense
	Z      []float64
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	if b == nil || b.Spec == nil {
		return 0
	}
	rows, _ := b.Spec.Dims()
	return rows
}

// Bins returns the number of wavelength bins per spectrum.
func (b *Batch) Bins() int {
	if b == nil || b.Spec == nil {
		return 0
	}
	_, cols := b.Spec.Dims()
	return cols
}

// Clone returns a deep copy of the batch. Augmentation functions mutate the
// copy and must leave the original untouched.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	clone := &Batch{Z: append([]float64(nil), b.Z...)}
	if b.Spec != nil {
		clone.Spec = mat.DenseCopyOf(b.Spec)
	}
	if b.Weight != nil {
		clone.Weight = mat.DenseCopyOf(b.Weight)
	}
	return clone
}
