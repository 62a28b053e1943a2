package losses

import (
	"gonum.org/v1/gonum/mat"

	"restframe/internal/autoenc"
	"restframe/internal/dataset"
)

// NTerms is the number of individually tracked loss terms.
const NTerms = 5

// Term indexes into a loss-history row.
const (
	TermFidelity = iota
	TermSimilarity
	TermAugFidelity
	TermAugSimilarity
	TermConsistency
)

// TermNames labels the tracked loss terms in history order.
var TermNames = [NTerms]string{"fidelity", "similarity", "aug_fidelity", "aug_similarity", "consistency"}

// Terms holds the five loss terms of one batch. The driver sums them for
// the gradient step but logs them individually.
type Terms struct {
	Fidelity      float64
	Similarity    float64
	AugFidelity   float64
	AugSimilarity float64
	Consistency   float64
}

// Sum returns the composite loss.
func (t Terms) Sum() float64 {
	return t.Fidelity + t.Similarity + t.AugFidelity + t.AugSimilarity + t.Consistency
}

// Values returns the terms in history order.
func (t Terms) Values() [NTerms]float64 {
	return [NTerms]float64{t.Fidelity, t.Similarity, t.AugFidelity, t.AugSimilarity, t.Consistency}
}

// Augmenter produces a perturbed view of a batch, constrained to redshifts
// at or below the ceiling.
type Augmenter interface {
	Augment(batch *dataset.Batch, zMax float64) *dataset.Batch
}

// Options selects which loss terms are active for a batch.
type Options struct {
	Similarity  bool
	Consistency bool
	// Variant selects the similarity regularizer: "restframe" (default)
	// compares decoded spectra, "observed" compares the measured spectra
	// shifted to restframe.
	Variant string
	Slope   float64
	ZMax    float64
	Augment Augmenter // nil disables augmentation and consistency
}

// Compose evaluates the five loss terms for one batch. With train set,
// gradients accumulate into every trainable parameter reachable from the
// batch: the encoder, the shared decoder, and instrument calibration.
//
// The augmented view is encoded only; its fidelity and similarity terms are
// reported as zero and its latent code feeds the consistency term.
func Compose(m *autoenc.Model, batch *dataset.Batch, opts Options, train bool) Terms {
	var terms Terms

	s := m.Encode(batch.Spec)
	fidelity, dS := m.Fidelity(batch, s, train)
	terms.Fidelity = fidelity

	if opts.Similarity {
		var sim float64
		var dSim *mat.Dense
		if opts.Variant == "observed" {
			sim, dSim = ObservedSimilarity(m, batch, s, opts.Slope, train)
		} else {
			sim, dSim = RestframeSimilarity(m, s, opts.Slope, train)
		}
		terms.Similarity = sim
		if dSim != nil {
			dS.Add(dS, dSim)
		}
	}

	var augBatch *dataset.Batch
	var sAug, dSAug *mat.Dense
	if opts.Augment != nil {
		augBatch = opts.Augment.Augment(batch, opts.ZMax)
		sAug = m.Encode(augBatch.Spec)
		// skip semantics: the augmented view contributes only its latent
		terms.AugFidelity = 0
		terms.AugSimilarity = 0
	}

	if opts.Consistency && sAug != nil {
		cons, dCons, dConsAug := Consistency(s, sAug, opts.Slope, train)
		terms.Consistency = cons
		if dCons != nil {
			dS.Add(dS, dCons)
			dSAug = dConsAug
		}
	}

	if train {
		m.EncodeBackward(batch.Spec, dS)
		if dSAug != nil {
			m.EncodeBackward(augBatch.Spec, dSAug)
		}
	}
	return terms
}
