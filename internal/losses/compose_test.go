package losses_test

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"restframe/internal/dataset"
	"restframe/internal/instrument"
	"restframe/internal/losses"
)

func composeBatch(bins, rows int) *dataset.Batch {
	spec := mat.NewDense(rows, bins, nil)
	weight := mat.NewDense(rows, bins, nil)
	z := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < bins; j++ {
			spec.Set(i, j, 1+0.1*float64(i)+0.02*float64(j%4))
			weight.Set(i, j, 12)
		}
		z[i] = 0.03 * float64(i)
	}
	return &dataset.Batch{Spec: spec, Weight: weight, Z: z}
}

func TestComposeFidelityOnly(t *testing.T) {
	m := newSimModel(t, 40, 2)
	batch := composeBatch(40, 3)

	terms := losses.Compose(m, batch, losses.Options{}, false)
	if terms.Fidelity <= 0 {
		t.Fatalf("fidelity: got %v want > 0", terms.Fidelity)
	}
	if terms.Similarity != 0 || terms.Consistency != 0 || terms.AugFidelity != 0 || terms.AugSimilarity != 0 {
		t.Fatalf("inactive terms should be zero: %+v", terms)
	}
	if terms.Sum() != terms.Fidelity {
		t.Fatalf("sum: got %v want %v", terms.Sum(), terms.Fidelity)
	}
}

func TestComposeSimilarityVariants(t *testing.T) {
	m := newSimModel(t, 40, 2)
	batch := composeBatch(40, 3)
	opts := losses.Options{Similarity: true, Slope: 1.0}

	restframe := losses.Compose(m, batch, opts, false)
	opts.Variant = "observed"
	observed := losses.Compose(m, batch, opts, false)

	if restframe.Similarity == 0 || observed.Similarity == 0 {
		t.Fatalf("similarity inactive: restframe %v, observed %v", restframe.Similarity, observed.Similarity)
	}
	if restframe.Similarity == observed.Similarity {
		t.Fatal("variants should produce different penalties on generic data")
	}
}

func TestComposeAugmentedViewContributesOnlyConsistency(t *testing.T) {
	wave := make([]float64, 40)
	for i := range wave {
		wave[i] = 3800 + 10*float64(i)
	}
	inst, err := instrument.New("aug", wave, 3)
	if err != nil {
		t.Fatalf("instrument.New: %v", err)
	}
	m := newSimModel(t, 40, 2)
	batch := composeBatch(40, 3)

	terms := losses.Compose(m, batch, losses.Options{
		Consistency: true,
		Slope:       1.0,
		ZMax:        0.3,
		Augment:     inst,
	}, true)

	if terms.AugFidelity != 0 || terms.AugSimilarity != 0 {
		t.Fatalf("augmented view must skip fidelity and similarity: %+v", terms)
	}
	if terms.Consistency <= 0 {
		t.Fatalf("consistency: got %v want > 0", terms.Consistency)
	}
}

func TestComposeTrainAccumulatesEncoderGradient(t *testing.T) {
	m := newSimModel(t, 40, 2)
	batch := composeBatch(40, 3)

	losses.Compose(m, batch, losses.Options{}, true)

	nonZero := false
	for _, g := range m.Encoder.Weight.Grad {
		if g != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("training pass left the encoder gradient empty")
	}
}

func TestComposeEvalLeavesGradientsEmpty(t *testing.T) {
	m := newSimModel(t, 40, 2)
	batch := composeBatch(40, 3)

	losses.Compose(m, batch, losses.Options{Similarity: true, Slope: 1.0}, false)

	for _, p := range []struct {
		name string
		grad []float64
	}{
		{"encoder.weight", m.Encoder.Weight.Grad},
		{"decoder.weight", m.Decoder.Weight.Grad},
	} {
		for i, g := range p.grad {
			if g != 0 {
				t.Fatalf("%s grad[%d] = %v after eval pass, want 0", p.name, i, g)
			}
		}
	}
}
