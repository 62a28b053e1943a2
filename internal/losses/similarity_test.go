package losses_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"restframe/internal/autoenc"
	"restframe/internal/dataset"
	"restframe/internal/instrument"
	"restframe/internal/losses"
)

func newSimModel(t *testing.T, bins, latents int) *autoenc.Model {
	t.Helper()
	wave := make([]float64, bins)
	for i := range wave {
		wave[i] = 3800 + 10*float64(i)
	}
	inst, err := instrument.New("sim", wave, 7)
	if err != nil {
		t.Fatalf("instrument.New: %v", err)
	}
	rest := autoenc.RestframeGrid(wave, 0.2)
	decoder := autoenc.NewDecoder(rest, latents)
	return autoenc.NewModel(inst, decoder, latents)
}

func latents(rows, k int, fill func(i, j int) float64) *mat.Dense {
	s := mat.NewDense(rows, k, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < k; j++ {
			s.Set(i, j, fill(i, j))
		}
	}
	return s
}

func TestRestframeSimilaritySingletonBatchIsZero(t *testing.T) {
	m := newSimModel(t, 50, 2)
	s := latents(1, 2, func(i, j int) float64 { return 1 })
	loss, dS := losses.RestframeSimilarity(m, s, 1.0, true)
	if loss != 0 || dS != nil {
		t.Fatalf("singleton batch: got loss %v, dS %v", loss, dS)
	}
}

// With a zero slope the pair penalty is flat, so the loss reduces to a
// constant per pair and the gradient vanishes.
func TestRestframeSimilarityZeroSlopeIsFlat(t *testing.T) {
	m := newSimModel(t, 50, 2)
	rows := 4
	s := latents(rows, 2, func(i, j int) float64 { return float64(i) + 0.3*float64(j) })

	loss, dS := losses.RestframeSimilarity(m, s, 0, true)
	perPair := 2 * (1.0 / (1.0 + math.Exp(2.5)))
	want := float64(rows-1) * float64(rows) * perPair / float64(rows)
	if math.Abs(loss-want) > 1e-12 {
		t.Fatalf("flat loss: got %v want %v", loss, want)
	}
	rMax := mat.Norm(dS, math.Inf(1))
	if rMax != 0 {
		t.Fatalf("flat penalty should carry no gradient, max |dS| = %v", rMax)
	}
}

func TestRestframeSimilarityGradientMatchesFiniteDifferences(t *testing.T) {
	m := newSimModel(t, 30, 2)
	// keep decoded spectra of order one so the median normalization is
	// well conditioned for finite differences
	for i := range m.Decoder.Bias.Value {
		m.Decoder.Bias.Value[i] = 1
	}
	rows := 3
	s := latents(rows, 2, func(i, j int) float64 { return 0.5*float64(i) - 0.2*float64(j) })

	_, dS := losses.RestframeSimilarity(m, s, 1.5, true)
	if dS == nil {
		t.Fatal("expected latent gradient")
	}

	const h = 1e-6
	for _, idx := range [][2]int{{0, 0}, {1, 1}, {2, 0}} {
		orig := s.At(idx[0], idx[1])
		s.Set(idx[0], idx[1], orig+h)
		plus, _ := losses.RestframeSimilarity(m, s, 1.5, false)
		s.Set(idx[0], idx[1], orig-h)
		minus, _ := losses.RestframeSimilarity(m, s, 1.5, false)
		s.Set(idx[0], idx[1], orig)
		want := (plus - minus) / (2 * h)
		got := dS.At(idx[0], idx[1])
		if math.Abs(got-want) > 1e-5*(1+math.Abs(want)) {
			t.Fatalf("dS[%d,%d]: got %v want %v", idx[0], idx[1], got, want)
		}
	}
}

func TestObservedSimilarityGradientMatchesFiniteDifferences(t *testing.T) {
	m := newSimModel(t, 30, 2)
	rows := 3
	s := latents(rows, 2, func(i, j int) float64 { return 0.4*float64(i) + 0.1*float64(j) })

	spec := mat.NewDense(rows, 30, nil)
	weight := mat.NewDense(rows, 30, nil)
	z := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < 30; j++ {
			spec.Set(i, j, 1+0.2*float64(i)+0.05*float64(j%5))
			weight.Set(i, j, 8)
		}
		z[i] = 0.02 * float64(i)
	}
	batch := &dataset.Batch{Spec: spec, Weight: weight, Z: z}

	loss, dS := losses.ObservedSimilarity(m, batch, s, 1.2, true)
	if loss == 0 || dS == nil {
		t.Fatalf("expected active loss and gradient, got %v / %v", loss, dS)
	}

	const h = 1e-6
	for _, idx := range [][2]int{{0, 1}, {2, 0}} {
		orig := s.At(idx[0], idx[1])
		s.Set(idx[0], idx[1], orig+h)
		plus, _ := losses.ObservedSimilarity(m, batch, s, 1.2, false)
		s.Set(idx[0], idx[1], orig-h)
		minus, _ := losses.ObservedSimilarity(m, batch, s, 1.2, false)
		s.Set(idx[0], idx[1], orig)
		want := (plus - minus) / (2 * h)
		got := dS.At(idx[0], idx[1])
		if math.Abs(got-want) > 1e-5*(1+math.Abs(want)) {
			t.Fatalf("dS[%d,%d]: got %v want %v", idx[0], idx[1], got, want)
		}
	}
}

func TestRestframeWeightPeaksAtCenter(t *testing.T) {
	w := losses.RestframeWeight([]float64{4000, 5000, 6000})
	if w[1] != 30 {
		t.Fatalf("peak weight: got %v want 30", w[1])
	}
	if w[0] >= w[1] || w[2] >= w[1] {
		t.Fatalf("weight should peak at 5000 Angstrom: %v", w)
	}
	if math.Abs(w[0]-w[2]) > 1e-12 {
		t.Fatalf("weight should be symmetric about the peak: %v vs %v", w[0], w[2])
	}
}
