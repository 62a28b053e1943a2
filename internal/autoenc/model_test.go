package autoenc_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"restframe/internal/autoenc"
	"restframe/internal/dataset"
	"restframe/internal/instrument"
)

func observedGrid(bins int) []float64 {
	wave := make([]float64, bins)
	for i := range wave {
		wave[i] = 4000 + 2*float64(i)
	}
	return wave
}

func newTestModel(t *testing.T, bins, latents int, zMax float64) (*autoenc.Model, *instrument.Instrument) {
	t.Helper()
	wave := observedGrid(bins)
	inst, err := instrument.New("test", wave, 1)
	if err != nil {
		t.Fatalf("instrument.New: %v", err)
	}
	rest := autoenc.RestframeGrid(wave, zMax)
	decoder := autoenc.NewDecoder(rest, latents)
	return autoenc.NewModel(inst, decoder, latents), inst
}

func newTestBatch(bins, rows int) *dataset.Batch {
	spec := mat.NewDense(rows, bins, nil)
	weight := mat.NewDense(rows, bins, nil)
	z := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < bins; j++ {
			spec.Set(i, j, 1+0.1*float64(i)+0.01*float64(j%7))
			weight.Set(i, j, 10)
		}
		z[i] = 0.05 * float64(i)
	}
	return &dataset.Batch{Spec: spec, Weight: weight, Z: z}
}

func TestEncodeDecodeShapes(t *testing.T) {
	m, _ := newTestModel(t, 40, 3, 0.2)
	batch := newTestBatch(40, 5)

	s := m.Encode(batch.Spec)
	rows, k := s.Dims()
	if rows != 5 || k != 3 {
		t.Fatalf("latent shape: got %dx%d want 5x3", rows, k)
	}

	y := m.Decode(s)
	rows, bins := y.Dims()
	if rows != 5 || bins != len(m.Decoder.WaveRest) {
		t.Fatalf("decoded shape: got %dx%d want 5x%d", rows, bins, len(m.Decoder.WaveRest))
	}
}

func TestRestframeGridCoversDeRedshiftedBlueEnd(t *testing.T) {
	wave := observedGrid(100)
	zMax := 0.5
	rest := autoenc.RestframeGrid(wave, zMax)
	if len(rest) < 2 {
		t.Fatalf("grid too small: %d bins", len(rest))
	}
	wantLo := wave[0] / (1 + zMax)
	if math.Abs(rest[0]-wantLo) > 1e-9 {
		t.Fatalf("grid start: got %v want %v", rest[0], wantLo)
	}
	if rest[len(rest)-1] != wave[len(wave)-1] {
		t.Fatalf("grid end: got %v want %v", rest[len(rest)-1], wave[len(wave)-1])
	}
}

// Fidelity gradients must match finite differences on every parameter the
// loss reaches.
func TestFidelityGradientsMatchFiniteDifferences(t *testing.T) {
	m, inst := newTestModel(t, 12, 2, 0.1)
	inst.EnableCalibration()
	batch := newTestBatch(12, 3)

	lossAt := func() float64 {
		s := m.Encode(batch.Spec)
		loss, _ := m.Fidelity(batch, s, false)
		return loss
	}

	s := m.Encode(batch.Spec)
	_, dS := m.Fidelity(batch, s, true)
	m.EncodeBackward(batch.Spec, dS)

	const h = 1e-6
	check := func(name string, p *autoenc.Param, idx int) {
		t.Helper()
		orig := p.Value[idx]
		p.Value[idx] = orig + h
		plus := lossAt()
		p.Value[idx] = orig - h
		minus := lossAt()
		p.Value[idx] = orig
		want := (plus - minus) / (2 * h)
		got := p.Grad[idx]
		if math.Abs(got-want) > 1e-4*(1+math.Abs(want)) {
			t.Fatalf("%s[%d] gradient: got %v want %v", name, idx, got, want)
		}
	}

	check("encoder.weight", m.Encoder.Weight, 5)
	check("encoder.bias", m.Encoder.Bias, 0)
	check("decoder.weight", m.Decoder.Weight, 7)
	check("decoder.bias", m.Decoder.Bias, 3)
	check("calibration", inst.Calibration(), 6)
}

func TestFrozenDecoderReceivesNoGradient(t *testing.T) {
	m, _ := newTestModel(t, 16, 2, 0.1)
	m.Decoder.Weight.Trainable = false
	m.Decoder.Bias.Trainable = false
	batch := newTestBatch(16, 2)

	s := m.Encode(batch.Spec)
	_, dS := m.Fidelity(batch, s, true)
	m.EncodeBackward(batch.Spec, dS)

	for i, g := range m.Decoder.Weight.Grad {
		if g != 0 {
			t.Fatalf("frozen decoder weight grad[%d] = %v, want 0", i, g)
		}
	}
	for i, g := range m.Decoder.Bias.Grad {
		if g != 0 {
			t.Fatalf("frozen decoder bias grad[%d] = %v, want 0", i, g)
		}
	}
	// the gradient still flows through the decoder to the encoder
	nonZero := false
	for _, g := range m.Encoder.Weight.Grad {
		if g != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("encoder gradient vanished behind a frozen decoder")
	}
}

func TestStateRoundTrip(t *testing.T) {
	m, inst := newTestModel(t, 20, 2, 0.1)
	inst.EnableCalibration()
	m.Encoder.Weight.Value[3] = 0.5
	m.Decoder.Bias.Value[2] = -1.25
	inst.Calibration().Value[4] = 1.1

	state := m.State()

	other, otherInst := newTestModel(t, 20, 2, 0.1)
	otherInst.EnableCalibration()
	if err := other.LoadState(state); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if other.Encoder.Weight.Value[3] != 0.5 {
		t.Fatalf("encoder weight not restored: %v", other.Encoder.Weight.Value[3])
	}
	if other.Decoder.Bias.Value[2] != -1.25 {
		t.Fatalf("decoder bias not restored: %v", other.Decoder.Bias.Value[2])
	}
	if otherInst.Calibration().Value[4] != 1.1 {
		t.Fatalf("calibration not restored: %v", otherInst.Calibration().Value[4])
	}
}

func TestLoadStateRequiresBuffers(t *testing.T) {
	m, _ := newTestModel(t, 10, 2, 0.1)
	state := m.State()
	delete(state, autoenc.KeyWaveObs)
	if err := m.LoadState(state); err == nil {
		t.Fatal("expected error for missing wave_obs buffer")
	}
}

func TestLoadStateRejectsLengthMismatch(t *testing.T) {
	m, _ := newTestModel(t, 10, 2, 0.1)
	state := m.State()
	state[autoenc.KeyEncoderWeight] = state[autoenc.KeyEncoderWeight][:3]
	if err := m.LoadState(state); err == nil {
		t.Fatal("expected error for truncated parameter")
	}
}

func TestLoadStateIsPermissiveAboutMissingParams(t *testing.T) {
	m, _ := newTestModel(t, 10, 2, 0.1)
	before := m.Encoder.Weight.Value[0]
	state := m.State()
	delete(state, autoenc.KeyEncoderWeight)
	if err := m.LoadState(state); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if m.Encoder.Weight.Value[0] != before {
		t.Fatal("missing parameter key should keep current values")
	}
}
