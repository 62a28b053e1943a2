package testsupport

import (
	"math"
	"math/rand"
	"testing"

	"restframe/internal/dataset"
)

// NewSet builds a synthetic dataset: smooth continua with a broad emission
// bump, unit-scale inverse variances, and redshifts spread up to zMax.
func NewSet(t testing.TB, samples, bins int, zMax float64, seed int64) *dataset.Set {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	set := &dataset.Set{
		Wave: make([]float64, bins),
		Spec: make([][]float64, samples),
		Ivar: make([][]float64, samples),
		Z:    make([]float64, samples),
	}
	for j := range set.Wave {
		set.Wave[j] = 3600 + 0.8*float64(j)
	}
	for i := 0; i < samples; i++ {
		set.Spec[i] = make([]float64, bins)
		set.Ivar[i] = make([]float64, bins)
		amp := 0.5 + rng.Float64()
		center := set.Wave[bins/4+rng.Intn(bins/2)]
		for j, w := range set.Wave {
			bump := math.Exp(-0.5 * math.Pow((w-center)/80, 2))
			set.Spec[i][j] = amp * (1 + 0.5*bump)
			set.Ivar[i][j] = 10 + 5*rng.Float64()
		}
		set.Z[i] = zMax * rng.Float64()
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("synthetic set invalid: %v", err)
	}
	return set
}

// WriteSet persists a synthetic split under dir and returns the set. Loaders
// opened via dataset.OpenLoader will find it by instrument and split name.
func WriteSet(t testing.TB, dir, instrument, split string, samples, bins int, zMax float64, seed int64) *dataset.Set {
	t.Helper()

	set := NewSet(t, samples, bins, zMax, seed)
	if err := dataset.Save(dir, instrument, split, set); err != nil {
		t.Fatalf("save %s %s split: %v", instrument, split, err)
	}
	return set
}

// MustLoader wraps a set in a loader and registers cleanup.
func MustLoader(t testing.TB, set *dataset.Set, batchSize int, seed int64) *dataset.Loader {
	t.Helper()

	loader, err := dataset.NewLoader(set, batchSize, seed)
	if err != nil {
		t.Fatalf("dataset.NewLoader: %v", err)
	}
	t.Cleanup(func() {
		loader.Close()
	})
	return loader
}
