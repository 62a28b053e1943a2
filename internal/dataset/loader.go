package dataset

import (
	"context"
	"encoding/gob"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Set is the on-disk representation of one instrument/split: a shared
// observed wavelength grid plus per-example flux, inverse variance, and
// redshift.
type Set struct {
	Wave []float64
	Spec [][]float64
	Ivar [][]float64
	Z    []float64
}

// Validate checks shape consistency of the stored arrays.
func (s *Set) Validate() error {
	if len(s.Wave) == 0 {
		return fmt.Errorf("dataset: empty wavelength grid")
	}
	if len(s.Spec) != len(s.Ivar) || len(s.Spec) != len(s.Z) {
		return fmt.Errorf("dataset: inconsistent example counts: %d spectra, %d weights, %d redshifts",
			len(s.Spec), len(s.Ivar), len(s.Z))
	}
	for i := range s.Spec {
		if len(s.Spec[i]) != len(s.Wave) || len(s.Ivar[i]) != len(s.Wave) {
			return fmt.Errorf("dataset: example %d has %d/%d bins, want %d", i, len(s.Spec[i]), len(s.Ivar[i]), len(s.Wave))
		}
	}
	return nil
}

// Path returns the dataset file location for an instrument and split.
func Path(dir, instrument, split string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.gob", instrument, split))
}

// Save writes a dataset file for the given instrument and split.
func Save(dir, instrument, split string, set *Set) error {
	if err := set.Validate(); err != nil {
		return err
	}
	path := Path(dir, instrument, split)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", path, err)
	}
	defer file.Close()
	if err := gob.NewEncoder(file).Encode(set); err != nil {
		return fmt.Errorf("encode dataset %s: %w", path, err)
	}
	return nil
}

// Load reads and validates a dataset file.
func Load(dir, instrument, split string) (*Set, error) {
	path := Path(dir, instrument, split)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer file.Close()
	set := new(Set)
	if err := gob.NewDecoder(file).Decode(set); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Loader serves shuffled batches from one dataset split. Batches are
// prefetched on a background goroutine; Reset restarts the sequence with a
// fresh shuffle.
type Loader struct {
	set       *Set
	batchSize int
	rng       *rand.Rand

	batches chan *Batch
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewLoader wraps an in-memory set. Seed fixes the shuffle order for tests.
func NewLoader(set *Set, batchSize int, seed int64) (*Loader, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size %d must be positive", batchSize)
	}
	return &Loader{
		set:       set,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// OpenLoader reads a dataset file and wraps it in a loader.
func OpenLoader(dir, instrument, split string, batchSize int, seed int64) (*Loader, error) {
	set, err := Load(dir, instrument, split)
	if err != nil {
		return nil, err
	}
	return NewLoader(set, batchSize, seed)
}

// Wave returns the observed wavelength grid shared by all examples.
func (l *Loader) Wave() []float64 { return l.set.Wave }

// Samples returns the number of examples in the split.
func (l *Loader) Samples() int { return len(l.set.Spec) }

// Reset shuffles the example order and restarts batch prefetch. Any batches
// remaining from a previous pass are discarded.
func (l *Loader) Reset(ctx context.Context) {
	l.stop()

	order := l.rng.Perm(len(l.set.Spec))
	prefetchCtx, cancel := context.WithCancel(ctx)
	group, prefetchCtx := errgroup.WithContext(prefetchCtx)
	batches := make(chan *Batch, 2)

	group.Go(func() error {
		defer close(batches)
		for start := 0; start < len(order); start += l.batchSize {
			end := start + l.batchSize
			if end > len(order) {
				end = len(order)
			}
			batch := l.gather(order[start:end])
			select {
			case batches <- batch:
			case <-prefetchCtx.Done():
				return prefetchCtx.Err()
			}
		}
		return nil
	})

	l.batches = batches
	l.group = group
	l.cancel = cancel
}

// Next returns the next prefetched batch, or false when the pass is
// exhausted. Reset must have been called first.
func (l *Loader) Next() (*Batch, bool) {
	if l.batches == nil {
		return nil, false
	}
	batch, ok := <-l.batches
	return batch, ok
}

// Close stops prefetching and releases the loader.
func (l *Loader) Close() error {
	l.stop()
	return nil
}

func (l *Loader) stop() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.group != nil {
		_ = l.group.Wait()
		l.group = nil
	}
	l.batches = nil
}

func (l *Loader) gather(indices []int) *Batch {
	bins := len(l.set.Wave)
	spec := mat.NewDense(len(indices), bins, nil)
	weight := mat.NewDense(len(indices), bins, nil)
	z := make([]float64, len(indices))
	for row, idx := range indices {
		copy(spec.RawRowView(row), l.set.Spec[idx])
		copy(weight.RawRowView(row), l.set.Ivar[idx])
		z[row] = l.set.Z[idx]
	}
	return &Batch{Spec: spec, Weight: weight, Z: z}
}
