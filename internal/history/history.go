// Package history tracks per-epoch, per-encoder loss terms for both the
// training and validation phases, and carries the resume point for
// checkpointed runs.
package history

import "fmt"

// Phase indexes.
const (
	PhaseTrain = 0
	PhaseValid = 1
	Phases     = 2
)

// History is a dense [phase][encoder][epoch][term] array. Done counts the
// epochs that have fully completed; it is the authoritative resume point.
// Entries at later epochs are zero until trained; zero alone is ambiguous
// (legitimate losses can be zero), which is why Done exists; LastNonZero
// remains as the fallback for legacy checkpoints that predate the counter.
type History struct {
	Encoders int
	Epochs   int
	Terms    int
	Done     int
	V        []float64
}

// New allocates a zeroed history.
func New(encoders, epochs, terms int) *History {
	return &History{
		Encoders: encoders,
		Epochs:   epochs,
		Terms:    terms,
		V:        make([]float64, Phases*encoders*epochs*terms),
	}
}

// Validate checks the backing array length against the dimensions.
func (h *History) Validate() error {
	want := Phases * h.Encoders * h.Epochs * h.Terms
	if len(h.V) != want {
		return fmt.Errorf("history: backing array has %d values, dimensions require %d", len(h.V), want)
	}
	if h.Done < 0 || h.Done > h.Epochs {
		return fmt.Errorf("history: done counter %d outside [0, %d]", h.Done, h.Epochs)
	}
	return nil
}

func (h *History) index(phase, encoder, epoch, term int) int {
	return ((phase*h.Encoders+encoder)*h.Epochs+epoch)*h.Terms + term
}

// At returns one recorded loss value.
func (h *History) At(phase, encoder, epoch, term int) float64 {
	return h.V[h.index(phase, encoder, epoch, term)]
}

// Row returns the loss terms of one phase/encoder/epoch as a live slice.
func (h *History) Row(phase, encoder, epoch int) []float64 {
	start := h.index(phase, encoder, epoch, 0)
	return h.V[start : start+h.Terms]
}

// Accumulate adds batch loss terms into an epoch row.
func (h *History) Accumulate(phase, encoder, epoch int, terms []float64) {
	row := h.Row(phase, encoder, epoch)
	for i := range row {
		row[i] += terms[i]
	}
}

// Scale multiplies an epoch row, used to normalize accumulated sums by the
// number of samples seen.
func (h *History) Scale(phase, encoder, epoch int, factor float64) {
	row := h.Row(phase, encoder, epoch)
	for i := range row {
		row[i] *= factor
	}
}

// MarkDone records that the given epoch has fully completed.
func (h *History) MarkDone(epoch int) {
	if epoch+1 > h.Done {
		h.Done = epoch + 1
	}
}

// Completed returns the number of epochs safe to resume after: the explicit
// counter when present, otherwise the legacy non-zero scan.
func (h *History) Completed() int {
	if h.Done > 0 {
		return h.Done
	}
	return h.LastNonZero()
}

// LastNonZero returns one past the last epoch carrying any non-zero
// training-loss entry across all encoders. Zero-valued legitimate losses at
// the trailing epoch are indistinguishable from untrained entries here;
// prefer the Done counter.
func (h *History) LastNonZero() int {
	for epoch := h.Epochs - 1; epoch >= 0; epoch-- {
		for encoder := 0; encoder < h.Encoders; encoder++ {
			for term := 0; term < h.Terms; term++ {
				if h.At(PhaseTrain, encoder, epoch, term) != 0 {
					return epoch + 1
				}
			}
		}
	}
	return 0
}

// Resize returns a copy with the epoch axis trimmed or zero-padded to the
// given length. The Done counter is clamped to the new length.
func (h *History) Resize(epochs int) *History {
	out := New(h.Encoders, epochs, h.Terms)
	keep := h.Epochs
	if epochs < keep {
		keep = epochs
	}
	for phase := 0; phase < Phases; phase++ {
		for encoder := 0; encoder < h.Encoders; encoder++ {
			for epoch := 0; epoch < keep; epoch++ {
				copy(out.Row(phase, encoder, epoch), h.Row(phase, encoder, epoch))
			}
		}
	}
	out.Done = h.Done
	if out.Done > epochs {
		out.Done = epochs
	}
	return out
}
