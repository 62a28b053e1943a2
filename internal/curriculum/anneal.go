package curriculum

// coolDownEpochs is the window at the end of a run in which the auxiliary
// regularizers are disabled regardless of the cyclic schedule position.
const coolDownEpochs = 10

// Anneal is a cyclic sequence of non-negative slope values indexed by epoch.
// The slope scales the restframe-similarity and consistency regularizers in
// lock-step.
type Anneal []float64

// DefaultAnneal returns the stock schedule 0.0, 0.1, ..., 1.9.
func DefaultAnneal() Anneal {
	const step = 0.1
	schedule := make(Anneal, 20)
	for i := range schedule {
		schedule[i] = float64(i) * step
	}
	return schedule
}

// SlopeAt returns the annealing slope for the given epoch. The cyclic lookup
// wraps with the schedule length; the cool-down override near the end of the
// run takes precedence and forces the slope to zero.
func (a Anneal) SlopeAt(epoch, totalEpochs int) float64 {
	if totalEpochs-epoch <= coolDownEpochs {
		return 0
	}
	if len(a) == 0 {
		return 0
	}
	return a[epoch%len(a)]
}
