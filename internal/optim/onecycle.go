package optim

import "math"

// one-cycle shape constants matching the reference schedule
const (
	oneCyclePctStart       = 0.3
	oneCycleDivFactor      = 25.0
	oneCycleFinalDivFactor = 1e4
)

// OneCycle anneals learning rates over the run: a cosine ramp up to the
// configured peak for the first 30% of steps, then a cosine decay to a
// small terminal rate. Each group's rate is scaled relative to its own
// base so calibration parameters keep their lower rate throughout.
type OneCycle struct {
	opt        *Adam
	base       []float64
	totalSteps int
	step       int
}

// NewOneCycle wraps the optimizer; totalSteps is the number of scheduler
// steps over the whole run (one per epoch).
func NewOneCycle(opt *Adam, totalSteps int) *OneCycle {
	base := make([]float64, len(opt.Groups))
	for i, group := range opt.Groups {
		base[i] = group.LR
	}
	s := &OneCycle{opt: opt, base: base, totalSteps: totalSteps}
	s.apply()
	return s
}

// Step advances the schedule by one epoch and updates group learning rates.
func (s *OneCycle) Step() {
	if s.step < s.totalSteps {
		s.step++
	}
	s.apply()
}

// Factor returns the current multiplier applied to each group's base rate.
func (s *OneCycle) Factor() float64 {
	return factorAt(s.step, s.totalSteps)
}

func (s *OneCycle) apply() {
	f := s.Factor()
	for i := range s.opt.Groups {
		s.opt.Groups[i].LR = s.base[i] * f
	}
}

func factorAt(step, total int) float64 {
	if total <= 1 {
		return 1
	}
	low := 1.0 / oneCycleDivFactor
	final := low / oneCycleFinalDivFactor
	warm := oneCyclePctStart * float64(total)
	t := float64(step)
	if t <= warm {
		return low + (1-low)*(1-math.Cos(math.Pi*t/warm))/2
	}
	frac := (t - warm) / (float64(total) - warm)
	return final + (1-final)*(1+math.Cos(math.Pi*frac))/2
}
