// Package curriculum expands a declarative multi-stage training plan into
// per-epoch schedules: a stage ladder and an annealing slope sequence.
package curriculum

import (
	"errors"
	"fmt"
)

// Stage fixes parameter trainability and active data sources for a run of
// epochs. EncoderTrainable and DataActive carry one entry per encoder.
type Stage struct {
	Name             string
	Iterations       int
	DecoderTrainable bool
	EncoderTrainable []bool
	DataActive       []bool
}

// Curriculum is an ordered sequence of stages.
type Curriculum []Stage

// ErrEmptyCurriculum is returned when a curriculum contains no stages.
var ErrEmptyCurriculum = errors.New("curriculum: no stages configured")

// Full returns the default single-stage curriculum: every encoder active and
// trainable, shared decoder trainable, for the given number of epochs.
func Full(nEncoder, iterations int) Curriculum {
	enc := make([]bool, nEncoder)
	data := make([]bool, nEncoder)
	for i := range enc {
		enc[i] = true
		data[i] = true
	}
	return Curriculum{{
		Name:             "full",
		Iterations:       iterations,
		DecoderTrainable: true,
		EncoderTrainable: enc,
		DataActive:       data,
	}}
}

// Validate checks stage shape invariants against the encoder count.
func (c Curriculum) Validate(nEncoder int) error {
	if len(c) == 0 {
		return ErrEmptyCurriculum
	}
	for i, stage := range c {
		if stage.Iterations <= 0 {
			return fmt.Errorf("curriculum: stage %d (%s) has non-positive iteration count %d", i, stage.Name, stage.Iterations)
		}
		if len(stage.EncoderTrainable) != nEncoder {
			return fmt.Errorf("curriculum: stage %d (%s) has %d encoder flags, want %d", i, stage.Name, len(stage.EncoderTrainable), nEncoder)
		}
		if len(stage.DataActive) != nEncoder {
			return fmt.Errorf("curriculum: stage %d (%s) has %d data flags, want %d", i, stage.Name, len(stage.DataActive), nEncoder)
		}
	}
	return nil
}

// TotalEpochs returns the summed iteration count over all stages.
func (c Curriculum) TotalEpochs() int {
	total := 0
	for _, stage := range c {
		total += stage.Iterations
	}
	return total
}

// BuildLadder flattens the curriculum into a per-epoch stage-index array:
// ladder[e] is the index of the stage governing epoch e.
func BuildLadder(c Curriculum) ([]int, error) {
	if len(c) == 0 {
		return nil, ErrEmptyCurriculum
	}
	for i, stage := range c {
		if stage.Iterations <= 0 {
			return nil, fmt.Errorf("curriculum: stage %d (%s) has non-positive iteration count %d", i, stage.Name, stage.Iterations)
		}
	}
	ladder := make([]int, 0, c.TotalEpochs())
	for i, stage := range c {
		for n := 0; n < stage.Iterations; n++ {
			ladder = append(ladder, i)
		}
	}
	return ladder, nil
}
