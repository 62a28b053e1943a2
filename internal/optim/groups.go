// Package optim implements the optimizer used by the training loop: Adam
// over parameter groups, a one-cycle learning-rate schedule stepped per
// epoch, and global gradient-norm clipping.
package optim

import "restframe/internal/autoenc"

// CalibrationLR is the fixed learning rate of instrument calibration
// parameters; physical calibration adapts more conservatively than the
// representation.
const CalibrationLR = 1e-4

// Group is one optimizer parameter group with its own learning rate.
type Group struct {
	Params []*autoenc.Param
	LR     float64
}

// CollectGroups builds optimizer parameter groups once, before training
// starts. Group 0 holds every encoder's parameters plus the shared
// decoder's parameters and serves as the gradient-clipping target; group 1
// exists only when instruments carry calibration parameters. Trainability
// changes during the run do not rebuild groups; a step over a frozen
// parameter is a no-op because it receives no gradient.
func CollectGroups(models []*autoenc.Model, lr float64) []Group {
	var representation []*autoenc.Param
	seenDecoders := map[*autoenc.Decoder]bool{}
	var calibration []*autoenc.Param
	seenCalib := map[*autoenc.Param]bool{}

	for _, m := range models {
		representation = append(representation, m.Encoder.Weight, m.Encoder.Bias)
		if !seenDecoders[m.Decoder] {
			seenDecoders[m.Decoder] = true
			representation = append(representation, m.Decoder.Weight, m.Decoder.Bias)
		}
		if calib := m.Instrument.Calibration(); calib != nil && !seenCalib[calib] {
			seenCalib[calib] = true
			calibration = append(calibration, calib)
		}
	}

	groups := []Group{{Params: representation, LR: lr}}
	if len(calibration) > 0 {
		groups = append(groups, Group{Params: calibration, LR: CalibrationLR})
	}
	return groups
}

// CountParams returns the total number of scalar values across trainable
// parameters in the groups.
func CountParams(groups []Group) int {
	total := 0
	for _, group := range groups {
		for _, p := range group.Params {
			if p.Trainable {
				total += len(p.Value)
			}
		}
	}
	return total
}
