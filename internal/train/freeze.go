// Package train drives the per-epoch, per-encoder, per-batch training and
// validation loops, ties the curriculum, annealing, loss composition, and
// checkpointing together, and owns the resume logic.
package train

import (
	"restframe/internal/autoenc"
	"restframe/internal/curriculum"
)

// ApplyStage sets parameter trainability for the coming epoch from the
// stage's capability descriptor: each encoder follows its own flag, every
// decoder (usually a single shared instance) follows the decoder flag.
// Instrument calibration parameters are not curriculum-controlled.
func ApplyStage(models []*autoenc.Model, stage curriculum.Stage) {
	for i, m := range models {
		m.Encoder.Weight.Trainable = stage.EncoderTrainable[i]
		m.Encoder.Bias.Trainable = stage.EncoderTrainable[i]
	}
	seen := map[*autoenc.Decoder]bool{}
	for _, m := range models {
		if seen[m.Decoder] {
			continue
		}
		seen[m.Decoder] = true
		m.Decoder.Weight.Trainable = stage.DecoderTrainable
		m.Decoder.Bias.Trainable = stage.DecoderTrainable
	}
}
