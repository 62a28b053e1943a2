package config

import "fmt"

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Logging.Format)
	}
	if c.Training.Latents <= 0 {
		return fmt.Errorf("config: latents must be positive, got %d", c.Training.Latents)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Training.BatchCap < 0 {
		return fmt.Errorf("config: batch_cap must not be negative, got %d", c.Training.BatchCap)
	}
	if c.Training.Rate <= 0 {
		return fmt.Errorf("config: rate must be positive, got %v", c.Training.Rate)
	}
	if c.Training.ZMax < 0 {
		return fmt.Errorf("config: z_max must not be negative, got %v", c.Training.ZMax)
	}
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("config: epochs must be positive, got %d", c.Training.Epochs)
	}
	switch c.Training.SimilarityVariant {
	case "restframe", "observed":
	default:
		return fmt.Errorf("config: unsupported similarity_variant %q", c.Training.SimilarityVariant)
	}
	if len(c.Instruments.Names) == 0 {
		return fmt.Errorf("config: at least one instrument is required")
	}
	nEncoder := len(c.Instruments.Names)
	for i, stage := range c.Stages {
		if stage.Iterations <= 0 {
			return fmt.Errorf("config: stage %d (%s) iterations must be positive, got %d", i, stage.Name, stage.Iterations)
		}
		if len(stage.Encoder) > nEncoder || len(stage.Data) > nEncoder {
			return fmt.Errorf("config: stage %d (%s) lists more encoder/data flags than the %d configured instruments", i, stage.Name, nEncoder)
		}
	}
	return nil
}
