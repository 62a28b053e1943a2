package config

import "strings"

// normalize expands paths and trims whitespace-only values back to their
// defaults.
func (c *Config) normalize() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	expanded, err := expandPath(c.Paths.LogDir)
	if err != nil {
		return err
	}
	c.Paths.LogDir = expanded

	if strings.TrimSpace(c.Paths.RunLog) != "" {
		expanded, err := expandPath(c.Paths.RunLog)
		if err != nil {
			return err
		}
		c.Paths.RunLog = expanded
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	c.Training.SimilarityVariant = strings.ToLower(strings.TrimSpace(c.Training.SimilarityVariant))
	if c.Training.SimilarityVariant == "" {
		c.Training.SimilarityVariant = defaultSimilarityVariant
	}

	names := c.Instruments.Names[:0]
	for _, name := range c.Instruments.Names {
		trimmed := strings.TrimSpace(name)
		if trimmed != "" {
			names = append(names, trimmed)
		}
	}
	c.Instruments.Names = names
	return nil
}
