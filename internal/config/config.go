package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"restframe/internal/curriculum"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir string `toml:"log_dir"`
	RunLog string `toml:"run_log"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Training contains the default orchestration settings; command-line flags
// override them per run.
type Training struct {
	Latents           int     `toml:"latents"`
	BatchSize         int     `toml:"batch_size"`
	BatchCap          int     `toml:"batch_cap"`
	Rate              float64 `toml:"rate"`
	ZMax              float64 `toml:"z_max"`
	SimilarityVariant string  `toml:"similarity_variant"`
	Epochs            int     `toml:"epochs"`
}

// Instruments lists the spectrographs whose datasets the trainer consumes,
// one encoder per instrument.
type Instruments struct {
	Names       []string `toml:"names"`
	Calibration bool     `toml:"calibration"`
	Seed        int64    `toml:"seed"`
}

// Anneal describes the cyclic slope schedule as an arithmetic ramp.
type Anneal struct {
	Start float64 `toml:"start"`
	Stop  float64 `toml:"stop"`
	Step  float64 `toml:"step"`
}

// Stage is the declarative capability descriptor of one curriculum stage.
type Stage struct {
	Name       string `toml:"name"`
	Iterations int    `toml:"iterations"`
	Decoder    bool   `toml:"decoder"`
	Encoder    []bool `toml:"encoder"`
	Data       []bool `toml:"data"`
}

// Config encapsulates all configuration values for restframe.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Logging     Logging     `toml:"logging"`
	Training    Training    `toml:"training"`
	Instruments Instruments `toml:"instruments"`
	Anneal      Anneal      `toml:"anneal"`
	Stages      []Stage     `toml:"stage"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/restframe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("restframe.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the trainer writes into.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

// RunLogPath returns the SQLite run-log location, defaulting under LogDir.
func (c *Config) RunLogPath() string {
	if strings.TrimSpace(c.Paths.RunLog) != "" {
		return c.Paths.RunLog
	}
	return filepath.Join(c.Paths.LogDir, "runs.db")
}

// Curriculum converts the configured stages into the training curriculum.
// When no stages are configured, a single full-training stage covering the
// default epoch count is used.
func (c *Config) Curriculum(nEncoder int) curriculum.Curriculum {
	if len(c.Stages) == 0 {
		return curriculum.Full(nEncoder, c.Training.Epochs)
	}
	out := make(curriculum.Curriculum, 0, len(c.Stages))
	for _, stage := range c.Stages {
		out = append(out, curriculum.Stage{
			Name:             stage.Name,
			Iterations:       stage.Iterations,
			DecoderTrainable: stage.Decoder,
			EncoderTrainable: padFlags(stage.Encoder, stage.Data, nEncoder),
			DataActive:       padFlags(stage.Data, nil, nEncoder),
		})
	}
	return out
}

// padFlags fills missing per-encoder flags: an absent encoder list follows
// the data list, an absent data list defaults to all-active.
func padFlags(flags, fallback []bool, nEncoder int) []bool {
	out := make([]bool, nEncoder)
	for i := range out {
		switch {
		case i < len(flags):
			out[i] = flags[i]
		case i < len(fallback):
			out[i] = fallback[i]
		default:
			out[i] = true
		}
	}
	return out
}

// AnnealSchedule materializes the configured slope ramp.
func (c *Config) AnnealSchedule() curriculum.Anneal {
	if c.Anneal.Step <= 0 || c.Anneal.Stop <= c.Anneal.Start {
		return curriculum.DefaultAnneal()
	}
	var schedule curriculum.Anneal
	for v := c.Anneal.Start; v < c.Anneal.Stop; v += c.Anneal.Step {
		schedule = append(schedule, v)
	}
	return schedule
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the given location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
