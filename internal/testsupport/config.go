package testsupport

import (
	"path/filepath"
	"testing"

	"restframe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.RunLog = filepath.Join(base, "runs.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithInstruments overrides the instrument list on the test config.
func WithInstruments(names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Instruments.Names = names
	}
}

// WithStages installs a declarative curriculum on the test config.
func WithStages(stages ...config.Stage) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stages = stages
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
