package config

const (
	defaultLogDir            = "~/.local/share/restframe/logs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLatents           = 2
	defaultBatchSize         = 512
	defaultRate              = 1e-3
	defaultZMax              = 0.8
	defaultSimilarityVariant = "restframe"
	defaultEpochs            = 800
	defaultInstrumentSeed    = 42
	defaultAnnealStart       = 0.0
	defaultAnnealStop        = 2.0
	defaultAnnealStep        = 0.1
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Training: Training{
			Latents:           defaultLatents,
			BatchSize:         defaultBatchSize,
			Rate:              defaultRate,
			ZMax:              defaultZMax,
			SimilarityVariant: defaultSimilarityVariant,
			Epochs:            defaultEpochs,
		},
		Instruments: Instruments{
			Names: []string{"desi"},
			Seed:  defaultInstrumentSeed,
		},
		Anneal: Anneal{
			Start: defaultAnnealStart,
			Stop:  defaultAnnealStop,
			Step:  defaultAnnealStep,
		},
	}
}
