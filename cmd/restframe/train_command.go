package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"restframe/internal/autoenc"
	"restframe/internal/checkpoint"
	"restframe/internal/config"
	"restframe/internal/dataset"
	"restframe/internal/history"
	"restframe/internal/instrument"
	"restframe/internal/logging"
	"restframe/internal/optim"
	"restframe/internal/runlog"
	"restframe/internal/train"
)

type trainFlags struct {
	latents      int
	batchSize    int
	batchNumber  int
	rate         float64
	zMax         float64
	augmentation bool
	similarity   bool
	consistency  bool
	clobber      bool
	verbose      bool
}

func newTrainCommand(ctx *commandContext) *cobra.Command {
	defaults := config.Default()
	var flags trainFlags

	cmd := &cobra.Command{
		Use:   "train DIR OUTFILE",
		Short: "Train spectrum autoencoders on datasets under DIR, checkpointing to OUTFILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyConfigFallbacks(cmd, &flags, cfg)
			return runTraining(cmd, cfg, flags, args[0], args[1])
		},
	}

	cmd.Flags().IntVarP(&flags.latents, "latents", "n", defaults.Training.Latents, "Dimension of the latent space")
	cmd.Flags().IntVarP(&flags.batchSize, "batch_size", "b", defaults.Training.BatchSize, "Batch size")
	cmd.Flags().IntVarP(&flags.batchNumber, "batch_number", "l", 0, "Limit the batches per epoch (0 = no limit)")
	cmd.Flags().Float64VarP(&flags.rate, "rate", "r", defaults.Training.Rate, "Learning rate")
	cmd.Flags().Float64VarP(&flags.zMax, "z_max", "z", defaults.Training.ZMax, "Maximum redshift")
	cmd.Flags().BoolVarP(&flags.augmentation, "augmentation", "a", false, "Augment spectra with redshifted, renoised copies")
	cmd.Flags().BoolVarP(&flags.similarity, "similarity", "s", false, "Enable the similarity loss term")
	cmd.Flags().BoolVarP(&flags.consistency, "consistency", "c", false, "Enable the consistency loss term")
	cmd.Flags().BoolVarP(&flags.clobber, "clobber", "C", false, "Resume from or overwrite an existing output file")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

// applyConfigFallbacks lets the config file supply values for flags the user
// did not pass on the command line.
func applyConfigFallbacks(cmd *cobra.Command, flags *trainFlags, cfg *config.Config) {
	set := cmd.Flags()
	if !set.Changed("latents") {
		flags.latents = cfg.Training.Latents
	}
	if !set.Changed("batch_size") {
		flags.batchSize = cfg.Training.BatchSize
	}
	if !set.Changed("batch_number") {
		flags.batchNumber = cfg.Training.BatchCap
	}
	if !set.Changed("rate") {
		flags.rate = cfg.Training.Rate
	}
	if !set.Changed("z_max") {
		flags.zMax = cfg.Training.ZMax
	}
}

func runTraining(cmd *cobra.Command, cfg *config.Config, flags trainFlags, dir, outfile string) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outfile, err := config.ExpandPath(outfile)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	resuming := false
	if _, err := os.Stat(outfile); err == nil {
		if !flags.clobber {
			return fmt.Errorf("output file %s already exists; pass --clobber to resume or replace it", outfile)
		}
		resuming = true
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("check output path: %w", err)
	}

	lock := flock.New(outfile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run is already training into %s", outfile)
	}
	defer lock.Unlock()

	runID := uuid.NewString()
	level := cfg.Logging.Level
	if flags.verbose {
		level = "debug"
	}
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("restframe-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	names := cfg.Instruments.Names
	n := len(names)
	trainLoaders := make([]*dataset.Loader, n)
	validLoaders := make([]*dataset.Loader, n)
	instruments := make([]*instrument.Instrument, n)
	samples := 0
	for i, name := range names {
		seed := cfg.Instruments.Seed + int64(i)
		trainLoaders[i], err = dataset.OpenLoader(dir, name, "train", flags.batchSize, seed)
		if err != nil {
			return fmt.Errorf("open %s training set: %w", name, err)
		}
		validLoaders[i], err = dataset.OpenLoader(dir, name, "valid", flags.batchSize, seed)
		if err != nil {
			return fmt.Errorf("open %s validation set: %w", name, err)
		}
		instruments[i], err = instrument.New(name, trainLoaders[i].Wave(), seed)
		if err != nil {
			return fmt.Errorf("instrument %s: %w", name, err)
		}
		if cfg.Instruments.Calibration {
			instruments[i].EnableCalibration()
		}
		samples += trainLoaders[i].Samples()
	}
	defer func() {
		for i := range trainLoaders {
			trainLoaders[i].Close()
			validLoaders[i].Close()
		}
	}()

	waveRest := autoenc.RestframeGrid(observedSpan(trainLoaders), flags.zMax)
	decoder := autoenc.NewDecoder(waveRest, flags.latents)
	models := make([]*autoenc.Model, n)
	for i := range instruments {
		models[i] = autoenc.NewModel(instruments[i], decoder, flags.latents)
	}

	var resumed *history.History
	if resuming {
		resumed, err = checkpoint.Load(outfile, models)
		if err != nil {
			return fmt.Errorf("resume from %s: %w", outfile, err)
		}
		logger.Info("resuming from checkpoint",
			logging.String("outfile", outfile),
			logging.Int("epochs_done", resumed.Completed()))
	}

	store, err := runlog.Open(cfg.RunLogPath())
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer store.Close()
	if err := store.StartRun(signalCtx, runID, outfile, n, dir); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	trainer, err := train.New(train.Config{
		Curriculum:        cfg.Curriculum(n),
		Anneal:            cfg.AnnealSchedule(),
		LearningRate:      flags.rate,
		BatchCap:          flags.batchNumber,
		Similarity:        flags.similarity,
		Consistency:       flags.consistency,
		SimilarityVariant: cfg.Training.SimilarityVariant,
		Augmentation:      flags.augmentation,
		ZMax:              flags.zMax,
		Outfile:           outfile,
		RunID:             runID,
		Verbose:           flags.verbose,
	}, models, instruments, trainLoaders, validLoaders, logger, store, resumed)
	if err != nil {
		return err
	}

	if flags.verbose {
		groups := optim.CollectGroups(models, flags.rate)
		p := message.NewPrinter(language.English)
		p.Fprintf(cmd.OutOrStdout(), "training %d parameters on %d spectra across %d instruments\n",
			optim.CountParams(groups), samples, n)
	}

	return trainer.Run(signalCtx)
}

// observedSpan reduces the instruments' observed grids to their combined
// wavelength extent.
func observedSpan(loaders []*dataset.Loader) []float64 {
	span := loaders[0].Wave()
	if len(loaders) == 1 {
		return span
	}
	lo, hi := span[0], span[len(span)-1]
	for _, l := range loaders[1:] {
		w := l.Wave()
		if w[0] < lo {
			lo = w[0]
		}
		if w[len(w)-1] > hi {
			hi = w[len(w)-1]
		}
	}
	return []float64{lo, hi}
}
