package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"restframe/internal/autoenc"
	"restframe/internal/checkpoint"
	"restframe/internal/curriculum"
	"restframe/internal/dataset"
	"restframe/internal/history"
	"restframe/internal/instrument"
	"restframe/internal/logging"
	"restframe/internal/losses"
	"restframe/internal/optim"
	"restframe/internal/runlog"
)

const (
	// gradient clipping ceiling for the representation group; stabilizes
	// training once the similarity and consistency terms are active
	maxGradNorm = 1.0

	adamEps = 1e-4

	// checkpointEvery controls periodic checkpoint cadence in epochs; the
	// final epoch always checkpoints.
	checkpointEvery = 5
)

// Config carries the orchestration settings of one training run.
type Config struct {
	Curriculum   curriculum.Curriculum
	Anneal       curriculum.Anneal
	LearningRate float64
	BatchCap     int // stop each pass after this many batches; 0 = no cap
	Similarity   bool
	Consistency  bool
	// SimilarityVariant selects "restframe" (default) or "observed".
	SimilarityVariant string
	Augmentation      bool
	ZMax              float64
	Outfile           string
	RunID             string
	Verbose           bool
}

// Trainer is the top-level loop driver.
type Trainer struct {
	cfg          Config
	models       []*autoenc.Model
	instruments  []*instrument.Instrument
	trainLoaders []*dataset.Loader
	validLoaders []*dataset.Loader
	logger       *slog.Logger
	runlog       *runlog.Store

	opt    *optim.Adam
	sched  *optim.OneCycle
	ladder []int
	hist   *history.History

	startEpoch  int
	totalEpochs int
}

// New assembles a trainer. resumed, when non-nil, is the loss history
// recovered from a checkpoint: the run continues after its completed epochs
// and trains the full curriculum on top of them. runlogStore may be nil.
func New(
	cfg Config,
	models []*autoenc.Model,
	instruments []*instrument.Instrument,
	trainLoaders, validLoaders []*dataset.Loader,
	logger *slog.Logger,
	runlogStore *runlog.Store,
	resumed *history.History,
) (*Trainer, error) {
	nEncoder := len(models)
	if nEncoder == 0 {
		return nil, errors.New("train: no models")
	}
	if len(instruments) != nEncoder || len(trainLoaders) != nEncoder || len(validLoaders) != nEncoder {
		return nil, fmt.Errorf("train: encoder count mismatch: %d models, %d instruments, %d/%d loaders",
			nEncoder, len(instruments), len(trainLoaders), len(validLoaders))
	}
	if err := cfg.Curriculum.Validate(nEncoder); err != nil {
		return nil, err
	}
	ladder, err := curriculum.BuildLadder(cfg.Curriculum)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	start := 0
	total := len(ladder)
	var hist *history.History
	if resumed != nil {
		if resumed.Encoders != nEncoder {
			return nil, fmt.Errorf("train: resumed history tracks %d encoders, trainer has %d", resumed.Encoders, nEncoder)
		}
		start = resumed.Completed()
		total = start + len(ladder)
		hist = resumed.Resize(total)
		hist.Done = start
	} else {
		hist = history.New(nEncoder, total, losses.NTerms)
	}

	groups := optim.CollectGroups(models, cfg.LearningRate)
	opt := optim.NewAdam(groups, adamEps)
	sched := optim.NewOneCycle(opt, len(ladder))

	return &Trainer{
		cfg:          cfg,
		models:       models,
		instruments:  instruments,
		trainLoaders: trainLoaders,
		validLoaders: validLoaders,
		logger:       logger.With(logging.String("component", "trainer")),
		runlog:       runlogStore,
		opt:          opt,
		sched:        sched,
		ladder:       ladder,
		hist:         hist,
		startEpoch:   start,
		totalEpochs:  total,
	}, nil
}

// History exposes the loss history, primarily for tests.
func (t *Trainer) History() *history.History { return t.hist }

// StartEpoch returns the first epoch the run will execute.
func (t *Trainer) StartEpoch() int { return t.startEpoch }

// TotalEpochs returns the epoch the run terminates at.
func (t *Trainer) TotalEpochs() int { return t.totalEpochs }

// Run executes the training loop from the resume point through the end of
// the curriculum, checkpointing periodically and on the final epoch.
func (t *Trainer) Run(ctx context.Context) error {
	if t.cfg.Verbose {
		t.logger.Info("training started",
			logging.Int("encoders", len(t.models)),
			logging.Int("start_epoch", t.startEpoch),
			logging.Int("total_epochs", t.totalEpochs),
			logging.Int("parameters", optim.CountParams(t.opt.Groups)),
		)
	}

	for epoch := t.startEpoch; epoch < t.totalEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := epoch - t.startEpoch
		stage := t.cfg.Curriculum[t.ladder[rel]]
		slope := t.cfg.Anneal.SlopeAt(rel, t.totalEpochs-t.startEpoch)
		ApplyStage(t.models, stage)

		if t.cfg.Verbose && t.cfg.Similarity {
			t.logger.Info("annealing slope", logging.Int("epoch", epoch), logging.Float64("slope", slope))
		}

		for which := range t.models {
			if !stage.DataActive[which] {
				continue
			}
			if err := t.trainPass(ctx, which, epoch, slope); err != nil {
				return err
			}
		}

		t.sched.Step()

		// validation runs for every encoder regardless of DataActive
		for which := range t.models {
			if err := t.validPass(ctx, which, epoch, slope); err != nil {
				return err
			}
		}

		t.hist.MarkDone(epoch)
		t.logEpoch(epoch)
		t.recordEpoch(ctx, epoch)

		if epoch%checkpointEvery == 0 || epoch == t.totalEpochs-1 {
			if err := checkpoint.Save(t.cfg.Outfile, t.models, t.hist); err != nil {
				return fmt.Errorf("checkpoint at epoch %d: %w", epoch, err)
			}
		}
	}
	return nil
}

func (t *Trainer) composeOptions(which int, slope float64) losses.Options {
	opts := losses.Options{
		Similarity:  t.cfg.Similarity,
		Consistency: t.cfg.Consistency,
		Variant:     t.cfg.SimilarityVariant,
		Slope:       slope,
		ZMax:        t.cfg.ZMax,
	}
	if t.cfg.Augmentation {
		opts.Augment = t.instruments[which]
	}
	return opts
}

func (t *Trainer) trainPass(ctx context.Context, which, epoch int, slope float64) error {
	model := t.models[which]
	t.instruments[which].Train()
	loader := t.trainLoaders[which]
	loader.Reset(ctx)
	defer loader.Close()

	var bar *progressbar.ProgressBar
	if t.cfg.Verbose {
		bar = progressbar.Default(-1, fmt.Sprintf("epoch %d encoder %d", epoch, which))
	}

	opts := t.composeOptions(which, slope)
	group0 := t.opt.Groups[0].Params
	nSample := 0
	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, ok := loader.Next()
		if !ok {
			break
		}
		terms := losses.Compose(model, batch, opts, true)
		optim.ClipGradNorm(group0, maxGradNorm)
		t.opt.Step()
		t.opt.ZeroGrad()

		values := terms.Values()
		t.hist.Accumulate(history.PhaseTrain, which, epoch, values[:])
		nSample += batch.Size()
		if bar != nil {
			_ = bar.Add(1)
		}
		if t.cfg.BatchCap > 0 && k == t.cfg.BatchCap-1 {
			break
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if nSample == 0 {
		// empty loader: leave the row zeroed rather than divide by zero
		t.logger.Warn("no training samples for encoder this epoch",
			logging.Int("encoder", which), logging.Int("epoch", epoch))
		return nil
	}
	t.hist.Scale(history.PhaseTrain, which, epoch, 1/float64(nSample))
	return nil
}

func (t *Trainer) validPass(ctx context.Context, which, epoch int, slope float64) error {
	model := t.models[which]
	t.instruments[which].Eval()
	loader := t.validLoaders[which]
	loader.Reset(ctx)
	defer loader.Close()

	opts := t.composeOptions(which, slope)
	nSample := 0
	for k := 0; ; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, ok := loader.Next()
		if !ok {
			break
		}
		terms := losses.Compose(model, batch, opts, false)
		values := terms.Values()
		t.hist.Accumulate(history.PhaseValid, which, epoch, values[:])
		nSample += batch.Size()
		if t.cfg.BatchCap > 0 && k == t.cfg.BatchCap-1 {
			break
		}
	}
	if nSample == 0 {
		t.logger.Warn("no validation samples for encoder this epoch",
			logging.Int("encoder", which), logging.Int("epoch", epoch))
		return nil
	}
	t.hist.Scale(history.PhaseValid, which, epoch, 1/float64(nSample))
	return nil
}

func (t *Trainer) logEpoch(epoch int) {
	if !t.cfg.Verbose {
		return
	}
	for which := range t.models {
		train := t.hist.Row(history.PhaseTrain, which, epoch)
		valid := t.hist.Row(history.PhaseValid, which, epoch)
		t.logger.Info("epoch complete",
			logging.Int("epoch", epoch),
			logging.Int("encoder", which),
			logging.Float64("train_fidelity", train[losses.TermFidelity]),
			logging.Float64("train_similarity", train[losses.TermSimilarity]),
			logging.Float64("train_consistency", train[losses.TermConsistency]),
			logging.Float64("valid_fidelity", valid[losses.TermFidelity]),
		)
	}
}

func (t *Trainer) recordEpoch(ctx context.Context, epoch int) {
	if t.runlog == nil || t.cfg.RunID == "" {
		return
	}
	for phase := 0; phase < history.Phases; phase++ {
		for which := range t.models {
			row := t.hist.Row(phase, which, epoch)
			if err := t.runlog.RecordEpoch(ctx, t.cfg.RunID, phase, which, epoch, row); err != nil {
				t.logger.Warn("record epoch losses failed", logging.Error(err),
					logging.Int("epoch", epoch), logging.Int("encoder", which))
				return
			}
		}
	}
}
