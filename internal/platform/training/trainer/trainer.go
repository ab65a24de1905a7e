// Package trainer runs the mixed cross-entropy / REINFORCE training loop.
//
// Every outer example draws its objective: with probability reinforce_rate
// the batch is trained with self-critical policy gradient over n_samples
// Monte-Carlo samples, otherwise with reference-conditioned cross-entropy. The loop
// validates and checkpoints on a fixed cadence and at every epoch end.
package trainer

import (
	"context"
	"math"
	"math/rand"
	"time"

	json "github.com/goccy/go-json"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/metrics"
	"github.com/openeeap/nmtrl/internal/observability/trace"
	"github.com/openeeap/nmtrl/internal/platform/training/accumulator"
	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/internal/platform/training/evaluator"
	"github.com/openeeap/nmtrl/internal/platform/training/metric"
	"github.com/openeeap/nmtrl/internal/platform/training/optim"
	"github.com/openeeap/nmtrl/internal/platform/training/reward"
	"github.com/openeeap/nmtrl/internal/platform/training/sampler"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// ============================================================================
// Options
// ============================================================================

// Options configures the training loop.
type Options struct {
	// RunID tags logs, events and checkpoints
	RunID string

	// Epochs is the last epoch to train; StartEpoch the first (1-indexed)
	Epochs     int
	StartEpoch int

	// ReinforceRate is the probability of a REINFORCE window
	ReinforceRate float64

	// NSamples is the number of Monte-Carlo samples per REINFORCE window
	NSamples int

	// Scorer rewards sampled translations
	Scorer metric.Scorer

	// Shaper turns rewards into advantages
	Shaper *reward.Shaper

	// LogInterval, SaveEvery and SampleEvery count outer examples;
	// SaveEvery and SampleEvery are disabled at 0
	LogInterval int
	SaveEvery   int
	SampleEvery int

	// Curriculum keeps corpus order up to this epoch; Shuffle permutes
	// batches afterwards
	Curriculum int
	Shuffle    bool

	// Adapt restricts training to AdaptPair
	Adapt     bool
	AdaptPair types.LanguagePair

	// RemoveBPE merges subwords before scoring
	RemoveBPE bool

	// RunOptions is stored verbatim in every checkpoint
	RunOptions json.RawMessage
}

func (o *Options) validate() error {
	if o.Epochs < 1 {
		return errors.ValidationErrorf("epochs must be at least 1, got %d", o.Epochs)
	}
	if o.StartEpoch < 1 {
		o.StartEpoch = 1
	}
	if o.ReinforceRate < 0 || o.ReinforceRate > 1 || math.IsNaN(o.ReinforceRate) {
		return errors.ValidationErrorf("reinforce rate must be in [0, 1], got %g", o.ReinforceRate)
	}
	if o.NSamples < 1 {
		return errors.ValidationErrorf("n_samples must be at least 1, got %d", o.NSamples)
	}
	if o.LogInterval < 1 {
		return errors.ValidationErrorf("log interval must be at least 1, got %d", o.LogInterval)
	}
	if o.SaveEvery < 0 || o.SampleEvery < 0 || o.Curriculum < 0 {
		return errors.ValidationErrorf("save_every, sample_every and curriculum must be non-negative")
	}
	if o.Scorer == nil {
		return errors.ValidationErrorf("a reward scorer is required")
	}
	if o.Shaper == nil {
		o.Shaper = reward.NewShaper(reward.Options{})
	}
	return nil
}

// Deps are the collaborators of a Trainer. Logger, Tracer, Metrics and
// Observers are optional.
type Deps struct {
	Model       nmt.Model
	Corpora     []*nmt.Corpus
	Optimizer   *optim.Optimizer
	Checkpoints *checkpoint.Manager
	Rand        *rand.Rand

	Observers *Fanout
	Logger    logging.Logger
	Tracer    trace.Tracer
	Metrics   *metrics.MetricsCollector
}

// Summary describes a finished run.
type Summary struct {
	RunID      string        `json:"run_id"`
	Epochs     int           `json:"epochs"`
	Iterations int           `json:"iterations"`
	BestBLEU   float64       `json:"best_bleu"`
	LastBLEU   float64       `json:"last_bleu"`
	LastPPL    float64       `json:"last_ppl"`
	Duration   time.Duration `json:"duration"`
}

// resumePoint is the position of a mid-epoch checkpoint.
type resumePoint struct {
	epoch   int
	order   [][]int
	cursors []int
}

// ============================================================================
// Trainer
// ============================================================================

// Trainer owns the training loop state.
type Trainer struct {
	opts Options

	model   nmt.Model
	params  []*nmt.Parameter
	corpora []*nmt.Corpus
	dicts   []nmt.Dictionary
	optim   *optim.Optimizer
	acc     *accumulator.Accumulator
	ckpt    *checkpoint.Manager
	eval    *evaluator.Evaluator
	shaper  *reward.Shaper
	rng     *rand.Rand

	sizes   []int
	weights []float64
	pin     int

	startEpoch int
	resume     *resumePoint
	resumed    *checkpoint.Checkpoint
	iterations int

	observers *Fanout
	logger    logging.Logger
	tracer    trace.Tracer
	metrics   *metrics.MetricsCollector
}

// New wires a Trainer.
func New(opts Options, deps Deps) (*Trainer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if deps.Model == nil || deps.Optimizer == nil || deps.Checkpoints == nil {
		return nil, errors.ValidationErrorf("trainer needs a model, an optimizer and a checkpoint manager")
	}
	if len(deps.Corpora) == 0 {
		return nil, errors.ValidationErrorf("trainer needs at least one corpus")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}
	observers := deps.Observers
	if observers == nil {
		observers = NewFanout(logger, deps.Metrics)
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	params := deps.Model.Parameters()
	acc, err := accumulator.New(params)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		opts:       opts,
		model:      deps.Model,
		params:     params,
		corpora:    deps.Corpora,
		optim:      deps.Optimizer,
		acc:        acc,
		ckpt:       deps.Checkpoints,
		shaper:     opts.Shaper,
		rng:        rng,
		startEpoch: opts.StartEpoch,
		observers:  observers,
		logger:     logger.Named("trainer").WithContext(logging.WithRunID(context.Background(), opts.RunID)),
		tracer:     tracer,
		metrics:    deps.Metrics,
	}
	t.eval = evaluator.New(deps.Model, evaluator.Options{RemoveBPE: opts.RemoveBPE, Logger: logger.Named("evaluator"), Tracer: tracer})

	seen := make(map[string]bool)
	weighted := false
	for i, c := range deps.Corpora {
		t.sizes = append(t.sizes, c.Train.Len())
		t.weights = append(t.weights, c.Weight)
		if c.Weight > 0 {
			weighted = true
		}
		for _, d := range []nmt.Dictionary{c.SrcDict, c.TgtDict} {
			if d != nil && !seen[d.Lang()] {
				seen[d.Lang()] = true
				t.dicts = append(t.dicts, d)
			}
		}
		if opts.Adapt && c.Pair == opts.AdaptPair {
			t.pin = i
		}
	}
	if !weighted {
		t.weights = nil
	}
	if opts.Adapt && deps.Corpora[t.pin].Pair != opts.AdaptPair {
		return nil, errors.ValidationErrorf("adapt pair %s is not among the training corpora", opts.AdaptPair)
	}
	return t, nil
}

// Resume restores weights, optimizer state and, for a mid-epoch snapshot,
// the batch order and per-corpus position.
func (t *Trainer) Resume(c *checkpoint.Checkpoint) error {
	weights, err := c.Weights()
	if err != nil {
		return err
	}
	if err := t.model.LoadWeights(weights); err != nil {
		return err
	}
	if c.OptimizerState != nil {
		state, err := c.OptimizerState.Optimizer()
		if err != nil {
			return err
		}
		if err := t.optim.LoadState(state); err != nil {
			return err
		}
	}

	if c.MidEpoch() {
		epoch := int(math.Ceil(c.Epoch))
		t.resume = &resumePoint{epoch: epoch, order: c.BatchOrder, cursors: c.CorpusCursors}
		if t.resume.cursors == nil {
			return errors.NewFromCodef(errors.ErrCkptIncompatible, "mid-epoch checkpoint has no corpus cursors")
		}
		t.startEpoch = epoch
	} else {
		t.startEpoch = int(c.Epoch) + 1
	}
	if c.RunID != "" && t.opts.RunID == "" {
		t.opts.RunID = c.RunID
	}
	t.iterations = c.Examples
	t.resumed = c

	t.logger.Info("Resumed from checkpoint",
		logging.Float64("epoch", c.Epoch),
		logging.Int("iteration", c.Iteration),
		logging.Int("examples", c.Examples),
		logging.Int("start_epoch", t.startEpoch),
		logging.Float64("learning_rate", t.optim.LearningRate()))
	return nil
}

// Run trains from the start epoch through the last one. Checkpoint write
// failures, invariant violations and cancellation end the run with an error.
func (t *Trainer) Run(ctx context.Context) (summary *Summary, err error) {
	ctx = logging.WithRunID(ctx, t.opts.RunID)
	start := time.Now()
	summary = &Summary{RunID: t.opts.RunID}

	pairs := make([]string, 0, len(t.corpora))
	for _, c := range t.corpora {
		pairs = append(pairs, c.Pair.String())
	}
	t.observers.Publish(ctx, &run.Started{
		RunID:      t.opts.RunID,
		Pairs:      pairs,
		Epochs:     t.opts.Epochs,
		StartEpoch: t.startEpoch,
		Resumed:    t.resumed != nil,
		Time:       start,
	})
	defer func() {
		fin := &run.Finished{RunID: t.opts.RunID, State: types.RunStatusCompleted, Time: time.Now()}
		if best, ok := t.ckpt.Best(); ok {
			fin.BestBLEU = best
		}
		if err != nil {
			fin.State = types.RunStatusFailed
			if ctx.Err() != nil {
				fin.State = types.RunStatusCancelled
			}
			fin.Error = err.Error()
			t.logger.WithContext(ctx).Error("Training stopped", logging.Error(err))
		}
		t.observers.Publish(context.WithoutCancel(ctx), fin)
		summary.BestBLEU = fin.BestBLEU
		summary.Duration = time.Since(start)
	}()

	t.model.Train()
	initial, err := t.validate(ctx, float64(t.startEpoch-1), checkpoint.EpochEnd)
	if err != nil {
		return summary, err
	}
	best := initial.BLEU
	if t.resumed != nil && t.resumed.ValidBLEU > best {
		best = t.resumed.ValidBLEU
	}
	t.ckpt.SetBest(best)
	t.logger.WithContext(ctx).Info("Initial validation",
		logging.Float64("bleu", initial.BLEU),
		logging.Float64("ppl", initial.PPL),
		logging.Bool("empty", initial.Empty))

	for epoch := t.startEpoch; epoch <= t.opts.Epochs; epoch++ {
		if err := t.runEpoch(ctx, epoch); err != nil {
			return summary, err
		}

		report, err := t.validate(ctx, float64(epoch), checkpoint.EpochEnd)
		if err != nil {
			return summary, err
		}
		if !report.Empty && t.optim.UpdateLearningRate(report.PPL, epoch) {
			t.logger.WithContext(ctx).Info("Learning rate decayed",
				logging.Int("epoch", epoch),
				logging.Float64("learning_rate", t.optim.LearningRate()))
		}
		if err := t.save(ctx, t.snapshot(float64(epoch), checkpoint.EpochEnd, nil, nil, report)); err != nil {
			return summary, err
		}

		summary.Epochs++
		summary.LastBLEU, summary.LastPPL = report.BLEU, report.PPL
		t.logger.WithContext(ctx).Info("Epoch finished",
			logging.Int("epoch", epoch),
			logging.Float64("valid_bleu", report.BLEU),
			logging.Float64("valid_ppl", report.PPL),
			logging.Duration("elapsed", time.Since(start)))
	}
	summary.Iterations = t.iterations
	return summary, nil
}

// runEpoch walks one epoch of the multi-corpus sampler.
func (t *Trainer) runEpoch(ctx context.Context, epoch int) error {
	ctx, span := t.tracer.Start(ctx, "trainer.epoch")
	defer span.End()
	span.SetAttributes(trace.IntAttr("epoch", epoch))

	opts := sampler.Options{
		Weights:    t.weights,
		Adapt:      t.opts.Adapt,
		Pin:        t.pin,
		Sequential: !t.opts.Shuffle || epoch <= t.opts.Curriculum,
		Rand:       t.rng,
	}
	if t.resume != nil && t.resume.epoch == epoch {
		opts.Order, opts.Cursors = t.resume.order, t.resume.cursors
		t.resume = nil
	}
	s, err := sampler.New(t.sizes, opts)
	if err != nil {
		trace.RecordSpanError(ctx, err)
		return err
	}
	total := s.Total()
	st := newStats(time.Now())

	for {
		d, ok := s.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		i := d.Position
		c := t.corpora[d.Corpus]

		batch, err := c.Train.Batch(d.Batch)
		if err != nil {
			return err
		}
		if err := t.model.SwitchLanguagePair(c.Pair.Src, c.Pair.Tgt); err != nil {
			return err
		}
		if err := t.model.SwitchPairID(c.ID); err != nil {
			return err
		}
		res, err := t.step(ctx, c, batch, i)
		if err != nil {
			trace.RecordSpanError(ctx, err)
			return err
		}
		st.add(batch, res)
		t.iterations++

		ep := float64(epoch-1) + float64(i+1)/float64(total)
		if i == 0 || i%t.opts.LogInterval == t.opts.LogInterval-1 {
			t.progress(ctx, st, ep, i, total, c, res.mode)
			st = newStats(time.Now())
		}
		if t.opts.SampleEvery > 0 && i%t.opts.SampleEvery == t.opts.SampleEvery-1 {
			t.logSamples(ctx, c, batch)
		}
		if t.opts.SaveEvery > 0 && i%t.opts.SaveEvery == t.opts.SaveEvery-1 {
			report, err := t.validate(ctx, ep, i)
			if err != nil {
				return err
			}
			if err := t.save(ctx, t.snapshot(ep, i, s.Order(), s.Cursors(), report)); err != nil {
				return err
			}
		}
	}
	return nil
}

// step runs one window on batch.
func (t *Trainer) step(ctx context.Context, c *nmt.Corpus, batch *nmt.Batch, iteration int) (*windowResult, error) {
	start := time.Now()
	w := newWindow(t.drawMode(), t.opts.NSamples)

	var res *windowResult
	var err error
	switch w.mode {
	case types.TrainModeReinforce:
		res, err = t.reinforce(ctx, c, batch, w, iteration)
	default:
		res, err = t.crossEntropy(batch, iteration)
	}
	if err != nil {
		return nil, err
	}

	if t.metrics != nil {
		pair := c.Pair.String()
		t.metrics.RecordWindow(string(w.mode), start)
		t.metrics.RecordExample(pair, string(w.mode), batch.SrcTokens(), batch.TgtTokens())
		if res.mode == types.TrainModeCrossEntropy && res.words > 0 {
			t.metrics.RecordXELoss(pair, res.loss/float64(res.words))
		}
	}
	return res, nil
}

// progress logs and publishes the statistics gathered since the last report.
func (t *Trainer) progress(ctx context.Context, st *stats, ep float64, i, total int, c *nmt.Corpus, mode types.TrainMode) {
	now := time.Now()
	srcRate, tgtRate := st.throughput(now)
	avgReward, avgBaseline := st.meanReward()
	p := &run.Progress{
		RunID:               t.opts.RunID,
		Epoch:               ep,
		Iteration:           i,
		Total:               total,
		Pair:                c.Pair.String(),
		Mode:                mode,
		LearningRate:        t.optim.LearningRate(),
		Perplexity:          st.perplexity(),
		Reward:              avgReward,
		Baseline:            avgBaseline,
		CrossEntropyWindows: st.xeWindows,
		ReinforceWindows:    st.rlWindows,
		SrcTokensPerSec:     srcRate,
		TgtTokensPerSec:     tgtRate,
		Elapsed:             now.Sub(st.start),
		Time:                now,
	}

	t.logger.WithContext(ctx).Info("Progress",
		logging.Float64("epoch", ep),
		logging.Int("iteration", i+1),
		logging.Int("total", total),
		logging.String("pair", p.Pair),
		logging.Float64("ppl", p.Perplexity),
		logging.Float64("reward", p.Reward),
		logging.Float64("baseline", p.Baseline),
		logging.Int("xe_windows", p.CrossEntropyWindows),
		logging.Int("rl_windows", p.ReinforceWindows),
		logging.Float64("lr", p.LearningRate),
		logging.Float64("src_tok_s", srcRate),
		logging.Float64("tgt_tok_s", tgtRate))

	if t.metrics != nil {
		t.metrics.RecordProgress(ep, p.LearningRate)
	}
	t.observers.Publish(ctx, p)
}

// validate scores the validation sets and publishes the result.
func (t *Trainer) validate(ctx context.Context, ep float64, iteration int) (*evaluator.Report, error) {
	report, err := t.eval.Evaluate(ctx, t.corpora)
	if err != nil {
		return nil, err
	}

	v := &run.Validation{
		RunID:     t.opts.RunID,
		Epoch:     ep,
		Iteration: iteration,
		BLEU:      report.BLEU,
		PPL:       report.PPL,
		Empty:     report.Empty,
		Duration:  report.Duration,
		Time:      time.Now(),
	}
	for _, pr := range report.Pairs {
		v.Pairs = append(v.Pairs, run.PairScore{
			Pair:      pr.Pair.String(),
			BLEU:      pr.BLEU,
			PPL:       pr.PPL,
			Sentences: pr.Sentences,
			Empty:     pr.Empty,
			Failed:    pr.Failed,
		})
		if t.metrics != nil && !pr.Empty {
			t.metrics.RecordValidation(pr.Pair.String(), pr.BLEU, pr.PPL)
		}
	}
	if report.Empty {
		t.logger.WithContext(ctx).Warn("No validation data, scoring 0", logging.Float64("epoch", ep))
	}
	t.observers.Publish(ctx, v)
	return report, nil
}

// snapshot captures the current training state.
func (t *Trainer) snapshot(ep float64, iteration int, order [][]int, cursors []int, report *evaluator.Report) *checkpoint.Checkpoint {
	c := &checkpoint.Checkpoint{
		RunOptions:     t.opts.RunOptions,
		Epoch:          ep,
		Iteration:      iteration,
		Examples:       t.iterations,
		BatchOrder:     order,
		CorpusCursors:  cursors,
		OptimizerState: checkpoint.FromOptimizer(t.optim.State()),
		RunID:          t.opts.RunID,
		ValidBLEU:      report.BLEU,
		ValidPPL:       report.PPL,
	}
	c.SetWeights(t.params)
	c.SetDictionaries(t.dicts...)
	return c
}

// save hands c to the checkpoint manager. Failing to write is fatal.
func (t *Trainer) save(ctx context.Context, c *checkpoint.Checkpoint) error {
	ctx, span := t.tracer.Start(ctx, "trainer.checkpoint")
	defer span.End()

	policy := string(t.ckpt.Policy())
	rec, err := t.ckpt.Save(ctx, c)
	if err != nil {
		trace.RecordSpanError(ctx, err)
		if t.metrics != nil {
			t.metrics.RecordCheckpoint(policy, "failed", 0)
		}
		return err
	}

	outcome := "skipped"
	if rec.Written {
		outcome = "written"
	}
	span.SetAttributes(trace.StringAttr("checkpoint.name", rec.Name), trace.StringAttr("checkpoint.outcome", outcome))
	if t.metrics != nil {
		t.metrics.RecordCheckpoint(policy, outcome, rec.Duration)
	}
	t.observers.Publish(ctx, rec)
	return nil
}

// Iterations returns the number of outer examples trained so far, including
// those recorded by a resumed checkpoint.
func (t *Trainer) Iterations() int {
	return t.iterations
}

// StartEpoch returns the first epoch Run will train.
func (t *Trainer) StartEpoch() int {
	return t.startEpoch
}

//Personal.AI order the ending
