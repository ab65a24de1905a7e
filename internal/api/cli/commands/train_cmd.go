package commands

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openeeap/nmtrl/internal/api/http"
	"github.com/openeeap/nmtrl/internal/api/http/handler"
	"github.com/openeeap/nmtrl/internal/domain/run"
	"github.com/openeeap/nmtrl/internal/infrastructure/message/kafka"
	"github.com/openeeap/nmtrl/internal/infrastructure/repository/postgres"
	"github.com/openeeap/nmtrl/internal/infrastructure/repository/redis"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/trace"
	"github.com/openeeap/nmtrl/internal/platform/corpus"
	"github.com/openeeap/nmtrl/internal/platform/model/positional"
	"github.com/openeeap/nmtrl/internal/platform/training/checkpoint"
	"github.com/openeeap/nmtrl/internal/platform/training/metric"
	"github.com/openeeap/nmtrl/internal/platform/training/optim"
	"github.com/openeeap/nmtrl/internal/platform/training/reward"
	"github.com/openeeap/nmtrl/internal/platform/training/trainer"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/types"
)

// statusWriteInterval 运行状态写入 Redis 的最小间隔
const statusWriteInterval = 2 * time.Second

// NewTrainCmd 创建 train 命令
func NewTrainCmd(app *App) *cobra.Command {
	var (
		resume        string
		runID         string
		epochs        int
		nSamples      int
		reinforceRate float64
		statusAddr    string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a translation model",
		Long: `Train a translation model with mixed cross-entropy and REINFORCE windows.

Every window is drawn as a REINFORCE window with probability reinforce_rate,
otherwise as a cross-entropy window. Checkpoints are written at save_every
outer examples and at the end of every epoch.`,
		Example: `  # Train with the configuration in ./nmtrl.yaml
  nmtrl train

  # Resume from a stored checkpoint
  nmtrl train --config run.yaml --resume model_bleu_21.30_e3.ckpt

  # Pure cross-entropy warm-up
  nmtrl train --reinforce-rate 0 --epochs 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("resume") {
				app.Set("training.resume", resume)
			}
			if flags.Changed("epochs") {
				app.Set("training.epochs", epochs)
			}
			if flags.Changed("n-samples") {
				app.Set("training.n_samples", nSamples)
			}
			if flags.Changed("reinforce-rate") {
				app.Set("training.reinforce_rate", reinforceRate)
			}
			if flags.Changed("status-addr") {
				app.Set("status.enabled", true)
				app.Set("status.addr", statusAddr)
			}

			cfg, err := app.Config()
			if err != nil {
				return err
			}
			if runID == "" {
				runID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runTraining(ctx, app, cfg, runID)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), app.Output, summary, func(w io.Writer) error {
				return printSummary(w, summary)
			})
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "checkpoint to resume from")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default: random UUID)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "last epoch to train")
	cmd.Flags().IntVar(&nSamples, "n-samples", 0, "Monte-Carlo samples per REINFORCE window")
	cmd.Flags().Float64Var(&reinforceRate, "reinforce-rate", 0, "probability of a REINFORCE window")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve run status on this address")

	return cmd
}

// runTraining 装配训练器及其观察者，并在需要时启动状态服务
func runTraining(ctx context.Context, app *App, cfg *config.Config, runID string) (*trainer.Summary, error) {
	logger := app.Logger().With(logging.RunID(runID))
	ctx = logging.WithRunID(ctx, runID)
	collector := app.Metrics(cfg)

	tracer, err := app.Tracer(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	mgr, err := app.CheckpointManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 从检查点恢复时沿用其中的词表
	var resumed *checkpoint.Checkpoint
	loadOpts := corpus.LoadOptions{BatchSize: cfg.Training.BatchSize}
	if cfg.Training.Resume != "" {
		resumed, err = mgr.Load(ctx, cfg.Training.Resume)
		if err != nil {
			return nil, err
		}
		if loadOpts.Dictionaries, err = dictionariesOf(resumed); err != nil {
			return nil, err
		}
	}

	var bundle *corpus.Bundle
	err = trace.TraceFunc(ctx, tracer, "corpus.Load", func(ctx context.Context) error {
		var err error
		bundle, err = corpus.Load(ctx, cfg.Data, loadOpts, logger)
		return err
	}, trace.IntAttr("corpus.pairs", len(cfg.Data.Pairs)))
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Training.Seed))
	model, err := positional.New(bundle.Corpora, positional.Options{
		MaxLength: cfg.Model.MaxDecodeLength,
		ParamInit: cfg.Model.ParamInit,
		Rand:      rng,
	})
	if err != nil {
		return nil, err
	}

	optimizer, err := optim.New(optim.Options{
		Method:       types.OptimizerKind(cfg.Optim.Method),
		LearningRate: cfg.Optim.LearningRate,
		MaxGradNorm:  cfg.Optim.MaxGradNorm,
		LRDecay:      cfg.Optim.LRDecay,
		StartDecayAt: cfg.Optim.StartDecayAt,
		Beta1:        cfg.Optim.Beta1,
		Beta2:        cfg.Optim.Beta2,
		Epsilon:      cfg.Optim.Epsilon,
	})
	if err != nil {
		return nil, err
	}

	scorer, err := metric.New(types.MetricKind(cfg.Training.RewardMetric), cfg.Training.HitAlpha)
	if err != nil {
		return nil, err
	}

	board := run.NewBoard()
	observers := trainer.NewFanout(logger, collector, board)
	sinks, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeSinks()
	for _, s := range sinks.observers {
		observers.Add(s)
	}

	runOptions, err := json.Marshal(cfg.Redacted())
	if err != nil {
		return nil, err
	}

	tr, err := trainer.New(trainer.Options{
		RunID:         runID,
		Epochs:        cfg.Training.Epochs,
		StartEpoch:    cfg.Training.StartEpoch,
		ReinforceRate: cfg.Training.ReinforceRate,
		NSamples:      cfg.Training.NSamples,
		Scorer:        scorer,
		Shaper: reward.NewShaper(reward.Options{
			Normalize: cfg.Training.NormalizeAdvantage,
			Baseline:  types.BaselineKind(cfg.Training.Baseline),
		}),
		LogInterval: cfg.Training.LogInterval,
		SaveEvery:   cfg.Training.SaveEvery,
		SampleEvery: cfg.Training.SampleEvery,
		Curriculum:  cfg.Training.Curriculum,
		Shuffle:     cfg.Data.Shuffle,
		Adapt:       cfg.Training.Adapt.Enabled,
		AdaptPair:   cfg.Training.Adapt.Pair(),
		RemoveBPE:   cfg.Training.RemoveBPE,
		RunOptions:  runOptions,
	}, trainer.Deps{
		Model:       model,
		Corpora:     bundle.Corpora,
		Optimizer:   optimizer,
		Checkpoints: mgr,
		Rand:        rng,
		Observers:   observers,
		Logger:      logger,
		Tracer:      tracer,
		Metrics:     collector,
	})
	if err != nil {
		return nil, err
	}
	if resumed != nil {
		if err := tr.Resume(resumed); err != nil {
			return nil, err
		}
	}

	if !cfg.Status.Enabled {
		return tr.Run(ctx)
	}

	// 状态服务与训练并行运行，训练结束后关闭
	router := http.NewRouter(http.RouterOptions{
		Handler: handler.NewStatusHandler(board, handler.Options{
			Statuses:    sinks.statuses,
			Ledger:      sinks.ledger,
			Checkpoints: mgr,
			Version:     app.Version,
			Logger:      logger,
		}),
		Metrics:      collector,
		Logger:       logger,
		Tracer:       tracer,
		EnablePprof:  cfg.Status.EnablePprof,
		RateLimit:    cfg.Status.RateLimit,
		AllowOrigins: cfg.Status.AllowOrigins,
		JWTSecret:    cfg.Status.JWTSecret,
	})
	server := http.NewServer(cfg.Status, router, logger)

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)

	var summary *trainer.Summary
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		defer stopServing()
		var err error
		summary, err = tr.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// sinkSet 已连接的外部输出
type sinkSet struct {
	observers []run.Observer
	statuses  run.StatusRepository
	ledger    run.CheckpointLedger
}

// openSinks 连接配置中启用的 Redis、Postgres 和 Kafka
func openSinks(ctx context.Context, cfg *config.Config, logger logging.Logger) (*sinkSet, func(), error) {
	set := &sinkSet{}
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Failed to close sink", logging.Error(err))
			}
		}
	}

	if cfg.Redis.Enabled {
		repo, closeRedis, err := redis.NewStatusRepository(ctx, &cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeRedis)
		set.statuses = repo
		set.observers = append(set.observers, run.NewStatusRecorder("redis", repo, statusWriteInterval))
	}

	if cfg.Database.Enabled {
		db, err := postgres.Open(&cfg.Database, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, sqlDB.Close)
		}
		ledger, err := postgres.NewCheckpointLedger(db)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		set.ledger = ledger
		set.observers = append(set.observers, run.NewLedgerRecorder("postgres", ledger))
	}

	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewEventPublisher(&cfg.Kafka, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, publisher.Close)
		set.observers = append(set.observers, publisher)
	}

	if len(set.observers) > 0 {
		names := make([]string, 0, len(set.observers))
		for _, o := range set.observers {
			names = append(names, o.Name())
		}
		logger.Info("Event sinks connected", logging.Strings("sinks", names))
	}
	return set, closeAll, nil
}

// printSummary 以表格输出训练结果
func printSummary(w io.Writer, s *trainer.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "RUN ID\t%s\n", s.RunID)
	fmt.Fprintf(tw, "EPOCHS\t%d\n", s.Epochs)
	fmt.Fprintf(tw, "ITERATIONS\t%d\n", s.Iterations)
	fmt.Fprintf(tw, "BEST BLEU\t%.2f\n", s.BestBLEU)
	fmt.Fprintf(tw, "LAST BLEU\t%.2f\n", s.LastBLEU)
	fmt.Fprintf(tw, "LAST PPL\t%.2f\n", s.LastPPL)
	fmt.Fprintf(tw, "DURATION\t%s\n", s.Duration.Round(time.Second))
	return tw.Flush()
}

//Personal.AI order the ending
