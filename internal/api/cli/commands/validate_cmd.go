package commands

import (
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openeeap/nmtrl/internal/platform/corpus"
	"github.com/openeeap/nmtrl/internal/platform/model/positional"
	"github.com/openeeap/nmtrl/internal/platform/training/evaluator"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// NewValidateCmd 创建 validate 命令
func NewValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate CHECKPOINT",
		Short: "Score a checkpoint on the validation sets",
		Long: `Load a stored checkpoint and report corpus BLEU and perplexity on every
configured validation set. Pairs without a validation set are reported as empty.`,
		Example: `  nmtrl validate model_bleu_21.30_e3.ckpt -o json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			logger := app.Logger()

			mgr, err := app.CheckpointManager(ctx, cfg)
			if err != nil {
				return err
			}
			ckpt, err := mgr.Load(ctx, args[0])
			if err != nil {
				return err
			}
			dicts, err := dictionariesOf(ckpt)
			if err != nil {
				return err
			}
			bundle, err := corpus.Load(ctx, cfg.Data, corpus.LoadOptions{
				BatchSize:    cfg.Training.BatchSize,
				Dictionaries: dicts,
			}, logger)
			if err != nil {
				return err
			}

			model, err := positional.New(bundle.Corpora, positional.Options{
				MaxLength: cfg.Model.MaxDecodeLength,
				ParamInit: cfg.Model.ParamInit,
				Rand:      rand.New(rand.NewSource(cfg.Training.Seed)),
			})
			if err != nil {
				return err
			}
			weights, err := ckpt.Weights()
			if err != nil {
				return err
			}
			if err := model.LoadWeights(weights); err != nil {
				return errors.WrapFromCode(err, errors.ErrCkptIncompatible, args[0])
			}

			report, err := evaluator.New(model, evaluator.Options{
				RemoveBPE: cfg.Training.RemoveBPE,
				Logger:    logger,
			}).Evaluate(ctx, bundle.Corpora)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), app.Output, report, func(w io.Writer) error {
				return printReport(w, report)
			})
		},
	}
	return cmd
}

// printReport 以表格输出验证结果
func printReport(w io.Writer, r *evaluator.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tBLEU\tPPL\tSENTENCES\tNOTE")
	for _, p := range r.Pairs {
		note := ""
		switch {
		case p.Empty:
			note = "empty"
		case p.Failed:
			note = "failed"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t%s\n", p.Pair, p.BLEU, p.PPL, p.Sentences, note)
	}
	fmt.Fprintf(tw, "AVERAGE\t%.2f\t%.2f\t\t\n", r.BLEU, r.PPL)
	return tw.Flush()
}

//Personal.AI order the ending
