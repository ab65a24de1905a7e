package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// NewCheckpointCmd 创建 checkpoint 命令组
func NewCheckpointCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"ckpt"},
		Short:   "Inspect stored checkpoints",
	}
	cmd.AddCommand(newCheckpointListCmd(app))
	cmd.AddCommand(newCheckpointInspectCmd(app))
	return cmd
}

// newCheckpointListCmd 列出存储中的检查点
func newCheckpointListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			mgr, err := app.CheckpointManager(ctx, cfg)
			if err != nil {
				return err
			}
			infos, err := mgr.List(ctx)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), app.Output, infos, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Size, info.ModTime.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
}

// CheckpointSummary 检查点概要
type CheckpointSummary struct {
	Name         string         `json:"name" yaml:"name"`
	RunID        string         `json:"run_id" yaml:"run_id"`
	Epoch        float64        `json:"epoch" yaml:"epoch"`
	Iteration    int64          `json:"iteration" yaml:"iteration"`
	MidEpoch     bool           `json:"mid_epoch" yaml:"mid_epoch"`
	ValidBLEU    float64        `json:"valid_bleu" yaml:"valid_bleu"`
	ValidPPL     float64        `json:"valid_ppl" yaml:"valid_ppl"`
	Optimizer    string         `json:"optimizer" yaml:"optimizer"`
	LearningRate float64        `json:"learning_rate" yaml:"learning_rate"`
	ModelTensors int            `json:"model_tensors" yaml:"model_tensors"`
	GenTensors   int            `json:"generator_tensors" yaml:"generator_tensors"`
	Vocabularies map[string]int `json:"vocabularies" yaml:"vocabularies"`
	CreatedAt    string         `json:"created_at" yaml:"created_at"`
}

// summarizeCheckpoint 从检查点 JSON 中提取概要，不解码权重
func summarizeCheckpoint(name string, data []byte) *CheckpointSummary {
	doc := gjson.ParseBytes(data)
	s := &CheckpointSummary{
		Name:         name,
		RunID:        doc.Get("run_id").String(),
		Epoch:        doc.Get("epoch").Float(),
		Iteration:    doc.Get("iteration").Int(),
		ValidBLEU:    doc.Get("valid_bleu").Float(),
		ValidPPL:     doc.Get("valid_ppl").Float(),
		Optimizer:    doc.Get("optimizer_state.method").String(),
		LearningRate: doc.Get("optimizer_state.learning_rate").Float(),
		ModelTensors: len(doc.Get("model_weights").Map()),
		GenTensors:   len(doc.Get("generator_weights").Map()),
		Vocabularies: make(map[string]int),
		CreatedAt:    doc.Get("created_at").String(),
	}
	s.MidEpoch = s.Iteration >= 0 && doc.Get("batch_order").IsArray()
	doc.Get("dictionaries").ForEach(func(lang, words gjson.Result) bool {
		s.Vocabularies[lang.String()] = len(words.Array())
		return true
	})
	return s
}

// newCheckpointInspectCmd 查看检查点内容
func newCheckpointInspectCmd(app *App) *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Show a checkpoint summary or a single field",
		Example: `  # Summary
  nmtrl checkpoint inspect model.best

  # One field, addressed with a GJSON path
  nmtrl checkpoint inspect model.best --field run_options.training.reinforce_rate
  nmtrl checkpoint inspect model.best --field "dictionaries.de.#"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			mgr, err := app.CheckpointManager(ctx, cfg)
			if err != nil {
				return err
			}
			data, err := mgr.LoadJSON(ctx, args[0])
			if err != nil {
				return err
			}

			if field != "" {
				res := gjson.GetBytes(data, field)
				if !res.Exists() {
					return errors.NotFoundError("field " + field)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), res.Raw)
				return err
			}

			s := summarizeCheckpoint(args[0], data)
			return printOutput(cmd.OutOrStdout(), app.Output, s, func(w io.Writer) error {
				return printCheckpointSummary(w, s)
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "GJSON path of a single field to print")
	return cmd
}

func printCheckpointSummary(w io.Writer, s *CheckpointSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "NAME\t%s\n", s.Name)
	fmt.Fprintf(tw, "RUN ID\t%s\n", s.RunID)
	fmt.Fprintf(tw, "EPOCH\t%.2f\n", s.Epoch)
	fmt.Fprintf(tw, "ITERATION\t%d\n", s.Iteration)
	fmt.Fprintf(tw, "MID EPOCH\t%t\n", s.MidEpoch)
	fmt.Fprintf(tw, "VALID BLEU\t%.2f\n", s.ValidBLEU)
	fmt.Fprintf(tw, "VALID PPL\t%.2f\n", s.ValidPPL)
	fmt.Fprintf(tw, "OPTIMIZER\t%s (lr %g)\n", s.Optimizer, s.LearningRate)
	fmt.Fprintf(tw, "TENSORS\t%d model, %d generator\n", s.ModelTensors, s.GenTensors)
	langs := make([]string, 0, len(s.Vocabularies))
	for lang := range s.Vocabularies {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		fmt.Fprintf(tw, "VOCAB %s\t%d\n", lang, s.Vocabularies[lang])
	}
	fmt.Fprintf(tw, "CREATED\t%s\n", s.CreatedAt)
	return tw.Flush()
}

//Personal.AI order the ending
