// Package cli wires the nmtrl command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openeeap/nmtrl/internal/api/cli/commands"
)

// NewRootCmd 创建根命令
func NewRootCmd(app *commands.App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nmtrl",
		Short: "nmtrl - reinforcement-learning trainer for neural machine translation",
		Long: `nmtrl trains sequence-to-sequence translation models by mixing
cross-entropy windows with self-critical REINFORCE windows.

Configuration is read from nmtrl.yaml in the working directory, ./config or
/etc/nmtrl, or from --config. Every key can be overridden with an NMTRL_*
environment variable, e.g. NMTRL_TRAINING_N_SAMPLES=5.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// 全局持久化标志
	rootCmd.PersistentFlags().StringVar(&app.ConfigFile, "config", "", "config file (default: ./nmtrl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&app.Output, "output", "o", "table", "output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "enable debug logging")

	// 添加子命令
	rootCmd.AddCommand(commands.NewTrainCmd(app))
	rootCmd.AddCommand(commands.NewValidateCmd(app))
	rootCmd.AddCommand(commands.NewCheckpointCmd(app))
	rootCmd.AddCommand(commands.NewConfigCmd(app))
	rootCmd.AddCommand(commands.NewVersionCmd(app))

	rootCmd.SetHelpTemplate(helpTemplate)
	return rootCmd
}

// Execute 执行 CLI 命令
func Execute(ctx context.Context, version string) error {
	app := commands.NewApp(version)
	defer app.Close()
	return NewRootCmd(app).ExecuteContext(ctx)
}

// helpTemplate 自定义帮助模板
const helpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`

//Personal.AI order the ending
