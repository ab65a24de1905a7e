package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd 创建 config 命令组
func NewConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Print the configuration after defaults, the config file and NMTRL_*
environment overrides are applied. Passwords and access keys are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			return printOutput(cmd.OutOrStdout(), app.Output, redacted, func(w io.Writer) error {
				encoder := yaml.NewEncoder(w)
				encoder.SetIndent(2)
				defer encoder.Close()
				return encoder.Encode(redacted)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Config(); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	})
	return cmd
}

// VersionInfo 版本信息
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// NewVersionCmd 创建 version 命令
func NewVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   app.Version,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			return printOutput(cmd.OutOrStdout(), app.Output, info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "nmtrl %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
				return err
			})
		},
	}
}

//Personal.AI order the ending
