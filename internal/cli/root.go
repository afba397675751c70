// Package cli is the learnhub command line: serve the API, run the task
// worker, and manage database migrations.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/learnhub-auth/internal/app"
)

type rootOptions struct {
	configFile string
	dotEnvFile string

	cfg    app.Config
	logger *slog.Logger
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stderr).ExecuteContext(ctx)
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "learnhub",
		Short: "LearnHub authentication service",
		Long: `LearnHub authentication service: SMS login, refresh tokens,
WeChat web login, and verification of external bearer tokens.

Configuration is read from LEARNHUB_* environment variables, an optional
YAML or JSON file, and an optional .env file.

Examples:
  learnhub migrate up
  learnhub serve
  learnhub worker`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Load(opts.configFile, opts.dotEnvFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			opts.logger = app.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML or JSON config file")
	cmd.PersistentFlags().StringVar(&opts.dotEnvFile, "env-file", ".env", "dotenv file exported before reading the environment")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}
