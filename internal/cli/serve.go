package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/learnhub-auth/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the auth API under /api/v1 and /healthz until SIGINT or SIGTERM.

Run "learnhub migrate up" first on a fresh database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx := cmd.Context()

			infra, err := app.Connect(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			a, err := app.New(cfg, infra, opts.logger)
			if err != nil {
				infra.Close()
				return fmt.Errorf("build: %w", err)
			}
			return a.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LEARNHUB_HTTP_ADDR)")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process background tasks",
		Long: `Process queued tasks, such as SMS code delivery, until SIGINT or SIGTERM.
Only needed when LEARNHUB_SMS_DELIVERY=task.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if concurrency > 0 {
				cfg.WorkerConcurrency = concurrency
			}
			return app.RunWorker(cmd.Context(), cfg, opts.logger)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "tasks processed at once (overrides LEARNHUB_WORKER_CONCURRENCY)")
	return cmd
}
