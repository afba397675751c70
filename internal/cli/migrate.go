package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/StricklySoft/learnhub-auth/internal/app"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown migrate action %q (want up, down or status)", args[0])
		},
	}

	for _, action := range []struct {
		name  string
		short string
	}{
		{app.MigrateUp, "Apply every pending migration"},
		{app.MigrateDown, "Roll back the most recent migration"},
		{app.MigrateStatus, "Print the current schema version"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.name,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				version, err := app.RunMigrations(cmd.Context(), opts.cfg, action.name, opts.logger)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return err
			},
		})
	}
	return cmd
}
