package main

import (
	"github.com/nimasrn/school-payment/internal/app"
	"github.com/nimasrn/school-payment/internal/config"
	"github.com/nimasrn/school-payment/pkg/pg"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return pg.Migrate(app.WriteDBConfig(config.Get()), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./migrations", "directory holding the goose migrations")
	return cmd
}
