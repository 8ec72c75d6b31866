package main

import (
	"os"

	"github.com/nimasrn/school-payment/internal/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var envPath string

	root := &cobra.Command{
		Use:           "cli",
		Short:         "Operational commands for the school payment service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envPath == "" {
				if _, err := os.Stat(".env"); err == nil {
					envPath = ".env"
				}
			}
			return config.Load(envPath)
		},
	}
	root.PersistentFlags().StringVar(&envPath, "env", "", "path of an env file to load before the environment")

	root.AddCommand(newMigrateCmd(), newReconcileCmd(), newSignCmd())
	return root
}
