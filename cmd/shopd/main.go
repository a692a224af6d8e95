package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "shopd",
		Short:        "storefront order and payment service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCommand(),
		relayCommand(),
		migrateCommand(),
		createMigrationCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
