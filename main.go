package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal",
		Short: "Community portal backend",
		Long:  `Backend for the roleplay community portal: applications, reviews, support tickets and Discord notifications.`,
		// Usage is noise for runtime failures.
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newExportCommand(),
		newReplayCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
