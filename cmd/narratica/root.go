package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var flags globalFlags
	ctx := newCommandContext(&flags)

	rootCmd := &cobra.Command{
		Use:           "narratica",
		Short:         "Generate and parse illustrated children's stories",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Directory for stored stories (overrides DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&flags.provider, "provider", "", "LLM provider name (overrides LLM_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&flags.storage, "storage", "", "Storage backend: file or sqlite (overrides STORAGE_BACKEND)")
	rootCmd.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "Write service logs to stderr")

	rootCmd.AddCommand(newParseCommand())
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))

	return rootCmd
}
