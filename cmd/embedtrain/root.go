package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "embedtrain"
	appVersion = "0.1.0"
)

// NewRootCommand builds the embedtrain command tree
func NewRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           appName,
		Short:         "Fine-tune sentence-embedding models on mixtures of labeled text datasets",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newTrainCommand(),
		newRecipeCommand(),
		newEvalCommand(),
		newDatasetsCommand(),
		newVersionCommand(),
	)

	return root
}
