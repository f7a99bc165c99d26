// Package cmd contains the root command for the transformer CLI.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// rootArgs is the root command arguments.
type rootArgs struct {
	verbose        bool
	corpusPath     string
	checkpointPath string
	dim            int
	learningRate   float64
	iterations     int
	seed           int64
	initScale      float64
	logEvery       int
}

// RootArgs is the root command arguments.
var RootArgs rootArgs

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "transformer",
	Short: "Train and sample a one-layer attention model",
	Long: `
Train and sample a one-layer attention model.

Each sentence of a corpus is split into context words and two query words;
the model learns to predict the last two words of the sentence.
	`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if RootArgs.verbose {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&RootArgs.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().
		StringVarP(&RootArgs.corpusPath, "corpus", "c", "corpus.txt", "Path to the corpus file, one sentence per line")
	rootCmd.PersistentFlags().
		StringVarP(&RootArgs.checkpointPath, "checkpoint", "m", "model.ckpt", "Path to the model checkpoint")
	rootCmd.AddCommand(NewTrainCommand())
	rootCmd.AddCommand(NewGenerateCommand())
}
