package cmd

import (
	"fmt"
	"math/rand"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/transformer"
	"github.com/spf13/cobra"
)

// NewTrainCommand returns a new train command.
func NewTrainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a corpus and write a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			corpus, err := data.LoadCorpus(RootArgs.corpusPath)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}
			if corpus.Skipped > 0 {
				log.Warn("skipped short sentences", "count", corpus.Skipped, "min_words", data.MinSentenceLength)
			}
			embeddings, err := corpus.Embeddings()
			if err != nil {
				return fmt.Errorf("failed to embed corpus: %w", err)
			}
			if len(embeddings) == 0 {
				return fmt.Errorf("corpus %s has no sentence of %d or more words: %w",
					RootArgs.corpusPath, data.MinSentenceLength, transformer.ErrNoExamples)
			}
			log.Info("loaded corpus",
				"sentences", len(embeddings),
				"vocabulary", corpus.Vocabulary.Len(),
			)
			rng := rand.New(rand.NewSource(RootArgs.seed))
			weights, err := transformer.RandomWeights(rng, corpus.Vocabulary.Len(), RootArgs.dim, RootArgs.initScale)
			if err != nil {
				return fmt.Errorf("failed to initialise weights: %w", err)
			}
			before, err := transformer.Evaluate(embeddings, weights)
			if err != nil {
				return err
			}
			losses, weights, err := transformer.Train(cmd.Context(), embeddings, weights, transformer.TrainOptions{
				LearningRate: RootArgs.learningRate,
				Iterations:   RootArgs.iterations,
				Rand:         rng,
				Logger:       log.Default(),
				LogEvery:     RootArgs.logEvery,
			})
			if err != nil {
				return fmt.Errorf("failed to train model: %w", err)
			}
			after, err := transformer.Evaluate(embeddings, weights)
			if err != nil {
				return err
			}
			log.Info("mean loss", "before", before, "after", after, "steps", len(losses))
			if err := transformer.SaveModel(RootArgs.checkpointPath, corpus.Vocabulary, weights); err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}
			log.Info("wrote checkpoint", "path", RootArgs.checkpointPath)
			return nil
		},
	}

	cmd.Flags().
		IntVarP(&RootArgs.dim, "dim", "d", 16, "Key/query/value dimension")
	cmd.Flags().
		Float64VarP(&RootArgs.learningRate, "learning-rate", "r", 0.05, "Learning rate")
	cmd.Flags().
		IntVarP(&RootArgs.iterations, "iterations", "n", 1000, "Number of SGD steps")
	cmd.Flags().
		Int64VarP(&RootArgs.seed, "seed", "s", 1, "Seed for weight initialisation and sampling")
	cmd.Flags().
		Float64Var(&RootArgs.initScale, "init-scale", 0.1, "Standard deviation of the initial weights")
	cmd.Flags().
		IntVar(&RootArgs.logEvery, "log-every", 100, "Steps between progress records")
	return cmd
}
