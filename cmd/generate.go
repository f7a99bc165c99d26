package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/transformer"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// NewGenerateCommand returns a new cobra.Command for the generate command.
func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Complete the last two words of every corpus sentence",
		Long: `
Loads a checkpoint and, for every sentence of the corpus, prints the sentence
with its last two words replaced by the model's predictions.
	`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vocab, weights, err := transformer.LoadModel(RootArgs.checkpointPath)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			corpus, err := data.LoadCorpus(RootArgs.corpusPath)
			if err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}
			embeddings := make([]*mat.Dense, 0, len(corpus.Sentences))
			for i, sentence := range corpus.Sentences {
				emb, err := vocab.OneHot(sentence)
				if errors.Is(err, data.ErrUnknownWord) {
					log.Warn("skipping sentence", "index", i, "err", err)
					continue
				}
				if err != nil {
					return err
				}
				embeddings = append(embeddings, emb)
			}
			out := cmd.OutOrStdout()
			for sentence, err := range transformer.Generate(embeddings, vocab, weights) {
				if err != nil {
					return err
				}
				fmt.Fprintln(out, strings.Join(sentence, " "))
			}
			return nil
		},
	}
	return cmd
}
