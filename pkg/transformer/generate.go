package transformer

import (
	"fmt"
	"iter"

	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/torch"
	"gonum.org/v1/gonum/mat"
)

// Generate runs inference on each sentence embedding and yields the generated
// sentence: the arg-max words of the first T-2 rows followed by the two words
// the model predicts. The last two rows of each embedding are never shown to
// the model.
//
// The sequence is lazy and may be ranged over any number of times. An error
// for one sentence is yielded alongside a nil sentence; iteration continues
// unless the caller stops it.
func Generate(embeddings []*mat.Dense, vocab *data.Vocabulary, w Weights) iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for i, emb := range embeddings {
			sentence, err := generateOne(emb, vocab, w)
			if err != nil {
				err = fmt.Errorf("sentence %d: %w", i, err)
			}
			if !yield(sentence, err) {
				return
			}
		}
	}
}

// GenerateAll collects Generate, stopping at the first error.
func GenerateAll(embeddings []*mat.Dense, vocab *data.Vocabulary, w Weights) ([][]string, error) {
	generated := make([][]string, 0, len(embeddings))
	for sentence, err := range Generate(embeddings, vocab, w) {
		if err != nil {
			return nil, err
		}
		generated = append(generated, sentence)
	}
	return generated, nil
}

func generateOne(emb mat.Matrix, vocab *data.Vocabulary, w Weights) ([]string, error) {
	V, _ := w.Dims()
	if vocab == nil {
		return nil, fmt.Errorf("nil vocabulary: %w", torch.ErrShapeMismatch)
	}
	if vocab.Len() != V {
		return nil, fmt.Errorf("vocabulary of %d words for weights over %d: %w", vocab.Len(), V, torch.ErrShapeMismatch)
	}
	xk, xq, err := data.SplitPrompt(emb)
	if err != nil {
		return nil, err
	}
	act, err := Forward(xk, xq, w)
	if err != nil {
		return nil, err
	}
	nk, _ := xk.Dims()
	ids := make([]int, 0, nk+NumQueries)
	for t := 0; t < nk; t++ {
		ids = append(ids, torch.ArgMax(xk, t))
	}
	for q := 0; q < NumQueries; q++ {
		ids = append(ids, torch.ArgMax(act.O, q))
	}
	return vocab.Decode(ids)
}
