package transformer

import (
	"testing"

	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/torch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestVocabulary(t *testing.T) *data.Vocabulary {
	t.Helper()
	vocab, err := data.NewVocabulary([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	return vocab
}

func TestGeneratePromptWords(t *testing.T) {
	vocab := newTestVocabulary(t)
	w := randomWeights(t, 4, vocab.Len(), 2, 1)
	embeddings := []*mat.Dense{
		oneHot(4, 2, 0, 3, 1, 1),
		oneHot(4, 1, 1, 0),
	}
	generated, err := GenerateAll(embeddings, vocab, w)
	require.NoError(t, err)
	require.Len(t, generated, 2)

	assert.Len(t, generated[0], 5)
	assert.Equal(t, []string{"c", "a", "d"}, generated[0][:3])
	assert.Len(t, generated[1], 3)
	assert.Equal(t, []string{"b"}, generated[1][:1])
	for _, sentence := range generated {
		for _, word := range sentence {
			_, ok := vocab.Index(word)
			assert.True(t, ok, word)
		}
	}
}

func TestGeneratePredictsArgMax(t *testing.T) {
	vocab := newTestVocabulary(t)
	// every value vector is all ones, so both context vectors are all ones
	// and the logits are the row sums of WO's columns
	w := zeroWeights(t, 4, 2)
	w.WV = mat.NewDense(4, 2, []float64{1, 1, 1, 1, 1, 1, 1, 1})
	w.WO = mat.NewDense(2, 4, []float64{0, 0, 1, 3, 0, 0, 1, 0})

	generated, err := GenerateAll([]*mat.Dense{oneHot(4, 0, 1, 2, 0, 0)}, vocab, w)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c", "d", "d"}}, generated)
}

func TestGenerateIsRestartable(t *testing.T) {
	vocab := newTestVocabulary(t)
	w := randomWeights(t, 6, vocab.Len(), 3, 1)
	seq := Generate([]*mat.Dense{oneHot(4, 0, 1, 2, 3), oneHot(4, 3, 2, 1, 0)}, vocab, w)

	var first, second [][]string
	for s, err := range seq {
		require.NoError(t, err)
		first = append(first, s)
	}
	for s, err := range seq {
		require.NoError(t, err)
		second = append(second, s)
	}
	assert.Equal(t, first, second)

	var n int
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestGenerateErrors(t *testing.T) {
	vocab := newTestVocabulary(t)
	w := zeroWeights(t, 4, 2)

	var errs []error
	for _, err := range Generate([]*mat.Dense{oneHot(4, 0, 1), oneHot(4, 0, 1, 2)}, vocab, w) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], data.ErrDegenerateInput)
	assert.NoError(t, errs[1])

	_, err := GenerateAll([]*mat.Dense{oneHot(4, 0, 1)}, vocab, w)
	require.ErrorIs(t, err, data.ErrDegenerateInput)

	_, err = GenerateAll([]*mat.Dense{oneHot(5, 0, 1, 2)}, vocab, zeroWeights(t, 5, 2))
	require.ErrorIs(t, err, torch.ErrShapeMismatch)

	_, err = GenerateAll([]*mat.Dense{oneHot(4, 0, 1, 2)}, nil, w)
	require.ErrorIs(t, err, torch.ErrShapeMismatch)
}
