package data

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnknownWord is returned when encoding a word that is not in the vocabulary.
	ErrUnknownWord = errors.New("unknown word")
	// ErrDuplicateWord is returned when a vocabulary is built from repeated words.
	ErrDuplicateWord = errors.New("duplicate word")
)

// Vocabulary is an ordered list of distinct words. The position of a word is
// the column of its one-hot row.
type Vocabulary struct {
	words []string
	trie  *trie
}

// NewVocabulary returns a new Vocabulary over words, in order.
func NewVocabulary(words []string) (*Vocabulary, error) {
	v := &Vocabulary{
		words: make([]string, 0, len(words)),
		trie:  newTrie(),
	}
	for _, w := range words {
		if err := v.add(w); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *Vocabulary) add(word string) error {
	if err := v.trie.Insert([]byte(word), int32(len(v.words))); err != nil {
		return err
	}
	v.words = append(v.words, word)
	return nil
}

// Len returns the number of words, V.
func (v *Vocabulary) Len() int { return len(v.words) }

// Word returns the word at index i.
func (v *Vocabulary) Word(i int) string { return v.words[i] }

// Words returns a copy of the words in index order.
func (v *Vocabulary) Words() []string {
	return append([]string(nil), v.words...)
}

// Index returns the position of word.
func (v *Vocabulary) Index(word string) (int, bool) {
	i, ok := v.trie.Lookup([]byte(word))
	return int(i), ok
}

// Encode maps words to their indices.
func (v *Vocabulary) Encode(words []string) ([]int, error) {
	out := make([]int, len(words))
	for i, w := range words {
		ix, ok := v.Index(w)
		if !ok {
			return nil, fmt.Errorf("%q: %w", w, ErrUnknownWord)
		}
		out[i] = ix
	}
	return out, nil
}

// Decode maps indices back to words.
func (v *Vocabulary) Decode(indices []int) ([]string, error) {
	out := make([]string, len(indices))
	for i, ix := range indices {
		if ix < 0 || ix >= len(v.words) {
			return nil, fmt.Errorf("not valid index %d for vocabulary of %d words", ix, len(v.words))
		}
		out[i] = v.words[ix]
	}
	return out, nil
}

// OneHot encodes words as a T-by-V matrix whose row t is the one-hot vector
// of words[t].
func (v *Vocabulary) OneHot(words []string) (*mat.Dense, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("one-hot of empty sentence: %w", ErrDegenerateInput)
	}
	ids, err := v.Encode(words)
	if err != nil {
		return nil, err
	}
	emb := mat.NewDense(len(ids), v.Len(), nil)
	for t, ix := range ids {
		emb.Set(t, ix, 1)
	}
	return emb, nil
}
