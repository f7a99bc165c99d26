// Package data turns text into the one-hot sentence matrices the model
// consumes, and splits them into keys, queries and targets.
package data

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Corpus is a set of tokenized sentences and the vocabulary covering them.
type Corpus struct {
	Vocabulary *Vocabulary
	Sentences  [][]string
	// Skipped counts non-empty lines dropped for having fewer than
	// MinSentenceLength words.
	Skipped int
}

// LoadCorpus reads a corpus file with one sentence per line.
func LoadCorpus(filename string) (*Corpus, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCorpus(file)
}

// ReadCorpus reads one sentence per line from r. The vocabulary lists words
// in order of first appearance.
func ReadCorpus(r io.Reader) (*Corpus, error) {
	corpus := &Corpus{}
	var words []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sentence, err := Tokenize(scanner.Text())
		if err != nil {
			return nil, err
		}
		if len(sentence) == 0 {
			continue
		}
		if len(sentence) < MinSentenceLength {
			corpus.Skipped++
			continue
		}
		for _, w := range sentence {
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
		corpus.Sentences = append(corpus.Sentences, sentence)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	vocab, err := NewVocabulary(words)
	if err != nil {
		return nil, err
	}
	corpus.Vocabulary = vocab
	return corpus, nil
}

// Embeddings returns the one-hot matrix of every sentence.
func (c *Corpus) Embeddings() ([]*mat.Dense, error) {
	return Embed(c.Vocabulary, c.Sentences)
}

// Embed one-hot encodes sentences with vocab.
func Embed(vocab *Vocabulary, sentences [][]string) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, 0, len(sentences))
	for i, s := range sentences {
		emb, err := vocab.OneHot(s)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		out = append(out, emb)
	}
	return out, nil
}
