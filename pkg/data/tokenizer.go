package data

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// wordPattern matches runs of letters (with inner apostrophes, as in
// "don't") or runs of digits.
var wordPattern = regexp2.MustCompile(`\p{L}+(?:'\p{L}+)*|\p{N}+`, regexp2.None)

// Tokenize splits a line of text into lowercase words.
func Tokenize(line string) ([]string, error) {
	var words []string
	m, err := wordPattern.FindStringMatch(strings.ToLower(line))
	for m != nil && err == nil {
		words = append(words, m.String())
		m, err = wordPattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, err
	}
	return words, nil
}
