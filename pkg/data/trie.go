package data

import "fmt"

// trie is a trie data structure.
type trie struct {
	children map[byte]*trie
	data     int32
	end      bool
}

// newTrie creates a new trie.
func newTrie() *trie {
	return &trie{
		children: map[byte]*trie{},
	}
}

// Insert inserts a word into the trie.
func (t *trie) Insert(word []byte, data int32) error {
	if len(word) == 0 {
		return fmt.Errorf("zero length word not supported")
	}
	cur := t
	for _, b := range word {
		if cur.children[b] == nil {
			cur.children[b] = newTrie()
		}
		cur = cur.children[b]
	}
	if cur.end {
		return fmt.Errorf("word %q already stored as %d: %w", word, cur.data, ErrDuplicateWord)
	}
	cur.end = true
	cur.data = data
	return nil
}

// Lookup returns the data stored for word, if word was inserted.
func (t *trie) Lookup(word []byte) (int32, bool) {
	cur := t
	for _, b := range word {
		cur = cur.children[b]
		if cur == nil {
			return 0, false
		}
	}
	return cur.data, cur.end
}
