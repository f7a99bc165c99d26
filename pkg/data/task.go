package data

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MinSentenceLength is the shortest sentence that can be split into keys,
// queries and targets.
const MinSentenceLength = 3

// ErrDegenerateInput is returned for sentences shorter than MinSentenceLength.
var ErrDegenerateInput = errors.New("degenerate input")

// SplitTask partitions a T-by-V sentence embedding into
//   - xk: rows [0, T-2), the key/value source
//   - xq: rows T-3 and T-2, the queries
//   - y: rows T-2 and T-1, the targets
//
// The returned matrices are copies; emb is not retained.
func SplitTask(emb mat.Matrix) (xk, xq, y *mat.Dense, err error) {
	xk, xq, err = SplitPrompt(emb)
	if err != nil {
		return nil, nil, nil, err
	}
	t, _ := emb.Dims()
	y = rows(emb, t-2, t)
	return xk, xq, y, nil
}

// SplitPrompt is SplitTask without the targets, for generation.
func SplitPrompt(emb mat.Matrix) (xk, xq *mat.Dense, err error) {
	if emb == nil {
		return nil, nil, fmt.Errorf("nil embedding: %w", ErrDegenerateInput)
	}
	t, _ := emb.Dims()
	if t < MinSentenceLength {
		return nil, nil, fmt.Errorf("sentence of %d words, need at least %d: %w", t, MinSentenceLength, ErrDegenerateInput)
	}
	return rows(emb, 0, t-2), rows(emb, t-3, t-1), nil
}

// rows copies rows [from, to) of m.
func rows(m mat.Matrix, from, to int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(to-from, c, nil)
	for i := from; i < to; i++ {
		out.SetRow(i-from, mat.Row(nil, i, m))
	}
	return out
}
