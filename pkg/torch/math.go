package torch

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tiny is the floor applied to probabilities before taking a log or dividing.
// It is the smallest positive normal float64.
const Tiny = 0x1p-1022

// ErrShapeMismatch is returned when operands have incompatible dimensions.
var ErrShapeMismatch = errors.New("shape mismatch")

// CheckShape returns ErrShapeMismatch unless m is rows-by-cols.
func CheckShape(name string, m mat.Matrix, rows, cols int) error {
	if m == nil {
		return fmt.Errorf("%s is nil: %w", name, ErrShapeMismatch)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%s is %dx%d, want %dx%d: %w", name, r, c, rows, cols, ErrShapeMismatch)
	}
	return nil
}

// Matmul projects the rows of inp through weight.
//
// out = inp · weight
//
// Parameters:
//   - inp: input matrix (N, C)
//   - weight: weight matrix (C, OC)
//
// Used for every linear projection of the model: keys, queries and values
// from the raw embeddings, and logits from the context vectors.
func Matmul(inp, weight mat.Matrix) (*mat.Dense, error) {
	if inp == nil || weight == nil {
		return nil, fmt.Errorf("matmul of nil operand: %w", ErrShapeMismatch)
	}
	n, c := inp.Dims()
	wr, oc := weight.Dims()
	if c != wr {
		return nil, fmt.Errorf("matmul %dx%d by %dx%d: %w", n, c, wr, oc, ErrShapeMismatch)
	}
	out := mat.NewDense(n, oc, nil)
	out.Mul(inp, weight)
	return out, nil
}

// SoftmaxForward calculates the row-wise softmax of logits.
//
// Each row has its maximum subtracted before exponentiating, so every
// exponent is at most zero and the row sum is at least one. Rows are
// independent and are normalised concurrently.
func SoftmaxForward(logits mat.Matrix) *mat.Dense {
	r, c := logits.Dims()
	probs := mat.NewDense(r, c, nil)
	probs.Copy(logits)
	var wg sync.WaitGroup
	for i := 0; i < r; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row := probs.RawRowView(i)
			// Numerical Stability
			maxval := floats.Max(row)
			for j := range row {
				row[j] = math.Exp(row[j] - maxval)
			}
			floats.Scale(1/floats.Sum(row), row)
		}(i)
	}
	wg.Wait()
	return probs
}

// SoftmaxBackward maps the gradient of a row-wise softmax output back onto
// its input scores.
//
// For each row with s = Σ_j dprobs_j · probs_j:
//
//	dlogits = probs ⊙ (dprobs − s)
//
// Parameters:
//   - dprobs: gradient of the loss with respect to probs (R, C)
//   - probs: the softmax output of the forward pass (R, C)
func SoftmaxBackward(dprobs, probs mat.Matrix) (*mat.Dense, error) {
	r, c := probs.Dims()
	if err := CheckShape("dprobs", dprobs, r, c); err != nil {
		return nil, err
	}
	dlogits := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		p := mat.Row(nil, i, probs)
		dp := mat.Row(nil, i, dprobs)
		s := floats.Dot(dp, p)
		out := dlogits.RawRowView(i)
		for j := range out {
			out[j] = p[j] * (dp[j] - s)
		}
	}
	return dlogits, nil
}

// AttentionForward performs the attention forward pass.
//
// Every query row is compared against every key row by an unscaled dot
// product; the scores are normalised row-wise into attention weights, and
// each context vector is the attention-weighted sum of the value rows.
//
// Parameters:
//   - query: query vectors (NQ, D)
//   - key: key vectors (NK, D)
//   - value: value vectors (NK, D)
//
// Returns the attention weights att (NQ, NK) and the context vectors out (NQ, D).
func AttentionForward(query, key, value mat.Matrix) (att, out *mat.Dense, err error) {
	nq, d := query.Dims()
	nk, _ := key.Dims()
	if err := CheckShape("key", key, nk, d); err != nil {
		return nil, nil, err
	}
	if err := CheckShape("value", value, nk, d); err != nil {
		return nil, nil, err
	}
	preatt := mat.NewDense(nq, nk, nil)
	preatt.Mul(query, key.T())
	att = SoftmaxForward(preatt)
	out = mat.NewDense(nq, d, nil)
	out.Mul(att, value)
	return att, out, nil
}

// AttentionBackward performs the backward pass of AttentionForward.
//
// Parameters:
//   - dout: gradient of the context vectors (NQ, D)
//   - query: query vectors (NQ, D)
//   - key: key vectors (NK, D)
//   - value: value vectors (NK, D)
//   - att: attention weights from the forward pass (NQ, NK)
//
// Returns the gradients with respect to query, key and value.
func AttentionBackward(dout, query, key, value, att mat.Matrix) (dquery, dkey, dvalue *mat.Dense, err error) {
	nq, d := query.Dims()
	nk, _ := key.Dims()
	if err := CheckShape("dout", dout, nq, d); err != nil {
		return nil, nil, nil, err
	}
	if err := CheckShape("att", att, nq, nk); err != nil {
		return nil, nil, nil, err
	}
	if err := CheckShape("value", value, nk, d); err != nil {
		return nil, nil, nil, err
	}
	// value accumulation
	dvalue = mat.NewDense(nk, d, nil)
	dvalue.Mul(att.T(), dout)
	datt := mat.NewDense(nq, nk, nil)
	datt.Mul(dout, value.T())
	// softmax does not need the scores, only its output
	dpreatt, err := SoftmaxBackward(datt, att)
	if err != nil {
		return nil, nil, nil, err
	}
	// query @ key matmul
	dquery = mat.NewDense(nq, d, nil)
	dquery.Mul(dpreatt, key)
	dkey = mat.NewDense(nk, d, nil)
	dkey.Mul(dpreatt.T(), query)
	return dquery, dkey, dvalue, nil
}

// CrossEntropyForward calculates the cross entropy loss summed over every
// row and column, and its gradient with respect to probs.
//
//	loss = −Σ targets · log(max(probs, Tiny))
//	dprobs = −targets / max(probs, Tiny)
//
// Parameters:
//   - probs: output probabilities (N, V)
//   - targets: one-hot targets (N, V)
func CrossEntropyForward(probs, targets mat.Matrix) (float64, *mat.Dense, error) {
	r, c := probs.Dims()
	if err := CheckShape("targets", targets, r, c); err != nil {
		return 0, nil, err
	}
	var loss float64
	dprobs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			y := targets.At(i, j)
			if y == 0 {
				continue
			}
			p := math.Max(probs.At(i, j), Tiny)
			loss -= y * math.Log(p)
			dprobs.Set(i, j, -y/p)
		}
	}
	return loss, dprobs, nil
}

// CrossentropySoftmaxBackward calculates the gradient of the cross entropy
// loss with respect to the logits that produced probs through a softmax.
//
// When every target row sums to one the softmax Jacobian and the cross
// entropy derivative collapse into
//
//	dlogits = probs − targets
func CrossentropySoftmaxBackward(probs, targets mat.Matrix) (*mat.Dense, error) {
	r, c := probs.Dims()
	if err := CheckShape("targets", targets, r, c); err != nil {
		return nil, err
	}
	dlogits := mat.NewDense(r, c, nil)
	dlogits.Sub(probs, targets)
	return dlogits, nil
}

// ArgMax returns the column index of the largest entry in row i of m.
// Ties resolve to the lowest index.
func ArgMax(m mat.Matrix, i int) int {
	return floats.MaxIdx(mat.Row(nil, i, m))
}
