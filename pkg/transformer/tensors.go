package transformer

import (
	"fmt"
	"math/rand"

	"github.com/conneroisu/transformer/pkg/torch"
	"gonum.org/v1/gonum/mat"
)

// Weights are the parameters of the model.
type Weights struct {
	WK *mat.Dense // (V, d) - maps embeddings to keys.
	WQ *mat.Dense // (V, d) - maps embeddings to queries.
	WV *mat.Dense // (V, d) - maps embeddings to values.
	WO *mat.Dense // (d, V) - maps context vectors to output logits.
}

// NewWeights returns zeroed weights for a vocabulary of size V and projection
// dimension d. Both must be positive.
func NewWeights(V, d int) (Weights, error) {
	if V <= 0 || d <= 0 {
		return Weights{}, fmt.Errorf("weights over V=%d d=%d: %w", V, d, torch.ErrShapeMismatch)
	}
	return Weights{
		WK: mat.NewDense(V, d, nil),
		WQ: mat.NewDense(V, d, nil),
		WV: mat.NewDense(V, d, nil),
		WO: mat.NewDense(d, V, nil),
	}, nil
}

// RandomWeights returns weights whose entries are drawn from N(0, scale²).
func RandomWeights(rng *rand.Rand, V, d int, scale float64) (Weights, error) {
	w, err := NewWeights(V, d)
	if err != nil {
		return Weights{}, err
	}
	for _, m := range []*mat.Dense{w.WK, w.WQ, w.WV, w.WO} {
		raw := m.RawMatrix().Data
		for i := range raw {
			raw[i] = rng.NormFloat64() * scale
		}
	}
	return w, nil
}

// Dims returns the vocabulary size V and projection dimension d.
func (w Weights) Dims() (V, d int) {
	if w.WK == nil {
		return 0, 0
	}
	return w.WK.Dims()
}

// Validate checks that WK, WQ and WV are V-by-d and WO is d-by-V.
func (w Weights) Validate() error {
	if w.WK == nil {
		return fmt.Errorf("WK is nil: %w", torch.ErrShapeMismatch)
	}
	V, d := w.Dims()
	if err := torch.CheckShape("WQ", w.WQ, V, d); err != nil {
		return err
	}
	if err := torch.CheckShape("WV", w.WV, V, d); err != nil {
		return err
	}
	return torch.CheckShape("WO", w.WO, d, V)
}

// Clone returns a deep copy of the weights.
func (w Weights) Clone() Weights {
	return Weights{
		WK: mat.DenseCopyOf(w.WK),
		WQ: mat.DenseCopyOf(w.WQ),
		WV: mat.DenseCopyOf(w.WV),
		WO: mat.DenseCopyOf(w.WO),
	}
}

// Step applies one gradient descent update in place: W ← W − learningRate·dW.
func (w Weights) Step(grads Gradients, learningRate float64) {
	w.WK.Add(w.WK, scaled(-learningRate, grads.WK))
	w.WO.Add(w.WO, scaled(-learningRate, grads.WO))
	w.WQ.Add(w.WQ, scaled(-learningRate, grads.WQ))
	w.WV.Add(w.WV, scaled(-learningRate, grads.WV))
}

func scaled(s float64, m mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Scale(s, m)
	return &out
}

// Gradients hold the derivative of the loss with respect to each weight
// matrix. Each has the shape of its counterpart in Weights.
type Gradients struct {
	WK *mat.Dense
	WO *mat.Dense
	WQ *mat.Dense
	WV *mat.Dense
}

// Activations are the intermediate values of one forward pass, kept for the
// backward pass. NK is the number of key rows (T-2).
type Activations struct {
	A *mat.Dense // (2, NK) - attention each query pays to each key.
	C *mat.Dense // (2, d) - context vectors.
	K *mat.Dense // (NK, d) - keys.
	O *mat.Dense // (2, V) - output probabilities.
	Q *mat.Dense // (2, d) - queries.
	V *mat.Dense // (NK, d) - values.
}
