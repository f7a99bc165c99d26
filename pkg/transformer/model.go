// Package transformer implements a single-layer, single-head attention model
// over one-hot word embeddings: forward inference, cross entropy loss, an
// analytic backward pass and stochastic gradient descent.
//
// A sentence of T words is split into T-2 key/value rows and two query rows;
// the model predicts the last two words from them.
package transformer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/charmbracelet/log"
	"github.com/conneroisu/transformer/pkg/data"
	"github.com/conneroisu/transformer/pkg/torch"
	"gonum.org/v1/gonum/mat"
)

// NumQueries is the number of query rows, and of predicted words, per sentence.
const NumQueries = 2

// ErrNoExamples is returned when training on an empty set of sentences.
var ErrNoExamples = errors.New("no training examples")

// Forward performs one layer of attention inference.
//
// Parameters:
//   - xk: (T-2, V) embeddings of the words used for keys and values
//   - xq: (2, V) embeddings of the words used for queries
//   - w: the model weights
//
// The returned activations hold everything Backward needs; Activations.O is
// the (2, V) matrix of output word probabilities.
func Forward(xk, xq mat.Matrix, w Weights) (Activations, error) {
	if err := w.Validate(); err != nil {
		return Activations{}, err
	}
	V, _ := w.Dims()
	if xk == nil || xq == nil {
		return Activations{}, fmt.Errorf("nil input: %w", torch.ErrShapeMismatch)
	}
	nk, _ := xk.Dims()
	if err := torch.CheckShape("XK", xk, nk, V); err != nil {
		return Activations{}, err
	}
	if err := torch.CheckShape("XQ", xq, NumQueries, V); err != nil {
		return Activations{}, err
	}
	var (
		act Activations
		err error
	)
	if act.K, err = torch.Matmul(xk, w.WK); err != nil {
		return Activations{}, err
	}
	if act.Q, err = torch.Matmul(xq, w.WQ); err != nil {
		return Activations{}, err
	}
	if act.V, err = torch.Matmul(xk, w.WV); err != nil {
		return Activations{}, err
	}
	if act.A, act.C, err = torch.AttentionForward(act.Q, act.K, act.V); err != nil {
		return Activations{}, err
	}
	logits, err := torch.Matmul(act.C, w.WO)
	if err != nil {
		return Activations{}, err
	}
	act.O = torch.SoftmaxForward(logits)
	return act, nil
}

// Loss returns the cross entropy of the output probabilities o against the
// one-hot targets y, summed over both rows, and its gradient with respect
// to o.
func Loss(o, y mat.Matrix) (float64, *mat.Dense, error) {
	return torch.CrossEntropyForward(o, y)
}

// Backward computes the gradient of the cross entropy loss with respect to
// every weight matrix, given the inputs and activations of a forward pass.
func Backward(xk, xq, y mat.Matrix, w Weights, act Activations) (Gradients, error) {
	if err := w.Validate(); err != nil {
		return Gradients{}, err
	}
	if xk == nil || xq == nil || y == nil {
		return Gradients{}, fmt.Errorf("nil input: %w", torch.ErrShapeMismatch)
	}
	if act.A == nil || act.C == nil || act.K == nil || act.O == nil || act.Q == nil || act.V == nil {
		return Gradients{}, errors.New("backward without a complete forward pass")
	}
	// fused softmax + cross entropy: dlogits = O - Y
	dlogits, err := torch.CrossentropySoftmaxBackward(act.O, y)
	if err != nil {
		return Gradients{}, err
	}
	var grads Gradients
	if grads.WO, err = torch.Matmul(act.C.T(), dlogits); err != nil {
		return Gradients{}, err
	}
	dcontext, err := torch.Matmul(dlogits, w.WO.T())
	if err != nil {
		return Gradients{}, err
	}
	dquery, dkey, dvalue, err := torch.AttentionBackward(dcontext, act.Q, act.K, act.V, act.A)
	if err != nil {
		return Gradients{}, err
	}
	if grads.WQ, err = torch.Matmul(xq.T(), dquery); err != nil {
		return Gradients{}, err
	}
	if grads.WK, err = torch.Matmul(xk.T(), dkey); err != nil {
		return Gradients{}, err
	}
	if grads.WV, err = torch.Matmul(xk.T(), dvalue); err != nil {
		return Gradients{}, err
	}
	return grads, nil
}

// TrainOptions configure Train.
type TrainOptions struct {
	// LearningRate scales each gradient descent step.
	LearningRate float64
	// Iterations is the exact number of steps to take.
	Iterations int
	// Rand chooses the training sentence of each step. Nil means a source
	// seeded with 0.
	Rand *rand.Rand
	// Logger receives progress records. Nil disables logging.
	Logger *log.Logger
	// LogEvery is the number of steps between progress records; 0 means 100.
	LogEvery int
}

// Train trains the model by stochastic gradient descent.
//
// Each step draws one sentence uniformly at random (with replacement),
// records its loss under the current weights, then moves every weight matrix
// against its gradient. The caller's weights are not modified: Train works on
// a copy and returns it.
//
// ctx is checked between steps. On cancellation the losses recorded so far
// and the weights as they stand are returned together with ctx.Err().
func Train(ctx context.Context, embeddings []*mat.Dense, weights Weights, opts TrainOptions) ([]float64, Weights, error) {
	if len(embeddings) == 0 {
		return nil, weights, ErrNoExamples
	}
	if err := weights.Validate(); err != nil {
		return nil, weights, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logEvery := opts.LogEvery
	if logEvery <= 0 {
		logEvery = 100
	}
	w := weights.Clone()
	losses := make([]float64, 0, opts.Iterations)
	for it := 0; it < opts.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return losses, w, err
		}
		idx := rng.Intn(len(embeddings))
		loss, err := step(embeddings[idx], w, opts.LearningRate)
		if err != nil {
			return losses, w, fmt.Errorf("step %d, sentence %d: %w", it, idx, err)
		}
		losses = append(losses, loss)
		if it%logEvery == 0 {
			logger.Debug("train", "iter", it, "sentence", idx, "loss", loss)
		}
	}
	if n := len(losses); n > 0 {
		logger.Info("training complete", "iterations", n, "final_loss", losses[n-1])
	}
	return losses, w, nil
}

// step runs forward, loss and backward on one sentence and updates w in
// place. The returned loss is computed before the update.
func step(emb mat.Matrix, w Weights, learningRate float64) (float64, error) {
	xk, xq, y, err := data.SplitTask(emb)
	if err != nil {
		return 0, err
	}
	act, err := Forward(xk, xq, w)
	if err != nil {
		return 0, err
	}
	loss, _, err := Loss(act.O, y)
	if err != nil {
		return 0, err
	}
	grads, err := Backward(xk, xq, y, w, act)
	if err != nil {
		return 0, err
	}
	w.Step(grads, learningRate)
	return loss, nil
}

// Evaluate returns the mean loss of the model over embeddings.
func Evaluate(embeddings []*mat.Dense, w Weights) (float64, error) {
	if len(embeddings) == 0 {
		return 0, ErrNoExamples
	}
	var total float64
	for i, emb := range embeddings {
		xk, xq, y, err := data.SplitTask(emb)
		if err != nil {
			return 0, fmt.Errorf("sentence %d: %w", i, err)
		}
		act, err := Forward(xk, xq, w)
		if err != nil {
			return 0, fmt.Errorf("sentence %d: %w", i, err)
		}
		loss, _, err := Loss(act.O, y)
		if err != nil {
			return 0, fmt.Errorf("sentence %d: %w", i, err)
		}
		total += loss
	}
	return total / float64(len(embeddings)), nil
}
