// Package logreg fits binary logistic regression models by maximum
// likelihood with optional L2 regularization and per-sample weights.
package logreg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Domain errors for the logreg package.
var (
	ErrSingleClass = errors.New("training labels contain a single class")
	ErrShape       = errors.New("inconsistent training data shape")
)

// DefaultMaxIterations bounds the BFGS major iterations.
const DefaultMaxIterations = 200

// Sigmoid is the logistic function, evaluated without overflow for large |z|.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus returns log(1+exp(z)) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

// Model is a fitted linear decision function.
type Model struct {
	Weights []float64 `msgpack:"weights" json:"weights"`
	Bias    float64   `msgpack:"bias" json:"bias"`
}

// Decision returns w·x + b. Missing features count as zero.
func (m Model) Decision(x []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		if j < len(x) {
			z += w * x[j]
		}
	}
	return z
}

// Predict returns the positive-class probability for x.
func (m Model) Predict(x []float64) float64 {
	return Sigmoid(m.Decision(x))
}

// Options tunes Fit. The zero value is a plain maximum-likelihood fit.
type Options struct {
	// L2 is the ridge penalty on the weights (not the bias), applied to the
	// weight-normalized log loss.
	L2 float64
	// SampleWeights scales each sample's loss. Nil means uniform.
	SampleWeights []float64
	// MaxIterations defaults to DefaultMaxIterations.
	MaxIterations int
}

// BalancedWeights returns per-sample weights n/(2·count(class)) so both
// classes contribute equally to the loss.
func BalancedWeights(y []int) []float64 {
	pos := 0
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	neg := len(y) - pos
	w := make([]float64, len(y))
	for i, v := range y {
		switch {
		case v == 1 && pos > 0:
			w[i] = float64(len(y)) / (2 * float64(pos))
		case v != 1 && neg > 0:
			w[i] = float64(len(y)) / (2 * float64(neg))
		}
	}
	return w
}

// Fit estimates a Model from rows X and 0/1 labels y using BFGS. It
// returns ErrSingleClass when y does not contain both classes, since the
// maximum-likelihood problem has no finite solution then.
func Fit(X [][]float64, y []int, opts Options) (Model, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return Model{}, fmt.Errorf("%w: %d rows, %d labels", ErrShape, n, len(y))
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return Model{}, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), d)
		}
	}
	sw := opts.SampleWeights
	if sw == nil {
		sw = make([]float64, n)
		for i := range sw {
			sw[i] = 1
		}
	}
	if len(sw) != n {
		return Model{}, fmt.Errorf("%w: %d sample weights for %d rows", ErrShape, len(sw), n)
	}

	pos := 0
	for _, v := range y {
		if v == 1 {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return Model{}, ErrSingleClass
	}

	total := 0.0
	for _, w := range sw {
		total += w
	}
	if total <= 0 {
		return Model{}, fmt.Errorf("%w: sample weights sum to %v", ErrShape, total)
	}

	// Parameters are laid out as [w_0 .. w_{d-1}, b].
	decision := func(params []float64, row []float64) float64 {
		z := params[d]
		for j, v := range row {
			z += params[j] * v
		}
		return z
	}

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			loss := 0.0
			for i, row := range X {
				z := decision(params, row)
				loss += sw[i] * (softplus(z) - float64(y[i])*z)
			}
			loss /= total
			for j := 0; j < d; j++ {
				loss += 0.5 * opts.L2 * params[j] * params[j]
			}
			return loss
		},
		Grad: func(grad, params []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i, row := range X {
				r := sw[i] * (Sigmoid(decision(params, row)) - float64(y[i])) / total
				for j, v := range row {
					grad[j] += r * v
				}
				grad[d] += r
			}
			for j := 0; j < d; j++ {
				grad[j] += opts.L2 * params[j]
			}
		},
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   maxIter,
	}

	result, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.BFGS{})
	if result == nil {
		return Model{}, fmt.Errorf("optimizing log loss: %w", err)
	}
	// Line-search stalls near the optimum surface as errors; the location
	// is still usable as long as it is finite.
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Model{}, fmt.Errorf("optimizing log loss: non-finite solution (%v)", err)
		}
	}

	weights := make([]float64, d)
	copy(weights, result.X[:d])
	return Model{Weights: weights, Bias: result.X[d]}, nil
}
