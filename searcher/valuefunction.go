package searcher

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"qwop/game"
)

// ValueFunction is a learned scoring oracle. Evaluate may be called from many
// workers at once.
type ValueFunction interface {
	Evaluate(n *Node) float32
	Update(nodes []*Node) error
}

// ConstantValueFunction scores every node the same and learns nothing.
type ConstantValueFunction float32

func (c ConstantValueFunction) Evaluate(*Node) float32 { return float32(c) }

func (ConstantValueFunction) Update([]*Node) error { return nil }

// DefaultRidge is the regularization of LinearValueFunction. Some flattened
// state variables are constant, so an unregularized fit is singular.
const DefaultRidge = 1e-6

// LinearValueFunction fits node values as an affine function of the
// flattened state by ridge regression.
type LinearValueFunction struct {
	mu      sync.RWMutex
	ridge   float64
	weights []float64 // bias first
}

func NewLinearValueFunction(ridge float64) *LinearValueFunction {
	if ridge <= 0 {
		ridge = DefaultRidge
	}
	return &LinearValueFunction{ridge: ridge, weights: make([]float64, game.StateSize+1)}
}

func (f *LinearValueFunction) Evaluate(n *Node) float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sum := f.weights[0]
	for i, v := range n.State().Flatten() {
		sum += f.weights[i+1] * float64(v)
	}
	return float32(sum)
}

// Weights returns a copy of the fitted coefficients, bias first.
func (f *LinearValueFunction) Weights() []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]float64(nil), f.weights...)
}

// Update refits the weights to the current values of nodes.
func (f *LinearValueFunction) Update(nodes []*Node) error {
	if len(nodes) == 0 {
		return errors.New("no nodes to fit")
	}
	cols := game.StateSize + 1
	x := mat.NewDense(len(nodes), cols, nil)
	y := mat.NewVecDense(len(nodes), nil)
	for r, n := range nodes {
		x.Set(r, 0, 1)
		for c, v := range n.State().Flatten() {
			x.Set(r, c+1, float64(v))
		}
		y.SetVec(r, float64(n.Value()))
	}

	// Solve (XᵀX + λI) w = Xᵀy.
	var gram mat.SymDense
	gram.SymOuterK(1, x.T())
	for i := 0; i < cols; i++ {
		gram.SetSym(i, i, gram.At(i, i)+f.ridge)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.New("failed to fit linear value function: normal matrix is not positive definite")
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("failed to fit linear value function: %w", err)
		}
		log.Warn().Float64("condition", float64(cond)).Msg("value function fit is ill-conditioned")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.weights {
		f.weights[i] = w.AtVec(i)
	}
	return nil
}
