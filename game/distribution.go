package game

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution picks one action out of a candidate set.
type Distribution interface {
	Sample(rng *rand.Rand, actions []Action) Action
}

type equalDistribution struct{}

// EqualDistribution samples every candidate with equal probability.
func EqualDistribution() Distribution { return equalDistribution{} }

func (equalDistribution) Sample(rng *rand.Rand, actions []Action) Action {
	if len(actions) == 0 {
		panic("cannot sample from an empty action set")
	}
	return actions[rng.Intn(len(actions))]
}

func (equalDistribution) String() string { return "equal" }

type normalDistribution struct {
	mean  float64
	stdev float64
}

// NormalDistribution draws a duration from N(mean, stdev) and returns the
// candidate whose duration is nearest to the draw.
func NormalDistribution(mean, stdev float64) Distribution {
	if stdev < 0 {
		panic(fmt.Sprintf("standard deviation must be non-negative, got %f", stdev))
	}
	return normalDistribution{mean: mean, stdev: stdev}
}

func (d normalDistribution) Sample(rng *rand.Rand, actions []Action) Action {
	if len(actions) == 0 {
		panic("cannot sample from an empty action set")
	}
	target := d.mean
	if d.stdev > 0 {
		target = distuv.Normal{Mu: d.mean, Sigma: d.stdev, Src: rng}.Rand()
	}

	best := 0
	bestDist := math.Inf(1)
	for i, a := range actions {
		dist := math.Abs(float64(a.Duration()) - target)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return actions[best]
}

func (d normalDistribution) String() string {
	return fmt.Sprintf("normal(%.2f, %.2f)", d.mean, d.stdev)
}
