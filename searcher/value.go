package searcher

import (
	"fmt"
	"math"
	"sort"
)

// stats packs a node's value (high 32 bits, float32) and visit count (low 32
// bits) so both change in one compare-and-swap.
func packStats(value float32, visits uint32) uint64 {
	return uint64(math.Float32bits(value))<<32 | uint64(visits)
}

func unpackStats(packed uint64) (float32, uint32) {
	return math.Float32frombits(uint32(packed >> 32)), uint32(packed)
}

func (n *Node) Value() float32 {
	v, _ := unpackStats(n.stats.Load())
	return v
}

// Visits is the number of value updates applied to n.
func (n *Node) Visits() int {
	_, c := unpackStats(n.stats.Load())
	return int(c)
}

// UpdateValue folds update into n's value with u and counts a visit.
// Concurrent updates retry until their read-modify-write lands intact.
func (n *Node) UpdateValue(update float32, u ValueUpdater) {
	for {
		old := n.stats.Load()
		value, visits := unpackStats(old)
		next := packStats(u.Update(update, value, int(visits), n), visits+1)
		if n.stats.CompareAndSwap(old, next) {
			return
		}
	}
}

// Backup applies update to n and every ancestor.
func (n *Node) Backup(update float32, u ValueUpdater) {
	for cur := n; cur != nil; cur = cur.parent {
		cur.UpdateValue(update, u)
	}
}

// ValueUpdater computes a node's next value from an incoming update.
type ValueUpdater interface {
	Update(update, value float32, visits int, n *Node) float32
}

// AverageUpdater keeps the running mean of all updates.
type AverageUpdater struct{}

func (AverageUpdater) Update(update, value float32, visits int, _ *Node) float32 {
	return (value*float32(visits) + update) / float32(visits+1)
}

// HardSetUpdater replaces the value with the latest update.
type HardSetUpdater struct{}

func (HardSetUpdater) Update(update, _ float32, _ int, _ *Node) float32 {
	return update
}

// WindowCriterion scores one window of sibling values.
type WindowCriterion int

const (
	// WindowWorst scores a window by its lowest value.
	WindowWorst WindowCriterion = iota
	// WindowAverageOptimistic averages over the window actually found.
	WindowAverageOptimistic
	// WindowAveragePessimistic averages over the requested window size even
	// when only a smaller window fits.
	WindowAveragePessimistic
)

// TopWindowUpdater values a node by its best run of children whose actions
// share a command and have consecutive durations. Leaves take the update as is.
type TopWindowUpdater struct {
	Size      int
	Criterion WindowCriterion
}

func NewTopWindowUpdater(size int, criterion WindowCriterion) TopWindowUpdater {
	if size < 1 {
		panic(fmt.Sprintf("window size must be at least 1, got %d", size))
	}
	return TopWindowUpdater{Size: size, Criterion: criterion}
}

func (u TopWindowUpdater) Update(update, _ float32, _ int, n *Node) float32 {
	children := n.Children()
	if len(children) == 0 {
		return update
	}
	sort.Slice(children, func(i, k int) bool {
		a, b := children[i].action, children[k].action
		if a.Command() != b.Command() {
			return a.Command() < b.Command()
		}
		return a.Duration() < b.Duration()
	})
	clusters := clusterAdjacent(children)

	for size := u.Size; size > 0; size-- {
		best := float32(-math.MaxFloat32)
		found := false
		for _, cluster := range clusters {
			for i := 0; i+size <= len(cluster); i++ {
				if v := u.score(cluster[i : i+size]); !found || v > best {
					best, found = v, true
				}
			}
		}
		if found {
			return best
		}
	}
	panic("top window updater found no clusters")
}

func (u TopWindowUpdater) score(window []*Node) float32 {
	switch u.Criterion {
	case WindowWorst:
		worst := float32(math.MaxFloat32)
		for _, c := range window {
			worst = min(worst, c.Value())
		}
		return worst
	case WindowAverageOptimistic, WindowAveragePessimistic:
		var sum float32
		for _, c := range window {
			sum += c.Value()
		}
		if u.Criterion == WindowAveragePessimistic {
			return sum / float32(u.Size)
		}
		return sum / float32(len(window))
	}
	panic(fmt.Sprintf("unknown window criterion %d", u.Criterion))
}

// clusterAdjacent splits sorted siblings into runs of one command with
// durations increasing by exactly one.
func clusterAdjacent(sorted []*Node) [][]*Node {
	var clusters [][]*Node
	for i := 0; i < len(sorted); {
		cluster := []*Node{sorted[i]}
		i++
		for i < len(sorted) &&
			sorted[i].action.Command() == sorted[i-1].action.Command() &&
			sorted[i].action.Duration() == sorted[i-1].action.Duration()+1 {
			cluster = append(cluster, sorted[i])
			i++
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}
