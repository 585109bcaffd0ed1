package game

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// ActionList is a candidate action set paired with the distribution used to
// sample from it.
type ActionList struct {
	actions []Action
	dist    Distribution
}

func NewActionList(dist Distribution, actions ...Action) ActionList {
	if dist == nil {
		dist = EqualDistribution()
	}
	return ActionList{actions: append([]Action(nil), actions...), dist: dist}
}

// MakeUniformActionList holds cmd for every duration in [minDuration, maxDuration].
func MakeUniformActionList(minDuration, maxDuration int, cmd Command, dist Distribution) ActionList {
	if minDuration < 1 || maxDuration < minDuration {
		panic(fmt.Sprintf("invalid duration range [%d, %d]", minDuration, maxDuration))
	}
	actions := make([]Action, 0, maxDuration-minDuration+1)
	for d := minDuration; d <= maxDuration; d++ {
		actions = append(actions, NewAction(d, cmd))
	}
	return NewActionList(dist, actions...)
}

func (l ActionList) Len() int { return len(l.actions) }

func (l ActionList) IsEmpty() bool { return len(l.actions) == 0 }

func (l ActionList) At(i int) Action { return l.actions[i] }

func (l ActionList) Actions() []Action { return append([]Action(nil), l.actions...) }

func (l ActionList) Distribution() Distribution { return l.dist }

// Sample draws one action using the list's distribution.
func (l ActionList) Sample(rng *rand.Rand) Action {
	return l.dist.Sample(rng, l.actions)
}

func (l ActionList) Contains(a Action) bool {
	return l.IndexOf(a) >= 0
}

func (l ActionList) IndexOf(a Action) int {
	for i, candidate := range l.actions {
		if candidate.Equal(a) {
			return i
		}
	}
	return -1
}

// Remove deletes the first action equal to a and reports whether one was found.
func (l *ActionList) Remove(a Action) bool {
	i := l.IndexOf(a)
	if i < 0 {
		return false
	}
	l.actions = append(l.actions[:i], l.actions[i+1:]...)
	return true
}

func (l *ActionList) Clear() { l.actions = l.actions[:0] }

// Copy returns a list that shares nothing mutable with l.
func (l ActionList) Copy() ActionList {
	return ActionList{actions: append([]Action(nil), l.actions...), dist: l.dist}
}

// Merge concatenates lists, keeping the first list's distribution.
func Merge(lists ...ActionList) ActionList {
	var out ActionList
	for i, l := range lists {
		if i == 0 {
			out.dist = l.dist
		}
		out.actions = append(out.actions, l.actions...)
	}
	if out.dist == nil {
		out.dist = EqualDistribution()
	}
	return out
}
