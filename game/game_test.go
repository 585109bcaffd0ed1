package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestCommand(t *testing.T) {
	t.Run("all sixteen combinations round trip", func(t *testing.T) {
		seen := map[string]bool{}
		for c := None; c <= QWOP; c++ {
			parsed, err := ParseCommand(c.String())
			require.NoError(t, err)
			require.Equal(t, c, parsed)

			fromKeys, err := CommandFromKeys(c.Keys())
			require.NoError(t, err)
			require.Equal(t, c, fromKeys)
			seen[c.String()] = true
		}
		require.Len(t, seen, 16)
	})

	t.Run("names", func(t *testing.T) {
		require.Equal(t, "NONE", None.String())
		require.Equal(t, "QP", QP.String())
		require.Equal(t, "WO", WO.String())
		require.Equal(t, []bool{true, false, false, true}, QP.Keys())
	})

	t.Run("wrong key count", func(t *testing.T) {
		_, err := CommandFromKeys([]bool{true, false})
		require.ErrorIs(t, err, ErrCommandLength)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := ParseCommand("QZ")
		require.Error(t, err)
	})
}

func TestAction(t *testing.T) {
	t.Run("poll counts down", func(t *testing.T) {
		a := NewAction(3, WO)
		for i := 0; i < 3; i++ {
			require.True(t, a.HasNext())
			require.Equal(t, WO, a.Poll())
		}
		require.False(t, a.HasNext())
		require.Equal(t, 0, a.Remaining())
		require.Panics(t, func() { a.Poll() })

		a.Reset()
		require.Equal(t, 3, a.Remaining())
	})

	t.Run("copy and equal ignore the cursor", func(t *testing.T) {
		a := NewAction(2, Q)
		a.Poll()
		c := a.Copy()
		require.Equal(t, 2, c.Remaining())
		require.True(t, a.Equal(c))
		require.False(t, a.Equal(NewAction(2, W)))
		require.Equal(t, "Q:2", a.String())
	})

	t.Run("duration must be positive", func(t *testing.T) {
		require.Panics(t, func() { NewAction(0, Q) })
	})

	t.Run("timesteps", func(t *testing.T) {
		require.Equal(t, 9, Timesteps([]Action{NewAction(4, Q), NewAction(5, P)}))
	})
}

func TestActionQueue(t *testing.T) {
	q := NewActionQueue(NewAction(2, Q), NewAction(1, P))
	require.False(t, q.IsEmpty())

	current, ok := q.Peek()
	require.True(t, ok)
	require.True(t, current.Equal(NewAction(2, Q)))

	var got []Command
	for !q.IsEmpty() {
		got = append(got, q.PollCommand())
	}
	require.Equal(t, []Command{Q, Q, P}, got)
	require.Equal(t, 3, q.Executed())
	require.Panics(t, func() { q.PollCommand() })
	_, ok = q.Peek()
	require.False(t, ok)
	require.Len(t, q.Actions(), 2)

	q.Clear()
	require.True(t, q.IsEmpty())
	require.Equal(t, 0, q.Executed())

	t.Run("queued actions are copies", func(t *testing.T) {
		a := NewAction(2, O)
		q := NewActionQueue(a)
		q.PollCommand()
		require.Equal(t, 2, a.Remaining())
	})
}

func TestActionList(t *testing.T) {
	t.Run("uniform list", func(t *testing.T) {
		l := MakeUniformActionList(3, 6, QP, nil)
		require.Equal(t, 4, l.Len())
		require.True(t, l.Contains(NewAction(5, QP)))
		require.False(t, l.Contains(NewAction(5, WO)))
		require.Equal(t, 2, l.IndexOf(NewAction(5, QP)))
		require.Panics(t, func() { MakeUniformActionList(4, 3, QP, nil) })
	})

	t.Run("remove and copy", func(t *testing.T) {
		l := MakeUniformActionList(1, 3, Q, nil)
		c := l.Copy()
		require.True(t, l.Remove(NewAction(2, Q)))
		require.False(t, l.Remove(NewAction(2, Q)))
		require.Equal(t, 2, l.Len())
		require.Equal(t, 3, c.Len(), "copies are independent")

		l.Clear()
		require.True(t, l.IsEmpty())
	})

	t.Run("merge keeps the first distribution", func(t *testing.T) {
		m := Merge(MakeUniformActionList(1, 2, Q, NormalDistribution(1, 0)), MakeUniformActionList(5, 5, W, nil))
		require.Equal(t, 3, m.Len())
		rng := rand.New(rand.NewSource(1))
		require.True(t, m.Sample(rng).Equal(NewAction(1, Q)))
	})
}

func TestDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	actions := MakeUniformActionList(1, 40, None, nil).Actions()

	t.Run("equal covers every candidate", func(t *testing.T) {
		seen := map[int]bool{}
		for i := 0; i < 2000; i++ {
			seen[EqualDistribution().Sample(rng, actions).Duration()] = true
		}
		require.Len(t, seen, 40)
	})

	t.Run("normal concentrates near the mean", func(t *testing.T) {
		d := NormalDistribution(20, 2)
		total := 0
		for i := 0; i < 1000; i++ {
			a := d.Sample(rng, actions)
			require.True(t, a.Duration() >= 1 && a.Duration() <= 40)
			total += a.Duration()
		}
		require.InDelta(t, 20, float64(total)/1000, 0.5)
	})

	t.Run("normal picks the nearest duration", func(t *testing.T) {
		few := []Action{NewAction(5, Q), NewAction(30, Q)}
		require.Equal(t, 30, NormalDistribution(25, 0).Sample(rng, few).Duration())
		require.Equal(t, 5, NormalDistribution(-10, 0).Sample(rng, few).Duration())
	})

	t.Run("invalid inputs panic", func(t *testing.T) {
		require.Panics(t, func() { NormalDistribution(1, -1) })
		require.Panics(t, func() { EqualDistribution().Sample(rng, nil) })
	})
}

func TestGenerators(t *testing.T) {
	t.Run("default cycle with startup exceptions", func(t *testing.T) {
		g := DefaultGenerator()
		require.Equal(t, 4, g.CycleLength())
		require.Equal(t, 10, g.PotentialChildActions(1).Len(), "startup WO slot")
		require.True(t, g.PotentialChildActions(1).Contains(NewAction(14, WO)))
		require.False(t, g.PotentialChildActions(1).Contains(NewAction(15, WO)))
		require.True(t, g.PotentialChildActions(5).Contains(NewAction(19, WO)))
		require.True(t, g.PotentialChildActions(7).Contains(NewAction(5, QP)))
		require.True(t, g.PotentialChildActions(4).Contains(NewAction(24, None)))
	})

	t.Run("returned lists are copies", func(t *testing.T) {
		g := DefaultGenerator()
		l := g.PotentialChildActions(6)
		l.Clear()
		require.Equal(t, 24, g.PotentialChildActions(6).Len())
	})

	t.Run("recovery exceptions widen ranges", func(t *testing.T) {
		g := NewFixedSequenceGenerator(DefaultCycle(), RecoveryExceptions(10))
		require.Equal(t, 49, g.PotentialChildActions(10).Len())
		require.True(t, g.PotentialChildActions(10).Contains(NewAction(49, None)))
		require.Equal(t, 29, g.PotentialChildActions(11).Len())
		require.True(t, g.PotentialChildActions(11).Contains(NewAction(29, QP)))
		require.True(t, g.PotentialChildActions(12).Contains(NewAction(49, None)))
		require.True(t, g.PotentialChildActions(13).Contains(NewAction(29, WO)))
		require.Equal(t, 24, g.PotentialChildActions(14).Len(), "back to the cycle")
		require.True(t, g.PotentialChildActions(14).Contains(NewAction(24, None)))
	})

	t.Run("fixed and null", func(t *testing.T) {
		g := NewFixedActionsGenerator(MakeUniformActionList(1, 2, P, nil))
		require.Equal(t, 2, g.PotentialChildActions(100).Len())
		require.True(t, NullGenerator{}.PotentialChildActions(0).IsEmpty())
	})

	t.Run("rollout generator", func(t *testing.T) {
		g := RolloutGenerator()
		require.Equal(t, 18, g.PotentialChildActions(0).Len())
	})

	t.Run("invalid construction", func(t *testing.T) {
		require.Panics(t, func() { NewFixedSequenceGenerator(nil, nil) })
		require.Panics(t, func() {
			NewFixedSequenceGenerator(DefaultCycle(), map[int]ActionList{-1: MakeUniformActionList(1, 1, Q, nil)})
		})
	})
}

func TestState(t *testing.T) {
	var s State
	for i := range s.Bodies {
		s.Bodies[i] = BodyState{X: float32(i) + 10, Y: float32(i), Th: 0.5}
	}

	t.Run("flatten is relative to the torso", func(t *testing.T) {
		flat := s.Flatten()
		require.Len(t, flat, StateSize)
		require.Equal(t, float32(0), flat[0])
		require.Equal(t, float32(1), flat[6], "head x relative to torso")
		require.Equal(t, float32(1), flat[7])
	})

	t.Run("raw round trip", func(t *testing.T) {
		s.Failed = true
		back, err := StateFromRaw(s.Raw(), true)
		require.NoError(t, err)
		require.Equal(t, s, back)
		s.Failed = false

		_, err = StateFromRaw(make([]float32, 3), false)
		require.Error(t, err)
	})

	t.Run("arithmetic", func(t *testing.T) {
		double := s.Add(s)
		require.Equal(t, s.Scale(2), double)
		require.Equal(t, State{}, s.Sub(s))
		require.Equal(t, float32(20), double.CenterX())
		require.Equal(t, float32(2), double.Body(Head).Y)
	})

	t.Run("evaluations", func(t *testing.T) {
		v := s
		v.Bodies[Torso].DX = 3
		require.Equal(t, float32(20), EvaluateDistance(2)(v))
		require.Equal(t, float32(3), EvaluateVelocity(1)(v))
		require.Equal(t, float32(7), EvaluateConstant(7)(v))
		require.Equal(t, "lfoot", LFoot.String())
	})
}
