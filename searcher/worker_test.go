package searcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qwop/engine"
	"qwop/experiments/metrics"
	"qwop/game"
)

func budgetOf(games int) <-chan struct{} {
	budget := make(chan struct{}, games)
	for i := 0; i < games; i++ {
		budget <- struct{}{}
	}
	close(budget)
	return budget
}

// recordingSaver keeps everything a worker reports.
type recordingSaver struct {
	NullSaver
	starts int
	steps  []game.Action
	ends   []*Node
}

func (s *recordingSaver) ReportGameInitialization(game.State) { s.starts++ }

func (s *recordingSaver) ReportTimestep(a game.Action, _ game.State) {
	s.steps = append(s.steps, a)
}

func (s *recordingSaver) ReportGameEnding(n *Node) { s.ends = append(s.ends, n) }

func TestWorker(t *testing.T) {
	t.Run("one random cycle adds exactly one child", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		saver := &recordingSaver{}
		collector := metrics.NewCollector()
		w := NewWorker(0, NewRandomSampler(1), newLineEngine(), saver, collector)

		require.NoError(t, w.Run(context.Background(), root, budgetOf(1)))
		require.Equal(t, 1, root.ChildCount())
		require.Equal(t, 2, root.UntriedCount())
		require.Empty(t, root.LockedNodes())
		require.Equal(t, 1, w.Games())

		require.Equal(t, 1, saver.starts)
		require.Len(t, saver.steps, 1)
		require.Len(t, saver.ends, 1)
		require.Same(t, root.Children()[0], saver.ends[0])

		m := collector.Complete()
		require.Equal(t, 1, m.Games)
		require.Equal(t, 1, m.Expansions)
		require.Equal(t, saver.steps[0].Duration(), m.Timesteps)
	})

	t.Run("replayed path reproduces node states", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		e := newLineEngine()
		w := NewWorker(0, NewRandomSampler(7), e, nil, nil)
		require.NoError(t, w.Run(context.Background(), root, budgetOf(30)))

		check := newLineEngine()
		root.Walk(func(n *Node) bool {
			if n.Parent() == nil {
				return true
			}
			check.Reset()
			for _, a := range n.Sequence() {
				for i := 0; i < a.Duration(); i++ {
					check.Step(a.Command())
				}
			}
			require.Equal(t, check.CurrentState(), n.State())
			return true
		})
	})

	t.Run("ucb rollouts back up scores", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		rollout := NewDeltaScoreRollout(EvaluateDistance(), threeActions(0), 5)
		collector := metrics.NewCollector()
		w := NewWorker(0, NewUCBSampler(EvaluateDistance(), rollout, 1), newLineEngine(), nil, collector)

		require.NoError(t, w.Run(context.Background(), root, budgetOf(12)))
		require.Equal(t, 12, root.Visits())
		require.Greater(t, root.Value(), float32(0))
		require.Equal(t, 12, collector.Complete().Rollouts)
		require.NoError(t, root.Validate())
	})

	t.Run("stops when the tree is exhausted", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(2))
		w := NewWorker(0, NewRandomSampler(3), newLineEngine(), nil, nil)
		require.NoError(t, w.Run(context.Background(), root, nil))
		require.True(t, root.FullyExplored())
		require.Equal(t, 13, root.Size())
		require.Equal(t, 12, w.Games())
	})

	t.Run("failure ends expansion", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		e := &lineEngine{failX: 3}
		w := NewWorker(0, NewRandomSampler(3), e, nil, nil)
		require.NoError(t, w.Run(context.Background(), root, nil))
		require.True(t, root.FullyExplored())
		require.Equal(t, 7, root.Size(), "only Q:1 survives its first action")
		for _, leaf := range root.Leaves() {
			require.True(t, leaf.State().Failed)
		}
		require.NoError(t, root.Validate())
	})

	t.Run("fixed depth explores exactly to its limit", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		w := NewWorker(0, NewFixedDepthSampler(2, 1), newLineEngine(), nil, nil)
		require.NoError(t, w.Run(context.Background(), root, nil))
		require.True(t, root.FullyExplored())
		require.Equal(t, 13, root.Size())
		require.Equal(t, 2, root.MaxDepth())
	})
}

func TestGreedyWorker(t *testing.T) {
	schedule := GreedySchedule{
		SamplesAt0: 6, DepthN: 2, SamplesAtN: 4, SamplesAtInf: 2,
		ForwardJump: 1, BackwardsJump: 2, BackwardsJumpMin: 1, BackwardsJumpFailureScale: 1.5,
	}
	root := NewRoot(stateAt(0), threeActions(4))
	sampler := NewGreedySampler(EvaluateDistance(), schedule, 5)
	w := NewWorker(0, sampler, newLineEngine(), nil, nil)

	for i := 0; i < 300 && !root.FullyExplored(); i++ {
		require.NoError(t, w.Run(context.Background(), root, budgetOf(1)))
		current := sampler.CurrentRoot()
		require.NotNil(t, current)
		require.True(t, current == root || current.IsAncestor(root), "current root left the tree")
		require.GreaterOrEqual(t, current.Depth(), 0)
	}
	require.True(t, root.FullyExplored())
	require.Equal(t, 1+3+9+27+81, root.Size())
	for _, leaf := range root.Leaves() {
		require.Equal(t, 4, leaf.Depth(), "greedy games run to the depth cap")
		require.Greater(t, leaf.State().CenterX(), float32(0))
	}
	require.NoError(t, root.Validate())
	require.Empty(t, root.LockedNodes())
}

func TestConcurrentWorkers(t *testing.T) {
	root := NewRoot(stateAt(0), threeActions(3))
	rollout := NewDeltaScoreRollout(EvaluateDistance(), threeActions(0), 4)
	budget := budgetOf(200)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		w := NewWorker(i, NewUCBSampler(EvaluateDistance(), rollout, uint64(i)), newLineEngine(), nil, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[w.ID()] = w.Run(ctx, root, budget)
		}()
	}
	wg.Wait()

	require.NoError(t, ctx.Err(), "workers should finish before the deadline")
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.True(t, root.FullyExplored())
	require.Equal(t, 1+3+9+27, root.Size())
	require.NoError(t, root.Validate())
	require.Empty(t, root.LockedNodes(), "no node stays locked")
}

// panicSampler fails during expansion.
type panicSampler struct {
	*RandomSampler
}

func (s panicSampler) ExpansionPolicy(*Node) game.Action { panic("boom") }

func (s panicSampler) Copy(seed uint64) Sampler { return panicSampler{NewRandomSampler(seed)} }

func TestStage(t *testing.T) {
	fast := []StageOption{WithEngineFactory(newLineEngine), WithPollInterval(time.Millisecond)}

	t.Run("fixed games", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		collector := metrics.NewCollector()
		s := NewStage("fixed", FixedGames{Games: 40}, NewRandomSampler(1),
			append(fast, WithWorkers(4), WithMetrics(collector))...)

		results, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, 41, root.Size())
		require.Empty(t, root.LockedNodes())

		m := s.Metric()
		require.Equal(t, 40, m.Games)
		require.Equal(t, 4, m.Workers)
		require.Equal(t, 41, m.Nodes)
		require.Equal(t, "fixed", m.Stage)
		require.Equal(t, results, s.Results())
	})

	t.Run("max depth", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		falling := func() engine.Engine { return &lineEngine{failX: 20} }
		s := NewStage("deep", MaxDepth{Depth: 3}, NewGreedySampler(EvaluateDistance(), DefaultGreedySchedule, 1),
			append(fast, WithWorkers(2), WithDuration(5*time.Second), WithEngineFactory(falling))...)
		results, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.GreaterOrEqual(t, results[0].Depth(), 3)
		require.Empty(t, root.LockedNodes())
	})

	t.Run("search forever ends when the tree is exhausted", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(2))
		s := NewStage("all", SearchForever{}, NewUCBSampler(EvaluateDistance(), NewJustEvaluateRollout(EvaluateDistance()), 1),
			append(fast, WithWorkers(3))...)
		results, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.Equal(t, []*Node{root}, results)
		require.True(t, root.FullyExplored())
		require.NoError(t, root.Validate())
	})

	t.Run("panicking workers are reported and release their locks", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		collector := metrics.NewCollector()
		s := NewStage("broken", SearchForever{}, panicSampler{NewRandomSampler(1)},
			append(fast, WithWorkers(2), WithMetrics(collector))...)
		_, err := s.Run(context.Background(), root)
		require.Error(t, err)
		require.ErrorContains(t, err, "worker 0 panicked")
		require.ErrorContains(t, err, "worker 1 panicked")
		require.Equal(t, err, s.Err())
		require.Empty(t, root.LockedNodes())
		require.Equal(t, 2, collector.Complete().WorkerErrors)
	})

	t.Run("terminate stops the stage and may repeat", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		s := NewStage("forever", SearchForever{}, NewRandomSampler(1), append(fast, WithWorkers(2))...)
		go func() {
			time.Sleep(20 * time.Millisecond)
			s.Terminate()
			s.Terminate()
		}()
		_, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.Empty(t, root.LockedNodes())
		require.NoError(t, root.Validate())
		s.Terminate()
	})

	t.Run("terminated before run returns at once", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		s := NewStage("never", SearchForever{}, NewRandomSampler(1), fast...)
		s.Terminate()
		_, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.Empty(t, root.LockedNodes())
	})

	t.Run("value function is refit after the stage", func(t *testing.T) {
		root := NewRoot(stateAt(0), threeActions(0))
		vf := NewLinearValueFunction(0)
		rollout := NewDeltaScoreRollout(EvaluateDistance(), threeActions(0), 3)
		s := NewStage("fit", FixedGames{Games: 20}, NewUCBSampler(EvaluateDistance(), rollout, 1),
			append(fast, WithValueFunctionUpdate(vf))...)
		_, err := s.Run(context.Background(), root)
		require.NoError(t, err)
		require.NotEqual(t, make([]float64, game.StateSize+1), vf.Weights())
	})

	t.Run("needs a worker", func(t *testing.T) {
		require.Panics(t, func() { NewStage("none", SearchForever{}, NewRandomSampler(1), WithWorkers(0)) })
	})
}

func TestConditions(t *testing.T) {
	root := NewRoot(stateAt(0), threeActions(0))
	a := root.AddDoublyLinkedChild(act(1), stateAt(2))
	b := root.AddDoublyLinkedChild(act(2), stateAt(4))
	dead := root.AddDoublyLinkedChild(act(3), failedAt(6))
	a1 := a.AddDoublyLinkedChild(act(1), stateAt(3))

	t.Run("max depth", func(t *testing.T) {
		require.True(t, MaxDepth{Depth: 2}.Met(root))
		require.False(t, MaxDepth{Depth: 3}.Met(root))
		require.Equal(t, []*Node{a1}, MaxDepth{Depth: 2}.Results(root))
		require.True(t, MaxDepth{Depth: 1}.Met(a))
	})

	t.Run("min depth", func(t *testing.T) {
		require.True(t, MinDepth{Depth: 1}.Met(root))
		require.False(t, MinDepth{Depth: 2}.Met(root), "a still has candidates")
		require.Equal(t, []*Node{b, a}, MinDepth{Depth: 1}.Results(root), "furthest first, failed excluded")
	})

	t.Run("fixed games", func(t *testing.T) {
		c := FixedGames{Games: 5}
		require.Equal(t, 5, c.Budget())
		require.False(t, c.Met(root))
		require.Equal(t, []*Node{dead}, c.Results(root), "distance alone ignores the fall")
		alive := FixedGames{Evaluate: func(n *Node) float32 {
			if n.State().Failed {
				return -1
			}
			return n.State().CenterX()
		}}
		require.Equal(t, []*Node{b}, alive.Results(root))
	})

	t.Run("search forever", func(t *testing.T) {
		require.Equal(t, 0, SearchForever{}.Budget())
		require.False(t, SearchForever{}.Met(root))
		require.Equal(t, []*Node{root}, SearchForever{}.Results(root))
	})
}
