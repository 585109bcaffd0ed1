package searcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"qwop/engine"
	"qwop/experiments/metrics"
	"qwop/game"
)

type phase int

const (
	treePhase phase = iota
	expansionPhase
	rolloutPhase
)

// Worker plays games against a shared tree with its own sampler and engine.
// A worker is driven by a single goroutine.
type Worker struct {
	id      int
	sampler Sampler
	engine  engine.Engine
	saver   DataSaver
	metrics metrics.Collector
	queue   *game.ActionQueue
	held    *Node
	games   int
}

func NewWorker(id int, sampler Sampler, e engine.Engine, saver DataSaver, collector metrics.Collector) *Worker {
	if saver == nil {
		saver = NullSaver{}
	}
	if collector == nil {
		collector = metrics.NewDummyCollector()
	}
	return &Worker{
		id:      id,
		sampler: sampler,
		engine:  e,
		saver:   saver,
		metrics: collector,
		queue:   game.NewActionQueue(),
	}
}

func (w *Worker) ID() int { return w.id }

// Games is the number of games this worker finished.
func (w *Worker) Games() int { return w.games }

func (w *Worker) Sampler() Sampler { return w.sampler }

// Run plays games under root until ctx is done, the tree under root is
// exhausted, or budget is closed. A nil budget means unlimited games; otherwise
// each game consumes one value. A panic during a game is recovered and
// returned as an error after the worker's locks are released.
func (w *Worker) Run(ctx context.Context, root *Node, budget <-chan struct{}) error {
	log.Debug().Int("worker", w.id).Msg("worker started")
	defer func() {
		if dc, ok := w.sampler.(DelayCounter); ok {
			w.metrics.AddDeadlockDelays(dc.DeadlockDelays())
		}
		log.Debug().Int("worker", w.id).Int("games", w.games).Msg("worker stopped")
	}()

	for {
		if budget != nil {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-budget:
				if !ok {
					return nil
				}
			}
		} else if ctx.Err() != nil {
			return nil
		}

		err := w.safeGame(ctx, root)
		switch {
		case err == nil:
		case errors.Is(err, ErrTreeExhausted), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			return err
		}
	}
}

func (w *Worker) safeGame(ctx context.Context, root *Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.releaseHeld()
			w.metrics.AddWorkerError()
			log.Error().Int("worker", w.id).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("worker panicked")
			err = fmt.Errorf("worker %d panicked: %v", w.id, r)
		}
	}()
	defer w.releaseHeld()
	return w.playGame(ctx, root)
}

func (w *Worker) releaseHeld() {
	if w.held != nil {
		w.held.Release()
		w.held = nil
	}
}

// playGame runs one cycle of the sampler: select and reserve a node, replay
// the path to it, expand until the sampler lets go, then roll out.
func (w *Worker) playGame(ctx context.Context, root *Node) error {
	w.engine.Reset()
	w.queue.Clear()
	w.saver.ReportGameInitialization(w.engine.CurrentState())

	var current *Node
	p := treePhase
	for {
		switch p {
		case treePhase:
			n, err := w.sampler.TreePolicy(ctx, root)
			if err != nil {
				return err
			}
			w.held = n
			for _, step := range n.Path()[1:] {
				action, _ := step.Action()
				w.saver.ReportTimestep(action, w.execute(action))
			}
			w.sampler.TreePolicyDone(n)
			if !w.sampler.TreePolicyGuard(n) {
				w.releaseHeld()
				w.engine.Reset()
				continue
			}
			current = n
			p = expansionPhase

		case expansionPhase:
			action := w.sampler.ExpansionPolicy(current)
			state := w.execute(action)
			child := current.AddDoublyLinkedChild(action, state)
			w.metrics.AddExpansion()
			w.saver.ReportTimestep(action, state)
			w.sampler.ExpansionPolicyDone(child)
			if w.sampler.ExpansionPolicyGuard(child) {
				current = child
				p = rolloutPhase
				continue
			}
			// Keep expanding below the new child.
			if !child.ReserveExpandable() {
				w.finishGame(child)
				return nil
			}
			w.held.Release()
			w.held = child
			current = child

		case rolloutPhase:
			w.finishGame(current)
			before := w.engine.Timesteps()
			for !w.sampler.RolloutPolicyGuard(current) {
				w.sampler.RolloutPolicy(current, w.engine)
				w.metrics.AddRollout()
			}
			w.metrics.AddTimesteps(w.engine.Timesteps() - before)
			return nil
		}
	}
}

func (w *Worker) finishGame(end *Node) {
	w.saver.ReportGameEnding(end)
	w.metrics.AddGame()
	w.metrics.AddTimesteps(w.engine.Timesteps())
	w.games++
}

// execute runs one action to completion, or until the runner falls.
func (w *Worker) execute(action game.Action) game.State {
	w.queue.Add(action)
	state := w.engine.CurrentState()
	for !w.queue.IsEmpty() {
		state = w.engine.Step(w.queue.PollCommand())
		if state.Failed {
			break
		}
	}
	w.queue.Clear()
	return state
}
