package saver

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"qwop/game"
	"qwop/searcher"
)

const (
	DefaultInterval = 50
	DefaultBuffer   = 1024
)

type Option func(s *sink)

// WithInterval sets how many games are collected before a file is written.
func WithInterval(games int) Option {
	return func(s *sink) {
		if games > 0 {
			s.interval = games
		}
	}
}

// WithBuffer sets how many finished games may wait for the writer before new
// ones are dropped.
func WithBuffer(games int) Option {
	return func(s *sink) {
		if games > 0 {
			s.buffer = games
		}
	}
}

// sink is the background writer shared by every fork of a ParquetSaver.
type sink struct {
	dir      string
	interval int
	buffer   int

	mu     sync.RWMutex
	closed bool
	games  chan game.Run
	done   chan struct{}
	err    error

	written atomic.Int64
	dropped atomic.Int64
	files   atomic.Int64
}

// ParquetSaver writes finished games to zstd compressed parquet files in a
// directory. Each worker records into its own fork; finished games are
// handed to a background writer and dropped with a warning if it falls
// behind.
type ParquetSaver struct {
	sink    *sink
	current *game.Run
}

var _ searcher.DataSaver = (*ParquetSaver)(nil)

func NewParquetSaver(dir string, options ...Option) *ParquetSaver {
	s := &sink{
		dir:      dir,
		interval: DefaultInterval,
		buffer:   DefaultBuffer,
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(s)
	}
	s.games = make(chan game.Run, s.buffer)
	go s.loop()
	return &ParquetSaver{sink: s}
}

func (p *ParquetSaver) Fork() searcher.DataSaver {
	return &ParquetSaver{sink: p.sink}
}

func (p *ParquetSaver) ReportGameInitialization(game.State) {
	p.current = &game.Run{ID: uuid.NewString()}
}

func (p *ParquetSaver) ReportTimestep(action game.Action, state game.State) {
	if p.current == nil {
		return
	}
	p.current.Actions = append(p.current.Actions, action.Copy())
	p.current.States = append(p.current.States, state)
}

func (p *ParquetSaver) ReportGameEnding(*searcher.Node) {
	if p.current == nil {
		return
	}
	run := *p.current
	p.current = nil
	if len(run.Actions) > 0 {
		p.sink.send(run)
	}
}

// ReportStageEnding writes the path to every result node into its own file.
func (p *ParquetSaver) ReportStageEnding(root *searcher.Node, results []*searcher.Node) {
	var runs []game.Run
	for _, n := range results {
		if n.Parent() == nil {
			continue
		}
		runs = append(runs, RunFromNode(n))
	}
	if len(runs) == 0 {
		return
	}
	path := filepath.Join(p.sink.dir, fmt.Sprintf("results_%d_%s.parquet", time.Now().UnixNano(), uuid.NewString()[:8]))
	if err := WriteRuns(path, runs); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to save stage results")
		return
	}
	log.Info().Str("path", path).Int("runs", len(runs)).Msg("saved stage results")
}

// Close flushes buffered games and stops the writer. Closing any fork closes
// every fork.
func (p *ParquetSaver) Close() error {
	return p.sink.close()
}

// Written is the number of games saved so far.
func (p *ParquetSaver) Written() int { return int(p.sink.written.Load()) }

// Dropped is the number of games lost because the writer fell behind.
func (p *ParquetSaver) Dropped() int { return int(p.sink.dropped.Load()) }

// Files is the number of game files written so far.
func (p *ParquetSaver) Files() int { return int(p.sink.files.Load()) }

// RunFromNode builds the run from the tree root to n.
func RunFromNode(n *searcher.Node) game.Run {
	path := n.Path()[1:]
	run := game.Run{
		ID:      uuid.NewString(),
		Actions: make([]game.Action, len(path)),
		States:  make([]game.State, len(path)),
	}
	for i, step := range path {
		action, _ := step.Action()
		run.Actions[i] = action.Copy()
		run.States[i] = step.State()
	}
	return run
}

func (s *sink) send(run game.Run) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.games <- run:
	default:
		s.dropped.Add(1)
		log.Warn().Str("run", run.ID).Msg("saver is behind, dropping game")
	}
}

func (s *sink) loop() {
	defer close(s.done)
	var batch []game.Run
	var errs []error
	for run := range s.games {
		batch = append(batch, run)
		if len(batch) >= s.interval {
			errs = append(errs, s.flush(batch))
			batch = nil
		}
	}
	if len(batch) > 0 {
		errs = append(errs, s.flush(batch))
	}
	s.err = errors.Join(errs...)
}

func (s *sink) flush(batch []game.Run) error {
	path := filepath.Join(s.dir, fmt.Sprintf("runs_%d_%s.parquet", time.Now().UnixNano(), uuid.NewString()[:8]))
	if err := WriteRuns(path, batch); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to save games")
		return err
	}
	s.written.Add(int64(len(batch)))
	s.files.Add(1)
	log.Debug().Str("path", path).Int("games", len(batch)).Msg("saved games")
	return nil
}

func (s *sink) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.games)
	}
	s.mu.Unlock()
	<-s.done
	return s.err
}
