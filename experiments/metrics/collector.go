package metrics

import (
	"sync/atomic"
	"time"
)

type StageMetric struct {
	Stage          string
	Workers        int
	StartTime      time.Time
	Duration       time.Duration
	Games          int
	Expansions     int
	Rollouts       int
	Timesteps      int
	DeadlockDelays int
	WorkerErrors   int
	Nodes          int
	MaxDepth       int
}

// Collector counts what the workers of one stage do. All Add methods are
// safe for concurrent use.
type Collector interface {
	Start(stage string, workers int)
	AddGame()
	AddExpansion()
	AddRollout()
	AddTimesteps(n int)
	AddDeadlockDelays(n int)
	AddWorkerError()
	SetTree(nodes, maxDepth int)
	Complete() StageMetric
}

type collector struct {
	stage          string
	workers        int
	startTime      time.Time
	games          atomic.Int64
	expansions     atomic.Int64
	rollouts       atomic.Int64
	timesteps      atomic.Int64
	deadlockDelays atomic.Int64
	workerErrors   atomic.Int32
	nodes          atomic.Int64
	maxDepth       atomic.Int32
}

func NewCollector() Collector {
	return &collector{}
}

func (m *collector) Start(stage string, workers int) {
	m.startTime = time.Now()
	m.stage = stage
	m.workers = workers
}

func (m *collector) AddGame() {
	m.games.Add(1)
}

func (m *collector) AddExpansion() {
	m.expansions.Add(1)
}

func (m *collector) AddRollout() {
	m.rollouts.Add(1)
}

func (m *collector) AddTimesteps(n int) {
	m.timesteps.Add(int64(n))
}

func (m *collector) AddDeadlockDelays(n int) {
	m.deadlockDelays.Add(int64(n))
}

func (m *collector) AddWorkerError() {
	m.workerErrors.Add(1)
}

func (m *collector) SetTree(nodes, maxDepth int) {
	m.nodes.Store(int64(nodes))
	m.maxDepth.Store(int32(maxDepth))
}

func (m *collector) Complete() StageMetric {
	return StageMetric{
		Stage:          m.stage,
		Workers:        m.workers,
		StartTime:      m.startTime,
		Duration:       time.Since(m.startTime),
		Games:          int(m.games.Load()),
		Expansions:     int(m.expansions.Load()),
		Rollouts:       int(m.rollouts.Load()),
		Timesteps:      int(m.timesteps.Load()),
		DeadlockDelays: int(m.deadlockDelays.Load()),
		WorkerErrors:   int(m.workerErrors.Load()),
		Nodes:          int(m.nodes.Load()),
		MaxDepth:       int(m.maxDepth.Load()),
	}
}

type dummyCollector struct{}

func NewDummyCollector() Collector {
	return &dummyCollector{}
}

func (m *dummyCollector) Start(stage string, workers int) {}
func (m *dummyCollector) AddGame()                        {}
func (m *dummyCollector) AddExpansion()                   {}
func (m *dummyCollector) AddRollout()                     {}
func (m *dummyCollector) AddTimesteps(n int)              {}
func (m *dummyCollector) AddDeadlockDelays(n int)         {}
func (m *dummyCollector) AddWorkerError()                 {}
func (m *dummyCollector) SetTree(nodes, maxDepth int)     {}
func (m *dummyCollector) Complete() StageMetric           { return StageMetric{} }
