package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"gopkg.in/yaml.v3"
)

// StageRecord is one row of a stage metrics file.
type StageRecord struct {
	ID             string  `parquet:"id"`
	Experiment     string  `parquet:"experiment,dict"`
	Stage          string  `parquet:"stage,dict"`
	Workers        int32   `parquet:"workers"`
	StartUnixMilli int64   `parquet:"start_unix_milli"`
	DurationMilli  int64   `parquet:"duration_milli"`
	Games          int64   `parquet:"games"`
	Expansions     int64   `parquet:"expansions"`
	Rollouts       int64   `parquet:"rollouts"`
	Timesteps      int64   `parquet:"timesteps"`
	DeadlockDelays int64   `parquet:"deadlock_delays"`
	WorkerErrors   int32   `parquet:"worker_errors"`
	Nodes          int64   `parquet:"nodes"`
	MaxDepth       int32   `parquet:"max_depth"`
	GamesPerSecond float64 `parquet:"games_per_second"`
}

// NewStageRecord flattens a metric into a row with a fresh id.
func NewStageRecord(experiment string, m StageMetric) StageRecord {
	var rate float64
	if m.Duration > 0 {
		rate = float64(m.Games) / m.Duration.Seconds()
	}
	return StageRecord{
		ID:             uuid.NewString(),
		Experiment:     experiment,
		Stage:          m.Stage,
		Workers:        int32(m.Workers),
		StartUnixMilli: m.StartTime.UnixMilli(),
		DurationMilli:  m.Duration.Milliseconds(),
		Games:          int64(m.Games),
		Expansions:     int64(m.Expansions),
		Rollouts:       int64(m.Rollouts),
		Timesteps:      int64(m.Timesteps),
		DeadlockDelays: int64(m.DeadlockDelays),
		WorkerErrors:   int32(m.WorkerErrors),
		Nodes:          int64(m.Nodes),
		MaxDepth:       int32(m.MaxDepth),
		GamesPerSecond: rate,
	}
}

type Writer struct {
	name    string
	baseDir string
}

// NewWriter creates <root>/<name>/<timestamp> and writes files there. An
// empty root means "experiments".
func NewWriter(root, name string) (*Writer, error) {
	if root == "" {
		root = "experiments"
	}
	// Create a subfolder named by current timestamp
	timestamp := time.Now().UTC().Format("20060102T150405.000Z")
	baseDir := filepath.Join(root, name, timestamp)
	err := os.MkdirAll(baseDir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &Writer{
		name:    name,
		baseDir: baseDir,
	}, nil
}

func (w *Writer) Dir() string { return w.baseDir }

// Setup describes one experiment run.
type Setup struct {
	Experiment    string        `yaml:"experiment"`
	Workers       []int         `yaml:"workers"`
	Games         int           `yaml:"games,omitempty"`
	StageDuration time.Duration `yaml:"stage_duration,omitempty"`
	Repeats       int           `yaml:"repeats"`
	StartTime     time.Time     `yaml:"start_time"`
	EndTime       time.Time     `yaml:"end_time"`
	Duration      time.Duration `yaml:"duration"`
}

// WriteSetup writes setup.yaml.
func (w *Writer) WriteSetup(setup Setup) error {
	setup.Experiment = w.name
	setup.Duration = setup.EndTime.Sub(setup.StartTime)

	path := filepath.Join(w.baseDir, "setup.yaml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create setup file: %w", err)
	}
	defer f.Close()

	encoder := yaml.NewEncoder(f)
	defer encoder.Close()
	if err := encoder.Encode(setup); err != nil {
		return fmt.Errorf("failed to write setup: %w", err)
	}
	return nil
}

// WriteStageMetrics writes every metric to stage_metrics.parquet and returns
// the file path.
func (w *Writer) WriteStageMetrics(metrics []StageMetric) (string, error) {
	records := make([]StageRecord, len(metrics))
	for i, m := range metrics {
		records[i] = NewStageRecord(w.name, m)
	}
	path := filepath.Join(w.baseDir, "stage_metrics.parquet")
	if err := WriteStageRecords(path, records); err != nil {
		return "", err
	}
	return path, nil
}

// WriteStageRecords writes records to path through a temporary file.
func WriteStageRecords(path string, records []StageRecord) error {
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	err := parquet.WriteFile(tmpPath, records,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "stage_metrics_v1"),
	)
	if err != nil {
		return fmt.Errorf("failed to write stage metrics: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename stage metrics: %w", err)
	}
	return nil
}

func ReadStageRecords(path string) ([]StageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stage metrics: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stage metrics: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[StageRecord](pf)
	defer reader.Close()

	records := make([]StageRecord, reader.NumRows())
	n, err := reader.Read(records)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read stage metrics: %w", err)
	}
	return records[:n], nil
}
