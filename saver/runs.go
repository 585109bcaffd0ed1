package saver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"qwop/game"
)

const runSchema = "qwop_run_v1"

// RunRow is one (action, state) step of a saved run.
type RunRow struct {
	RunID    string    `parquet:"run_id,dict"`
	Step     int32     `parquet:"step"`
	Command  string    `parquet:"command,dict"`
	Duration int32     `parquet:"duration"`
	State    []float32 `parquet:"state"`
	Failed   bool      `parquet:"failed"`
	TorsoX   float32   `parquet:"torso_x"`
}

// Rows flattens runs into rows, one per action.
func Rows(runs []game.Run) []RunRow {
	var rows []RunRow
	for _, run := range runs {
		for i, a := range run.Actions {
			s := run.States[i]
			rows = append(rows, RunRow{
				RunID:    run.ID,
				Step:     int32(i),
				Command:  a.Command().String(),
				Duration: int32(a.Duration()),
				State:    s.Raw(),
				Failed:   s.Failed,
				TorsoX:   s.CenterX(),
			})
		}
	}
	return rows
}

// WriteRuns writes runs to path through a temporary file.
func WriteRuns(path string, runs []game.Run) error {
	for _, run := range runs {
		if err := run.Validate(); err != nil {
			return fmt.Errorf("invalid run: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, Rows(runs),
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", runSchema),
	); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadRuns reads the runs of one file in the order they first appear.
func ReadRuns(path string) ([]game.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	if schema, ok := pf.Lookup("schema"); ok && schema != runSchema {
		return nil, fmt.Errorf("%s has schema %q, want %q", path, schema, runSchema)
	}

	reader := parquet.NewGenericReader[RunRow](pf)
	defer reader.Close()

	rows := make([]RunRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return fromRows(rows[:n])
}

// ReadRunDir reads every .parquet file in dir, in name order.
func ReadRunDir(dir string) ([]game.Run, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var runs []game.Run
	for _, path := range paths {
		r, err := ReadRuns(path)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r...)
	}
	return runs, nil
}

func fromRows(rows []RunRow) ([]game.Run, error) {
	index := make(map[string]int)
	var grouped [][]RunRow
	for _, row := range rows {
		i, ok := index[row.RunID]
		if !ok {
			i = len(grouped)
			index[row.RunID] = i
			grouped = append(grouped, nil)
		}
		grouped[i] = append(grouped[i], row)
	}

	runs := make([]game.Run, 0, len(grouped))
	for _, steps := range grouped {
		sort.SliceStable(steps, func(a, b int) bool { return steps[a].Step < steps[b].Step })
		run := game.Run{ID: steps[0].RunID}
		for _, row := range steps {
			cmd, err := game.ParseCommand(row.Command)
			if err != nil {
				return nil, fmt.Errorf("run %s step %d: %w", row.RunID, row.Step, err)
			}
			if row.Duration < 1 {
				return nil, fmt.Errorf("run %s step %d has duration %d", row.RunID, row.Step, row.Duration)
			}
			state, err := game.StateFromRaw(row.State, row.Failed)
			if err != nil {
				return nil, fmt.Errorf("run %s step %d: %w", row.RunID, row.Step, err)
			}
			run.Actions = append(run.Actions, game.NewAction(int(row.Duration), cmd))
			run.States = append(run.States, state)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
