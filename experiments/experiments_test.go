package experiments

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"qwop/experiments/metrics"
)

func TestRunParallelization(t *testing.T) {
	root := t.TempDir()
	dir, err := RunParallelization(context.Background(), Sweep{Root: root, Workers: []int{1, 2}, Repeats: 1}, 6)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "parallel"), filepath.Dir(dir))

	records, err := metrics.ReadStageRecords(filepath.Join(dir, "stage_metrics.parquet"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, workers := range []int32{1, 2} {
		require.Equal(t, workers, records[i].Workers)
		require.Equal(t, int64(6), records[i].Games)
		require.Equal(t, "parallel", records[i].Experiment)
		require.Greater(t, records[i].Timesteps, int64(0))
	}

	data, err := os.ReadFile(filepath.Join(dir, "setup.yaml"))
	require.NoError(t, err)
	var setup metrics.Setup
	require.NoError(t, yaml.Unmarshal(data, &setup))
	require.Equal(t, []int{1, 2}, setup.Workers)
	require.Equal(t, 6, setup.Games)
	require.Equal(t, 1, setup.Repeats)
}

func TestRunThroughput(t *testing.T) {
	dir, err := RunThroughput(context.Background(), Sweep{Root: t.TempDir(), Workers: []int{2}, Repeats: 2}, 50*time.Millisecond)
	require.NoError(t, err)

	records, err := metrics.ReadStageRecords(filepath.Join(dir, "stage_metrics.parquet"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotEqual(t, records[0].Stage, records[1].Stage, "every repeat is its own stage")
}

func TestCanceledExperiment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunParallelization(ctx, Sweep{Root: t.TempDir(), Workers: []int{1}, Repeats: 1}, 5)
	require.ErrorIs(t, err, context.Canceled)
}
