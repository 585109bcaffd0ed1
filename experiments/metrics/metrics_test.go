package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestCollector(t *testing.T) {
	t.Run("concurrent counts", func(t *testing.T) {
		c := NewCollector()
		c.Start("explore", 4)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					c.AddGame()
					c.AddExpansion()
					c.AddRollout()
					c.AddTimesteps(3)
				}
				c.AddDeadlockDelays(2)
			}()
		}
		wg.Wait()
		c.AddWorkerError()
		c.SetTree(42, 7)

		m := c.Complete()
		require.Equal(t, "explore", m.Stage)
		require.Equal(t, 4, m.Workers)
		require.Equal(t, 400, m.Games)
		require.Equal(t, 400, m.Expansions)
		require.Equal(t, 400, m.Rollouts)
		require.Equal(t, 1200, m.Timesteps)
		require.Equal(t, 8, m.DeadlockDelays)
		require.Equal(t, 1, m.WorkerErrors)
		require.Equal(t, 42, m.Nodes)
		require.Equal(t, 7, m.MaxDepth)
		require.False(t, m.StartTime.IsZero())
	})

	t.Run("dummy collector records nothing", func(t *testing.T) {
		c := NewDummyCollector()
		c.Start("explore", 4)
		c.AddGame()
		c.AddTimesteps(10)
		require.Equal(t, StageMetric{}, c.Complete())
	})
}

func TestWriter(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, "parallel")
	require.NoError(t, err)
	require.DirExists(t, w.Dir())
	require.Equal(t, filepath.Join(root, "parallel"), filepath.Dir(w.Dir()))

	metrics := []StageMetric{
		{Stage: "a", Workers: 1, StartTime: time.Now(), Duration: 2 * time.Second, Games: 10, MaxDepth: 3},
		{Stage: "b", Workers: 8, StartTime: time.Now(), Duration: time.Second, Games: 50, WorkerErrors: 1},
	}
	path, err := w.WriteStageMetrics(metrics)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temporary file should be renamed away")

	records, err := ReadStageRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "parallel", records[0].Experiment)
	require.Equal(t, "a", records[0].Stage)
	require.Equal(t, int32(3), records[0].MaxDepth)
	require.InDelta(t, 5.0, records[0].GamesPerSecond, 1e-9)
	require.Equal(t, int32(8), records[1].Workers)
	require.Equal(t, int32(1), records[1].WorkerErrors)
	require.NotEqual(t, records[0].ID, records[1].ID)
}

func TestWriteSetup(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "parallel")
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = w.WriteSetup(Setup{Workers: []int{1, 2, 4}, Games: 100, Repeats: 2, StartTime: start, EndTime: start.Add(time.Minute)})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(w.Dir(), "setup.yaml"))
	require.NoError(t, err)
	var setup Setup
	require.NoError(t, yaml.Unmarshal(data, &setup))
	require.Equal(t, "parallel", setup.Experiment)
	require.Equal(t, []int{1, 2, 4}, setup.Workers)
	require.Equal(t, time.Minute, setup.Duration)
}
