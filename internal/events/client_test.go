package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func newRun(id string, startedAtMs int64) *Run {
	return &Run{
		ID:          id,
		Status:      RunStatusRunning,
		Container:   "/data/Crime.gpkg",
		TargetSRS:   "EPSG:2283",
		StartedAtMs: startedAtMs,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.NotEmpty(t, client.RunID())
	})

	t.Run("rejects empty run id", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "run id cannot be empty")
	})

	t.Run("from url", func(t *testing.T) {
		client, err := NewClientFromURL("redis://localhost:6379/3", "run")
		require.NoError(t, err)
		defer client.Close()
		assert.Equal(t, 3, client.rdb.Options().DB)
	})

	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewClientFromURL("http://localhost", "run")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid redis url")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestStartRun(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("writes hash and index", func(t *testing.T) {
		run := newRun(client.RunID(), 1700000000000)
		require.NoError(t, client.StartRun(ctx, run))

		assert.True(t, mr.Exists(RunKey(run.ID)))
		assert.Equal(t, "running", mr.HGet(RunKey(run.ID), "status"))

		score, err := mr.ZScore(RunsIndexKey, run.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(1700000000000), score)
	})

	t.Run("rejects a run from another client", func(t *testing.T) {
		err := client.StartRun(ctx, newRun(uuid.New().String(), 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not belong")
	})

	t.Run("rejects invalid run", func(t *testing.T) {
		run := newRun(client.RunID(), 0)
		err := client.StartRun(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid run")
	})
}

func TestRecordStepAndSteps(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	steps := []*Step{
		{Name: "import", Status: StepStarted, AtMs: 1},
		{Name: "import", Status: StepCompleted, Layer: "Boundary_shp", DurationMs: 12, AtMs: 13},
		{Name: "reproject", Status: StepFailed, Message: "invalid spatial reference", AtMs: 20},
	}
	for _, s := range steps {
		require.NoError(t, client.RecordStep(ctx, s))
	}

	got, err := client.Steps(ctx, client.RunID())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, client.RunID(), got[0].RunID, "run id filled in")
	assert.Equal(t, "Boundary_shp", got[1].Layer)
	assert.Equal(t, int64(12), got[1].DurationMs)
	assert.Equal(t, StepFailed, got[2].Status)
	assert.Equal(t, "invalid spatial reference", got[2].Message)

	t.Run("unknown run has no steps", func(t *testing.T) {
		none, err := client.Steps(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("rejects invalid step", func(t *testing.T) {
		err := client.RecordStep(ctx, &Step{Name: "clip", Status: "paused"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid step status")
	})
}

func TestFinishRunAndGetRun(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	run := newRun(client.RunID(), 1700000000000)
	require.NoError(t, client.StartRun(ctx, run))

	t.Run("cannot finish as running", func(t *testing.T) {
		err := client.FinishRun(ctx, run)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot finish")
	})

	run.Status = RunStatusSucceeded
	run.FinishedAtMs = run.StartedAtMs + 95000
	run.Outputs = map[string]string{"beats_csv": "/data/BeatsCSV.csv"}
	require.NoError(t, client.FinishRun(ctx, run))

	got, err := client.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	t.Run("missing run", func(t *testing.T) {
		_, err := client.GetRun(ctx, uuid.New().String())
		assert.True(t, IsNotFound(err))
	})
}

func TestRecentRuns(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.New().String()
		ids = append(ids, id)
		client, err := NewClient(&redis.Options{Addr: mr.Addr()}, id)
		require.NoError(t, err)
		require.NoError(t, client.StartRun(ctx, newRun(id, int64(1000+i))))
		client.Close()
	}

	reader, err := NewClient(&redis.Options{Addr: mr.Addr()}, "reader")
	require.NoError(t, err)
	defer reader.Close()

	runs, err := reader.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[1], runs[1].ID)

	t.Run("skips deleted hashes", func(t *testing.T) {
		mr.Del(RunKey(ids[2]))
		runs, err := reader.RecentRuns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, ids[1], runs[0].ID)
	})

	t.Run("zero limit", func(t *testing.T) {
		runs, err := reader.RecentRuns(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestSubscribeRunEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeRunEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	run := newRun(client.RunID(), 1700000000000)
	require.NoError(t, client.StartRun(ctx, run))
	require.NoError(t, client.RecordStep(ctx, &Step{Name: "clip", Status: StepCompleted, Layer: "Crime_thiessen_clip"}))

	expected := []EventType{EventRunStarted, EventStep}
	for _, want := range expected {
		select {
		case e := <-sub.Events():
			assert.Equal(t, want, e.Type)
			if e.Type == EventStep {
				require.NotNil(t, e.Step)
				assert.Equal(t, "Crime_thiessen_clip", e.Step.Layer)
			} else {
				require.NotNil(t, e.Run)
				assert.Equal(t, run.ID, e.Run.ID)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	client, _ := setupTestClient(t)

	sub, err := client.SubscribeRunEvents(context.Background())
	require.NoError(t, err)
	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel closes after Close")
	case <-time.After(1 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

func TestScanRuns(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	ctx := context.Background()

	ids := []string{
		"aaaaaaaa-0000-4000-8000-000000000001",
		"aaaaaaab-0000-4000-8000-000000000002",
		"bbbbbbbb-0000-4000-8000-000000000003",
	}
	for i, id := range ids {
		client, err := NewClient(&redis.Options{Addr: mr.Addr()}, id)
		require.NoError(t, err)
		require.NoError(t, client.StartRun(ctx, newRun(id, int64(100+i))))
		client.Close()
	}

	reader, err := NewClient(&redis.Options{Addr: mr.Addr()}, "reader")
	require.NoError(t, err)
	defer reader.Close()

	matches, err := reader.ScanRuns(ctx, "aaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, ids[:2], matches)

	matches, err = reader.ScanRuns(ctx, "bbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, ids[2:], matches)

	matches, err = reader.ScanRuns(ctx, "cccccc")
	require.NoError(t, err)
	assert.Empty(t, matches)
}
