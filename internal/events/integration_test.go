//go:build integration

package events

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/burrow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedger_RealRedis records a full run against a Redis container.
func TestLedger_RealRedis(t *testing.T) {
	redisURL := testutil.StartRedis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewClientFromURL(redisURL, uuid.New().String())
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(ctx))

	sub, err := client.SubscribeRunEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	run := &Run{
		ID:          client.RunID(),
		Status:      RunStatusRunning,
		Container:   "/data/Crime.gpkg",
		TargetSRS:   "EPSG:2283",
		StartedAtMs: time.Now().UnixMilli(),
	}
	require.NoError(t, client.StartRun(ctx, run))
	require.NoError(t, client.RecordStep(ctx, &Step{Name: "import", Status: StepCompleted, Layer: "Boundary_shp"}))

	run.Status = RunStatusSucceeded
	run.FinishedAtMs = run.StartedAtMs + 1500
	require.NoError(t, client.FinishRun(ctx, run))

	var received []EventType
	for len(received) < 3 {
		select {
		case e := <-sub.Events():
			received = append(received, e.Type)
		case <-ctx.Done():
			t.Fatalf("timeout waiting for events, got %v", received)
		}
	}
	assert.Equal(t, []EventType{EventRunStarted, EventStep, EventRunFinished}, received)

	runs, err := client.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusSucceeded, runs[0].Status)

	steps, err := client.Steps(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "Boundary_shp", steps[0].Layer)
}
