package watch

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/burrow/internal/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, mr *miniredis.Miniredis) *events.Client {
	t.Helper()
	client, err := events.NewClient(&redis.Options{Addr: mr.Addr()}, uuid.New().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func startedRun(id string) *events.Run {
	return &events.Run{ID: id, Status: events.RunStatusRunning, StartedAtMs: time.Now().UnixMilli()}
}

func TestPollForRun(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()

	t.Run("returns run when already finished", func(t *testing.T) {
		client := newClient(t, mr)
		run := startedRun(client.RunID())
		require.NoError(t, client.StartRun(ctx, run))
		run.Status = events.RunStatusSucceeded
		run.FinishedAtMs = run.StartedAtMs + 10
		require.NoError(t, client.FinishRun(ctx, run))

		got, err := PollForRun(ctx, client, run.ID, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, events.RunStatusSucceeded, got.Status)
	})

	t.Run("waits for a running run to finish", func(t *testing.T) {
		client := newClient(t, mr)
		run := startedRun(client.RunID())
		require.NoError(t, client.StartRun(ctx, run))

		go func() {
			time.Sleep(300 * time.Millisecond)
			done := *run
			done.Status = events.RunStatusFailed
			done.Error = "clip: no polygons"
			done.FinishedAtMs = done.StartedAtMs + 300
			client.FinishRun(ctx, &done)
		}()

		got, err := PollForRun(ctx, client, run.ID, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, events.RunStatusFailed, got.Status)
		assert.Equal(t, "clip: no polygons", got.Error)
	})

	t.Run("times out when run never appears", func(t *testing.T) {
		client := newClient(t, mr)
		_, err := PollForRun(ctx, client, uuid.New().String(), 500*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for run")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		client := newClient(t, mr)
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		_, err := PollForRun(cctx, client, uuid.New().String(), 5*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// fakeSource feeds prepared events and errors.
type fakeSource struct {
	events chan *events.Event
	errors chan error
}

func (f *fakeSource) Events() <-chan *events.Event { return f.events }
func (f *fakeSource) Errors() <-chan error         { return f.errors }

func TestFollow_SingleRun(t *testing.T) {
	src := &fakeSource{events: make(chan *events.Event, 10), errors: make(chan error, 1)}
	mine := "aaaaaaaa-0000"
	other := "bbbbbbbb-0000"

	src.events <- &events.Event{Type: events.EventRunStarted, Run: &events.Run{ID: other}}
	src.events <- &events.Event{Type: events.EventRunStarted, Run: &events.Run{ID: mine, Container: "Crime.gpkg"}}
	src.errors <- assert.AnError
	src.events <- &events.Event{Type: events.EventStep, Step: &events.Step{RunID: mine, Name: "clip", Status: events.StepCompleted}}
	src.events <- &events.Event{Type: events.EventRunFinished, Run: &events.Run{ID: mine, Status: events.RunStatusSucceeded}}
	src.events <- &events.Event{Type: events.EventStep, Step: &events.Step{RunID: mine, Name: "late", Status: events.StepCompleted}}

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- Follow(context.Background(), src, mine, &buf) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after run_finished")
	}

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.NotContains(t, out, "bbbbbbbb")
	assert.NotContains(t, out, "late")
	assert.Contains(t, out, "aaaaaaaa succeeded")
}

func TestFollow_AllRunsUntilClosed(t *testing.T) {
	src := &fakeSource{events: make(chan *events.Event, 10), errors: make(chan error)}
	src.events <- &events.Event{Type: events.EventRunStarted, Run: &events.Run{ID: "aaaaaaaa-1"}}
	src.events <- &events.Event{Type: events.EventRunStarted, Run: &events.Run{ID: "bbbbbbbb-2"}}
	close(src.events)
	close(src.errors)

	var buf bytes.Buffer
	require.NoError(t, Follow(context.Background(), src, "", &buf))
	assert.Contains(t, buf.String(), "aaaaaaaa started")
	assert.Contains(t, buf.String(), "bbbbbbbb started")
}

func TestFollow_ContextCancelled(t *testing.T) {
	src := &fakeSource{events: make(chan *events.Event), errors: make(chan error)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	assert.NoError(t, Follow(ctx, src, "", &buf))
	assert.Empty(t, buf.String())
}

func TestFollow_WithRedisSubscription(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client := newClient(t, mr)
	sub, err := client.SubscribeRunEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	run := startedRun(client.RunID())
	require.NoError(t, client.StartRun(ctx, run))
	require.NoError(t, client.RecordStep(ctx, &events.Step{Name: "import", Status: events.StepCompleted}))
	run.Status = events.RunStatusSucceeded
	run.FinishedAtMs = run.StartedAtMs + 1000
	require.NoError(t, client.FinishRun(ctx, run))

	var buf bytes.Buffer
	require.NoError(t, Follow(ctx, sub, run.ID, &buf))
	assert.Contains(t, buf.String(), "import")
	assert.Contains(t, buf.String(), "succeeded in 1.0s")
}
