package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Client writes one run's ledger entries and reads back any run.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb   *redis.Client
	runID string
}

// NewClient creates a ledger client for the specified run.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - runID: UUID of the run being recorded (must not be empty)
//
// Returns an error if runID is empty.
func NewClient(redisOpts *redis.Options, runID string) (*Client, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	return &Client{
		rdb:   redis.NewClient(redisOpts),
		runID: runID,
	}, nil
}

// NewClientFromURL parses a redis:// URL and creates a ledger client.
func NewClientFromURL(redisURL, runID string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewClient(opts, runID)
}

// RunID returns the run this client records.
func (c *Client) RunID() string {
	return c.runID
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// StartRun writes the run hash, adds it to the runs index and publishes run_started.
func (c *Client) StartRun(ctx context.Context, r *Run) error {
	if r.ID != c.runID {
		return fmt.Errorf("run %s does not belong to this client (%s)", r.ID, c.runID)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	if err := c.writeRun(ctx, r); err != nil {
		return err
	}

	z := redis.Z{Score: float64(r.StartedAtMs), Member: r.ID}
	if err := c.rdb.ZAdd(ctx, RunsIndexKey, z).Err(); err != nil {
		return fmt.Errorf("failed to index run: %w", err)
	}

	return c.publish(ctx, &Event{Type: EventRunStarted, Run: r})
}

// RecordStep appends a step to the run's step list and publishes it.
// An empty RunID is filled with the client's run.
func (c *Client) RecordStep(ctx context.Context, s *Step) error {
	if s.RunID == "" {
		s.RunID = c.runID
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid step: %w", err)
	}

	stepJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}
	if err := c.rdb.RPush(ctx, StepsKey(s.RunID), stepJSON).Err(); err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}

	return c.publish(ctx, &Event{Type: EventStep, Step: s})
}

// FinishRun replaces the run hash with its final state and publishes run_finished.
func (c *Client) FinishRun(ctx context.Context, r *Run) error {
	if r.ID != c.runID {
		return fmt.Errorf("run %s does not belong to this client (%s)", r.ID, c.runID)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	if r.Status == RunStatusRunning {
		return fmt.Errorf("cannot finish run %s with status %s", r.ID, r.Status)
	}

	if err := c.writeRun(ctx, r); err != nil {
		return err
	}
	return c.publish(ctx, &Event{Type: EventRunFinished, Run: r})
}

func (c *Client) writeRun(ctx context.Context, r *Run) error {
	hash, err := RunToHash(r)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}
	if err := c.rdb.HSet(ctx, RunKey(r.ID), hash).Err(); err != nil {
		return fmt.Errorf("failed to write run to Redis: %w", err)
	}
	return nil
}

func (c *Client) publish(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	if err := c.rdb.Publish(ctx, RunEventsChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", e.Type, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
// Returns (nil, redis.Nil) if the run doesn't exist.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	hashData, err := c.rdb.HGetAll(ctx, RunKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run from Redis: %w", err)
	}

	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	run, err := HashToRun(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize run: %w", err)
	}
	return run, nil
}

// Steps returns a run's steps in the order they were recorded.
// Returns an empty slice if no steps exist (not an error).
func (c *Client) Steps(ctx context.Context, runID string) ([]*Step, error) {
	raw, err := c.rdb.LRange(ctx, StepsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read steps from Redis: %w", err)
	}

	steps := make([]*Step, 0, len(raw))
	for i, item := range raw {
		var s Step
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step %d: %w", i, err)
		}
		steps = append(steps, &s)
	}
	return steps, nil
}

// RecentRuns returns up to limit runs, newest first.
// Index entries whose hash has expired or been deleted are skipped.
func (c *Client) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		return []*Run{}, nil
	}

	ids, err := c.rdb.ZRevRange(ctx, RunsIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs index: %w", err)
	}

	runs := make([]*Run, 0, len(ids))
	for _, id := range ids {
		run, err := c.GetRun(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ScanRuns returns every indexed run ID that starts with prefix, oldest first.
func (c *Client) ScanRuns(ctx context.Context, prefix string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, RunsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs index: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// Subscription represents an active Pub/Sub subscription to run events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of run events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeRunEvents subscribes to events from every run.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is at-most-once.
func (c *Client) SubscribeRunEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, RunEventsChannel)

	// Wait for the subscription to be confirmed so no event published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", RunEventsChannel, err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal run event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
