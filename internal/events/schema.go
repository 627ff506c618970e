package events

import "fmt"

// Redis key pattern helpers
//
// Key pattern: burrow:run:{run_id}
// Step list:   burrow:run:{run_id}:steps
// Run index:   burrow:runs (ZSET scored by start time)
// Channel:     burrow:run_events

const (
	// RunsIndexKey is the sorted set of run IDs scored by start time in milliseconds.
	RunsIndexKey = "burrow:runs"

	// RunEventsChannel carries every Event as JSON.
	RunEventsChannel = "burrow:run_events"
)

// RunKey returns the Redis key for a run hash.
// Pattern: burrow:run:{run_id}
func RunKey(runID string) string {
	return fmt.Sprintf("burrow:run:%s", runID)
}

// StepsKey returns the Redis key for a run's step list.
// Pattern: burrow:run:{run_id}:steps
func StepsKey(runID string) string {
	return fmt.Sprintf("burrow:run:%s:steps", runID)
}
