// Package events records pipeline runs in Redis: one hash per run, an ordered list
// of step events, a sorted index of runs by start time, and a Pub/Sub channel that
// carries every change as it happens.
package events

import (
	"fmt"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	// RunStatusRunning is set when a run starts and cleared when it finishes
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded marks a run whose outputs were all written
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed marks a run that stopped at a failing step
	RunStatusFailed RunStatus = "failed"
)

// Validate checks that the status is one of the known values.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed:
		return nil
	}
	return fmt.Errorf("invalid run status: %q", s)
}

// Run is the ledger record of one pipeline execution.
type Run struct {
	ID           string            `json:"id"`                // UUID
	Status       RunStatus         `json:"status"`            // Current lifecycle state
	Container    string            `json:"container"`         // GeoPackage path
	TargetSRS    string            `json:"target_srs"`        // Projection every layer was moved into
	StartedAtMs  int64             `json:"started_at_ms"`     // Unix milliseconds
	FinishedAtMs int64             `json:"finished_at_ms"`    // Zero while running
	Error        string            `json:"error,omitempty"`   // Failure message when status=failed
	Outputs      map[string]string `json:"outputs,omitempty"` // Output key to written file
}

// Validate checks the run fields required by the ledger.
func (r *Run) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("run id must be a UUID: %w", err)
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if r.StartedAtMs <= 0 {
		return fmt.Errorf("started_at_ms must be set")
	}
	if r.Status == RunStatusFailed && r.Error == "" {
		return fmt.Errorf("failed runs must carry an error message")
	}
	return nil
}

// StepStatus is the outcome of one pipeline step.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one entry in a run's step list.
type Step struct {
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`            // e.g. "reproject", "summarize-beats"
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	Layer      string     `json:"layer,omitempty"` // Layer written by the step, if any
	DurationMs int64      `json:"duration_ms"`
	AtMs       int64      `json:"at_ms"`
}

// Validate checks the step fields required by the ledger.
func (s *Step) Validate() error {
	if s.RunID == "" {
		return fmt.Errorf("step run_id cannot be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	switch s.Status {
	case StepStarted, StepCompleted, StepFailed:
	default:
		return fmt.Errorf("invalid step status: %q", s.Status)
	}
	return nil
}

// EventType discriminates messages on the run events channel.
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventStep        EventType = "step"
	EventRunFinished EventType = "run_finished"
)

// Event is the JSON payload published on the run events channel.
type Event struct {
	Type EventType `json:"type"`
	Run  *Run      `json:"run,omitempty"`
	Step *Step     `json:"step,omitempty"`
}
