// Package watch follows pipeline runs recorded in the ledger.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dyluth/burrow/internal/catalog"
	"github.com/dyluth/burrow/internal/events"
)

// RunGetter reads a run by ID. *events.Client satisfies it.
type RunGetter interface {
	GetRun(ctx context.Context, runID string) (*events.Run, error)
}

// EventSource delivers ledger events. *events.Subscription satisfies it.
type EventSource interface {
	Events() <-chan *events.Event
	Errors() <-chan error
}

// PollForRun polls until the run exists and has finished, then returns it.
// Polls every 200ms for at most timeout.
func PollForRun(ctx context.Context, getter RunGetter, runID string, timeout time.Duration) (*events.Run, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for run %s to finish after %v", runID, timeout)

		case <-ticker.C:
			run, err := getter.GetRun(ctx, runID)
			if err != nil {
				if events.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query run: %w", err)
			}
			if run.Status == events.RunStatusRunning {
				continue
			}
			return run, nil
		}
	}
}

// Follow writes every event from src to w until ctx is done or src closes.
// When runID is set, other runs are ignored and Follow returns once that run finishes.
func Follow(ctx context.Context, src EventSource, runID string, w io.Writer) error {
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Watch] Skipping event: %v", err)

		case e, ok := <-src.Events():
			if !ok {
				return nil
			}
			if runID != "" && eventRunID(e) != runID {
				continue
			}
			catalog.FormatEvent(w, e)
			if runID != "" && e.Type == events.EventRunFinished {
				return nil
			}
		}
	}
}

func eventRunID(e *events.Event) string {
	switch {
	case e.Run != nil:
		return e.Run.ID
	case e.Step != nil:
		return e.Step.RunID
	}
	return ""
}
