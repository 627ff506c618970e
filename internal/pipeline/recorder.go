package pipeline

import (
	"context"

	"github.com/dyluth/burrow/internal/events"
)

// Recorder receives the run lifecycle. *events.Client satisfies it.
type Recorder interface {
	StartRun(ctx context.Context, r *events.Run) error
	RecordStep(ctx context.Context, s *events.Step) error
	FinishRun(ctx context.Context, r *events.Run) error
}

// NopRecorder discards everything. Used when no ledger is configured.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, *events.Run) error    { return nil }
func (NopRecorder) RecordStep(context.Context, *events.Step) error { return nil }
func (NopRecorder) FinishRun(context.Context, *events.Run) error   { return nil }
