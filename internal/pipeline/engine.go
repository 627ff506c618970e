// Package pipeline runs the crime-analysis workflow: import the inputs into a
// fresh container, reproject them, build and clip the Thiessen tessellation,
// summarize addresses and crimes, and export the summaries as CSV.
//
// The workflow is strictly linear. The first failing step aborts the run;
// nothing is retried or rolled back.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/burrow/internal/config"
	"github.com/dyluth/burrow/internal/events"
	"github.com/dyluth/burrow/internal/geoproc"
	"github.com/dyluth/burrow/internal/gpkg"
	"github.com/dyluth/burrow/internal/layer"
	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/reproject"
	"github.com/google/uuid"
)

// Options tune an Engine. Zero values are replaced with defaults.
type Options struct {
	// RunID identifies the run; a new UUID when empty.
	RunID string
	// Printer receives progress lines; stdout when nil.
	Printer *printer.Printer
	// Recorder receives step events; NopRecorder when nil.
	Recorder Recorder
}

// Result describes a successful run.
type Result struct {
	RunID     string
	Container string
	Layers    []gpkg.LayerInfo
	// Outputs maps output keys (thiessen_csv, beats_csv, ...) to written paths.
	Outputs map[string]string
	Elapsed time.Duration
}

// Engine executes one run of the workflow. It is not reusable.
type Engine struct {
	cfg      *config.BurrowConfig
	runID    string
	out      *printer.Printer
	recorder Recorder

	containerPath string
	container     *gpkg.Container
	reprojector   *reproject.Reprojector
	processor     *geoproc.Processor

	// layers holds every layer written so far, by container name.
	layers  map[string]*layer.Layer
	order   []string
	outputs map[string]string
}

// New creates an engine for a validated configuration.
func New(cfg *config.BurrowConfig, opts Options) *Engine {
	e := &Engine{
		cfg:           cfg,
		runID:         opts.RunID,
		out:           opts.Printer,
		recorder:      opts.Recorder,
		containerPath: cfg.Resolve(cfg.Container),
		processor:     geoproc.NewProcessor(),
		layers:        make(map[string]*layer.Layer),
		outputs:       make(map[string]string),
	}
	if e.runID == "" {
		e.runID = uuid.New().String()
	}
	if e.out == nil {
		e.out = printer.Stdout()
	}
	if e.recorder == nil {
		e.recorder = NopRecorder{}
	}
	return e
}

// RunID returns the identifier of this engine's run.
func (e *Engine) RunID() string {
	return e.runID
}

type step struct {
	name string
	fn   func(ctx context.Context) (string, error)
}

func (e *Engine) steps() []step {
	steps := []step{
		{StepValidateInputs, e.validateInputs},
		{StepDescribeBoundary, e.describeBoundary},
		{StepCreateContainer, e.createContainer},
		{StepImport, e.importInputs},
		{StepReproject, e.reprojectLayers},
		{StepBoundaryPolygon, e.boundaryPolygon},
		{StepThiessen, e.thiessen},
		{StepClip, e.clip},
		{StepSummarizeAddresses, e.summarizeAddresses},
		{StepSummarizeBeats, e.summarizeBeats},
	}
	if e.cfg.Outputs.CenterlinesCSV != "" {
		steps = append(steps, step{StepSummarizeCenterlines, e.summarizeCenterlines})
	}
	return steps
}

// Run executes every step in order and returns the run summary.
// Cancelling ctx stops the run before the next step starts.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	defer e.close()

	run := &events.Run{
		ID:          e.runID,
		Status:      events.RunStatusRunning,
		Container:   e.containerPath,
		TargetSRS:   e.cfg.TargetSRS,
		StartedAtMs: started.UnixMilli(),
	}
	e.ledger("start run", e.recorder.StartRun(ctx, run))

	e.out.Info("\n---Run %s starting---\n", e.runID)

	result, runErr := e.execute(ctx, started)

	run.FinishedAtMs = time.Now().UnixMilli()
	run.Outputs = e.outputs
	if runErr != nil {
		run.Status = events.RunStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = events.RunStatusSucceeded
	}
	e.ledger("finish run", e.recorder.FinishRun(context.WithoutCancel(ctx), run))

	if runErr != nil {
		return nil, runErr
	}

	e.out.Elapsed(result.Elapsed)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, started time.Time) (*Result, error) {
	for _, s := range e.steps() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled before %s: %w", s.name, err)
		}
		if err := e.runStep(ctx, s); err != nil {
			return nil, err
		}
	}

	if err := e.recordRun(ctx, started); err != nil {
		return nil, err
	}

	infos, err := e.container.Layers(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{
		RunID:     e.runID,
		Container: e.containerPath,
		Layers:    infos,
		Outputs:   e.outputs,
		Elapsed:   time.Since(started),
	}, nil
}

// runStep executes one step and reports its start and outcome to the recorder.
func (e *Engine) runStep(ctx context.Context, s step) error {
	begin := time.Now()
	e.ledger("record step", e.recorder.RecordStep(ctx, &events.Step{
		RunID:  e.runID,
		Name:   s.name,
		Status: events.StepStarted,
		AtMs:   begin.UnixMilli(),
	}))

	name, err := s.fn(ctx)

	done := &events.Step{
		RunID:      e.runID,
		Name:       s.name,
		Status:     events.StepCompleted,
		Layer:      name,
		DurationMs: time.Since(begin).Milliseconds(),
		AtMs:       time.Now().UnixMilli(),
	}
	if err != nil {
		done.Status = events.StepFailed
		done.Message = err.Error()
	}
	e.ledger("record step", e.recorder.RecordStep(context.WithoutCancel(ctx), done))

	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// recordRun stores the run summary inside the container itself.
func (e *Engine) recordRun(ctx context.Context, started time.Time) error {
	return e.container.RecordRun(ctx, gpkg.Run{
		ID:         e.runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		TargetSRS:  e.cfg.TargetSRS,
		LayerCount: len(e.order),
		Outputs:    e.outputs,
	})
}

// ledger logs recorder failures. The ledger is advisory; it never fails a run.
func (e *Engine) ledger(action string, err error) {
	if err != nil {
		log.Printf("[Pipeline] Failed to %s for run %s: %v", action, e.runID, err)
	}
}

func (e *Engine) close() {
	if e.reprojector != nil {
		e.reprojector.Close()
	}
	if e.container != nil {
		if err := e.container.Close(); err != nil {
			log.Printf("[Pipeline] Failed to close container: %v", err)
		}
	}
}
