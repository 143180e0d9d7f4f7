package tuned

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/evaluate"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/metrics"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/report"
	"github.com/GoSim-25-26J-441/profile-autotune/pkg/logger"
)

// RunExecutor manages asynchronous run execution and per-run cancellation.
// Runs share one backend and are executed one at a time; a started run
// stays pending until the previous one finished.
type RunExecutor struct {
	store    *RunStore
	client   backend.Client
	notifier *Notifier

	// held for the duration of a run or an apply
	worker sync.Mutex

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

var (
	ErrRunNotFound         = errors.New("run not found")
	ErrRunTerminal         = errors.New("run is terminal")
	ErrRunIDMissing        = errors.New("run_id is required")
	ErrResultsNotAvailable = errors.New("results not available")
	ErrBackendBusy         = errors.New("a tuning run is in progress")
)

// NewRunExecutor creates an executor measuring against client. notifier may
// be nil.
func NewRunExecutor(store *RunStore, client backend.Client, notifier *Notifier) *RunExecutor {
	return &RunExecutor{
		store:    store,
		client:   client,
		notifier: notifier,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start queues a pending run for execution.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	e.mu.Lock()
	if _, running := e.cancels[runID]; running {
		e.mu.Unlock()
		return rec, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancels[runID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.execute(ctx, runID)
	return rec, nil
}

// Stop requests cancellation for a pending or running run and marks it
// cancelled.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	return e.store.SetStatus(runID, RunStatusCancelled, "")
}

// Wait blocks until every started run has finished.
func (e *RunExecutor) Wait() {
	e.wg.Wait()
}

// Shutdown cancels every queued or running run and waits for them to end.
func (e *RunExecutor) Shutdown() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id := range e.cancels {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if _, err := e.Stop(id); err != nil {
			logger.Debug("stop on shutdown", "run_id", id, "error", err)
		}
	}
	e.wg.Wait()
}

// Apply pushes a form from a finished run to the backend. Rank 0 selects the
// recommended form, rank n the n-th fastest result.
func (e *RunExecutor) Apply(ctx context.Context, runID string, rank int) (profile.Form, report.ApplyResult, error) {
	if runID == "" {
		return profile.Form{}, report.ApplyResult{}, ErrRunIDMissing
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return profile.Form{}, report.ApplyResult{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var form profile.Form
	var err error
	switch {
	case rec.Report != nil:
		form, err = report.Select(rec.Report, rank)
	case rec.Grid != nil:
		form, err = report.SelectGrid(rec.Grid, rank)
	default:
		return profile.Form{}, report.ApplyResult{}, fmt.Errorf("%w: %s", ErrResultsNotAvailable, runID)
	}
	if err != nil {
		return profile.Form{}, report.ApplyResult{}, err
	}

	if !e.worker.TryLock() {
		return profile.Form{}, report.ApplyResult{}, ErrBackendBusy
	}
	defer e.worker.Unlock()

	logger.Info("applying tuning result", "run_id", runID, "rank", rank, "profile", form.Name)
	return form, report.Apply(ctx, e.client, form), nil
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
}

func (e *RunExecutor) execute(ctx context.Context, runID string) {
	defer e.wg.Done()
	defer e.cleanup(runID)
	defer e.notify(runID)

	e.worker.Lock()
	defer e.worker.Unlock()

	if ctx.Err() != nil {
		logger.Info("tuning cancelled before start", "run_id", runID)
		return
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		logger.Error("run not found", "run_id", runID)
		return
	}
	if _, err := e.store.SetStatus(runID, RunStatusRunning, ""); err != nil {
		logger.Warn("run left before start", "run_id", runID, "error", err)
		return
	}

	plan, err := rec.Tuning.Plan()
	if err != nil {
		e.fail(runID, fmt.Errorf("invalid tuning: %w", err))
		return
	}

	collector := metrics.NewCollector()
	collector.Start()
	if err := e.store.SetCollector(runID, collector); err != nil {
		logger.Error("failed to store collector", "run_id", runID, "error", err)
	}

	evaluator := evaluate.NewEvaluator(e.client, rec.Tuning.HistoryEntries())
	logger.Info("starting tuning", "run_id", runID, "mode", rec.Run.Mode, "axes", len(plan.Axes))

	var runErr error
	if rec.Run.Mode == ModeGrid {
		runErr = e.runGrid(ctx, runID, evaluator, plan, collector)
	} else {
		runErr = e.runAuto(ctx, runID, evaluator, plan, collector)
	}
	collector.Stop()

	if ctx.Err() != nil {
		logger.Info("tuning cancelled", "run_id", runID)
		return
	}
	if runErr != nil {
		e.fail(runID, runErr)
		return
	}

	if _, err := e.store.SetStatus(runID, RunStatusCompleted, ""); err != nil {
		logger.Warn("failed to set completed status", "run_id", runID, "error", err)
		return
	}
	summary := collector.GetSummary()
	logger.Info("tuning completed", "run_id", runID,
		"evaluations", summary.Evaluations,
		"failures", summary.Failures,
		"duration", summary.Duration)
}

func (e *RunExecutor) runAuto(ctx context.Context, runID string, evaluator *evaluate.Evaluator, plan improvement.Plan, collector *metrics.Collector) error {
	orchestrator := improvement.NewOrchestrator(evaluator).
		WithCollector(collector).
		WithProgressReporter(func(s improvement.Step) {
			if err := e.store.AppendStep(runID, s); err != nil {
				logger.Warn("failed to journal step", "run_id", runID, "error", err)
			}
		})

	rep, err := orchestrator.Run(ctx, plan)
	if rep != nil {
		if setErr := e.store.SetReport(runID, rep); setErr != nil {
			logger.Error("failed to store report", "run_id", runID, "error", setErr)
		}
	}
	return err
}

func (e *RunExecutor) runGrid(ctx context.Context, runID string, evaluator *evaluate.Evaluator, plan improvement.Plan, collector *metrics.Collector) error {
	prompts := plan.Prompts()
	if len(prompts) == 0 {
		return improvement.ErrNoPrompt
	}

	grid, err := improvement.RunGrid(ctx, evaluator, plan.Base, plan.Axes, prompts[0])
	if grid == nil {
		return err
	}
	for _, entry := range grid.Entries {
		collector.RecordEvaluation(entry.Combination, entry.Evaluation.Stats)
	}
	if setErr := e.store.SetGrid(runID, grid); setErr != nil {
		logger.Error("failed to store grid", "run_id", runID, "error", setErr)
	}
	return err
}

func (e *RunExecutor) fail(runID string, err error) {
	logger.Error("tuning failed", "run_id", runID, "error", err)
	if _, setErr := e.store.SetStatus(runID, RunStatusFailed, err.Error()); setErr != nil {
		logger.Error("failed to set failed status", "run_id", runID, "error", setErr)
	}
}

func (e *RunExecutor) notify(runID string) {
	if e.notifier == nil {
		return
	}
	rec, ok := e.store.Get(runID)
	if !ok || rec.Input.CallbackURL == "" {
		return
	}
	e.notifier.Notify(rec.Input.CallbackURL, rec.Input.CallbackSecret, rec)
}
